package apierr

import (
	"encoding/json"
	"net/http"

	"github.com/lolerskatez/jellysso-sub000/internal/logger"
)

// ErrorCode represents a structured error code
type ErrorCode string

// Error code constants organized by category
const (
	// AUTH_ - Authentication and authorization errors
	ErrAuthMissing       ErrorCode = "AUTH_MISSING"
	ErrAuthInvalid       ErrorCode = "AUTH_INVALID"
	ErrAuthNotConfigured ErrorCode = "AUTH_NOT_CONFIGURED"

	// CACHE_ - Cache administration errors
	ErrCacheNotFound    ErrorCode = "CACHE_NOT_FOUND"
	ErrCacheUnsupported ErrorCode = "CACHE_UNSUPPORTED"
	ErrCacheKeyNotFound ErrorCode = "CACHE_KEY_NOT_FOUND"

	// JELLYFIN_ - Upstream Jellyfin server errors
	ErrJellyfinNotConfigured ErrorCode = "JELLYFIN_NOT_CONFIGURED"
	ErrJellyfinUnavailable   ErrorCode = "JELLYFIN_UNAVAILABLE"
	ErrJellyfinUpstream      ErrorCode = "JELLYFIN_UPSTREAM"

	// SESSION_ - Login session errors
	ErrSessionNotFound ErrorCode = "SESSION_NOT_FOUND"

	// SYSTEM_ - System and server errors
	ErrSystemInternal ErrorCode = "SYSTEM_INTERNAL"
	ErrSystemDatabase ErrorCode = "SYSTEM_DATABASE"
	ErrSystemTimeout  ErrorCode = "SYSTEM_TIMEOUT"

	// VALIDATION_ - Request validation errors
	ErrValidationInvalidJSON   ErrorCode = "VALIDATION_INVALID_JSON"
	ErrValidationInvalidFormat ErrorCode = "VALIDATION_INVALID_FORMAT"
	ErrValidationMissingField  ErrorCode = "VALIDATION_MISSING_FIELD"
	ErrValidationInvalidValue  ErrorCode = "VALIDATION_INVALID_VALUE"

	// RESOURCE_ - Resource errors
	ErrResourceNotFound ErrorCode = "RESOURCE_NOT_FOUND"
	ErrResourceConflict ErrorCode = "RESOURCE_CONFLICT"

	// RATE_LIMIT_ - Rate limiting errors
	ErrRateLimitGlobal ErrorCode = "RATE_LIMIT_GLOBAL"
	ErrRateLimitIP     ErrorCode = "RATE_LIMIT_IP"
)

// Error represents a structured API error
type Error struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	status    int                    // HTTP status code (not serialized)
}

// ErrorResponse is the top-level error response wrapper
type ErrorResponse struct {
	Error *Error `json:"error"`
}

// New creates a new API error
func New(code ErrorCode, message string, status int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		status:  status,
	}
}

// WithDetails adds details to the error
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// WithRequestID adds a request ID to the error
func (e *Error) WithRequestID(requestID string) *Error {
	e.RequestID = requestID
	return e
}

// Error implements the error interface
func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// Status returns the HTTP status code
func (e *Error) Status() int {
	return e.status
}

// WriteError writes a structured error response to the HTTP response writer
func WriteError(w http.ResponseWriter, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status())
	json.NewEncoder(w).Encode(ErrorResponse{Error: err})
}

// Helper functions for common errors

// AuthMissing creates an authentication missing error
func AuthMissing(message string) *Error {
	if message == "" {
		message = "Authentication required"
	}
	return New(ErrAuthMissing, message, http.StatusUnauthorized)
}

// AuthInvalid creates an invalid authentication error
func AuthInvalid(message string) *Error {
	if message == "" {
		message = "Invalid authentication credentials"
	}
	return New(ErrAuthInvalid, message, http.StatusUnauthorized)
}

// AuthNotConfigured reports that admin authentication has no token configured
func AuthNotConfigured() *Error {
	return New(ErrAuthNotConfigured, "Admin API token not configured", http.StatusServiceUnavailable)
}

// CacheNotFound creates an unknown cache error
func CacheNotFound(name string) *Error {
	return New(ErrCacheNotFound, "Cache not found: "+name, http.StatusNotFound).
		WithDetails(map[string]interface{}{"cache": name})
}

// CacheUnsupported reports that a cache does not support the requested operation
func CacheUnsupported(name, operation string) *Error {
	return New(ErrCacheUnsupported, "Cache "+name+" does not support "+operation, http.StatusNotImplemented).
		WithDetails(map[string]interface{}{"cache": name, "operation": operation})
}

// CacheKeyNotFound creates a missing cache key error
func CacheKeyNotFound(name, key string) *Error {
	return New(ErrCacheKeyNotFound, "Key not found in cache "+name, http.StatusNotFound).
		WithDetails(map[string]interface{}{"cache": name, "key": key})
}

// JellyfinNotConfigured reports that no Jellyfin server URL or API key is set
func JellyfinNotConfigured() *Error {
	return New(ErrJellyfinNotConfigured, "Jellyfin server not configured", http.StatusServiceUnavailable)
}

// JellyfinUnavailable creates an error for an unreachable Jellyfin server
func JellyfinUnavailable(message string) *Error {
	if message == "" {
		message = "Jellyfin server unavailable"
	}
	return New(ErrJellyfinUnavailable, message, http.StatusServiceUnavailable)
}

// JellyfinUpstream creates an error for a failed Jellyfin response
func JellyfinUpstream(status int, path string) *Error {
	return New(ErrJellyfinUpstream, "Jellyfin request failed", http.StatusBadGateway).
		WithDetails(map[string]interface{}{"upstream_status": status, "path": path})
}

// SessionNotFound creates a missing session error
func SessionNotFound() *Error {
	return New(ErrSessionNotFound, "Session not found", http.StatusNotFound)
}

// SystemInternal creates an internal server error
func SystemInternal(message string) *Error {
	if message == "" {
		message = "Internal server error"
	}
	return New(ErrSystemInternal, message, http.StatusInternalServerError)
}

// SystemDatabase creates a database error
func SystemDatabase(message string) *Error {
	if message == "" {
		message = "Database error"
	}
	return New(ErrSystemDatabase, message, http.StatusInternalServerError)
}

// SystemTimeout creates a system timeout error
func SystemTimeout(message string) *Error {
	if message == "" {
		message = "Request timeout"
	}
	return New(ErrSystemTimeout, message, http.StatusRequestTimeout)
}

// ValidationInvalidJSON creates an invalid JSON error
func ValidationInvalidJSON() *Error {
	return New(ErrValidationInvalidJSON, "Invalid JSON request body", http.StatusBadRequest)
}

// ValidationInvalidFormat creates an invalid format error
func ValidationInvalidFormat(message string) *Error {
	if message == "" {
		message = "Invalid request format"
	}
	return New(ErrValidationInvalidFormat, message, http.StatusBadRequest)
}

// ValidationMissingField creates a missing field error
func ValidationMissingField(field string) *Error {
	return New(ErrValidationMissingField, "Missing required field: "+field, http.StatusBadRequest).
		WithDetails(map[string]interface{}{"field": field})
}

// ValidationInvalidValue creates an invalid value error
func ValidationInvalidValue(field string, message string) *Error {
	if message == "" {
		message = "Invalid value for field: " + field
	}
	return New(ErrValidationInvalidValue, message, http.StatusBadRequest).
		WithDetails(map[string]interface{}{"field": field})
}

// ResourceNotFound creates a resource not found error
func ResourceNotFound(resourceType string) *Error {
	return New(ErrResourceNotFound, resourceType+" not found", http.StatusNotFound).
		WithDetails(map[string]interface{}{"resource_type": resourceType})
}

// ResourceConflict creates a resource conflict error
func ResourceConflict(message string) *Error {
	if message == "" {
		message = "Resource conflict"
	}
	return New(ErrResourceConflict, message, http.StatusConflict)
}

// RateLimitGlobal creates a global rate limit error
func RateLimitGlobal() *Error {
	return New(ErrRateLimitGlobal, "Rate limit exceeded - too many requests globally", http.StatusTooManyRequests)
}

// RateLimitIP creates an IP rate limit error
func RateLimitIP() *Error {
	return New(ErrRateLimitIP, "Rate limit exceeded - too many requests from your IP", http.StatusTooManyRequests)
}

// WriteErrorWithContext writes a structured error response with request ID from context
func WriteErrorWithContext(w http.ResponseWriter, r *http.Request, err *Error) {
	if reqID := logger.RequestID(r.Context()); reqID != "" {
		err = err.WithRequestID(reqID)
	}
	WriteError(w, err)
}
