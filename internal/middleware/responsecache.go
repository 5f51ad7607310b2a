package middleware

import (
	"bytes"
	"net/http"
	"time"

	"github.com/lolerskatez/jellysso-sub000/internal/cache"
	"github.com/lolerskatez/jellysso-sub000/internal/metrics"
)

// CacheHeader reports whether a response came from the response cache.
const CacheHeader = "X-Cache"

// bufferedResponse captures the handler output so it can be stored.
type bufferedResponse struct {
	http.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (w *bufferedResponse) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
}

func (w *bufferedResponse) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.buf.Write(b)
}

// ResponseCache serves repeated GET requests from store. Only 200 responses
// are stored, keyed by path and query, for ttl (0 uses the store default).
// Send Cache-Control: no-cache to bypass the lookup.
func ResponseCache(store cache.ByteStore, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			endpoint := routeTemplate(r)
			key := r.URL.RequestURI()
			if r.Header.Get("Cache-Control") != "no-cache" {
				if raw, ok := store.Get(key); ok {
					if contentType, body, ok := decodeCachedResponse(raw); ok {
						metrics.APICacheHits.WithLabelValues(endpoint).Inc()
						if contentType != "" {
							w.Header().Set("Content-Type", contentType)
						}
						w.Header().Set(CacheHeader, "HIT")
						w.WriteHeader(http.StatusOK)
						w.Write(body)
						return
					}
					store.Delete(key)
				}
			}
			metrics.APICacheMisses.WithLabelValues(endpoint).Inc()

			rec := &bufferedResponse{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			if rec.status == 0 {
				rec.status = http.StatusOK
			}

			if rec.status == http.StatusOK {
				store.Set(key, encodeCachedResponse(w.Header().Get("Content-Type"), rec.buf.Bytes()), ttl)
			}
			w.Header().Set(CacheHeader, "MISS")
			w.WriteHeader(rec.status)
			w.Write(rec.buf.Bytes())
		})
	}
}

// Stored layout: content type, a newline, then the body.
func encodeCachedResponse(contentType string, body []byte) []byte {
	out := make([]byte, 0, len(contentType)+1+len(body))
	out = append(out, contentType...)
	out = append(out, '\n')
	return append(out, body...)
}

func decodeCachedResponse(raw []byte) (string, []byte, bool) {
	i := bytes.IndexByte(raw, '\n')
	if i < 0 {
		return "", nil, false
	}
	return string(raw[:i]), raw[i+1:], true
}
