package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

var (
	gzipPool = sync.Pool{New: func() any { return gzip.NewWriter(io.Discard) }}
	brPool   = sync.Pool{New: func() any { return brotli.NewWriterLevel(io.Discard, brotli.DefaultCompression) }}
)

type compressWriter interface {
	io.WriteCloser
	Reset(io.Writer)
}

// compressResponseWriter routes body writes through an encoder.
type compressResponseWriter struct {
	http.ResponseWriter
	enc         compressWriter
	wroteHeader bool
}

func (w *compressResponseWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.Header().Del("Content-Length")
	w.ResponseWriter.WriteHeader(status)
}

func (w *compressResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.enc.Write(b)
}

// Flush lets streaming handlers push compressed chunks.
func (w *compressResponseWriter) Flush() {
	if f, ok := w.enc.(interface{ Flush() error }); ok {
		_ = f.Flush()
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Compress encodes responses with brotli or gzip depending on the
// Accept-Encoding header, preferring brotli. WebSocket upgrades and HEAD
// requests pass through untouched.
func Compress(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Accept-Encoding")

		encoding := negotiateEncoding(r.Header.Get("Accept-Encoding"))
		if encoding == "" || r.Method == http.MethodHead || isWebSocketUpgrade(r) {
			next.ServeHTTP(w, r)
			return
		}

		var (
			enc  compressWriter
			pool *sync.Pool
		)
		switch encoding {
		case "br":
			pool = &brPool
			enc = brPool.Get().(*brotli.Writer)
		default:
			pool = &gzipPool
			enc = gzipPool.Get().(*gzip.Writer)
		}
		enc.Reset(w)
		defer func() {
			_ = enc.Close()
			pool.Put(enc)
		}()

		w.Header().Set("Content-Encoding", encoding)
		next.ServeHTTP(&compressResponseWriter{ResponseWriter: w, enc: enc}, r)
	})
}

func negotiateEncoding(accept string) string {
	var gz bool
	for _, part := range strings.Split(accept, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.ReplaceAll(strings.TrimSpace(params), " ", "") == "q=0" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "br":
			return "br"
		case "gzip":
			gz = true
		}
	}
	if gz {
		return "gzip"
	}
	return ""
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
