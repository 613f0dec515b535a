package middleware

import (
	"net/http"
	"strings"
	"time"
)

// responseWriter captures the status code and size of a response.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Logging logs one line per request. Server errors log at error level,
// client errors at warn. Reset tokens in paths are masked.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		logf := log.Infof
		switch {
		case wrapped.statusCode >= 500:
			logf = log.Errorf
		case wrapped.statusCode >= 400:
			logf = log.Warnf
		}
		logf("%v %v %v %v %vB %v", clientIP(r), r.Method, sanitizePath(r.URL.Path),
			wrapped.statusCode, wrapped.written, time.Since(start))
	})
}

// sanitizePath replaces the segment after reset-password or forgot-password
// with ***.
func sanitizePath(path string) string {
	if !strings.Contains(path, "-password/") {
		return path
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if (part == "reset-password" || part == "forgot-password") && i+1 < len(parts) && parts[i+1] != "" {
			parts[i+1] = "***"
		}
	}
	return strings.Join(parts, "/")
}
