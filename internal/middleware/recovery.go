package middleware

import (
	"net/http"
	"runtime/debug"
)

// Recovery turns a panicking handler into a JSON 500.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Criticalf("Panic recovered in %v %v: %v\n%s", r.Method, sanitizePath(r.URL.Path), err, debug.Stack())
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
