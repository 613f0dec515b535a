package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

type windowEntry struct {
	requests []time.Time
	mu       sync.Mutex
}

// RateLimiter allows max requests per client within a sliding window.
type RateLimiter struct {
	max    int
	window time.Duration
	store  sync.Map

	now func() time.Time
}

func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	return &RateLimiter{max: max, window: window, now: time.Now}
}

func (rl *RateLimiter) allow(key string) bool {
	now := rl.now()
	cutoff := now.Add(-rl.window)

	v, _ := rl.store.LoadOrStore(key, &windowEntry{})
	entry := v.(*windowEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	entry.requests = pruneBefore(entry.requests, cutoff)
	if len(entry.requests) >= rl.max {
		return false
	}

	entry.requests = append(entry.requests, now)
	return true
}

func pruneBefore(requests []time.Time, cutoff time.Time) []time.Time {
	filtered := requests[:0]
	for _, t := range requests {
		if t.After(cutoff) {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// Prune drops clients with no request inside the window and returns how
// many were removed.
func (rl *RateLimiter) Prune() int {
	cutoff := rl.now().Add(-rl.window)
	removed := 0
	rl.store.Range(func(k, v any) bool {
		entry := v.(*windowEntry)
		entry.mu.Lock()
		entry.requests = pruneBefore(entry.requests, cutoff)
		idle := len(entry.requests) == 0
		if idle {
			rl.store.Delete(k)
			removed++
		}
		entry.mu.Unlock()
		return true
	})
	return removed
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.allow(ip) {
			log.Debugf("Rate limit exceeded for %v on %v", ip, sanitizePath(r.URL.Path))
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP prefers the first X-Forwarded-For hop over the peer address.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
