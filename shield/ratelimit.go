package shield

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

type bucket struct {
	count   int
	resetAt time.Time
}

// RateLimiter enforces a fixed-window per-IP limit. Expired buckets are
// garbage collected in the background once StartGC is called.
type RateLimiter struct {
	limit   RateLimit
	mu      sync.Mutex
	buckets map[string]*bucket
	exclude []string // path prefixes excluded from rate limiting
}

// NewRateLimiter creates a limiter. A zero MaxRequests disables limiting.
func NewRateLimiter(limit RateLimit, excludePrefixes ...string) *RateLimiter {
	if limit.Window <= 0 {
		limit.Window = time.Minute
	}
	return &RateLimiter{
		limit:   limit,
		buckets: make(map[string]*bucket),
		exclude: excludePrefixes,
	}
}

// StartGC drops expired buckets every five minutes until done is closed.
func (rl *RateLimiter) StartGC(done <-chan struct{}) {
	tick := time.NewTicker(5 * time.Minute)
	go func() {
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				rl.gc()
			}
		}
	}()
}

// Middleware rejects requests above the limit with a 429 JSON body.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.limit.MaxRequests <= 0 || rl.excluded(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		if !rl.allow(clientIP(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(ip string) bool {
	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[ip]
	if !ok || now.After(b.resetAt) {
		rl.buckets[ip] = &bucket{count: 1, resetAt: now.Add(rl.limit.Window)}
		return true
	}
	if b.count >= rl.limit.MaxRequests {
		return false
	}
	b.count++
	return true
}

func (rl *RateLimiter) gc() {
	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, b := range rl.buckets {
		if now.After(b.resetAt) {
			delete(rl.buckets, ip)
		}
	}
}

func (rl *RateLimiter) excluded(path string) bool {
	for _, p := range rl.exclude {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
