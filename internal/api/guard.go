package api

import (
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/FocuswithJustin/Mensura/internal/logging"
)

// minAPIKeyLength is the shortest accepted API key.
const minAPIKeyLength = 16

// mutating reports whether r changes workspace state. Reads are never
// authenticated or rate limited.
func mutating(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

// ValidateAPIKey checks a configured API key. An empty key disables
// authentication.
func ValidateAPIKey(key string) error {
	if key != "" && len(key) < minAPIKeyLength {
		return fmt.Errorf("API key must be at least %d characters (got %d)", minAPIKeyLength, len(key))
	}
	return nil
}

// AuthMiddleware requires the X-API-Key header on mutating requests when key
// is set.
func AuthMiddleware(key string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if key == "" || !mutating(r) {
			next.ServeHTTP(w, r)
			return
		}
		got := r.Header.Get("X-API-Key")
		if got == "" {
			logging.Warn("unauthorized request", "path", r.URL.Path, "reason", "missing API key")
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing X-API-Key header")
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			logging.Warn("unauthorized request", "path", r.URL.Path, "reason", "invalid API key")
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimiterConfig sets the per-client edit budget.
type RateLimiterConfig struct {
	RequestsPerMinute int
	BurstSize         int
}

// tokenBucket implements a token bucket rate limiter.
type tokenBucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// refill tops the bucket up to t.
func (tb *tokenBucket) refill(t time.Time) {
	elapsed := t.Sub(tb.lastRefill).Seconds()
	tb.tokens = min(tb.capacity, tb.tokens+elapsed*tb.refillRate)
	tb.lastRefill = t
}

// resetAt returns when the bucket will be full again.
func (tb *tokenBucket) resetAt(t time.Time) time.Time {
	if tb.tokens >= tb.capacity || tb.refillRate <= 0 {
		return t
	}
	secs := (tb.capacity - tb.tokens) / tb.refillRate
	return t.Add(time.Duration(secs * float64(time.Second)))
}

// RateLimiter limits mutating requests per client IP.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucket
	config  RateLimiterConfig
	idleTTL time.Duration
	now     func() time.Time
}

// NewRateLimiter creates a limiter. Idle buckets are dropped by Sweep.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.BurstSize <= 0 {
		config.BurstSize = max(config.RequestsPerMinute, 1)
	}
	return &RateLimiter{
		buckets: make(map[string]*tokenBucket),
		config:  config,
		idleTTL: 5 * time.Minute,
		now:     time.Now,
	}
}

// take spends one token for ip and reports whether one was available,
// the tokens left and when the bucket refills.
func (rl *RateLimiter) take(ip string) (ok bool, remaining int, reset time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	t := rl.now()
	b, exists := rl.buckets[ip]
	if !exists {
		b = &tokenBucket{
			tokens:     float64(rl.config.BurstSize),
			capacity:   float64(rl.config.BurstSize),
			refillRate: float64(rl.config.RequestsPerMinute) / 60.0,
			lastRefill: t,
		}
		rl.buckets[ip] = b
	}
	b.refill(t)
	if b.tokens >= 1 {
		b.tokens--
		ok = true
	}
	return ok, int(b.tokens), b.resetAt(t)
}

// Allow spends one token for ip.
func (rl *RateLimiter) Allow(ip string) bool {
	ok, _, _ := rl.take(ip)
	return ok
}

// Sweep drops buckets idle for longer than the idle TTL and returns how many
// were removed.
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	t := rl.now()
	n := 0
	for ip, b := range rl.buckets {
		if t.Sub(b.lastRefill) > rl.idleTTL {
			delete(rl.buckets, ip)
			n++
		}
	}
	return n
}

// Middleware rate limits mutating requests.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !mutating(r) {
			next.ServeHTTP(w, r)
			return
		}
		ok, remaining, reset := rl.take(clientIP(r))
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.config.RequestsPerMinute))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", reset.Unix()))
		if !ok {
			retryAfter := int(reset.Sub(rl.now()).Seconds()) + 1
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
			respondError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED",
				fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", retryAfter))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the leftmost valid X-Forwarded-For address, then
// X-Real-IP, then the connection's address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(ip) != nil {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	if net.ParseIP(ip) != nil {
		return ip
	}
	return "unknown"
}
