package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// RespondError writes an ErrorBody with the given status.
func RespondError(w http.ResponseWriter, status int, msg, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorBody{Error: msg, Details: details})
}

// ClientIP returns the host part of the request's remote address.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Limiter decides whether one more request from key is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// RateLimiter provides a per-key token bucket rate limiter.
type RateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	rate      float64 // tokens per second
	burst     float64
	now       func() time.Time
	lastSweep time.Time
}

type visitor struct {
	tokens   float64
	lastSeen time.Time
}

// staleAfter is how long an idle visitor is remembered.
const staleAfter = 5 * time.Minute

// NewRateLimiter creates a limiter refilling rps tokens per second up to burst.
// PRE: rps > 0, burst > 0
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rps,
		burst:    float64(burst),
		now:      time.Now,
	}
}

// WithClock replaces the limiter's clock. Tests only.
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	rl.now = now
	return rl
}

// Allow checks if a request from the given key is allowed.
// PRE: key is non-empty
// POST: Returns true if within rate limit, false if exceeded
func (rl *RateLimiter) Allow(_ context.Context, key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	v, exists := rl.visitors[key]
	if !exists {
		rl.visitors[key] = &visitor{tokens: rl.burst - 1, lastSeen: now}
		return true
	}

	v.tokens = min(rl.burst, v.tokens+now.Sub(v.lastSeen).Seconds()*rl.rate)
	v.lastSeen = now
	if v.tokens < 1 {
		return false
	}
	v.tokens--
	return true
}

// sweep drops idle visitors at most once a minute.
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < time.Minute {
		return
	}
	rl.lastSweep = now
	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) > staleAfter {
			delete(rl.visitors, key)
		}
	}
}

// counter is the part of the Redis client RedisLimiter needs.
type counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisLimiter counts requests per key in fixed windows shared by every
// instance. When Redis fails it allows the request.
type RedisLimiter struct {
	client counter
	prefix string
	limit  int64
	window time.Duration
	now    func() time.Time
	log    *zap.SugaredLogger
}

// NewRedisLimiter allows limit requests per window for each key.
func NewRedisLimiter(client counter, prefix string, limit int, window time.Duration, log *zap.SugaredLogger) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, limit: int64(limit), window: window, now: time.Now, log: log}
}

// Allow increments the key's counter for the current window.
// POST: true when under the limit or when Redis is unreachable
func (rl *RedisLimiter) Allow(ctx context.Context, key string) bool {
	slot := rl.now().UnixNano() / int64(rl.window)
	k := fmt.Sprintf("%s:%s:%d", rl.prefix, key, slot)
	n, err := rl.client.Incr(ctx, k).Result()
	if err != nil {
		rl.log.Warnw("rate_limit_event", "event", "redis_failed", "error", err)
		return true
	}
	if n == 1 {
		if err := rl.client.Expire(ctx, k, rl.window).Err(); err != nil {
			rl.log.Warnw("rate_limit_event", "event", "redis_expire_failed", "error", err)
		}
	}
	return n <= rl.limit
}

// RateLimitObserver is told about rejected requests. It may be nil.
type RateLimitObserver interface {
	RateLimited(limiter string)
}

// RateLimit returns middleware that limits requests per client IP.
func RateLimit(name string, limiter Limiter, observer RateLimitObserver, log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			if !limiter.Allow(r.Context(), name+":"+ip) {
				log.Warnw("rate_limit_exceeded", "limiter", name, "ip", ip, "path", r.URL.Path)
				if observer != nil {
					observer.RateLimited(name)
				}
				w.Header().Set("Retry-After", "1")
				RespondError(w, http.StatusTooManyRequests, "too many requests", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders adds OWASP recommended headers.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; img-src 'self' data:; connect-src 'self'; frame-ancestors 'none'")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// Recover turns a handler panic into a 500 and logs it.
func Recover(log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.Errorw("panic_recovered", "method", r.Method, "path", r.URL.Path, "panic", rec)
				RespondError(w, http.StatusInternalServerError, "internal server error", "")
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Chain wraps h in middlewares. The last middleware is the outermost.
func Chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for _, m := range middlewares {
		h = m(h)
	}
	return h
}
