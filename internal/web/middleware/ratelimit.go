package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/btouchard/firstblood/internal/config"
)

// maxTrackedIPs bounds the per-IP limiter map; idle entries are purged past it.
const maxTrackedIPs = 10000

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipLimiters hands out one token bucket per client IP.
type ipLimiters struct {
	mu      sync.Mutex
	entries map[string]*ipLimiter
	limit   rate.Limit
	burst   int
	idle    time.Duration
}

func newIPLimiters(limit rate.Limit, burst int) *ipLimiters {
	if burst < 1 {
		burst = 1
	}
	return &ipLimiters{
		entries: make(map[string]*ipLimiter),
		limit:   limit,
		burst:   burst,
		idle:    10 * time.Minute,
	}
}

func (l *ipLimiters) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[ip]
	if !ok {
		if len(l.entries) >= maxTrackedIPs {
			l.purge(now)
		}
		e = &ipLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[ip] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (l *ipLimiters) purge(now time.Time) {
	for ip, e := range l.entries {
		if now.Sub(e.lastSeen) > l.idle {
			delete(l.entries, ip)
		}
	}
}

// IPRateLimit limits each client IP to perMinute requests with the given burst.
func IPRateLimit(perMinute, burst int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiters := newIPLimiters(rate.Every(time.Minute/time.Duration(perMinute)), burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiters.allow(clientIP(r), time.Now()) {
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit applies the configured per-IP limit to API routes.
func RateLimit(cfg config.RateLimitConfig) func(http.Handler) http.Handler {
	return IPRateLimit(cfg.RequestsPerMinute, cfg.Burst)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
