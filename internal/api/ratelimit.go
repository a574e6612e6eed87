package api

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterSweepEvery = 5 * time.Minute
	limiterIdleEvict  = 10 * time.Minute
)

// ipLimiter gates the JSON API per client IP with a token bucket. It sits in
// front of the blog read/write routes only; the chat route is exempted at
// wiring time because the per-client usage ledger already bounds it, and a
// second per-IP gate would starve readers behind a shared NAT.
//
// Idle buckets are evicted lazily during allow, the same sweep-on-access
// shape the chat stores use, so the limiter owns no goroutine.
type ipLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*ipBucket
	refill    rate.Limit
	burst     int
	nextSweep time.Time
	exempt    map[string]struct{}
	now       func() time.Time // stubbed in tests
}

type ipBucket struct {
	tokens   *rate.Limiter
	lastSeen time.Time
}

// newIPLimiter creates a limiter refilling at refillPerSec tokens per second
// with the given burst capacity per IP.
func newIPLimiter(refillPerSec float64, burst int) *ipLimiter {
	l := &ipLimiter{
		buckets: make(map[string]*ipBucket),
		refill:  rate.Limit(refillPerSec),
		burst:   burst,
		exempt:  make(map[string]struct{}),
		now:     time.Now,
	}
	l.nextSweep = l.now().Add(limiterSweepEvery)
	return l
}

// exemptPath excludes an exact request path from the gate. Must be called
// during wiring; the set is read without locking once serving starts.
func (l *ipLimiter) exemptPath(path string) {
	l.exempt[path] = struct{}{}
}

// allow reports whether a request from ip may proceed, charging one token.
func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.After(l.nextSweep) {
		l.sweepLocked(now)
	}

	b, ok := l.buckets[ip]
	if !ok {
		b = &ipBucket{tokens: rate.NewLimiter(l.refill, l.burst)}
		l.buckets[ip] = b
	}
	b.lastSeen = now
	return b.tokens.Allow()
}

// sweepLocked evicts buckets idle longer than limiterIdleEvict and schedules
// the next sweep. Caller holds l.mu.
func (l *ipLimiter) sweepLocked(now time.Time) {
	for ip, b := range l.buckets {
		if now.Sub(b.lastSeen) > limiterIdleEvict {
			delete(l.buckets, ip)
		}
	}
	l.nextSweep = now.Add(limiterSweepEvery)
}

// rateLimitMiddleware returns middleware applying the per-IP gate to every
// route except the limiter's exempt paths.
func rateLimitMiddleware(l *ipLimiter, trustProxy bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, skip := l.exempt[r.URL.Path]; skip {
				next.ServeHTTP(w, r)
				return
			}
			ip := clientIP(r, trustProxy)
			if !l.allow(ip) {
				logger.Warn("request rate limited",
					"ip", ip,
					"method", r.Method,
					"path", r.URL.Path,
				)
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// proxyIPHeaders are consulted in order when the server trusts its reverse
// proxy. X-Forwarded-For may carry a chain; only the first hop counts.
var proxyIPHeaders = []string{"X-Real-IP", "X-Forwarded-For"}

// clientIP resolves the caller's IP. The result keys both the per-IP gate
// and the chat client fingerprint, so header values must parse as real IPs:
// arbitrary header text never becomes a bucket key.
//
// With trustProxy false only RemoteAddr is used, which is the safe default
// when quill is exposed directly.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, h := range proxyIPHeaders {
			v := r.Header.Get(h)
			if v == "" {
				continue
			}
			if first, _, ok := strings.Cut(v, ","); ok {
				v = first
			}
			if ip := net.ParseIP(strings.TrimSpace(v)); ip != nil {
				return ip.String()
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
