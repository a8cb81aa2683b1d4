package server

import (
	"encoding/json"
	"math"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// CORSMiddleware answers cross-origin requests from the listed origins.
// "*" allows any origin. With no origins the handler is returned unchanged.
func CORSMiddleware(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	allowAll := allowed["*"]

	return func(next http.Handler) http.Handler {
		if len(allowed) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			if origin == "" || !(allowAll || allowed[origin]) {
				next.ServeHTTP(w, r)
				return
			}

			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				w.Header().Set("Access-Control-Max-Age", "86400")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// securityHeaders are set on every response. The client script and styles
// are served from /assets, and the only connection it opens is /ws.
var securityHeaders = map[string]string{
	"X-Frame-Options":        "DENY",
	"X-Content-Type-Options": "nosniff",
	"Referrer-Policy":        "same-origin",
	"Content-Security-Policy": strings.Join([]string{
		"default-src 'self'",
		"script-src 'self'",
		"style-src 'self'",
		"connect-src 'self'",
		"frame-ancestors 'none'",
	}, "; "),
}

// SecurityHeadersMiddleware adds securityHeaders to all responses.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for k, v := range securityHeaders {
				w.Header().Set(k, v)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// limiterIdle is how long an unused bucket is kept. A bucket idle this long
// has refilled for any sane rate, so dropping it changes nothing.
const limiterIdle = 10 * time.Minute

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// apiLimiter rate limits API writes. Reads are never limited. Each
// session's actions get their own bucket per client, so one busy session
// does not starve the client's other sessions. Session create and delete
// share the client's bucket.
type apiLimiter struct {
	rps        rate.Limit
	burst      int
	maxClients int
	logger     *zap.Logger
	now        func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

func newAPILimiter(rps float64, burst, maxClients int, logger *zap.Logger) *apiLimiter {
	if maxClients <= 0 {
		maxClients = 10000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &apiLimiter{
		rps:        rate.Limit(rps),
		burst:      burst,
		maxClients: maxClients,
		logger:     logger.Named("ratelimit"),
		now:        time.Now,
		buckets:    make(map[string]*bucket),
	}
}

// RateLimitMiddleware limits API writes with a token bucket per client key.
// rps and burst configure each bucket; maxClients caps how many buckets are
// tracked at once.
func RateLimitMiddleware(logger *zap.Logger, rps float64, burst, maxClients int) func(http.Handler) http.Handler {
	l := newAPILimiter(rps, burst, maxClients, logger)
	return l.middleware
}

func (l *apiLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		key := limiterKey(r)
		if wait, ok := l.reserve(key); !ok {
			rateLimited.Inc()
			l.logger.Debug("rate limited", zap.String("key", key), zap.Duration("wait", wait))
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// reserve takes a token for key. When none is available it reports how long
// until one is.
func (l *apiLimiter) reserve(key string) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= l.maxClients {
			l.evict(now)
		}
		b = &bucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	res := b.limiter.ReserveN(now, 1)
	if !res.OK() {
		return time.Duration(math.MaxInt64), false
	}
	if wait := res.DelayFrom(now); wait > 0 {
		res.CancelAt(now)
		return wait, false
	}
	return 0, true
}

// evict drops idle buckets, or the least recently used one when none is idle.
// Called with l.mu held and only when the table is full.
func (l *apiLimiter) evict(now time.Time) {
	var (
		oldestKey string
		oldest    time.Time
	)
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > limiterIdle {
			delete(l.buckets, key)
			continue
		}
		if oldestKey == "" || b.lastSeen.Before(oldest) {
			oldestKey, oldest = key, b.lastSeen
		}
	}
	if len(l.buckets) >= l.maxClients && oldestKey != "" {
		delete(l.buckets, oldestKey)
		l.logger.Debug("evicted limiter", zap.String("key", oldestKey))
	}
}

func (l *apiLimiter) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// limiterKey is the client IP, plus the session id for session actions.
func limiterKey(r *http.Request) string {
	ip := getClientIP(r)
	rest, ok := strings.CutPrefix(r.URL.Path, "/api/sessions/")
	if !ok {
		return ip
	}
	if id, ok := strings.CutSuffix(rest, "/actions"); ok && id != "" && !strings.Contains(id, "/") {
		return ip + " " + id
	}
	return ip
}

func retryAfterSeconds(wait time.Duration) int {
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// getClientIP returns the peer address. Forwarding headers are only believed
// when the peer is loopback or private, that is, a local reverse proxy.
func getClientIP(r *http.Request) string {
	var peer netip.Addr
	if ap, err := netip.ParseAddrPort(r.RemoteAddr); err == nil {
		peer = ap.Addr()
	} else if a, err := netip.ParseAddr(r.RemoteAddr); err == nil {
		peer = a
	} else {
		return r.RemoteAddr
	}
	peer = peer.Unmap()

	if peer.IsLoopback() || peer.IsPrivate() {
		first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
		for _, candidate := range []string{first, r.Header.Get("X-Real-IP")} {
			if a, err := netip.ParseAddr(strings.TrimSpace(candidate)); err == nil {
				return a.Unmap().String()
			}
		}
	}
	return peer.String()
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
