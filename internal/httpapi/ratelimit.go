package httpapi

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	limiterCacheSize = 50000
	limiterIdleTTL   = 10 * time.Minute
)

type RateLimitConfig struct {
	IPPerMinute     int
	IPBurst         int
	ClientPerMinute int
	ClientBurst     int
	// ClientCookie names the cookie carrying the client id.
	ClientCookie string
	// TrustForwardedFor keys the per-IP limit on X-Forwarded-For. Enable it
	// only behind a proxy that overwrites the header.
	TrustForwardedFor bool
}

type RateLimiter struct {
	ipLimiter     *keyedLimiter
	clientLimiter *keyedLimiter
	cookie        string
	trustForward  bool
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.ClientCookie == "" {
		cfg.ClientCookie = DefaultClientCookie
	}
	return &RateLimiter{
		ipLimiter:     newKeyedLimiter(cfg.IPPerMinute, cfg.IPBurst),
		clientLimiter: newKeyedLimiter(cfg.ClientPerMinute, cfg.ClientBurst),
		cookie:        cfg.ClientCookie,
		trustForward:  cfg.TrustForwardedFor,
	}
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r, l.trustForward)
		if ip != "" && !l.ipLimiter.allow(ip) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		if id := requestClientID(r, l.cookie); id != "" && !l.clientLimiter.allow(id) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type keyedLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters *expirable.LRU[string, *rate.Limiter]
}

func newKeyedLimiter(perMinute, burst int) *keyedLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 20
	}
	return &keyedLimiter{
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
		limiters: expirable.NewLRU[string, *rate.Limiter](limiterCacheSize, nil, limiterIdleTTL),
	}
}

func (l *keyedLimiter) allow(key string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters.Get(key)
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
	}
	l.limiters.Add(key, limiter)
	l.mu.Unlock()
	return limiter.Allow()
}

func clientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			parts := strings.Split(forwarded, ",")
			return strings.TrimSpace(parts[0])
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// requestClientID reads the client id without validating it.
func requestClientID(r *http.Request, cookie string) string {
	if id := strings.TrimSpace(r.Header.Get(clientHeader)); id != "" {
		return id
	}
	if c, err := r.Cookie(cookie); err == nil {
		return c.Value
	}
	return ""
}
