// Package ratelimit throttles requests per client IP with token buckets.
package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Bucket defines rate limit parameters.
type Bucket struct {
	MaxRequests int
	Window      time.Duration
}

// Limit converts the bucket to a token refill rate.
func (b Bucket) Limit() rate.Limit {
	if b.Window <= 0 || b.MaxRequests <= 0 {
		return rate.Inf
	}
	return rate.Limit(float64(b.MaxRequests) / b.Window.Seconds())
}

// DefaultBuckets are used for bucket names not set through Configure.
var DefaultBuckets = map[string]Bucket{
	"predict": {MaxRequests: 120, Window: time.Minute},
	"batch":   {MaxRequests: 10, Window: time.Minute},
	"explain": {MaxRequests: 10, Window: time.Minute},
	"api":     {MaxRequests: 60, Window: time.Minute},
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per (bucket name, client IP).
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]Bucket
	clients map[string]*client
	now     func() time.Time
}

// New creates a limiter with the default buckets.
func New() *Limiter {
	buckets := make(map[string]Bucket, len(DefaultBuckets))
	for k, v := range DefaultBuckets {
		buckets[k] = v
	}
	return &Limiter{
		buckets: buckets,
		clients: make(map[string]*client),
		now:     time.Now,
	}
}

// Configure overrides a named bucket. Existing clients keep their old bucket
// until they are evicted.
func (l *Limiter) Configure(name string, b Bucket) {
	l.mu.Lock()
	l.buckets[name] = b
	l.mu.Unlock()
}

func (l *Limiter) bucket(name string) Bucket {
	if b, ok := l.buckets[name]; ok {
		return b
	}
	return Bucket{MaxRequests: 60, Window: time.Minute}
}

// Allow reports whether one more request from ip fits the named bucket.
func (l *Limiter) Allow(bucketName, ip string) bool {
	l.mu.Lock()
	key := bucketName + ":" + ip
	c, ok := l.clients[key]
	if !ok {
		b := l.bucket(bucketName)
		c = &client{limiter: rate.NewLimiter(b.Limit(), max(b.MaxRequests, 1))}
		l.clients[key] = c
	}
	now := l.now()
	c.lastSeen = now
	l.mu.Unlock()

	return c.limiter.AllowN(now, 1)
}

// Check writes a 429 response if the request's IP is over the named bucket.
// Returns true if the request was rejected.
func (l *Limiter) Check(w http.ResponseWriter, r *http.Request, bucketName string) bool {
	if l.Allow(bucketName, clientIP(r)) {
		return false
	}

	l.mu.Lock()
	b := l.bucket(bucketName)
	l.mu.Unlock()
	retry := 1
	if lim := b.Limit(); lim != rate.Inf && lim > 0 {
		retry = max(int(1/float64(lim)+0.5), 1)
	}

	w.Header().Set("Retry-After", strconv.Itoa(retry))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error":"Rate limited","retry_after_seconds":` + strconv.Itoa(retry) + `}`))
	return true
}

// Middleware applies Check to every request.
func (l *Limiter) Middleware(bucketName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.Check(w, r, bucketName) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Evict drops clients idle for longer than idle and returns how many were removed.
func (l *Limiter) Evict(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-idle)
	n := 0
	for k, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, k)
			n++
		}
	}
	return n
}

// EvictLoop runs Evict every interval until ctx is cancelled.
func (l *Limiter) EvictLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Evict(10 * time.Minute)
		}
	}
}

// clientIP prefers the address chi's RealIP middleware put in RemoteAddr.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Real-IP"); fwd != "" {
		return fwd
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
