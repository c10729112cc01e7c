package httpmiddleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// KeyFunc picks the rate limit bucket of a request.
type KeyFunc func(r *http.Request) string

// Limiter counts requests per key in fixed windows.
type Limiter struct {
	limit  int
	window time.Duration
	key    KeyFunc
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	start time.Time
	count int
}

// NewLimiter allows limit requests per window for each key. A nil key uses
// ClientIP.
func NewLimiter(limit int, window time.Duration, key KeyFunc) *Limiter {
	if key == nil {
		key = ClientIP
	}
	return &Limiter{
		limit:   limit,
		window:  window,
		key:     key,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Allow records one request for key.
func (l *Limiter) Allow(key string) (remaining int, reset time.Time, ok bool) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.buckets[key]
	if b == nil || now.Sub(b.start) >= l.window {
		b = &bucket{start: now}
		l.buckets[key] = b
	}
	reset = b.start.Add(l.window)
	if b.count >= l.limit {
		return 0, reset, false
	}
	b.count++
	return l.limit - b.count, reset, true
}

// Run evicts expired buckets until ctx is done.
func (l *Limiter) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.evict()
		}
	}
}

func (l *Limiter) evict() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, b := range l.buckets {
		if now.Sub(b.start) >= l.window {
			delete(l.buckets, k)
		}
	}
}

// Middleware rejects requests over the limit with 429.
func (l *Limiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remaining, reset, ok := l.Allow(l.key(r))
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !ok {
				wait := max(int(reset.Sub(l.now()).Seconds()+0.999), 1)
				h.Set("Retry-After", strconv.Itoa(wait))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP is the first X-Forwarded-For hop, or the remote address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
