// Package ratelimit provides a global plus per-client token bucket limiter
// and an HTTP middleware that rejects requests over the limit.
package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	sweepInterval = time.Minute
	idleTTL       = 10 * time.Minute
)

type tokenBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newTokenBucket(perSecond, burst int) *tokenBucket {
	if burst <= 0 {
		burst = perSecond
	}
	return &tokenBucket{
		lim:      rate.NewLimiter(rate.Limit(perSecond), burst),
		lastSeen: time.Now(),
	}
}

func (b *tokenBucket) allow() bool {
	return b.lim.Allow()
}

// Limiter enforces an optional global rate and an optional per-IP rate.
// A rate of 0 disables that dimension.
type Limiter struct {
	global *tokenBucket

	ipRate  int
	ipBurst int

	mu      sync.Mutex
	buckets map[string]*tokenBucket

	stop chan struct{}
	once sync.Once
}

// NewLimiter returns nil when both rates are 0, meaning no limiting at all.
func NewLimiter(globalRate, globalBurst, ipRate, ipBurst int) *Limiter {
	if globalRate <= 0 && ipRate <= 0 {
		return nil
	}

	l := &Limiter{
		ipRate:  ipRate,
		ipBurst: ipBurst,
		buckets: make(map[string]*tokenBucket),
		stop:    make(chan struct{}),
	}
	if globalRate > 0 {
		l.global = newTokenBucket(globalRate, globalBurst)
	}
	if ipRate > 0 {
		go l.sweep()
	}
	return l
}

// Allow reports whether a request from ip may proceed.
func (l *Limiter) Allow(ip string) bool {
	if l == nil {
		return true
	}
	if l.ipRate > 0 {
		l.mu.Lock()
		b, ok := l.buckets[ip]
		if !ok {
			b = newTokenBucket(l.ipRate, l.ipBurst)
			l.buckets[ip] = b
		}
		b.lastSeen = time.Now()
		allowed := b.allow()
		l.mu.Unlock()
		if !allowed {
			return false
		}
	}
	if l.global != nil {
		return l.global.allow()
	}
	return true
}

// Stop terminates the idle bucket sweeper. Safe to call more than once.
func (l *Limiter) Stop() {
	if l == nil {
		return
	}
	l.once.Do(func() { close(l.stop) })
}

func (l *Limiter) sweep() {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-l.stop:
			return
		case now := <-t.C:
			l.mu.Lock()
			for ip, b := range l.buckets {
				if now.Sub(b.lastSeen) > idleTTL {
					delete(l.buckets, ip)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Middleware rejects requests over the limit with 429 and a JSON error body.
// A nil limiter passes every request through.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientIP(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
