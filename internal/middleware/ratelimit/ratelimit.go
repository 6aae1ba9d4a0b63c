// Package ratelimit throttles state-changing requests per client address.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds rate limiter configuration. Zero fields take DefaultConfig values.
type Config struct {
	RequestsPerMinute int
	// Window is the length of a counting window.
	Window time.Duration
	// IdleTTL drops clients that have not been seen for this long.
	IdleTTL         time.Duration
	CleanupInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		Window:            time.Minute,
		IdleTTL:           10 * time.Minute,
		CleanupInterval:   5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = d.RequestsPerMinute
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = d.IdleTTL
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	return c
}

type window struct {
	start    time.Time
	lastSeen time.Time
	count    int
}

// Limiter counts requests per client in fixed windows that open at the
// client's first request.
type Limiter struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	windows map[string]*window

	rejected atomic.Int64
	done     chan struct{}
	stopOnce sync.Once
}

func NewLimiter(cfg Config) *Limiter {
	l := &Limiter{
		cfg:     cfg.withDefaults(),
		now:     time.Now,
		windows: make(map[string]*window),
		done:    make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Allow counts one request from client and reports whether it fits the
// client's current window.
func (l *Limiter) Allow(client string) bool {
	_, ok := l.take(client)
	return ok
}

// take returns how long client must wait when the request is rejected.
func (l *Limiter) take(client string) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w := l.windows[client]
	if w == nil || now.Sub(w.start) > l.cfg.Window {
		l.windows[client] = &window{start: now, lastSeen: now, count: 1}
		return 0, true
	}
	w.count++
	w.lastSeen = now
	if w.count <= l.cfg.RequestsPerMinute {
		return 0, true
	}
	l.rejected.Add(1)
	return w.start.Add(l.cfg.Window).Sub(now), false
}

func (l *Limiter) sweepLoop() {
	tick := time.NewTicker(l.cfg.CleanupInterval)
	defer tick.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-tick.C:
			l.cleanupStaleEntries()
		}
	}
}

func (l *Limiter) cleanupStaleEntries() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.cfg.IdleTTL)
	for client, w := range l.windows {
		if w.lastSeen.Before(cutoff) {
			delete(l.windows, client)
		}
	}
}

func (l *Limiter) ActiveClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Stop ends the background sweep. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

type Metrics struct {
	TotalHits   int64
	ClientCount int64
}

func (l *Limiter) GetMetrics() Metrics {
	return Metrics{TotalHits: l.rejected.Load(), ClientCount: int64(l.ActiveClients())}
}

// WritesOnly limits requests that change state; reads pass through.
func WritesOnly(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// Middleware rejects requests over the limit with 429 and a Retry-After
// header in seconds. Requests for which applies returns false are not
// counted; a nil applies limits everything. onLimit, when set, writes the
// rejection body.
func (l *Limiter) Middleware(clientOf func(*http.Request) string, applies func(*http.Request) bool, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if applies == nil || applies(r) {
				if wait, ok := l.take(clientOf(r)); !ok {
					secs := int(wait.Round(time.Second) / time.Second)
					if secs < 1 {
						secs = 1
					}
					w.Header().Set("Retry-After", strconv.Itoa(secs))
					if onLimit != nil {
						onLimit(w, r)
						return
					}
					http.Error(w, "rate limit exceeded, try again later", http.StatusTooManyRequests)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
