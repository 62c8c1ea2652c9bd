// FILE: callwisp/src/internal/limit/rate.go
package limit

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/lixenwraith/log"
	"golang.org/x/time/rate"
)

const (
	staleTimeout    = 5 * time.Minute
	cleanupInterval = time.Minute
)

// clientLimiter is the token bucket of one client address
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// RateLimiter applies a token bucket per client address. Idle clients are forgotten.
type RateLimiter struct {
	rps    rate.Limit
	burst  int
	logger *log.Logger
	now    func() time.Time

	mu      sync.Mutex
	clients map[string]*clientLimiter

	allowed  atomic.Uint64
	rejected atomic.Uint64

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a per-client limiter and starts its cleanup loop.
// Returns nil when rps is not positive.
func NewRateLimiter(rps float64, burst int, logger *log.Logger) *RateLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}

	l := &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		logger:  logger,
		now:     time.Now,
		clients: make(map[string]*clientLimiter),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go l.cleanupLoop()

	if logger != nil {
		logger.Info("msg", "Rate limiter initialized",
			"component", "rate_limiter",
			"requests_per_second", rps,
			"burst", burst)
	}
	return l
}

// Allow consumes one token for client
func (l *RateLimiter) Allow(client string) bool {
	if l == nil {
		return true
	}

	now := l.now()
	l.mu.Lock()
	c, ok := l.clients[client]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[client] = c
	}
	l.mu.Unlock()
	c.lastSeen.Store(now.UnixNano())

	if c.limiter.AllowN(now, 1) {
		l.allowed.Add(1)
		return true
	}
	l.rejected.Add(1)
	return false
}

// cleanup removes clients idle for longer than the stale timeout
func (l *RateLimiter) cleanup() {
	cutoff := l.now().Add(-staleTimeout).UnixNano()

	l.mu.Lock()
	cleaned := 0
	for client, c := range l.clients {
		if c.lastSeen.Load() < cutoff {
			delete(l.clients, client)
			cleaned++
		}
	}
	remaining := len(l.clients)
	l.mu.Unlock()

	if cleaned > 0 && l.logger != nil {
		l.logger.Debug("msg", "Cleaned up stale client limiters",
			"component", "rate_limiter",
			"cleaned", cleaned,
			"remaining", remaining)
	}
}

func (l *RateLimiter) cleanupLoop() {
	defer close(l.done)

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

// Clients returns the number of tracked client addresses
func (l *RateLimiter) Clients() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Shutdown stops the cleanup loop
func (l *RateLimiter) Shutdown() {
	if l == nil {
		return
	}
	l.stopOnce.Do(func() {
		close(l.stop)
		<-l.done
	})
}

// GetStats returns limiter statistics
func (l *RateLimiter) GetStats() map[string]any {
	if l == nil {
		return map[string]any{"enabled": false}
	}
	return map[string]any{
		"enabled":             true,
		"requests_per_second": float64(l.rps),
		"burst":               l.burst,
		"clients":             l.Clients(),
		"allowed":             l.allowed.Load(),
		"rejected":            l.rejected.Load(),
	}
}
