package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Global is the default layer applied to every route beneath the per-route
// rules: a token bucket per network address holding limit tokens and
// refilling limit per window. A drained bucket recovers gradually, so a
// single window can admit up to limit plus what refills during it (at most
// twice limit). The per-route rules, not this layer, are the exact caps.
type Global struct {
	limiters sync.Map // key → *limiterEntry
	r        rate.Limit
	burst    int
	now      func() time.Time
}

type limiterEntry struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewGlobal allows limit requests per window for each key.
// If limit <= 0 the layer is disabled.
func NewGlobal(limit int, window time.Duration) *Global {
	g := &Global{burst: limit, now: time.Now}
	if limit > 0 && window > 0 {
		g.r = rate.Limit(float64(limit) / window.Seconds())
	}
	return g
}

// Enabled returns true if the layer is active.
func (g *Global) Enabled() bool {
	return g.r > 0
}

// Check consumes one token for key.
func (g *Global) Check(key string) Decision {
	if !g.Enabled() {
		return Decision{Allowed: true}
	}

	now := g.now()
	entry := g.getOrCreate(key, now)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.lastSeen = now

	res := entry.limiter.ReserveN(now, 1)
	if !res.OK() {
		return Decision{RetryAfter: time.Second}
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return Decision{RetryAfter: delay}
	}
	return Decision{Allowed: true}
}

func (g *Global) getOrCreate(key string, now time.Time) *limiterEntry {
	if v, ok := g.limiters.Load(key); ok {
		return v.(*limiterEntry)
	}
	entry := &limiterEntry{
		limiter:  rate.NewLimiter(g.r, g.burst),
		lastSeen: now,
	}
	actual, _ := g.limiters.LoadOrStore(key, entry)
	return actual.(*limiterEntry)
}

// Cleanup forgets keys idle for longer than idle.
func (g *Global) Cleanup(idle time.Duration) {
	cutoff := g.now().Add(-idle)
	g.limiters.Range(func(key, value any) bool {
		entry := value.(*limiterEntry)
		entry.mu.Lock()
		stale := entry.lastSeen.Before(cutoff)
		entry.mu.Unlock()
		if stale {
			g.limiters.Delete(key)
		}
		return true
	})
}

// Run cleans up idle keys every interval until ctx is done.
func (g *Global) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Cleanup(10 * time.Minute)
		}
	}
}
