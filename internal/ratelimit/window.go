// Package ratelimit gates requests per route and per caller before any
// handler runs.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// KeyStrategy selects how a route buckets callers.
type KeyStrategy int

const (
	// KeyIdentity buckets by authenticated identity, else network address.
	KeyIdentity KeyStrategy = iota
	// KeyGlobal shares one bucket between all callers.
	KeyGlobal
)

// Rule is the limit declared by one route.
type Rule struct {
	Limit  int
	Window time.Duration
	Key    KeyStrategy
}

// Decision is the result of a check. RetryAfter is set on rejection.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

type bucketKey struct {
	route string
	key   string
}

// Limiter is a sliding-window log limiter configured by a route table.
// Buckets are per route and never shared across routes.
type Limiter struct {
	mu    sync.Mutex
	rules map[string]Rule
	hits  map[bucketKey][]time.Time
	now   func() time.Time
}

// New creates a limiter for the given route table.
func New(rules map[string]Rule) *Limiter {
	copied := make(map[string]Rule, len(rules))
	for route, r := range rules {
		copied[route] = r
	}
	return &Limiter{
		rules: copied,
		hits:  make(map[bucketKey][]time.Time),
		now:   time.Now,
	}
}

// Rule returns the rule registered for route.
func (l *Limiter) Rule(route string) (Rule, bool) {
	r, ok := l.rules[route]
	return r, ok
}

// Check records a request on route for key if the bucket has room.
// Routes without a rule are always allowed. A rejected request is not
// recorded.
func (l *Limiter) Check(route, key string) Decision {
	rule, ok := l.rules[route]
	if !ok || rule.Limit <= 0 || rule.Window <= 0 {
		return Decision{Allowed: true}
	}
	if rule.Key == KeyGlobal {
		key = ""
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	bk := bucketKey{route: route, key: key}
	ts := pruneOld(l.hits[bk], now.Add(-rule.Window))

	if len(ts) >= rule.Limit {
		l.hits[bk] = ts
		retry := ts[0].Add(rule.Window).Sub(now)
		if retry <= 0 {
			retry = time.Millisecond
		}
		return Decision{RetryAfter: retry}
	}

	l.hits[bk] = append(ts, now)
	return Decision{Allowed: true}
}

// Sweep drops buckets whose entries have all left their window.
func (l *Limiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for bk, ts := range l.hits {
		rule := l.rules[bk.route]
		if len(pruneOld(ts, now.Add(-rule.Window))) == 0 {
			delete(l.hits, bk)
		}
	}
}

// Run sweeps every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

func (l *Limiter) buckets() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hits)
}

// pruneOld drops timestamps at or before cutoff. ts is sorted ascending.
func pruneOld(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0:0], ts[i:]...)
}
