// Package ratelimit provides sliding-window request limiters keyed by client.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is how long until the oldest request in the window expires.
	// Zero when Allowed.
	RetryAfter time.Duration
}

// Limiter admits or rejects one request for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Memory keeps per-key request timestamps in process. It is safe for
// concurrent use.
type Memory struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	counters map[string][]time.Time
	now      func() time.Time
}

// NewMemory allows at most limit requests per key within any window.
func NewMemory(limit int, window time.Duration) *Memory {
	return &Memory{
		limit:    limit,
		window:   window,
		counters: make(map[string][]time.Time),
		now:      time.Now,
	}
}

func (m *Memory) Allow(_ context.Context, key string) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-m.window)

	existing := m.counters[key]
	valid := existing[:0]
	for _, t := range existing {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= m.limit {
		m.counters[key] = valid
		return Decision{
			Limit:      m.limit,
			RetryAfter: valid[0].Add(m.window).Sub(now),
		}, nil
	}

	valid = append(valid, now)
	m.counters[key] = valid
	return Decision{Allowed: true, Limit: m.limit, Remaining: m.limit - len(valid)}, nil
}

// Sweep drops keys with no requests inside the window.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.window)
	dropped := 0
	for key, ts := range m.counters {
		if len(ts) == 0 || !ts[len(ts)-1].After(cutoff) {
			delete(m.counters, key)
			dropped++
		}
	}
	return dropped
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Memory) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
