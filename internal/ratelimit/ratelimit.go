package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Gate blocks a caller until it may proceed, or until the context is
// canceled. Gates pace upstream API calls; each credential has its own
// independent quota, so gates are handed out per key (see PerKey).
type Gate interface {
	Wait(ctx context.Context) error
}

// MinInterval enforces a minimum time between calls. Concurrent
// callers wait until the interval has elapsed since the last call.
type MinInterval struct {
	Interval time.Duration

	mu   sync.Mutex
	last time.Time
}

func (m *MinInterval) Wait(ctx context.Context) error {
	if m.Interval <= 0 {
		return nil
	}
	m.mu.Lock()
	wait := time.Until(m.last.Add(m.Interval))
	// Reserve our slot before sleeping so concurrent callers queue up
	// behind us instead of piling onto the same slot.
	if wait > 0 {
		m.last = m.last.Add(m.Interval)
	} else {
		m.last = time.Now()
	}
	m.mu.Unlock()
	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// PerKey hands out one Gate per key, created on first use.
type PerKey struct {
	New func() Gate

	mu    sync.Mutex
	gates map[string]Gate
}

func (p *PerKey) Gate(key string) Gate {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gates == nil {
		p.gates = make(map[string]Gate)
	}
	g, ok := p.gates[key]
	if !ok {
		g = p.New()
		p.gates[key] = g
	}
	return g
}
