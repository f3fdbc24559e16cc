package limiter

import (
	"context"
	"sync"
	"time"
)

// Gate is the shared backoff gate for quota exhaustion. When any worker sees
// a rate limit response it pauses the gate until the reset time; every worker
// waits on the gate before issuing a fetch, so one limited response suspends
// the whole pool.
type Gate struct {
	mu    sync.Mutex
	until time.Time
}

func NewGate() *Gate {
	return &Gate{}
}

// Pause blocks fetches until the given time. A later pause never shortens an
// earlier one.
func (g *Gate) Pause(until time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if until.After(g.until) {
		g.until = until
	}
}

// ResumeAt returns the current pause deadline, zero when the gate is open.
func (g *Gate) ResumeAt() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.until
}

// Wait blocks until the gate is open or the context is done.
func (g *Gate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		wait := time.Until(g.until)
		g.mu.Unlock()

		if wait <= 0 {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			// Re-check: another worker may have pushed the deadline out
		}
	}
}
