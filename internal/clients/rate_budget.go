package clients

import (
	"context"
	"sync"
	"time"
)

// RateBudget caps outbound Reddit calls to a fixed number per sliding
// minute, shared by every fetch regardless of which goroutine runs it.
// Callers block until a slot frees instead of bursting past the ceiling.
type RateBudget struct {
	mu        sync.Mutex
	perMinute int
	calls     []time.Time

	now func() time.Time
}

func NewRateBudget(perMinute int) *RateBudget {
	if perMinute <= 0 {
		perMinute = DEFAULT_CALLS_PER_MINUTE
	}
	return &RateBudget{
		perMinute: perMinute,
		now:       time.Now,
	}
}

// Acquire blocks until a call slot is available or ctx is done.
func (b *RateBudget) Acquire(ctx context.Context) error {
	for {
		b.mu.Lock()
		now := b.now()
		cutoff := now.Add(-time.Minute)
		kept := b.calls[:0]
		for _, t := range b.calls {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}
		b.calls = kept

		if len(b.calls) < b.perMinute {
			b.calls = append(b.calls, now)
			b.mu.Unlock()
			return nil
		}
		wait := b.calls[0].Add(time.Minute).Sub(now)
		b.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
