package processor

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Limiter is a counting semaphore that admits at most size holders at once
// and remembers the highest concurrency it has seen.
type Limiter struct {
	sem  *semaphore.Weighted
	size int

	inFlight atomic.Int32
	peak     atomic.Int32
	admitted atomic.Int64
}

// NewLimiter creates a limiter admitting up to size concurrent holders.
// Sizes below one are treated as one.
func NewLimiter(size int) *Limiter {
	if size < 1 {
		size = 1
	}
	return &Limiter{
		sem:  semaphore.NewWeighted(int64(size)),
		size: size,
	}
}

// Acquire blocks until a permit is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	n := l.inFlight.Add(1)
	for {
		p := l.peak.Load()
		if n <= p || l.peak.CompareAndSwap(p, n) {
			break
		}
	}
	l.admitted.Add(1)
	return nil
}

// Release returns a permit. Every successful Acquire must be paired with one Release.
func (l *Limiter) Release() {
	l.inFlight.Add(-1)
	l.sem.Release(1)
}

// InFlight returns the number of current holders.
func (l *Limiter) InFlight() int {
	return int(l.inFlight.Load())
}

// Peak returns the highest number of simultaneous holders observed.
func (l *Limiter) Peak() int {
	return int(l.peak.Load())
}

// Stats returns current limiter statistics
func (l *Limiter) Stats() map[string]interface{} {
	return map[string]interface{}{
		"size":     l.size,
		"inFlight": l.inFlight.Load(),
		"peak":     l.peak.Load(),
		"admitted": l.admitted.Load(),
	}
}
