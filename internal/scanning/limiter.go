package scanning

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Limiter caps the number of probes in flight. Every worker holds one slot
// from the moment it starts dialing until its connection is closed.
type Limiter struct {
	capacity int
	sem      *semaphore.Weighted

	mu       sync.Mutex
	inFlight int
	peak     int
	onChange func(inFlight int)
}

// NewLimiter creates a limiter with the given number of slots. A capacity
// below one is raised to one.
func NewLimiter(capacity int) *Limiter {
	if capacity <= 0 {
		capacity = 1
	}
	return &Limiter{
		capacity: capacity,
		sem:      semaphore.NewWeighted(int64(capacity)),
	}
}

// OnChange registers fn to be called with the in-flight count after every
// acquire and release. It must be set before the limiter is shared.
func (l *Limiter) OnChange(fn func(inFlight int)) {
	l.onChange = fn
}

// Acquire blocks until a slot is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	l.mu.Lock()
	l.inFlight++
	if l.inFlight > l.peak {
		l.peak = l.inFlight
	}
	n := l.inFlight
	l.mu.Unlock()

	if l.onChange != nil {
		l.onChange(n)
	}
	return nil
}

// Release returns a slot taken by Acquire.
func (l *Limiter) Release() {
	l.mu.Lock()
	l.inFlight--
	n := l.inFlight
	l.mu.Unlock()
	l.sem.Release(1)

	if l.onChange != nil {
		l.onChange(n)
	}
}

// InFlight returns the number of slots currently held.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight
}

// Peak returns the highest number of slots held at once.
func (l *Limiter) Peak() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.peak
}

// Capacity returns the number of slots.
func (l *Limiter) Capacity() int {
	return l.capacity
}
