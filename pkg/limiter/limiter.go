// Package limiter bounds the number of outbound remote calls in flight.
//
// Waiters are admitted in FIFO order as slots free, which is the ordering
// guarantee of golang.org/x/sync/semaphore.
package limiter

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency is used when a non-positive size is requested.
const DefaultConcurrency = 6

// Limiter runs work units with at most Size of them active at once.
type Limiter struct {
	sem    *semaphore.Weighted
	size   int
	active atomic.Int64
	peak   atomic.Int64
}

// New creates a Limiter admitting n concurrent work units.
func New(n int) *Limiter {
	if n <= 0 {
		n = DefaultConcurrency
	}
	return &Limiter{
		sem:  semaphore.NewWeighted(int64(n)),
		size: n,
	}
}

// Size returns the concurrency bound.
func (l *Limiter) Size() int { return l.size }

// Active returns the number of work units currently running.
func (l *Limiter) Active() int { return int(l.active.Load()) }

// Peak returns the highest number of simultaneously running work units
// observed since the Limiter was created.
func (l *Limiter) Peak() int { return int(l.peak.Load()) }

// Do waits for a slot, runs fn and frees the slot. If ctx ends while
// waiting, fn is not run and ctx.Err() is returned.
func (l *Limiter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	return l.run(ctx, fn)
}

// run executes fn on an already acquired slot and frees it.
func (l *Limiter) run(ctx context.Context, fn func(ctx context.Context) error) error {
	defer l.sem.Release(1)

	n := l.active.Add(1)
	defer l.active.Add(-1)
	for {
		p := l.peak.Load()
		if n <= p || l.peak.CompareAndSwap(p, n) {
			break
		}
	}

	return fn(ctx)
}

// Run is Do for work units that produce a value.
func Run[T any](ctx context.Context, l *Limiter, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := l.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

// Gather admits the functions in submission order, starting each one as a
// slot frees, so at most Size of them run at once. It blocks until all have
// returned and reports each error at the index of its function. Failures
// are isolated: one error does not cancel the rest. If ctx ends while
// waiting, the functions not yet started report ctx.Err().
func (l *Limiter) Gather(ctx context.Context, fns ...func(ctx context.Context) error) []error {
	if len(fns) == 0 {
		return nil
	}

	errs := make([]error, len(fns))
	var wg sync.WaitGroup
	for i, fn := range fns {
		if err := l.sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(fns); j++ {
				errs[j] = err
			}
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = l.run(ctx, fn)
		}()
	}
	wg.Wait()
	return errs
}
