// Package dispatch runs blocking call-level interface work off the
// caller's goroutine and hands the outcome back through a Future.
//
// Work that has been dispatched always runs to completion. Cancelling the
// context passed to Await only stops waiting; the result is dropped.
// Callers that need timeouts enforce them above this layer.
package dispatch

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"

	"golang.org/x/sync/semaphore"
)

// Pool bounds the number of blocking calls running at once.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool returns a pool running at most workers calls concurrently.
// workers <= 0 selects a default based on GOMAXPROCS.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 4 * runtime.GOMAXPROCS(0)
	}
	return &Pool{sem: semaphore.NewWeighted(int64(workers))}
}

// Default is the pool used when none is configured.
var Default = NewPool(0)

// Future is the pending result of a dispatched call.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Go runs fn on a worker of p. A panic in fn is recovered and reported as
// the future's error.
func Go[T any](p *Pool, fn func() (T, error)) *Future[T] {
	if p == nil {
		p = Default
	}
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		// Background: once dispatched the call is not cancellable.
		if err := p.sem.Acquire(context.Background(), 1); err != nil {
			f.err = err
			return
		}
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				f.err = fmt.Errorf("tinyodbc: worker panic: %v\n%s", r, debug.Stack())
			}
		}()
		f.val, f.err = fn()
	}()
	return f
}

// Ready returns a future that is already resolved.
func Ready[T any](v T, err error) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), val: v, err: err}
	close(f.done)
	return f
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Await blocks until the result is available or ctx is done. In the latter
// case the work keeps running and its result is discarded. A context that
// is already done never yields a result.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result blocks until the result is available.
func (f *Future[T]) Result() (T, error) {
	<-f.done
	return f.val, f.err
}
