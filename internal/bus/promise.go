package bus

import (
	"context"
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// Future represents the result of an asynchronous wait. Consumers block on
// Await or register a callback with OnComplete. A Future resolves exactly
// once; all observers see the same result.
type Future[T any] interface {
	// Await blocks until the result is available or the context is
	// cancelled, then returns it.
	Await(ctx context.Context) fn.Result[T]

	// OnComplete registers a function to be called once the result is
	// ready. The callback runs on its own goroutine.
	OnComplete(cb func(fn.Result[T]))
}

// Promise is the producer side of a Future. The first call to Complete wins;
// every later call is a no-op. This single-resolution guarantee is what makes
// a late completion event after a timeout harmless.
type Promise[T any] struct {
	fut futureImpl[T]
}

// NewPromise creates an unresolved promise.
func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{
		fut: futureImpl[T]{
			done: make(chan struct{}),
		},
	}
}

// Complete attempts to resolve the promise. It returns true if this call set
// the result, false if the promise had already been resolved.
func (p *Promise[T]) Complete(result fn.Result[T]) bool {
	won := false
	p.fut.once.Do(func() {
		p.fut.result = result
		close(p.fut.done)
		won = true
	})

	return won
}

// Future returns the consumer view of this promise.
func (p *Promise[T]) Future() Future[T] {
	return &p.fut
}

// futureImpl is the concrete Future backing a Promise.
type futureImpl[T any] struct {
	once   sync.Once
	done   chan struct{}
	result fn.Result[T]
}

// Await blocks until the promise resolves or the context is cancelled.
func (f *futureImpl[T]) Await(ctx context.Context) fn.Result[T] {
	select {
	case <-f.done:
		return f.result

	case <-ctx.Done():
		return fn.Err[T](ctx.Err())
	}
}

// OnComplete invokes the callback on a fresh goroutine once the promise
// resolves.
func (f *futureImpl[T]) OnComplete(cb func(fn.Result[T])) {
	go func() {
		<-f.done
		cb(f.result)
	}()
}
