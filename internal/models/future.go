package models

import (
	"context"
	"sync"
)

// Future resolves once a value arrives on its input channel. Callers may
// either poll, wait, or receive directly from C. The input channel must be
// buffered so the producer never blocks on an abandoned future.
type Future[T any] struct {
	input    chan T
	resolved bool
	value    T
	cancel   context.CancelFunc
	lock     sync.Mutex
}

func NewFuture[T any](input chan T, cancel context.CancelFunc) *Future[T] {
	return &Future[T]{
		input:  input,
		cancel: cancel,
	}
}

// C exposes the raw result channel.
func (f *Future[T]) C() <-chan T {
	return f.input
}

// Poll reports the result without blocking.
func (f *Future[T]) Poll() (value T, isResolved bool) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.resolved {
		return f.value, true
	}

	select {
	case v := <-f.input:
		f.value = v
		f.resolved = true
		f.cancel()
		return v, true
	default:
		var none T
		return none, false
	}
}

// Wait blocks until the future resolves or ctx expires.
func (f *Future[T]) Wait(ctx context.Context) (value T, err error) {
	if v, ok := f.Poll(); ok {
		return v, nil
	}

	select {
	case v := <-f.input:
		f.lock.Lock()
		f.value = v
		f.resolved = true
		f.lock.Unlock()
		f.cancel()
		return v, nil
	case <-ctx.Done():
		var none T
		return none, ctx.Err()
	}
}

// Stop cancels the underlying work. The future still resolves once the
// worker observes the cancellation.
func (f *Future[T]) Stop() {
	f.cancel()
}
