package models

import "context"

// Work is a cancellable unit of work executed by the scheduler.
type Work[T any] func(ctx context.Context) (T, error)

// Queue is a minimal FIFO used by the scheduler for idle workers and
// pending work.
type Queue[T any] []T

func (q *Queue[T]) Len() int { return len(*q) }

func (q *Queue[T]) Pop() T {
	old := *q
	x := old[0]
	*q = old[1:]
	return x
}

func (q *Queue[T]) Push(t T) {
	*q = append(*q, t)
}

// Result pairs a work item's value with its error.
type Result[T any] struct {
	Data T
	Err  error
}
