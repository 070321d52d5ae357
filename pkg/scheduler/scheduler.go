// Package scheduler runs work functions on a bounded pool of workers.
// Bespoke uses it to stage tools and builds onto several systems under
// test at once without saturating the lab network.
package scheduler

import (
	"context"
	"fmt"

	"github.com/fancylads/bespoke/internal/models"
)

// Result is the outcome of a scheduled work function.
type Result[T any] = models.Result[T]

type workRequest struct {
	fn  models.Work[any]
	c   chan models.Result[any]
	ctx context.Context
}

type worker struct {
	done chan any
}

func (w worker) Work(r workRequest) {
	defer func() {
		if p := recover(); p != nil {
			r.c <- models.Result[any]{Err: fmt.Errorf("worker panicked: %v", p)}
		}
		w.done <- struct{}{}
	}()

	v, err := r.fn(r.ctx)
	r.c <- models.Result[any]{Data: v, Err: err}
}

func newWorker(done chan any) worker {
	return worker{done: done}
}

type Scheduler struct {
	workers    *models.Queue[worker]
	workQueue  *models.Queue[workRequest]
	close      chan any
	drained    chan any
	done       chan any
	work       chan workRequest
	nbWorkers  int
	mainCtx    context.Context
	mainCancel context.CancelFunc
}

func NewScheduler(nbWorkers int) *Scheduler {
	done := make(chan any)
	wq := &models.Queue[worker]{}
	for range nbWorkers {
		wq.Push(newWorker(done))
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		workers:    wq,
		workQueue:  &models.Queue[workRequest]{},
		close:      make(chan any),
		drained:    make(chan any),
		done:       done,
		work:       make(chan workRequest),
		nbWorkers:  nbWorkers,
		mainCtx:    ctx,
		mainCancel: cancel,
	}
	go s.run()
	return s
}

// AddWork queues w for execution in FIFO order and returns a future that
// resolves with its result. After Close the future resolves immediately
// with context.Canceled.
func (s *Scheduler) AddWork(w models.Work[any]) *models.Future[models.Result[any]] {
	c := make(chan models.Result[any], 1)
	ctx, cancel := context.WithCancel(s.mainCtx)

	select {
	case s.work <- workRequest{w, c, ctx}:
	case <-s.mainCtx.Done():
		c <- models.Result[any]{Err: context.Canceled}
		cancel()
	}

	return models.NewFuture(c, cancel)
}

// Close cancels the context of every queued and running work function,
// then blocks until all in-flight workers have finished.
func (s *Scheduler) Close() {
	s.mainCancel()
	select {
	case s.close <- struct{}{}:
	case <-s.drained:
		return
	}
	<-s.drained
}

func (s *Scheduler) run() {
	for {
		select {
		case w := <-s.work:
			s.workQueue.Push(w)
			if s.workers.Len() == 0 {
				continue
			}
			s.dispatch(s.workQueue.Pop())
		case <-s.done:
			s.workers.Push(newWorker(s.done))

			if s.workQueue.Len() == 0 {
				continue
			}
			s.dispatch(s.workQueue.Pop())
		case <-s.close:
			s.drain()
			close(s.drained)
			return
		}
	}
}

// drain resolves queued work that never started with context.Canceled,
// then waits until every dispatched worker has reported back.
func (s *Scheduler) drain() {
	for s.workQueue.Len() > 0 {
		r := s.workQueue.Pop()
		r.c <- models.Result[any]{Err: context.Canceled}
	}
	for s.workers.Len() < s.nbWorkers {
		<-s.done
		s.workers.Push(newWorker(s.done))
	}
}

func (s *Scheduler) dispatch(r workRequest) {
	worker := s.workers.Pop()
	go worker.Work(r)
}
