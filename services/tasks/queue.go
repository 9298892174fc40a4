// Package tasks runs background work such as scope warm-up crawls on a fixed pool of workers.
package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/meghashyamc/aleph/logger"
)

const (
	defaultWorkers = 2
	defaultBuffer  = 16
)

type Task func(ctx context.Context) error

type job struct {
	key  string
	task Task
}

// Queue is a bounded work queue. A key that is already queued or running is not queued again,
// and Submit never blocks: a full or closed queue rejects the task.
type Queue struct {
	logger logger.Logger
	jobs   chan job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	pending map[string]struct{}
	closed  bool
}

func NewQueue(logger logger.Logger, workers int, buffer int) *Queue {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if buffer <= 0 {
		buffer = defaultBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		logger:  logger,
		jobs:    make(chan job, buffer),
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[string]struct{}),
	}

	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.work(i)
	}
	return q
}

// Submit queues task under key. It reports false when the key is already pending, the buffer is
// full or the queue has been shut down.
func (q *Queue) Submit(key string, task Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if _, ok := q.pending[key]; ok {
		return false
	}

	select {
	case q.jobs <- job{key: key, task: task}:
		q.pending[key] = struct{}{}
		return true
	default:
		q.logger.Warn("task queue full, dropping task", "key", key)
		return false
	}
}

// Pending reports whether key is queued or running.
func (q *Queue) Pending(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.pending[key]
	return ok
}

// Shutdown stops accepting tasks and waits for queued and running tasks to finish. When ctx ends
// first, running tasks see their context cancelled and Shutdown returns ctx's error.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		return ctx.Err()
	}
}

// Stop cancels running tasks, skips the queued ones and waits for the workers like Shutdown.
func (q *Queue) Stop(ctx context.Context) error {
	q.cancel()
	return q.Shutdown(ctx)
}

func (q *Queue) work(id int) {
	defer q.wg.Done()

	for j := range q.jobs {
		q.run(id, j)
	}
}

func (q *Queue) run(id int, j job) {
	defer func() {
		q.mu.Lock()
		delete(q.pending, j.key)
		q.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("task panicked", "key", j.key, "worker", id, "panic", fmt.Sprint(r))
		}
	}()

	if q.ctx.Err() != nil {
		q.logger.Debug("queue stopped, skipping task", "key", j.key, "worker", id)
		return
	}
	if err := j.task(q.ctx); err != nil {
		q.logger.Warn("task failed", "key", j.key, "worker", id, "err", err.Error())
		return
	}
	q.logger.Debug("task finished", "key", j.key, "worker", id)
}
