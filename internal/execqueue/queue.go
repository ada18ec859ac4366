// Package execqueue implements the serial (concurrency=1) FIFO execution
// queue: every enqueued unit produces a handle with cancel() and an
// awaitable, and waitForIdle blocks until the queue drains. Grounded on
// a bounded-channel-drained-by-one-goroutine order queue and its
// result-channel idea (generalized here into Job.Await), replacing
// a bare Order-only queue with a generic Job abstraction carrying a
// cancellation signal the job body must honor.
package execqueue

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ErrCancelled is returned by a pending job's awaitable when cancelled
// before it started running.
var ErrCancelled = errors.New("execqueue: job cancelled")

// JobFunc is the unit of work; it must observe ctx and return promptly
// once ctx is cancelled.
type JobFunc func(ctx context.Context) (any, error)

// Job is one unit submitted to the queue.
type Job struct {
	ID     string
	fn     JobFunc
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	result any
	err    error

	mu     sync.Mutex
	status Status
}

func newJob(parent context.Context, fn JobFunc) *Job {
	ctx, cancel := context.WithCancel(parent)
	return &Job{
		ID:     uuid.NewString(),
		fn:     fn,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		status: StatusPending,
	}
}

// Status returns the job's current status.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

func (j *Job) setStatus(s Status) {
	j.mu.Lock()
	j.status = s
	j.mu.Unlock()
}

// Cancel flips the job's cancellation signal. A running job must observe
// ctx.Done() and abort; a pending job is removed from the queue before it
// ever runs and its awaitable rejects with ErrCancelled.
func (j *Job) Cancel() {
	j.mu.Lock()
	wasPending := j.status == StatusPending
	if wasPending {
		j.status = StatusCancelled
	}
	j.mu.Unlock()
	j.cancel()
	if wasPending {
		j.err = ErrCancelled
		close(j.done)
	}
}

// Await blocks until the job reaches a terminal status and returns its result.
func (j *Job) Await(ctx context.Context) (any, error) {
	select {
	case <-j.done:
		return j.result, j.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Queue is a FIFO, concurrency-1 job queue.
type Queue struct {
	jobs chan *Job

	mu      sync.Mutex
	pending []*Job
	running *Job

	idleCond *sync.Cond
}

// New builds a Queue with the given buffer size and starts its drain loop.
func New(ctx context.Context, bufferSize int) *Queue {
	q := &Queue{jobs: make(chan *Job, bufferSize)}
	q.idleCond = sync.NewCond(&q.mu)
	go q.drain(ctx)
	return q
}

// Enqueue submits fn and returns its handle immediately.
func (q *Queue) Enqueue(ctx context.Context, fn JobFunc) *Job {
	j := newJob(ctx, fn)
	q.mu.Lock()
	q.pending = append(q.pending, j)
	q.mu.Unlock()
	q.jobs <- j
	return j
}

// CancelAll cancels the running job (if any) and every pending job.
func (q *Queue) CancelAll() {
	q.mu.Lock()
	running := q.running
	pending := append([]*Job(nil), q.pending...)
	q.mu.Unlock()

	if running != nil {
		running.Cancel()
	}
	for _, j := range pending {
		j.Cancel()
	}
}

// WaitForIdle blocks until the queue is empty and no job is running.
func (q *Queue) WaitForIdle(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.mu.Lock()
		for q.running != nil || len(q.pending) > 0 {
			q.idleCond.Wait()
		}
		q.mu.Unlock()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-q.jobs:
			q.runOne(j)
		}
	}
}

func (q *Queue) runOne(j *Job) {
	q.mu.Lock()
	if j.Status() == StatusCancelled {
		// already rejected by Cancel(); drop it from pending and move on.
		q.removePendingLocked(j)
		q.mu.Unlock()
		q.idleCond.Broadcast()
		return
	}
	q.removePendingLocked(j)
	q.running = j
	q.mu.Unlock()

	j.setStatus(StatusRunning)
	result, err := j.fn(j.ctx)

	q.mu.Lock()
	q.running = nil
	q.mu.Unlock()

	j.result = result
	j.err = err
	if err != nil {
		j.setStatus(StatusFailed)
	} else {
		j.setStatus(StatusCompleted)
	}
	close(j.done)
	q.idleCond.Broadcast()
}

func (q *Queue) removePendingLocked(target *Job) {
	for i, j := range q.pending {
		if j == target {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}
