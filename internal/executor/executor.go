// Package executor runs tasks on a single owner context.
//
// The host scene is not safe for concurrent access, so every mutation is
// funnelled through one Executor. Connection goroutines call Submit and
// block; the owner (the host's main loop, or Run) calls Drain to execute the
// queue one task at a time in submission order.
package executor

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/muurk/scenebridge/internal/logging"
	"github.com/muurk/scenebridge/internal/metrics"
	"github.com/muurk/scenebridge/internal/protocol"
)

// DefaultInterval is the polling period used by Run when none is given.
const DefaultInterval = 50 * time.Millisecond

var (
	// ErrShuttingDown fails tasks that were still queued when the server stopped.
	ErrShuttingDown = errors.New("server shutting down")

	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("executor closed")
)

// Task is a unit of work for the owner context. Its result becomes the
// "result" of a success response; a non-nil error becomes an error response.
type Task func() (any, error)

const (
	statePending int32 = iota
	stateRunning
	stateDone
	stateCanceled
)

type job struct {
	task   Task
	state  *atomic.Int32
	queued time.Time
	done   chan struct{}
	resp   protocol.Response
	err    error
}

// fail marks a job that never started as failed with err.
func (j *job) fail(err error) bool {
	if !j.state.CompareAndSwap(statePending, stateCanceled) {
		return false
	}
	j.err = err
	close(j.done)
	return true
}

// Executor is a FIFO task queue drained by a single owner.
type Executor struct {
	mu     sync.Mutex
	queue  []*job
	closed bool

	drainMu sync.Mutex
	wake    chan struct{}
	metrics *metrics.Metrics
}

// Option configures an Executor.
type Option func(*Executor)

// WithMetrics reports queue depth and task outcomes to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

// New creates an empty Executor.
func New(opts ...Option) *Executor {
	e := &Executor{
		wake: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit queues task and blocks until the owner has run it.
//
// The returned error is non-nil only when the task never ran: the executor
// was closed, the task was cancelled by CancelPending, or ctx ended while the
// task was still queued. Once a task has started it always runs to completion
// and its response is returned regardless of ctx.
func (e *Executor) Submit(ctx context.Context, task Task) (protocol.Response, error) {
	if err := ctx.Err(); err != nil {
		return protocol.Response{}, err
	}

	j := &job{
		task:   task,
		state:  atomic.NewInt32(statePending),
		queued: time.Now(),
		done:   make(chan struct{}),
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return protocol.Response{}, ErrClosed
	}
	e.queue = append(e.queue, j)
	depth := len(e.queue)
	e.mu.Unlock()

	e.metrics.SetQueueDepth(depth)
	e.signal()

	select {
	case <-j.done:
	case <-ctx.Done():
		if j.fail(ctx.Err()) {
			e.metrics.RecordTaskCanceled()
		}
		<-j.done
	}
	return j.resp, j.err
}

// Wake returns a channel that receives a value whenever work is queued.
// Hosts with their own event loop select on it and call Drain.
func (e *Executor) Wake() <-chan struct{} {
	return e.wake
}

func (e *Executor) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Drain runs every task that was queued when it was called, oldest first,
// and returns how many ran. Tasks queued while draining wait for the next
// call. Concurrent calls are serialized so tasks never overlap.
func (e *Executor) Drain() int {
	e.drainMu.Lock()
	defer e.drainMu.Unlock()

	e.mu.Lock()
	n := len(e.queue)
	e.mu.Unlock()

	ran := 0
	for i := 0; i < n; i++ {
		j := e.pop()
		if j == nil {
			break
		}
		if e.run(j) {
			ran++
		}
	}
	return ran
}

// DrainOne runs the oldest queued task, if any, and reports whether one ran.
func (e *Executor) DrainOne() bool {
	e.drainMu.Lock()
	defer e.drainMu.Unlock()

	for {
		j := e.pop()
		if j == nil {
			return false
		}
		if e.run(j) {
			return true
		}
	}
}

// Run drains the queue whenever work arrives and at least every interval
// until ctx is done.
func (e *Executor) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.wake:
			e.Drain()
		case <-ticker.C:
			e.Drain()
		}
	}
}

// Pending returns the number of queued tasks that have not started.
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, j := range e.queue {
		if j.state.Load() == statePending {
			n++
		}
	}
	return n
}

// CancelPending fails every queued task that has not started with err and
// returns how many were cancelled. A task already running is unaffected.
func (e *Executor) CancelPending(err error) int {
	e.mu.Lock()
	batch := e.queue
	e.queue = nil
	e.mu.Unlock()

	e.metrics.SetQueueDepth(0)

	n := 0
	for _, j := range batch {
		if j.fail(err) {
			e.metrics.RecordTaskCanceled()
			n++
		}
	}
	if n > 0 {
		logging.Info("Cancelled pending tasks",
			zap.Int("count", n),
			zap.String("reason", err.Error()),
		)
	}
	return n
}

// Close rejects further submissions and fails everything still queued with
// ErrShuttingDown.
func (e *Executor) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.CancelPending(ErrShuttingDown)
}

func (e *Executor) pop() *job {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.queue) == 0 {
		return nil
	}
	j := e.queue[0]
	e.queue[0] = nil
	e.queue = e.queue[1:]
	e.metrics.SetQueueDepth(len(e.queue))
	return j
}

func (e *Executor) run(j *job) bool {
	if !j.state.CompareAndSwap(statePending, stateRunning) {
		return false
	}
	e.metrics.RecordTaskRun(time.Since(j.queued).Seconds())

	j.resp = e.invoke(j.task)
	j.state.Store(stateDone)
	close(j.done)
	return true
}

func (e *Executor) invoke(task Task) (resp protocol.Response) {
	defer func() {
		if r := recover(); r != nil {
			e.metrics.RecordTaskPanic()
			logging.Error("Task panicked on owner context",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			resp = protocol.Failuref("internal error: %v", r)
		}
	}()

	result, err := task()
	if err != nil {
		return protocol.FromError(err)
	}
	return protocol.Success(result)
}
