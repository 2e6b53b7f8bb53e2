// Package opqueue serializes all operations issued against the shared
// search engine into a single logical thread of execution.
//
// The engine instance is a single shared mutable structure with no internal
// locking. Two concurrent writes, or a write racing a read, could observe or
// produce an inconsistent index. The queue externalizes that discipline:
// producers submit tasks from any goroutine, a single dedicated runner
// drains them strictly in submission order, and results travel back through
// per-task result channels.
package opqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrQueueClosed is returned for tasks submitted after Close.
var ErrQueueClosed = errors.New("operation queue closed")

// Task represents a deferred operation to be executed by the queue runner.
type Task func(ctx context.Context) (any, error)

// taskRecord tracks one submitted task and its result slot.
type taskRecord struct {
	id         int
	task       Task
	enqueuedAt time.Time
	result     chan taskResult
}

type taskResult struct {
	value any
	err   error
}

// Queue guarantees FIFO admission order and mutual exclusion: at most one
// task is running at any instant, and task N+1 does not start until task N
// has settled. A task failure is delivered only to its own submitter; the
// queue keeps processing subsequent tasks.
type Queue struct {
	mu      sync.Mutex
	pending []*taskRecord
	closed  bool
	seq     int

	wake chan struct{}
	done chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	// onError observes every task failure before it is re-surfaced to the
	// submitter. Wired to the error counter.
	onError func(error)
}

// New creates a queue and starts its runner goroutine. onError may be nil.
func New(onError func(error)) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		onError: onError,
	}
	go q.run()
	return q
}

// Run submits a task and blocks until that task's own outcome is available.
// Submission itself never blocks: the record is appended to the pending list
// and the runner is signalled. If the caller's context expires while
// waiting, Run returns early but the task still executes to settlement and
// the queue advances normally.
func (q *Queue) Run(ctx context.Context, task Task) (any, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrQueueClosed
	}
	q.seq++
	rec := &taskRecord{
		id:         q.seq,
		task:       task,
		enqueuedAt: time.Now(),
		result:     make(chan taskResult, 1),
	}
	q.pending = append(q.pending, rec)
	depth := len(q.pending)
	q.mu.Unlock()

	slog.Debug("Task enqueued", "task_id", rec.id, "queue_depth", depth)

	select {
	case q.wake <- struct{}{}:
	default:
	}

	select {
	case res := <-rec.result:
		return res.value, res.err
	case <-ctx.Done():
		slog.Debug("Caller stopped waiting for queued task", "task_id", rec.id)
		return nil, ctx.Err()
	}
}

// Do submits a typed task, preserving its result type for the caller.
func Do[T any](ctx context.Context, q *Queue, task func(ctx context.Context) (T, error)) (T, error) {
	value, err := q.Run(ctx, func(ctx context.Context) (any, error) {
		return task(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := value.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("task returned %T, expected %T", value, zero)
	}
	return typed, nil
}

// Len reports the number of tasks waiting to start. The running task, if
// any, is not counted.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops accepting new tasks, lets already-submitted tasks run to
// settlement, and waits for the runner to exit.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	<-q.done
	q.cancel()
	return nil
}

// run is the single consumer loop. FIFO order follows from popping the head
// of the pending list; mutual exclusion follows from there being exactly one
// runner that executes tasks inline.
func (q *Queue) run() {
	defer close(q.done)

	for {
		rec := q.pop()
		if rec == nil {
			q.mu.Lock()
			closed := q.closed && len(q.pending) == 0
			q.mu.Unlock()
			if closed {
				return
			}
			<-q.wake
			continue
		}
		q.execute(rec)
	}
}

func (q *Queue) pop() *taskRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	rec := q.pending[0]
	q.pending = q.pending[1:]
	return rec
}

// execute runs one task and delivers its outcome. A panic inside a task is
// converted to an error so a single bad task cannot take down the runner.
func (q *Queue) execute(rec *taskRecord) {
	start := time.Now()
	waited := start.Sub(rec.enqueuedAt)

	value, err := q.invoke(rec)

	if err != nil {
		if q.onError != nil {
			q.onError(err)
		}
		slog.Debug("Task failed", "task_id", rec.id, "waited", waited, "duration", time.Since(start), "error", err)
	} else {
		slog.Debug("Task completed", "task_id", rec.id, "waited", waited, "duration", time.Since(start))
	}

	rec.result <- taskResult{value: value, err: err}
	close(rec.result)
}

func (q *Queue) invoke(rec *taskRecord) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}
	}()
	return rec.task(q.ctx)
}
