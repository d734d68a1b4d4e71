package loop

import (
	"context"
	"fmt"
	"log/slog"
)

// Task is a unit of work executed on the loop goroutine.
type Task struct {
	// Name identifies the task in logs (e.g. "action:changeAge").
	Name string

	// Seq is assigned by Enqueue from the loop clock.
	Seq int64

	// Run performs the work. A returned error is logged; the loop continues.
	Run func(ctx context.Context) error
}

// Loop is a single-writer task loop.
//
// Thread-safety model:
//   - Enqueue, Stop, Len: safe from any goroutine
//   - Run, Drain: must not run concurrently with each other
type Loop struct {
	queue  *taskQueue
	clock  *Clock
	logger *slog.Logger
}

// Option configures a Loop.
type Option func(*Loop)

// WithClock shares an existing clock, e.g. to resume numbering.
func WithClock(c *Clock) Option {
	return func(l *Loop) {
		l.clock = c
	}
}

// WithLogger sets the logger used for task failures. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates an idle loop.
func New(opts ...Option) *Loop {
	l := &Loop{
		queue:  newTaskQueue(),
		clock:  NewClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Enqueue stamps t with the next sequence number and appends it to the queue.
// Returns false if the loop has been stopped.
func (l *Loop) Enqueue(t Task) bool {
	if l.queue.isClosed() {
		return false
	}
	t.Seq = l.clock.Next()
	return l.queue.push(t)
}

// Run executes tasks until ctx is cancelled or Stop is called.
//
// Must be called from exactly one goroutine. On cancellation the queue is closed
// and ctx.Err() returned; after Stop, Run finishes the tasks already queued and
// returns nil.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Debug("loop starting")

	for {
		if t, ok := l.queue.pop(); ok {
			l.execute(ctx, t)
			continue
		}

		select {
		case <-ctx.Done():
			l.logger.Debug("loop stopping: context cancelled")
			l.queue.close()
			return ctx.Err()

		case <-l.queue.wait():
			if l.queue.isClosed() && l.queue.len() == 0 {
				l.logger.Debug("loop stopping: queue closed")
				return nil
			}
		}
	}
}

// Drain executes queued tasks, including tasks enqueued while draining, until the
// queue is empty. Returns the number of tasks executed. Used by the harness and tests
// to run the loop deterministically on the calling goroutine.
func (l *Loop) Drain(ctx context.Context) (int, error) {
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		t, ok := l.queue.pop()
		if !ok {
			return n, nil
		}
		l.execute(ctx, t)
		n++
	}
}

// Stop closes the queue. Further Enqueue calls return false.
func (l *Loop) Stop() {
	l.queue.close()
}

// Len returns the number of pending tasks.
func (l *Loop) Len() int {
	return l.queue.len()
}

// Clock returns the loop's logical clock.
func (l *Loop) Clock() *Clock {
	return l.clock
}

// execute runs one task, converting a panic into a logged error.
// Log-and-continue keeps one bad task from taking down every later one.
func (l *Loop) execute(ctx context.Context, t Task) {
	if err := runTask(ctx, t); err != nil {
		l.logger.Error("task failed",
			"task", t.Name,
			"seq", t.Seq,
			"error", err,
		)
	}
}

func runTask(ctx context.Context, t Task) (err error) {
	if t.Run == nil {
		return fmt.Errorf("task %q has no Run function", t.Name)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.Run(ctx)
}
