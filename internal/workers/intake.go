package workers

import (
	"context"
	"runtime/debug"
	"sync"

	"gallery-viewer/internal/logging"
)

// Intake serializes batches for one subsystem: a batch is handed to the
// handler only after the previous one has fully drained. Submit never blocks.
type Intake[T any] struct {
	name   string
	handle func(context.Context, []T)

	mu         sync.Mutex
	pending    [][]T
	processing bool

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

// NewIntake creates an intake queue. Call Start to begin processing.
func NewIntake[T any](name string, handle func(context.Context, []T)) *Intake[T] {
	return &Intake[T]{
		name:   name,
		handle: handle,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Start runs the processing loop until ctx is done. It is safe to call more
// than once; only the first call starts the loop.
func (q *Intake[T]) Start(ctx context.Context) {
	q.once.Do(func() {
		go q.loop(ctx)
	})
}

// Submit enqueues a batch. Empty batches are ignored.
func (q *Intake[T]) Submit(batch []T) {
	if len(batch) == 0 {
		return
	}
	q.mu.Lock()
	q.pending = append(q.pending, batch)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Busy reports whether a batch is being processed or waiting.
func (q *Intake[T]) Busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.processing || len(q.pending) > 0
}

// Done is closed once the loop has exited.
func (q *Intake[T]) Done() <-chan struct{} {
	return q.done
}

func (q *Intake[T]) loop(ctx context.Context) {
	defer close(q.done)
	logging.Debug("Intake %s started", q.name)

	for {
		select {
		case <-ctx.Done():
			logging.Debug("Intake %s stopped", q.name)
			return
		case <-q.wake:
		}

		for {
			batch, ok := q.next()
			if !ok {
				break
			}
			q.run(ctx, batch)
			if ctx.Err() != nil {
				q.finish()
				return
			}
		}
	}
}

func (q *Intake[T]) next() ([]T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		q.processing = false
		return nil, false
	}
	batch := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	q.processing = true
	return batch, true
}

func (q *Intake[T]) finish() {
	q.mu.Lock()
	q.processing = false
	q.mu.Unlock()
}

func (q *Intake[T]) run(ctx context.Context, batch []T) {
	defer func() {
		if p := recover(); p != nil {
			logging.Error("Intake %s: batch of %d panicked: %v\n%s", q.name, len(batch), p, debug.Stack())
		}
	}()
	q.handle(ctx, batch)
}
