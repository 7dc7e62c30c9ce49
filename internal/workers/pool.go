package workers

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"gallery-viewer/internal/logging"
	"gallery-viewer/internal/metrics"
)

// PanicError is returned for a task whose body panicked.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// sink collects one worker's output.
type sink[R any] struct {
	results []R
	errs    []error
}

// Run processes tasks with n workers draining one shared queue. Each worker
// appends to its own sink; sinks are concatenated after all workers exit.
// Every task is handed to exactly one worker. A failing or panicking task
// does not stop the others. Once ctx is done the remaining tasks are not
// started and report ctx.Err().
//
// pool labels the metrics of this run.
func Run[T, R any](ctx context.Context, pool string, n int, tasks []T, body func(context.Context, T) (R, error)) ([]R, []error) {
	if len(tasks) == 0 {
		return nil, nil
	}
	if n < 1 {
		n = 1
	}
	if n > len(tasks) {
		n = len(tasks)
	}

	queue := make(chan T, len(tasks))
	for _, task := range tasks {
		queue <- task
	}
	close(queue)

	sinks := make([]sink[R], n)
	active := metrics.WorkerPoolActiveWorkers.WithLabelValues(pool)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(s *sink[R]) {
			defer wg.Done()
			active.Inc()
			defer active.Dec()

			for task := range queue {
				if err := ctx.Err(); err != nil {
					s.errs = append(s.errs, err)
					continue
				}
				result, err := runTask(ctx, pool, task, body)
				if err != nil {
					s.errs = append(s.errs, err)
					continue
				}
				s.results = append(s.results, result)
			}
		}(&sinks[i])
	}
	wg.Wait()

	var results []R
	var errs []error
	for _, s := range sinks {
		results = append(results, s.results...)
		errs = append(errs, s.errs...)
	}
	return results, errs
}

func runTask[T, R any](ctx context.Context, pool string, task T, body func(context.Context, T) (R, error)) (result R, err error) {
	start := time.Now()
	status := "success"
	defer func() {
		if p := recover(); p != nil {
			stack := debug.Stack()
			logging.Error("Worker pool %s: task panicked: %v\n%s", pool, p, stack)
			err = &PanicError{Value: p, Stack: stack}
			status = "panic"
		}
		metrics.WorkerPoolTasksTotal.WithLabelValues(pool, status).Inc()
		metrics.WorkerPoolTaskDuration.WithLabelValues(pool).Observe(time.Since(start).Seconds())
	}()

	result, err = body(ctx, task)
	if err != nil {
		status = "error"
	}
	return result, err
}
