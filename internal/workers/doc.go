/*
Package workers provides the fan-out primitives used by gallery construction
and thumbnail generation, plus helpers for sizing them in containerized
environments.

# Pool

Run drains a slice of tasks with a fixed number of workers:

	galleries, errs := workers.Run(ctx, "construct", workers.ForIO(8), candidates,
		func(ctx context.Context, c gallery.Candidate) (*gallery.Gallery, error) {
			return gallery.Build(ctx, deps, c)
		})

Each worker pulls from one shared queue and appends to its own result and
error sinks, so nothing is shared while tasks run. The caller gets the
concatenated sinks once every worker has exited. Ordering across workers is
unspecified. A task that returns an error or panics is reported in the error
list and the remaining tasks still run. Panics surface as *PanicError with the
captured stack.

Cancellation is cooperative: a running task is never interrupted, but tasks
not yet started when ctx is done report ctx.Err() instead of running.

# Intake

Intake serializes batches for one subsystem. Submit never blocks; the
handler receives the next batch only after the previous one has returned:

	q := workers.NewIntake("reconcile", engine.HandleBatch)
	q.Start(ctx)
	q.Submit(galleries)

Busy reports whether anything is running or waiting, which lets a
subsystem defer work until a concurrent scan has drained.

# Worker Counts

When running in a container the number of available CPUs may be limited by
cgroup constraints. GOMAXPROCS follows those limits while runtime.NumCPU()
still returns the host count, so the helpers here are based on GOMAXPROCS:

	workers.ForCPU(8)   // 1 per CPU, image decoding and hashing
	workers.ForIO(16)   // 2 per CPU, archive listing and stat calls
	workers.ForMixed(8) // 1.5 per CPU, thumbnail generation

Count takes an explicit multiplier and limit. A limit of 0 means no limit.

# Environment Variable Override

All sizing functions respect GALLERY_WORKERS, which replaces the computed
count (still capped by the limit):

	GALLERY_WORKERS=4 gallery-viewer scan

# Thread Safety

Run, Count and the Intake methods are safe for concurrent use.
*/
package workers
