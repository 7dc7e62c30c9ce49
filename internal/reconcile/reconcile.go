package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"gallery-viewer/internal/gallery"
	"gallery-viewer/internal/library"
	"gallery-viewer/internal/logging"
	"gallery-viewer/internal/metrics"
	"gallery-viewer/internal/workers"
)

const (
	// DefaultDelay is how long new galleries wait before being checked.
	DefaultDelay = 5 * time.Second
	// defaultPoll is how often a waiting batch checks for a running scan.
	defaultPoll = time.Second
)

// Outcome is the result of checking one gallery.
type Outcome int

const (
	Unchanged Outcome = iota
	// Touched means the mtime hash changed but the content did not.
	Touched
	IdentityChanged
)

func (o Outcome) String() string {
	switch o {
	case Unchanged:
		return "unchanged"
	case Touched:
		return "touched"
	case IdentityChanged:
		return "identity_changed"
	}
	return "unknown"
}

// Config configures an Engine.
type Config struct {
	// Delay before a submitted batch is checked. 0 selects DefaultDelay,
	// a negative value disables the delay.
	Delay time.Duration
	// Poll is the interval between scan-in-flight checks.
	Poll time.Duration
	// Workers is the pool size. 0 sizes it for I/O.
	Workers int
}

// Summary counts the outcomes of one batch.
type Summary struct {
	Checked         int `json:"checked"`
	Touched         int `json:"touched"`
	IdentityChanged int `json:"identityChanged"`
	Failed          int `json:"failed"`
}

// Engine validates gallery identities in serialized batches.
type Engine struct {
	lib       *library.Library
	cfg       Config
	scanBusy  func() bool
	onChecked func([]*gallery.Gallery)
	intake    *workers.Intake[*gallery.Gallery]
}

// New creates an engine. scanBusy reports whether a scan is in flight; nil
// means never.
func New(lib *library.Library, cfg Config, scanBusy func() bool) *Engine {
	switch {
	case cfg.Delay == 0:
		cfg.Delay = DefaultDelay
	case cfg.Delay < 0:
		cfg.Delay = 0
	}
	if cfg.Poll <= 0 {
		cfg.Poll = defaultPoll
	}
	if scanBusy == nil {
		scanBusy = func() bool { return false }
	}
	e := &Engine{lib: lib, cfg: cfg, scanBusy: scanBusy}
	e.intake = workers.NewIntake("reconcile", e.handleBatch)
	return e
}

// SetOnChecked sets the callback receiving every checked batch.
func (e *Engine) SetOnChecked(fn func([]*gallery.Gallery)) {
	e.onChecked = fn
}

// Start begins processing submitted galleries until ctx is done.
func (e *Engine) Start(ctx context.Context) {
	e.intake.Start(ctx)
}

// Submit queues galleries for a delayed check.
func (e *Engine) Submit(galleries ...*gallery.Gallery) {
	e.intake.Submit(galleries)
}

// Busy reports whether a batch is waiting or being checked.
func (e *Engine) Busy() bool {
	return e.intake.Busy()
}

func (e *Engine) handleBatch(ctx context.Context, batch []*gallery.Gallery) {
	if err := e.wait(ctx); err != nil {
		return
	}
	summary := e.Check(ctx, batch)
	logging.Info("Reconciled %d galleries: %d touched, %d identity changes, %d failed",
		summary.Checked, summary.Touched, summary.IdentityChanged, summary.Failed)
	if e.onChecked != nil {
		e.onChecked(batch)
	}
}

// wait sleeps for the configured delay, then until no scan is in flight.
func (e *Engine) wait(ctx context.Context) error {
	if e.cfg.Delay > 0 {
		timer := time.NewTimer(e.cfg.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	ticker := time.NewTicker(e.cfg.Poll)
	defer ticker.Stop()
	for e.scanBusy() {
		logging.Debug("Reconciliation waiting for scan to finish")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Check verifies galleries through the worker pool and persists changes.
// Expired galleries are skipped.
func (e *Engine) Check(ctx context.Context, galleries []*gallery.Gallery) Summary {
	live := make([]*gallery.Gallery, 0, len(galleries))
	for _, g := range galleries {
		if g != nil && !g.Expired() {
			live = append(live, g)
		}
	}

	type checked struct {
		id      int64
		outcome Outcome
	}
	results, errs := workers.Run(ctx, "reconcile", e.workerCount(), live,
		func(ctx context.Context, g *gallery.Gallery) (checked, error) {
			o, err := Verify(ctx, g)
			if err != nil {
				return checked{}, fmt.Errorf("%s: %w", g, err)
			}
			return checked{id: g.ID(), outcome: o}, nil
		})

	var summary Summary
	var changed []int64
	for _, r := range results {
		summary.Checked++
		metrics.ReconcileTotal.WithLabelValues(r.outcome.String()).Inc()
		switch r.outcome {
		case Touched:
			summary.Touched++
		case IdentityChanged:
			summary.IdentityChanged++
			changed = append(changed, r.id)
		}
	}
	for _, err := range errs {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			continue
		}
		summary.Failed++
		metrics.ReconcileTotal.WithLabelValues("error").Inc()
		logging.Warn("Failed to reconcile gallery: %v", err)
	}

	e.lib.Events().Publish(library.EventReconcileFinished, changed...)
	return summary
}

// Verify checks one gallery. The identity is recomputed only when the mtime
// hash moved, and the new hashes are saved in that case. A cached file list
// naming files that are gone is dropped and read again once.
func Verify(ctx context.Context, g *gallery.Gallery) (Outcome, error) {
	mtime, err := g.ComputeMtimeHash()
	if errors.Is(err, fs.ErrNotExist) {
		g.InvalidateFiles()
		mtime, err = g.ComputeMtimeHash()
	}
	if err != nil {
		return Unchanged, err
	}
	if mtime == g.MtimeHash() {
		return Unchanged, nil
	}

	g.InvalidateFiles()
	if mtime, err = g.ComputeMtimeHash(); err != nil {
		return Unchanged, err
	}
	identity, err := g.ComputeIdentity()
	if err != nil {
		return Unchanged, err
	}

	outcome := Touched
	if identity != g.UUID() {
		outcome = IdentityChanged
		logging.Info("Identity of %s changed from %s to %s", g, g.UUID(), identity)
	}
	g.Revalidated(identity, mtime)
	if err := g.Save(ctx); err != nil {
		return Unchanged, err
	}
	return outcome, nil
}

func (e *Engine) workerCount() int {
	if e.cfg.Workers > 0 {
		return e.cfg.Workers
	}
	return workers.ForIO(8)
}
