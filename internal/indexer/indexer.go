package indexer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"gallery-viewer/internal/archive"
	"gallery-viewer/internal/database"
	"gallery-viewer/internal/filesystem"
	"gallery-viewer/internal/gallery"
	"gallery-viewer/internal/library"
	"gallery-viewer/internal/logging"
	"gallery-viewer/internal/metrics"
	"gallery-viewer/internal/workers"
)

const (
	modeReload = "reload"
	modeScan   = "scan"
)

// Root is a configured library folder.
type Root struct {
	Path string
	// AutoMetadata is false when galleries under this root must not have
	// metadata collected automatically.
	AutoMetadata bool
}

// Config configures the indexer.
type Config struct {
	Roots []Root
	// Workers is the construction pool size. 0 sizes it for I/O.
	Workers int
	// WalkWorkers bounds concurrent root walks. 0 selects the default.
	WalkWorkers int
}

// Request asks for a scan of specific paths. A request without paths asks
// for a full run: reload from the store, then a scan of every root.
type Request struct {
	Paths []string
}

// Result summarizes one run.
type Result struct {
	Mode       string        `json:"mode"`
	Candidates int           `json:"candidates"`
	Added      int           `json:"added"`
	MarkedDead int           `json:"markedDead"`
	Revived    int           `json:"revived"`
	Failed     int           `json:"failed"`
	Unreadable []string      `json:"unreadable,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Indexer builds galleries from the store and from the filesystem.
type Indexer struct {
	lib *library.Library
	cfg Config

	// onBuilt receives every batch of galleries added to the library.
	onBuilt func([]*gallery.Gallery)

	intake *workers.Intake[Request]

	// runMu serializes runs started from the intake and direct callers.
	runMu sync.Mutex

	statusMu   sync.Mutex
	running    bool
	completed  bool
	lastRun    time.Time
	lastResult Result
	startTime  time.Time
}

// New creates an indexer for lib.
func New(lib *library.Library, cfg Config) *Indexer {
	roots := make([]Root, len(cfg.Roots))
	for i, r := range cfg.Roots {
		roots[i] = Root{Path: filesystem.NormalizePath(r.Path), AutoMetadata: r.AutoMetadata}
	}
	cfg.Roots = roots

	idx := &Indexer{lib: lib, cfg: cfg, startTime: time.Now()}
	idx.intake = workers.NewIntake("scan", idx.handleRequests)
	return idx
}

// SetOnBuilt sets the callback receiving newly added galleries.
func (idx *Indexer) SetOnBuilt(fn func([]*gallery.Gallery)) {
	idx.onBuilt = fn
}

// Start begins processing submitted requests until ctx is done.
func (idx *Indexer) Start(ctx context.Context) {
	idx.intake.Start(ctx)
}

// Submit queues a scan of paths, or a full run when no path is given.
func (idx *Indexer) Submit(paths ...string) {
	idx.intake.Submit([]Request{{Paths: paths}})
}

// Busy reports whether a run is in progress or queued.
func (idx *Indexer) Busy() bool {
	idx.statusMu.Lock()
	running := idx.running
	idx.statusMu.Unlock()
	return running || idx.intake.Busy()
}

func (idx *Indexer) handleRequests(ctx context.Context, reqs []Request) {
	var paths []string
	full := false
	for _, r := range reqs {
		if len(r.Paths) == 0 {
			full = true
			break
		}
		paths = append(paths, r.Paths...)
	}

	if full {
		if _, err := idx.Reload(ctx); err != nil {
			logging.Error("Reload failed: %v", err)
		}
		paths = nil
	}
	if _, err := idx.Scan(ctx, paths); err != nil {
		logging.Error("Scan failed: %v", err)
	}
}

// Reload constructs galleries from the stored rows. Rows whose content is
// gone are marked dead, dead rows whose content came back are revived, and
// rows already dead and absent are left alone.
func (idx *Indexer) Reload(ctx context.Context) (result Result, err error) {
	idx.runMu.Lock()
	defer idx.runMu.Unlock()
	start := idx.begin(modeReload)
	result.Mode = modeReload
	defer func() { idx.end(start, &result) }()

	var rows []database.GalleryRow
	var facetRows []database.FacetRow
	err = idx.lib.Deps().Store.Session(ctx, false, func(s *database.Session) error {
		var err error
		if rows, err = s.QueryGalleries(database.GalleryFilter{}); err != nil {
			return err
		}
		facetRows, err = s.QueryFacets(nil)
		return err
	})
	if err != nil {
		return result, fmt.Errorf("failed to load galleries: %w", err)
	}

	facets := make(map[int64][]database.FacetRow)
	for _, f := range facetRows {
		facets[f.GalleryID] = append(facets[f.GalleryID], f)
	}

	claimed := idx.lib.Paths()
	var candidates []gallery.Candidate
	var dead, revived []int64
	for i := range rows {
		row := rows[i]
		kind := gallery.Kind(row.Type)
		if !kind.Valid() {
			logging.Error("Skipping row %d: %v: unknown kind %d", row.ID, gallery.ErrAssertion, row.Type)
			continue
		}
		if claimed[row.Path] {
			continue
		}
		exists := filesystem.Exists(row.Path)
		switch {
		case row.Dead && !exists:
			continue
		case row.Dead:
			revived = append(revived, row.ID)
			row.Dead = false
		case !exists:
			dead = append(dead, row.ID)
			continue
		}
		claimed[row.Path] = true
		candidates = append(candidates, gallery.Candidate{
			Kind:   kind,
			Path:   row.Path,
			Row:    &row,
			Facets: facets[row.ID],
		})
	}

	out := idx.construct(ctx, modeReload, candidates)
	dead = append(dead, out.dead...)
	result.Candidates = len(candidates)
	result.Added = len(out.added)
	result.Failed = out.failed
	result.Unreadable = out.unreadable
	result.Revived = len(revived)
	result.MarkedDead = len(dead)

	if err := idx.writeLiveness(ctx, dead, revived); err != nil {
		return result, err
	}
	idx.finish(out)
	return result, ctx.Err()
}

// Scan walks paths, or every configured root when paths is empty, and
// constructs galleries for locations not yet in the library.
func (idx *Indexer) Scan(ctx context.Context, paths []string) (result Result, err error) {
	idx.runMu.Lock()
	defer idx.runMu.Unlock()
	start := idx.begin(modeScan)
	result.Mode = modeScan
	defer func() { idx.end(start, &result) }()

	roots := make([]string, 0, len(paths))
	for _, p := range paths {
		roots = append(roots, filesystem.NormalizePath(p))
	}
	if len(roots) == 0 {
		for _, r := range idx.cfg.Roots {
			roots = append(roots, r.Path)
		}
	}

	discovered, err := discover(ctx, roots, idx.cfg.WalkWorkers)
	if err != nil {
		return result, fmt.Errorf("failed to walk library: %w", err)
	}

	claimed := idx.lib.Paths()
	var candidates []gallery.Candidate
	for _, f := range discovered {
		if claimed[f.path] {
			continue
		}
		claimed[f.path] = true
		candidates = append(candidates, gallery.Candidate{
			Kind:             f.kind,
			Path:             f.path,
			NoAutoCollection: !idx.autoMetadata(f.path),
		})
	}

	out := idx.construct(ctx, modeScan, candidates)
	result.Candidates = len(candidates)
	result.Added = len(out.added)
	result.Failed = out.failed
	result.Unreadable = out.unreadable
	result.MarkedDead = len(out.dead)

	if err := idx.writeLiveness(ctx, out.dead, nil); err != nil {
		return result, err
	}
	idx.finish(out)
	return result, ctx.Err()
}

// autoMetadata reports the auto-collection setting of the closest root
// containing path. Paths outside every root allow collection.
func (idx *Indexer) autoMetadata(path string) bool {
	best := -1
	auto := true
	for _, r := range idx.cfg.Roots {
		if len(r.Path) > best && filesystem.PathUnder(path, r.Path) {
			best = len(r.Path)
			auto = r.AutoMetadata
		}
	}
	return auto
}

// buildError ties a construction failure to its candidate.
type buildError struct {
	candidate gallery.Candidate
	err       error
}

func (e *buildError) Error() string {
	return fmt.Sprintf("%s: %v", e.candidate.Path, e.err)
}

func (e *buildError) Unwrap() error {
	return e.err
}

// outcome is what a construction batch produced.
type outcome struct {
	added      []*gallery.Gallery
	dead       []int64
	unreadable []string
	failed     int
}

// construct builds candidates through the worker pool and adds the
// survivors to the library. Failures never abort the batch.
func (idx *Indexer) construct(ctx context.Context, mode string, candidates []gallery.Candidate) outcome {
	var out outcome
	if len(candidates) == 0 {
		return out
	}
	metrics.ScanCandidatesTotal.WithLabelValues(mode).Add(float64(len(candidates)))
	logging.Info("Constructing %d galleries (%s)", len(candidates), mode)

	deps := idx.lib.Deps()
	built, errs := workers.Run(ctx, "construct", idx.workerCount(), candidates,
		func(ctx context.Context, c gallery.Candidate) (*gallery.Gallery, error) {
			g, err := gallery.Build(ctx, deps, c)
			if err != nil {
				return nil, &buildError{candidate: c, err: err}
			}
			return g, nil
		})

	for _, err := range errs {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			continue
		}
		out.failed++

		var be *buildError
		if errors.As(err, &be) && be.candidate.Loaded() {
			out.dead = append(out.dead, be.candidate.Row.ID)
		}

		switch {
		case errors.Is(err, archive.ErrUnreadable):
			metrics.ConstructionErrorsTotal.WithLabelValues("unreadable").Inc()
			if be != nil {
				out.unreadable = append(out.unreadable, be.candidate.Path)
			}
			logging.Warn("Unreadable archive: %v", err)
		case errors.Is(err, gallery.ErrNoContent):
			metrics.ConstructionErrorsTotal.WithLabelValues("no_content").Inc()
			logging.Debug("Skipping candidate without content: %v", err)
		case errors.Is(err, gallery.ErrAssertion):
			metrics.ConstructionErrorsTotal.WithLabelValues("assertion").Inc()
			logging.Error("Construction assertion failed: %v", err)
		default:
			metrics.ConstructionErrorsTotal.WithLabelValues("other").Inc()
			logging.Error("Failed to construct gallery: %v", err)
		}
	}

	out.added = idx.lib.Add(built...)
	if len(out.added) < len(built) {
		kept := make(map[*gallery.Gallery]bool, len(out.added))
		for _, g := range out.added {
			kept[g] = true
		}
		for _, g := range built {
			if !kept[g] {
				g.Release()
			}
		}
	}
	sort.Strings(out.unreadable)
	return out
}

// writeLiveness persists dead and revived flags in one session.
func (idx *Indexer) writeLiveness(ctx context.Context, dead, revived []int64) error {
	if len(dead) == 0 && len(revived) == 0 {
		return nil
	}
	err := idx.lib.Deps().Store.Session(ctx, true, func(s *database.Session) error {
		if err := s.MarkDead(revived, false); err != nil {
			return err
		}
		return s.MarkDead(dead, true)
	})
	if err != nil {
		return fmt.Errorf("failed to update dead flags: %w", err)
	}
	logging.Info("Marked %d galleries dead, revived %d", len(dead), len(revived))
	return nil
}

// finish reports unreadable archives and hands new galleries on.
func (idx *Indexer) finish(out outcome) {
	if len(out.unreadable) > 0 {
		idx.lib.Events().Notify(library.Notice{
			Message: fmt.Sprintf("%d archives could not be opened", len(out.unreadable)),
			Details: out.unreadable,
		})
	}
	if len(out.added) > 0 && idx.onBuilt != nil {
		idx.onBuilt(out.added)
	}
}

func (idx *Indexer) workerCount() int {
	if idx.cfg.Workers > 0 {
		return idx.cfg.Workers
	}
	return workers.ForIO(16)
}

func (idx *Indexer) begin(mode string) time.Time {
	idx.statusMu.Lock()
	idx.running = true
	idx.statusMu.Unlock()

	metrics.ScanIsRunning.Set(1)
	metrics.ScanRunsTotal.WithLabelValues(mode).Inc()
	idx.lib.Events().Publish(library.EventScanStarted)
	logging.Info("Starting %s...", mode)
	return time.Now()
}

func (idx *Indexer) end(start time.Time, result *Result) {
	result.Duration = time.Since(start)
	metrics.ScanIsRunning.Set(0)
	metrics.ScanDuration.WithLabelValues(result.Mode).Observe(result.Duration.Seconds())

	idx.statusMu.Lock()
	idx.running = false
	idx.completed = true
	idx.lastRun = time.Now()
	idx.lastResult = *result
	idx.statusMu.Unlock()

	idx.lib.Events().Publish(library.EventScanFinished)
	logging.Info("%s complete: %d candidates, %d added, %d failed, %d marked dead in %v",
		result.Mode, result.Candidates, result.Added, result.Failed, result.MarkedDead, result.Duration)
}

// HealthStatus contains health check information.
type HealthStatus struct {
	Ready      bool      `json:"ready"`
	Scanning   bool      `json:"scanning"`
	StartTime  time.Time `json:"startTime"`
	Uptime     string    `json:"uptime"`
	LastRun    time.Time `json:"lastRun,omitempty"`
	LastResult *Result   `json:"lastResult,omitempty"`
	Galleries  int       `json:"galleries"`
}

// GetHealthStatus returns detailed health information.
func (idx *Indexer) GetHealthStatus() HealthStatus {
	idx.statusMu.Lock()
	defer idx.statusMu.Unlock()

	status := HealthStatus{
		Ready:     idx.completed,
		Scanning:  idx.running,
		StartTime: idx.startTime,
		Uptime:    time.Since(idx.startTime).String(),
		LastRun:   idx.lastRun,
		Galleries: idx.lib.Len(),
	}
	if idx.completed {
		last := idx.lastResult
		status.LastResult = &last
	}
	return status
}
