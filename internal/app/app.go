package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"gallery-viewer/internal/catalog"
	"gallery-viewer/internal/database"
	"gallery-viewer/internal/dedupe"
	"gallery-viewer/internal/filesystem"
	"gallery-viewer/internal/fingerprint"
	"gallery-viewer/internal/gallery"
	"gallery-viewer/internal/indexer"
	"gallery-viewer/internal/library"
	"gallery-viewer/internal/logging"
	"gallery-viewer/internal/matcher"
	"gallery-viewer/internal/memory"
	"gallery-viewer/internal/metrics"
	"gallery-viewer/internal/reconcile"
	"gallery-viewer/internal/remote"
	"gallery-viewer/internal/startup"
	"gallery-viewer/internal/thumbnail"
)

const (
	// hashCacheSize bounds the content-hash cache shared by all galleries.
	hashCacheSize = 16384
	// eventBuffer is the per-subscriber event buffer.
	eventBuffer   = 64
	statsInterval = 30 * time.Second
)

// ErrLocked is returned when another process owns the data directory.
var ErrLocked = errors.New("data directory is in use by another process")

// App owns every subsystem of one library.
type App struct {
	cfg       *startup.Config
	lock      *flock.Flock
	db        *database.Database
	mirror    *catalog.Mirror
	lib       *library.Library
	remover   *filesystem.Remover
	idx       *indexer.Indexer
	reconcile *reconcile.Engine
	resolver  *dedupe.Resolver
	matcher   *matcher.Matcher
	thumbs    *thumbnail.Generator
	monitor   *memory.Monitor
	collector *metrics.Collector
	remote    bool
	started   time.Time

	// ctx is the run context once Run was called.
	ctx       context.Context
	watcher   atomic.Pointer[filesystem.Watcher]
	closeOnce sync.Once
}

// New locks the data directory, opens the stores and wires the subsystems.
// Nothing runs in the background until Run is called.
func New(ctx context.Context, cfg *startup.Config) (_ *App, err error) {
	lock := flock.New(cfg.LockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock data directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, cfg.DataDir)
	}
	a := &App{cfg: cfg, lock: lock, started: time.Now(), ctx: ctx}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	dbStart := time.Now()
	if a.db, err = database.New(ctx, cfg.DatabasePath); err != nil {
		return nil, err
	}
	if m, err := catalog.Open(ctx, cfg.MirrorPath); err != nil {
		logging.Warn("Catalog mirror unavailable, searching remotely only: %v", err)
	} else {
		a.mirror = m
	}
	startup.LogDatabaseInit(time.Since(dbStart), a.mirror != nil, a.mirror != nil && a.mirror.HasFTS())

	cache, err := fingerprint.NewCache(hashCacheSize)
	if err != nil {
		return nil, err
	}
	a.lib = library.New(gallery.Deps{Store: a.db, Cache: cache, TempDir: cfg.TempDir}, library.NewBroker(eventBuffer))
	a.remover = filesystem.NewRemover(filesystem.DeleteMode(cfg.DeleteMode), cfg.TrashDir)

	roots := make([]indexer.Root, 0, len(cfg.Library.Folders))
	for _, f := range cfg.Library.Folders {
		roots = append(roots, indexer.Root{Path: f.Path, AutoMetadata: f.AutoMetadata})
	}
	a.idx = indexer.New(a.lib, indexer.Config{Roots: roots, Workers: cfg.Scan.Workers})
	delay := cfg.Scan.ValidationDelay
	if delay == 0 {
		// zero in the config means no delay, not the default
		delay = -1
	}
	a.reconcile = reconcile.New(a.lib, reconcile.Config{Delay: delay, Workers: cfg.Scan.Workers}, a.idx.Busy)
	a.resolver = dedupe.New(a.lib, a.remover, cfg.Scan.Workers)

	a.monitor = memory.NewMonitor(memory.DefaultMonitorConfig())
	if a.thumbs, err = thumbnail.New(cfg.ThumbnailDir, cfg.Thumbnails.Width, cfg.Thumbnails.Height, cfg.Thumbnails.Workers); err != nil {
		return nil, err
	}
	a.thumbs.SetMonitor(a.monitor)

	a.matcher = a.newMatcher()
	a.collector = metrics.NewCollector(a.lib, statsInterval)

	a.idx.SetOnBuilt(func(built []*gallery.Gallery) {
		a.reconcile.Submit(built...)
	})
	a.reconcile.SetOnChecked(a.afterCheck)
	return a, nil
}

// newMatcher assembles the metadata sources that are available. Remote
// clients exist only with credentials.
func (a *App) newMatcher() *matcher.Matcher {
	var mirror matcher.Mirror
	if a.mirror != nil {
		mirror = a.mirror
	}
	var cat matcher.Catalog
	var alt matcher.Alternate
	if rc := a.cfg.Remote; rc.Enabled() {
		gateCfg := remote.CatalogGateConfig()
		gateCfg.Spacing = rc.Spacing
		gateCfg.Timeout = rc.Timeout
		gateCfg.Retries = rc.Retries
		gateCfg.Cookies = remote.CatalogCookies(rc.MemberID, rc.PassHash)
		cat = remote.NewCatalogClient(remote.NewGate(gateCfg, nil), rc.CatalogURL)

		altCfg := remote.AlternateGateConfig()
		altCfg.Timeout = rc.Timeout
		altCfg.Retries = rc.Retries
		alt = remote.NewAlternateClient(remote.NewGate(altCfg, nil), rc.AlternateURL)
		a.remote = true
	}
	return matcher.New(a.lib, mirror, cat, alt)
}

// afterCheck hands validated galleries to metadata search and thumbnail
// generation.
func (a *App) afterCheck(checked []*gallery.Gallery) {
	var live []*gallery.Gallery
	ids := make([]int64, 0, len(checked))
	for _, g := range checked {
		if g.Expired() {
			continue
		}
		live = append(live, g)
		ids = append(ids, g.ID())
	}
	if len(ids) == 0 {
		return
	}
	if a.mirror != nil || a.remote {
		a.matcher.Submit(matcher.Request{IDs: ids, Automatic: true})
	}
	if a.cfg.Scan.ThumbnailAfterScan {
		a.thumbs.EnsureAll(a.ctx, live, a.lib.All())
	}
}

// Run starts the background subsystems, queues a full reload and scan and
// watches the library folders until ctx is done.
func (a *App) Run(ctx context.Context) error {
	a.ctx = ctx
	a.idx.Start(ctx)
	a.reconcile.Start(ctx)
	a.matcher.Start(ctx)
	a.monitor.Start(ctx)
	a.collector.Start()
	defer a.collector.Stop()

	a.idx.Submit()
	startup.LogIndexerStarted()

	if !a.cfg.Scan.Watch || len(a.cfg.Library.Folders) == 0 {
		startup.LogIndexerInit(len(a.cfg.Library.Folders), 0)
		<-ctx.Done()
		return nil
	}

	w, err := filesystem.NewWatcher(a.cfg.FolderPaths(), a.cfg.Scan.WatchDebounce, a.handleChanges)
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	a.watcher.Store(w)
	startup.LogIndexerInit(len(a.cfg.Library.Folders), len(a.cfg.Library.Folders))

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close releases the stores and the data directory lock. Calls after the
// first do nothing.
func (a *App) Close() {
	a.closeOnce.Do(a.close)
}

func (a *App) close() {
	if a.lib != nil {
		for _, g := range a.lib.All() {
			g.Release()
		}
		a.lib.Events().Close()
	}
	if a.mirror != nil {
		if err := a.mirror.Close(); err != nil {
			logging.Warn("Failed to close catalog mirror: %v", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logging.Warn("Failed to close database: %v", err)
		}
	}
	if a.lock != nil {
		if err := a.lock.Unlock(); err != nil {
			logging.Warn("Failed to release data directory lock: %v", err)
		}
	}
}

// Config returns the configuration the app was built with.
func (a *App) Config() *startup.Config {
	return a.cfg
}

// Library returns the gallery collection.
func (a *App) Library() *library.Library {
	return a.lib
}

// Events returns the event broker.
func (a *App) Events() *library.Broker {
	return a.lib.Events()
}

// Mirror returns the catalog mirror, nil when it could not be opened.
func (a *App) Mirror() *catalog.Mirror {
	return a.mirror
}
