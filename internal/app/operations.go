package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"gallery-viewer/internal/dedupe"
	"gallery-viewer/internal/gallery"
	"gallery-viewer/internal/indexer"
	"gallery-viewer/internal/library"
	"gallery-viewer/internal/matcher"
	"gallery-viewer/internal/mediatypes"
	"gallery-viewer/internal/metadata"
	"gallery-viewer/internal/reconcile"
	"gallery-viewer/internal/startup"
	"gallery-viewer/internal/thumbnail"
)

var (
	// ErrNotFound is returned for an unknown gallery id.
	ErrNotFound = errors.New("gallery not found")
	// ErrNoMirror is returned when the catalog mirror is unavailable.
	ErrNoMirror = errors.New("catalog mirror is not available")
	// ErrInvalidFacet is returned for edits naming an unknown facet.
	ErrInvalidFacet = errors.New("unknown metadata facet")
)

func (a *App) gallery(id int64) (*gallery.Gallery, error) {
	g, ok := a.lib.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return g, nil
}

// Load reloads stored galleries, then scans paths or every library folder.
// Both runs happen in the calling goroutine.
func (a *App) Load(ctx context.Context, paths []string) ([]indexer.Result, error) {
	reload, err := a.idx.Reload(ctx)
	if err != nil {
		return []indexer.Result{reload}, err
	}
	scan, err := a.idx.Scan(ctx, paths)
	return []indexer.Result{reload, scan}, err
}

// Reload reloads stored galleries only.
func (a *App) Reload(ctx context.Context) (indexer.Result, error) {
	return a.idx.Reload(ctx)
}

// RequestScan queues a scan of paths, or a full reload and scan when none is
// given.
func (a *App) RequestScan(paths ...string) {
	a.idx.Submit(paths...)
}

// Validate checks the identity of every gallery in the calling goroutine.
func (a *App) Validate(ctx context.Context) reconcile.Summary {
	return a.reconcile.Check(ctx, a.lib.All())
}

// Dedupe removes duplicate galleries.
func (a *App) Dedupe(ctx context.Context) (dedupe.Report, error) {
	return a.resolver.Resolve(ctx)
}

// DuplicateGroups lists duplicate groups without removing anything.
func (a *App) DuplicateGroups(ctx context.Context) [][]gallery.Summary {
	groups, _ := a.resolver.Groups(ctx)
	out := make([][]gallery.Summary, 0, len(groups))
	for _, group := range groups {
		summaries := make([]gallery.Summary, 0, len(group))
		for _, g := range group {
			summaries = append(summaries, g.Summary(a.cfg.ThumbnailDir))
		}
		out = append(out, summaries)
	}
	return out
}

// Match searches metadata for ids, or every gallery when none is given, in
// the calling goroutine.
func (a *App) Match(ctx context.Context, ids []int64, force bool) (matcher.Report, error) {
	var galleries []*gallery.Gallery
	if len(ids) == 0 {
		galleries = a.lib.All()
	}
	for _, id := range ids {
		g, err := a.gallery(id)
		if err != nil {
			return matcher.Report{}, err
		}
		galleries = append(galleries, g)
	}
	return a.matcher.Run(ctx, galleries, matcher.Options{Force: force, Explicit: len(ids) > 0})
}

// RequestMatch queues a metadata search.
func (a *App) RequestMatch(ids []int64, force bool) {
	a.matcher.Submit(matcher.Request{IDs: ids, Force: force})
}

// Thumbnails regenerates stale thumbnails of every gallery and prunes
// orphans.
func (a *App) Thumbnails(ctx context.Context) thumbnail.Report {
	all := a.lib.All()
	return a.thumbs.EnsureAll(ctx, all, all)
}

// ThumbnailDir is where thumbnails are served from.
func (a *App) ThumbnailDir() string {
	return a.thumbs.Dir()
}

// List returns summaries of every live gallery.
func (a *App) List(field mediatypes.SortField, order mediatypes.SortOrder) []gallery.Summary {
	galleries := a.lib.List(field, order)
	out := make([]gallery.Summary, 0, len(galleries))
	for _, g := range galleries {
		out = append(out, g.Summary(a.cfg.ThumbnailDir))
	}
	return out
}

// Detail returns the detail projection of one gallery.
func (a *App) Detail(id int64) (gallery.Detail, error) {
	g, err := a.gallery(id)
	if err != nil {
		return gallery.Detail{}, err
	}
	return g.Detail(a.cfg.ThumbnailDir)
}

// Open counts a read of the gallery and returns the file to show.
func (a *App) Open(ctx context.Context, id int64, index int) (string, error) {
	g, err := a.gallery(id)
	if err != nil {
		return "", err
	}
	path, err := g.Open(ctx, index)
	if err != nil {
		return "", err
	}
	a.lib.Events().Publish(library.EventGalleriesUpdated, id)
	return path, nil
}

// Delete removes galleries and their content.
func (a *App) Delete(ctx context.Context, ids ...int64) ([]int64, error) {
	for _, id := range ids {
		if _, err := a.gallery(id); err != nil {
			return nil, err
		}
	}
	return a.lib.Delete(ctx, a.remover, ids...)
}

// SetRating stores a user rating. Zero clears it.
func (a *App) SetRating(ctx context.Context, id int64, rating float64) error {
	g, err := a.gallery(id)
	if err != nil {
		return err
	}
	if err := g.SetRating(ctx, rating); err != nil {
		return err
	}
	a.lib.Events().Publish(library.EventGalleriesUpdated, id)
	return nil
}

// EditMetadata applies facet edits keyed by facet name. A changed catalog
// url queues a forced metadata refresh of the gallery.
func (a *App) EditMetadata(ctx context.Context, id int64, edits map[string]metadata.Edit) error {
	g, err := a.gallery(id)
	if err != nil {
		return err
	}
	byFacet := make(map[metadata.FacetName]metadata.Edit, len(edits))
	for name, e := range edits {
		facet, ok := metadata.ParseFacetName(name)
		if !ok {
			return fmt.Errorf("%w: %q", ErrInvalidFacet, name)
		}
		byFacet[facet] = e
	}
	changed, err := g.ApplyEdits(ctx, byFacet)
	if err != nil {
		return err
	}
	a.lib.Events().Publish(library.EventGalleriesUpdated, id)
	if changed && a.remote {
		a.RequestMatch([]int64{id}, true)
	}
	return nil
}

// ImportMirror loads catalog records into the mirror.
func (a *App) ImportMirror(ctx context.Context, r io.Reader) (int, error) {
	if a.mirror == nil {
		return 0, ErrNoMirror
	}
	return a.mirror.Import(ctx, r)
}

// Health is a snapshot of the running subsystems.
type Health struct {
	Indexer       indexer.HealthStatus `json:"indexer"`
	Reconciling   bool                 `json:"reconciling"`
	Matching      bool                 `json:"matching"`
	RemoteEnabled bool                 `json:"remoteEnabled"`
	MirrorEnabled bool                 `json:"mirrorEnabled"`
	Watching      int                  `json:"watching"`
	Subscribers   int                  `json:"subscribers"`
	MemoryPaused  bool                 `json:"memoryPaused"`
	MemoryUsage   float64              `json:"memoryUsage"`
	Version       string               `json:"version"`
	GoVersion     string               `json:"goVersion"`
	NumGoroutine  int                  `json:"numGoroutine"`
	Uptime        string               `json:"uptime"`
}

// Health reports the state of the subsystems.
func (a *App) Health() Health {
	h := Health{
		Indexer:       a.idx.GetHealthStatus(),
		Reconciling:   a.reconcile.Busy(),
		Matching:      a.matcher.Busy(),
		RemoteEnabled: a.remote,
		MirrorEnabled: a.mirror != nil,
		Subscribers:   a.lib.Events().Subscribers(),
		MemoryPaused:  a.monitor.Paused(),
		Version:       startup.Version,
		GoVersion:     runtime.Version(),
		NumGoroutine:  runtime.NumGoroutine(),
		Uptime:        time.Since(a.started).Round(time.Second).String(),
	}
	if w := a.watcher.Load(); w != nil {
		h.Watching = w.Watched()
	}
	_, _, h.MemoryUsage = a.monitor.Stats()
	return h
}
