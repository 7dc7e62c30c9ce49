package matcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gallery-viewer/internal/gallery"
	"gallery-viewer/internal/library"
	"gallery-viewer/internal/logging"
	"gallery-viewer/internal/metadata"
	"gallery-viewer/internal/metrics"
	"gallery-viewer/internal/remote"
	"gallery-viewer/internal/workers"
)

const (
	phaseMirror    = "mirror"
	phaseRemote    = "remote"
	phaseAlternate = "alternate"
	phaseAPI       = "api"

	resultMatched   = "matched"
	resultAmbiguous = "ambiguous"
	resultNone      = "none"
	resultError     = "error"
)

// Mirror is the local catalog mirror.
type Mirror interface {
	SearchPhrase(ctx context.Context, phrase string) ([]metadata.CatalogRecord, error)
	SearchWords(ctx context.Context, words []string) ([]metadata.CatalogRecord, error)
	Upsert(ctx context.Context, records []metadata.CatalogRecord) error
}

// Catalog is the remote external catalog.
type Catalog interface {
	HashSearch(ctx context.Context, sha1 string, coverOnly bool) ([]string, error)
	Metadata(ctx context.Context, refs []metadata.GalleryRef) ([]metadata.CatalogRecord, error)
}

// Alternate is the remote alternate catalog.
type Alternate interface {
	FindCatalogURL(ctx context.Context, name, title string) (string, bool, error)
}

// Request asks for a metadata search. No ids means every gallery. Force
// searches galleries that already have a record and refreshes their
// metadata. Automatic requests name the galleries of a finished scan and
// are treated like bulk requests.
type Request struct {
	IDs       []int64
	Force     bool
	Automatic bool
}

// Options control one search run.
type Options struct {
	// Force refreshes galleries that already have a catalog record.
	Force bool

	// Explicit runs were asked for by gallery id and search galleries whose
	// auto-collection is disabled.
	Explicit bool
}

// Report summarizes one search run.
type Report struct {
	Searched   int     `json:"searched"`
	Matched    int     `json:"matched"`
	Unresolved int     `json:"unresolved"`
	Failed     int     `json:"failed"`
	Updated    []int64 `json:"updated"`
}

// Matcher searches metadata for galleries. Runs are serialized through an
// intake queue.
type Matcher struct {
	lib       *library.Library
	mirror    Mirror
	catalog   Catalog
	alternate Alternate
	intake    *workers.Intake[Request]
}

// New creates a matcher. Any source may be nil; without a catalog only the
// mirror is searched and nothing is refreshed.
func New(lib *library.Library, mirror Mirror, catalog Catalog, alternate Alternate) *Matcher {
	m := &Matcher{lib: lib, mirror: mirror, catalog: catalog, alternate: alternate}
	m.intake = workers.NewIntake("metadata", m.handleRequests)
	return m
}

// Start begins processing submitted requests until ctx is done.
func (m *Matcher) Start(ctx context.Context) {
	m.intake.Start(ctx)
}

// Submit queues a search.
func (m *Matcher) Submit(req Request) {
	m.intake.Submit([]Request{req})
}

// Busy reports whether a search is running or queued.
func (m *Matcher) Busy() bool {
	return m.intake.Busy()
}

func (m *Matcher) handleRequests(ctx context.Context, reqs []Request) {
	for _, req := range reqs {
		var galleries []*gallery.Gallery
		if len(req.IDs) == 0 {
			galleries = m.lib.All()
		} else {
			for _, id := range req.IDs {
				if g, ok := m.lib.Get(id); ok {
					galleries = append(galleries, g)
				}
			}
		}

		opts := Options{Force: req.Force, Explicit: len(req.IDs) > 0 && !req.Automatic}
		if _, err := m.Run(ctx, galleries, opts); err != nil {
			if remote.IsFatal(err) {
				// the rest of the queue would fail the same way
				return
			}
			logging.Error("Metadata search failed: %v", err)
		}
	}
}

// Run searches metadata for galleries. Galleries with a record are
// refreshed when forced or flagged by an edit. A fatal remote error stops
// the run, is published as a fatal notice and returned.
func (m *Matcher) Run(ctx context.Context, galleries []*gallery.Gallery, opts Options) (report Report, err error) {
	defer func() {
		m.lib.Events().Publish(library.EventMetadataFinished, report.Updated...)
		if remote.IsFatal(err) {
			m.lib.Events().Notify(library.Notice{Message: remote.FatalMessage(err), Fatal: true})
		}
	}()

	var search, refresh []*gallery.Gallery
	for _, g := range galleries {
		if !g.ValidForSearch(opts.Force, opts.Explicit) {
			continue
		}
		if _, hasRef := g.Metadata().Ref(); hasRef {
			refresh = append(refresh, g)
		} else {
			search = append(search, g)
		}
	}
	report.Searched = len(search)
	logging.Info("Searching metadata for %d galleries, refreshing %d", len(search), len(refresh))

	remaining := search
	if m.mirror != nil {
		remaining = m.searchMirror(ctx, search, &report)
	}

	if m.catalog == nil {
		// mirror only
		report.Unresolved += len(remaining)
		return report, nil
	}

	var pending []*gallery.Gallery
	for _, g := range remaining {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		url, found, err := m.searchRemote(ctx, g)
		if err != nil {
			if remote.IsFatal(err) {
				return report, err
			}
			report.Failed++
			logging.Error("%s failed to search: %v", g, err)
			continue
		}
		if !found {
			report.Unresolved++
			continue
		}
		if err := g.SetCatalogURL(url); err != nil {
			report.Failed++
			logging.Warn("%s: search returned an unusable url: %v", g, err)
			continue
		}
		if err := g.UpdateMetadata(ctx, map[metadata.FacetName]map[string]interface{}{metadata.Catalog: {}}); err != nil {
			logging.Error("%s: failed to save catalog url: %v", g, err)
		}
		report.Matched++
		pending = append(pending, g)
		if len(pending) == remote.APIBatchSize {
			if err := m.fetch(ctx, pending, &report); err != nil {
				return report, err
			}
			pending = nil
		}
	}
	if err := m.fetch(ctx, pending, &report); err != nil {
		return report, err
	}

	for i := 0; i < len(refresh); i += remote.APIMaxBatchSize {
		end := min(i+remote.APIMaxBatchSize, len(refresh))
		if err := m.fetch(ctx, refresh[i:end], &report); err != nil {
			return report, err
		}
	}
	logging.Info("Metadata search done: %d matched, %d unresolved, %d failed",
		report.Matched, report.Unresolved, report.Failed)
	return report, nil
}

// searchMirror resolves what it can from the local mirror and returns the
// galleries left for the remote phase.
func (m *Matcher) searchMirror(ctx context.Context, galleries []*gallery.Gallery, report *Report) []*gallery.Gallery {
	var left []*gallery.Gallery
	for _, g := range galleries {
		rec, result, err := m.matchMirror(ctx, g)
		metrics.MatchAttemptsTotal.WithLabelValues(phaseMirror, result).Inc()
		if err != nil {
			logging.Warn("%s: mirror search failed: %v", g, err)
		}
		if result != resultMatched {
			left = append(left, g)
			continue
		}
		if err := g.UpdateMetadata(ctx, map[metadata.FacetName]map[string]interface{}{
			metadata.Catalog: rec.Values(),
		}); err != nil {
			logging.Error("%s: failed to save mirror metadata: %v", g, err)
			report.Failed++
			continue
		}
		report.Matched++
		report.Updated = append(report.Updated, g.ID())
	}
	return left
}

func (m *Matcher) matchMirror(ctx context.Context, g *gallery.Gallery) (metadata.CatalogRecord, string, error) {
	name := g.Name()
	exact, err := m.mirror.SearchPhrase(ctx, name)
	if err != nil {
		return metadata.CatalogRecord{}, resultError, err
	}
	candidates := exact
	if len(candidates) == 0 {
		words := strings.Fields(metadata.RemoveEnclosed(name))
		if candidates, err = m.mirror.SearchWords(ctx, words); err != nil {
			return metadata.CatalogRecord{}, resultError, err
		}
	}

	switch len(candidates) {
	case 0:
		return metadata.CatalogRecord{}, resultNone, nil
	case 1:
		return candidates[0], resultMatched, nil
	}
	target, err := targetOf(g)
	if err != nil {
		return metadata.CatalogRecord{}, resultError, err
	}
	if rec, ok := SelectMatch(target, candidates); ok {
		return rec, resultMatched, nil
	}
	return metadata.CatalogRecord{}, resultAmbiguous, nil
}

func targetOf(g *gallery.Gallery) (Target, error) {
	size, err := g.Size()
	if err != nil {
		return Target{}, err
	}
	count, err := g.FileCount()
	if err != nil {
		return Target{}, err
	}
	return Target{Name: g.Name(), Size: size, FileCount: count, Archive: g.IsArchive()}, nil
}

// searchRemote finds a catalog url by image hash, then through the
// alternate catalog.
func (m *Matcher) searchRemote(ctx context.Context, g *gallery.Gallery) (string, bool, error) {
	url, found, err := m.hashSearch(ctx, g)
	switch {
	case err != nil && remote.IsFatal(err):
		metrics.MatchAttemptsTotal.WithLabelValues(phaseRemote, resultError).Inc()
		return "", false, err
	case err != nil:
		metrics.MatchAttemptsTotal.WithLabelValues(phaseRemote, resultError).Inc()
		logging.Warn("%s: hash search failed: %v", g, err)
	case found:
		metrics.MatchAttemptsTotal.WithLabelValues(phaseRemote, resultMatched).Inc()
		return url, true, nil
	default:
		metrics.MatchAttemptsTotal.WithLabelValues(phaseRemote, resultNone).Inc()
	}

	if m.alternate == nil {
		return "", false, err
	}
	url, found, altErr := m.alternate.FindCatalogURL(ctx, g.Name(), g.Title())
	switch {
	case altErr != nil:
		metrics.MatchAttemptsTotal.WithLabelValues(phaseAlternate, resultError).Inc()
		return "", false, altErr
	case found:
		metrics.MatchAttemptsTotal.WithLabelValues(phaseAlternate, resultMatched).Inc()
		logging.Info("%s: alternate catalog url %s found", g, url)
		return url, true, nil
	}
	metrics.MatchAttemptsTotal.WithLabelValues(phaseAlternate, resultNone).Inc()
	return "", false, nil
}

// hashSearch picks a record url from image hash searches: a unique cover
// hit, a unique all-pages hit, a unique hit on the second page, a result
// present in both first-page searches, or the first result of any.
func (m *Matcher) hashSearch(ctx context.Context, g *gallery.Gallery) (string, bool, error) {
	first, ok, err := g.FileHash(0)
	if err != nil || !ok {
		return "", false, err
	}
	covers, err := m.catalog.HashSearch(ctx, first, true)
	if err != nil {
		return "", false, err
	}
	if len(covers) == 1 {
		return covers[0], true, nil
	}
	pages, err := m.catalog.HashSearch(ctx, first, false)
	if err != nil {
		return "", false, err
	}
	if len(pages) == 1 {
		return pages[0], true, nil
	}

	combined := append(append([]string(nil), covers...), pages...)
	if len(combined) == 0 {
		second, ok, err := g.FileHash(1)
		if err != nil {
			return "", false, err
		}
		if ok {
			more, err := m.catalog.HashSearch(ctx, second, true)
			if err != nil {
				return "", false, err
			}
			if len(more) == 1 {
				return more[0], true, nil
			}
			covers = append(covers, more...)
			combined = append(combined, covers...)
		}
	}
	if len(combined) == 0 {
		return "", false, nil
	}

	inPages := make(map[string]bool, len(pages))
	for _, u := range pages {
		inPages[u] = true
	}
	for _, u := range covers {
		if inPages[u] {
			return u, true, nil
		}
	}
	return combined[0], true, nil
}

// fetch loads catalog records for galleries whose record is known and
// saves them into the catalog facet.
func (m *Matcher) fetch(ctx context.Context, galleries []*gallery.Gallery, report *Report) error {
	refs := make([]metadata.GalleryRef, 0, len(galleries))
	for _, g := range galleries {
		if ref, ok := g.Metadata().Ref(); ok {
			refs = append(refs, ref)
		}
	}
	if len(refs) == 0 {
		return nil
	}

	records, err := m.catalog.Metadata(ctx, refs)
	if err != nil {
		metrics.MatchAttemptsTotal.WithLabelValues(phaseAPI, resultError).Inc()
		if remote.IsFatal(err) {
			return err
		}
		report.Failed += len(refs)
		logging.Error("Failed to fetch metadata for %d galleries: %v", len(refs), err)
		return nil
	}
	if m.mirror != nil {
		if err := m.mirror.Upsert(ctx, records); err != nil {
			logging.Warn("Failed to store fetched records in the mirror: %v", err)
		}
	}

	byRef := make(map[metadata.GalleryRef]metadata.CatalogRecord, len(records))
	for _, r := range records {
		byRef[r.Ref()] = r
	}
	var errs []error
	for _, g := range galleries {
		if g.Expired() {
			continue
		}
		ref, _ := g.Metadata().Ref()
		rec, ok := byRef[ref]
		if !ok {
			metrics.MatchAttemptsTotal.WithLabelValues(phaseAPI, resultNone).Inc()
			continue
		}
		metrics.MatchAttemptsTotal.WithLabelValues(phaseAPI, resultMatched).Inc()
		err := g.UpdateMetadata(ctx, map[metadata.FacetName]map[string]interface{}{
			metadata.Catalog: rec.Values(),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", g, err))
			continue
		}
		report.Updated = append(report.Updated, g.ID())
	}
	if err := errors.Join(errs...); err != nil {
		report.Failed += len(errs)
		logging.Error("Failed to save metadata: %v", err)
	}
	return nil
}
