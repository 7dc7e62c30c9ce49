package library

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gallery-viewer/internal/gallery"
	"gallery-viewer/internal/logging"
	"gallery-viewer/internal/mediatypes"
	"gallery-viewer/internal/metrics"
)

// Library is the in-memory gallery collection. It owns every live gallery;
// the store rows are mirrors written through explicit saves.
type Library struct {
	deps   gallery.Deps
	events *Broker

	mu     sync.RWMutex
	byID   map[int64]*gallery.Gallery
	byPath map[string]int64
}

var _ metrics.StatsProvider = (*Library)(nil)

// New creates an empty library.
func New(deps gallery.Deps, events *Broker) *Library {
	return &Library{
		deps:   deps,
		events: events,
		byID:   make(map[int64]*gallery.Gallery),
		byPath: make(map[string]int64),
	}
}

// Deps returns the collaborators galleries of this library are built with.
func (l *Library) Deps() gallery.Deps {
	return l.deps
}

// Events returns the event broker.
func (l *Library) Events() *Broker {
	return l.events
}

// Add inserts galleries and publishes one added event. A gallery whose id or
// location is already present is rejected with ErrAssertion and skipped.
func (l *Library) Add(galleries ...*gallery.Gallery) []*gallery.Gallery {
	added := make([]*gallery.Gallery, 0, len(galleries))
	l.mu.Lock()
	for _, g := range galleries {
		if err := l.insertLocked(g); err != nil {
			logging.Error("Skipping %s: %v", g, err)
			continue
		}
		added = append(added, g)
	}
	l.mu.Unlock()

	if len(added) > 0 {
		l.events.Publish(EventGalleriesAdded, ids(added)...)
	}
	return added
}

func (l *Library) insertLocked(g *gallery.Gallery) error {
	id, location := g.ID(), g.Location()
	if _, ok := l.byID[id]; ok {
		return fmt.Errorf("%w: id %d already in library", gallery.ErrAssertion, id)
	}
	if _, ok := l.byPath[location]; ok {
		return fmt.Errorf("%w: path %s already in library", gallery.ErrAssertion, location)
	}
	l.byID[id] = g
	l.byPath[location] = id
	return nil
}

// Remove drops galleries from the collection and publishes one removed
// event. Unknown ids are ignored.
func (l *Library) Remove(galleryIDs ...int64) []*gallery.Gallery {
	removed := make([]*gallery.Gallery, 0, len(galleryIDs))
	l.mu.Lock()
	for _, id := range galleryIDs {
		g, ok := l.byID[id]
		if !ok {
			continue
		}
		delete(l.byID, id)
		if l.byPath[g.Location()] == id {
			delete(l.byPath, g.Location())
		}
		removed = append(removed, g)
	}
	l.mu.Unlock()

	if len(removed) > 0 {
		l.events.Publish(EventGalleriesRemoved, ids(removed)...)
	}
	return removed
}

// Remover deletes content from disk.
type Remover interface {
	Remove(paths ...string) error
}

// Delete is the standard deletion path: content goes through remover, then
// the store row and facets are deleted and the gallery leaves the library.
// A gallery whose content could not be removed is kept. Returns the ids
// actually deleted.
func (l *Library) Delete(ctx context.Context, remover Remover, galleryIDs ...int64) ([]int64, error) {
	var deleted []int64
	var errs []error
	for _, id := range galleryIDs {
		g, ok := l.Get(id)
		if !ok {
			continue
		}
		targets, err := g.DeletionTargets()
		if err == nil {
			err = remover.Remove(targets...)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to remove content of %s: %w", g, err))
			continue
		}
		if err := g.Delete(ctx); err != nil {
			errs = append(errs, err)
		}
		deleted = append(deleted, id)
		logging.Info("Deleted %s", g)
	}
	l.Remove(deleted...)
	return deleted, errors.Join(errs...)
}

// Get returns the gallery with the given id.
func (l *Library) Get(id int64) (*gallery.Gallery, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	g, ok := l.byID[id]
	return g, ok
}

// ByPath returns the gallery at location.
func (l *Library) ByPath(location string) (*gallery.Gallery, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	id, ok := l.byPath[location]
	if !ok {
		return nil, false
	}
	return l.byID[id], true
}

// HasPath reports whether a gallery lives at location.
func (l *Library) HasPath(location string) bool {
	_, ok := l.ByPath(location)
	return ok
}

// Owner finds the gallery a filesystem path belongs to: the gallery at the
// path itself, or the folder gallery containing it.
func (l *Library) Owner(path string) (*gallery.Gallery, bool) {
	if g, ok := l.ByPath(path); ok {
		return g, true
	}
	g, ok := l.ByPath(filepath.Dir(path))
	if !ok || g.IsArchive() {
		return nil, false
	}
	return g, true
}

// Relocate points a gallery at a new location and reindexes it.
func (l *Library) Relocate(id int64, location string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	g, ok := l.byID[id]
	if !ok {
		return fmt.Errorf("gallery %d not in library", id)
	}
	if owner, taken := l.byPath[location]; taken && owner != id {
		return fmt.Errorf("%w: path %s already owned by gallery %d", gallery.ErrAssertion, location, owner)
	}
	old := g.Location()
	if err := g.Moved(location); err != nil {
		return err
	}
	delete(l.byPath, old)
	l.byPath[location] = id
	return nil
}

// Paths returns the set of live locations.
func (l *Library) Paths() map[string]bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]bool, len(l.byPath))
	for p := range l.byPath {
		out[p] = true
	}
	return out
}

// Len returns the number of galleries.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byID)
}

// All returns the galleries that are not expired, ordered by id.
func (l *Library) All() []*gallery.Gallery {
	return l.List(mediatypes.SortField(""), mediatypes.SortAsc)
}

// List returns the non-expired galleries sorted by field. Ties and unknown
// fields fall back to id order.
func (l *Library) List(field mediatypes.SortField, order mediatypes.SortOrder) []*gallery.Gallery {
	l.mu.RLock()
	out := make([]*gallery.Gallery, 0, len(l.byID))
	for _, g := range l.byID {
		if !g.Expired() {
			out = append(out, g)
		}
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	less := sortKey(field)
	if less == nil {
		return out
	}
	desc := order == mediatypes.SortDesc
	sort.SliceStable(out, func(i, j int) bool {
		if desc {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})
	return out
}

func sortKey(field mediatypes.SortField) func(a, b *gallery.Gallery) bool {
	switch field {
	case mediatypes.SortByName:
		return func(a, b *gallery.Gallery) bool { return a.SortName() < b.SortName() }
	case mediatypes.SortByReadCount:
		return func(a, b *gallery.Gallery) bool { return a.ReadCount() < b.ReadCount() }
	case mediatypes.SortByLastRead:
		return func(a, b *gallery.Gallery) bool { return a.LastRead() < b.LastRead() }
	case mediatypes.SortByRating:
		return func(a, b *gallery.Gallery) bool { return a.Metadata().Rating() < b.Metadata().Rating() }
	case mediatypes.SortByTimeAdded:
		return func(a, b *gallery.Gallery) bool { return a.TimeAdded() < b.TimeAdded() }
	case mediatypes.SortByPath:
		return func(a, b *gallery.Gallery) bool {
			return strings.ToLower(a.Location()) < strings.ToLower(b.Location())
		}
	}
	return nil
}

// GetStats reports gallery counts per kind for the metrics collector.
func (l *Library) GetStats() metrics.Stats {
	var stats metrics.Stats
	for _, g := range l.All() {
		switch g.Kind() {
		case gallery.KindFolder:
			stats.FolderGalleries++
		case gallery.KindZip:
			stats.ZipGalleries++
		case gallery.KindRar:
			stats.RarGalleries++
		}
	}
	if c, ok := l.deps.Store.(interface{ OpenConnections() int }); ok {
		stats.OpenConnections = c.OpenConnections()
	}
	return stats
}

func ids(galleries []*gallery.Gallery) []int64 {
	out := make([]int64, len(galleries))
	for i, g := range galleries {
		out[i] = g.ID()
	}
	return out
}
