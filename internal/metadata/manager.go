package metadata

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"gallery-viewer/internal/database"
	"gallery-viewer/internal/logging"
)

// FacetWriter persists facets. *database.Session satisfies it.
type FacetWriter interface {
	InsertFacet(galleryID int64, name, blob string) (int64, error)
	UpdateFacet(id int64, blob string) error
	DeleteFacet(id int64) error
}

var _ FacetWriter = (*database.Session)(nil)

// Manager is the set of facets attached to one gallery.
type Manager struct {
	mu     sync.RWMutex
	facets map[FacetName]*Facet
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{facets: make(map[FacetName]*Facet)}
}

// Load replaces the in-memory facets with stored rows. Rows with unknown
// names are skipped.
func (m *Manager) Load(rows []database.FacetRow) error {
	facets := make(map[FacetName]*Facet, len(rows))
	for _, row := range rows {
		name, ok := ParseFacetName(row.Name)
		if !ok {
			logging.Warn("Skipping unknown metadata facet %q (id %d)", row.Name, row.ID)
			continue
		}
		f, err := decodeFacet(name, row.ID, row.JSON)
		if err != nil {
			return err
		}
		facets[name] = f
	}

	m.mu.Lock()
	m.facets = facets
	m.mu.Unlock()
	return nil
}

func (m *Manager) ensure(name FacetName) *Facet {
	f, ok := m.facets[name]
	if !ok {
		f = newFacet(name)
		m.facets[name] = f
	}
	return f
}

// Facet returns a copy of one facet.
func (m *Manager) Facet(name FacetName) (*Facet, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.facets[name]
	if !ok {
		return nil, false
	}
	return &Facet{name: f.name, id: f.id, values: f.Values()}, true
}

// Update merges values into a facet, creating it if needed.
func (m *Manager) Update(name FacetName, values map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(name).Update(values)
}

// SetValue stores one value in a facet, creating it if needed.
func (m *Manager) SetValue(name FacetName, key string, value interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(name).Set(key, value)
}

// SetURL points a catalog facet at a record, creating the facet if needed.
func (m *Manager) SetURL(name FacetName, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensure(name).SetURL(url)
}

// SetAutoCollection toggles automatic collection on the catalog facet.
func (m *Manager) SetAutoCollection(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(Catalog).SetAutoCollection(enabled)
	if f, ok := m.facets[Alternate]; ok {
		f.SetAutoCollection(enabled)
	}
}

// Has reports whether a facet exists and carries data.
func (m *Manager) Has(name FacetName) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.facets[name]
	return ok && f.HasMetadata()
}

// CollectionEnabled is false when any facet disables auto-collection.
func (m *Manager) CollectionEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, f := range m.facets {
		if !f.AutoCollection() {
			return false
		}
	}
	return true
}

// Ref returns the external catalog record, if known.
func (m *Manager) Ref() (GalleryRef, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if f, ok := m.facets[Catalog]; ok {
		return f.Ref()
	}
	return GalleryRef{}, false
}

// URL returns the catalog page of a facet.
func (m *Manager) URL(name FacetName) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if f, ok := m.facets[name]; ok {
		return f.URL()
	}
	return ""
}

// resolve returns the first non-empty value in priority order.
func resolve[T any](m *Manager, get func(*Facet) T, empty func(T) bool) T {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var zero T
	for _, name := range Priority {
		f, ok := m.facets[name]
		if !ok {
			continue
		}
		if v := get(f); !empty(v) {
			return v
		}
	}
	return zero
}

// Title is the resolved title, empty when no facet has one.
func (m *Manager) Title() string {
	return resolve(m, (*Facet).Title, func(s string) bool { return s == "" })
}

// Rating is the resolved rating, zero when no facet has one.
func (m *Manager) Rating() float64 {
	return resolve(m, (*Facet).Rating, func(f float64) bool { return f == 0 })
}

// Category is the resolved category.
func (m *Manager) Category() string {
	return resolve(m, (*Facet).Category, func(s string) bool { return s == "" })
}

// Tags is the resolved tag list.
func (m *Manager) Tags() []string {
	tags := resolve(m, (*Facet).Tags, func(t []string) bool { return len(t) == 0 })
	if tags == nil {
		return []string{}
	}
	return tags
}

// AllTags is the sorted, lower-cased union of tags across facets.
func (m *Manager) AllTags() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	for _, f := range m.facets {
		for _, tag := range f.Tags() {
			seen[strings.ToLower(tag)] = true
		}
	}
	out := make([]string, 0, len(seen))
	for tag := range seen {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// Save writes the named facets (all facets when none are named). New facets
// are inserted and receive their store id.
func (m *Manager) Save(w FacetWriter, galleryID int64, names ...FacetName) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(names) == 0 {
		names = Priority
	}
	for _, name := range names {
		f, ok := m.facets[name]
		if !ok {
			continue
		}
		blob, err := f.encode()
		if err != nil {
			return err
		}
		if f.id == 0 {
			id, err := w.InsertFacet(galleryID, string(name), blob)
			if err != nil {
				return err
			}
			f.id = id
			continue
		}
		if err := w.UpdateFacet(f.id, blob); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes one facet from memory and the store.
func (m *Manager) Delete(w FacetWriter, name FacetName) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.facets[name]
	if !ok {
		return nil
	}
	if f.id != 0 {
		if err := w.DeleteFacet(f.id); err != nil {
			return err
		}
	}
	delete(m.facets, name)
	return nil
}

// DeleteAll removes every facet.
func (m *Manager) DeleteAll(w FacetWriter) error {
	for _, name := range Priority {
		if err := m.Delete(w, name); err != nil {
			return err
		}
	}
	return nil
}

// Edit is a set of user changes to one facet. Nil fields are unchanged.
type Edit struct {
	Title          *string  `json:"title,omitempty"`
	Rating         *float64 `json:"rating,omitempty"`
	Category       *string  `json:"category,omitempty"`
	Tags           *string  `json:"tags,omitempty"`
	URL            *string  `json:"url,omitempty"`
	AutoCollection *bool    `json:"autoCollection,omitempty"`
}

// ApplyEdits applies user edits and saves the touched facets through w.
// Catalog facets left without a record and with default auto-collection are
// dropped. urlChanged reports whether a catalog facet now points at a
// different record.
func (m *Manager) ApplyEdits(w FacetWriter, galleryID int64, edits map[FacetName]Edit) (urlChanged bool, err error) {
	m.mu.Lock()
	var drop []FacetName
	touched := make([]FacetName, 0, len(edits))
	for _, name := range Priority {
		edit, ok := edits[name]
		if !ok {
			continue
		}
		f := m.ensure(name)
		if edit.Title != nil {
			f.Set("title", emptyToNil(*edit.Title))
		}
		if edit.Rating != nil {
			f.Set("rating", zeroToNil(*edit.Rating))
		}
		if edit.Category != nil {
			f.Set("category", emptyToNil(*edit.Category))
		}
		if edit.Tags != nil {
			tags := SplitCSV(*edit.Tags)
			if len(tags) == 0 {
				f.Set("tags", nil)
			} else {
				f.Set("tags", tags)
			}
		}
		if edit.AutoCollection != nil {
			f.SetAutoCollection(*edit.AutoCollection)
		}
		if edit.URL != nil && name.IsCatalog() {
			before := f.URL()
			if err := f.SetURL(*edit.URL); err != nil {
				m.mu.Unlock()
				return false, err
			}
			if after := f.URL(); after != "" && after != before {
				urlChanged = true
			}
		}
		if name.IsCatalog() && f.URL() == "" && f.AutoCollection() {
			drop = append(drop, name)
			continue
		}
		touched = append(touched, name)
	}
	m.mu.Unlock()

	for _, name := range drop {
		if err := m.Delete(w, name); err != nil {
			return false, fmt.Errorf("failed to drop %s facet: %w", name, err)
		}
	}
	if len(touched) == 0 {
		return urlChanged, nil
	}
	return urlChanged, m.Save(w, galleryID, touched...)
}

// FacetView is the editable projection of one facet.
type FacetView struct {
	Name           FacetName `json:"dbName"`
	Label          string    `json:"name"`
	Title          string    `json:"title,omitempty"`
	Rating         float64   `json:"rating"`
	Category       string    `json:"category"`
	Tags           string    `json:"tags"`
	URL            string    `json:"url,omitempty"`
	AutoCollection *bool     `json:"autoCollection,omitempty"`
}

// Views returns one view per facet name in priority order, including facets
// that do not exist yet.
func (m *Manager) Views() []FacetView {
	m.mu.RLock()
	defer m.mu.RUnlock()

	views := make([]FacetView, 0, len(Priority))
	for _, name := range Priority {
		f, ok := m.facets[name]
		if !ok {
			f = newFacet(name)
		}
		v := FacetView{
			Name:     name,
			Label:    name.Label(),
			Title:    f.Title(),
			Rating:   f.Rating(),
			Category: f.Category(),
			Tags:     JoinCSV(f.Tags()),
		}
		if name.IsCatalog() {
			auto := f.AutoCollection()
			v.AutoCollection = &auto
			v.URL = f.URL()
		}
		views = append(views, v)
	}
	return views
}

func emptyToNil(s string) interface{} {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func zeroToNil(f float64) interface{} {
	if f == 0 {
		return nil
	}
	return f
}
