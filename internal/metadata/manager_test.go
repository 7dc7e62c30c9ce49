package metadata

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"gallery-viewer/internal/database"
)

// memoryWriter records facet writes in memory.
type memoryWriter struct {
	nextID  int64
	blobs   map[int64]string
	names   map[int64]string
	deleted []int64
}

func newMemoryWriter() *memoryWriter {
	return &memoryWriter{blobs: map[int64]string{}, names: map[int64]string{}}
}

func (w *memoryWriter) InsertFacet(galleryID int64, name, blob string) (int64, error) {
	w.nextID++
	w.blobs[w.nextID] = blob
	w.names[w.nextID] = name
	return w.nextID, nil
}

func (w *memoryWriter) UpdateFacet(id int64, blob string) error {
	w.blobs[id] = blob
	return nil
}

func (w *memoryWriter) DeleteFacet(id int64) error {
	delete(w.blobs, id)
	delete(w.names, id)
	w.deleted = append(w.deleted, id)
	return nil
}

func TestManagerResolvesByPriority(t *testing.T) {
	t.Parallel()

	m := NewManager()
	m.Update(Alternate, map[string]interface{}{"title": "alt", "rating": 2.0, "category": "Doujinshi"})
	m.Update(Catalog, map[string]interface{}{"title": "catalog", "tags": []interface{}{"Female:Glasses"}})
	m.Update(Custom, map[string]interface{}{"rating": 4.0})

	if got := m.Title(); got != "catalog" {
		t.Errorf("Expected catalog title, got %q", got)
	}
	if got := m.Rating(); got != 4 {
		t.Errorf("Expected custom rating 4, got %v", got)
	}
	if got := m.Category(); got != "Doujinshi" {
		t.Errorf("Expected alternate category, got %q", got)
	}
	if got := m.Tags(); !reflect.DeepEqual(got, []string{"Female:Glasses"}) {
		t.Errorf("Unexpected tags %v", got)
	}
}

func TestManagerDefaultsWithoutFacets(t *testing.T) {
	t.Parallel()

	m := NewManager()
	if m.Title() != "" || m.Rating() != 0 || m.Category() != "" {
		t.Error("Expected zero values without facets")
	}
	if tags := m.Tags(); tags == nil || len(tags) != 0 {
		t.Errorf("Expected empty non-nil tags, got %#v", tags)
	}
	if !m.CollectionEnabled() {
		t.Error("Expected collection enabled by default")
	}
}

func TestManagerAllTags(t *testing.T) {
	t.Parallel()

	m := NewManager()
	m.Update(Custom, map[string]interface{}{"tags": []interface{}{"B", "a"}})
	m.Update(Catalog, map[string]interface{}{"tags": []interface{}{"A", "c"}})

	if got := m.AllTags(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("Unexpected union %v", got)
	}
}

func TestManagerCollectionEnabled(t *testing.T) {
	t.Parallel()

	m := NewManager()
	m.SetAutoCollection(false)
	if m.CollectionEnabled() {
		t.Error("Expected collection disabled")
	}
	if m.Has(Catalog) {
		t.Error("Auto flag alone should not count as catalog metadata")
	}
	m.SetAutoCollection(true)
	if !m.CollectionEnabled() {
		t.Error("Expected collection re-enabled")
	}
}

func TestManagerSaveInsertsThenUpdates(t *testing.T) {
	t.Parallel()

	w := newMemoryWriter()
	m := NewManager()
	m.Update(Custom, map[string]interface{}{"title": "first"})

	if err := m.Save(w, 1); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	f, ok := m.Facet(Custom)
	if !ok || f.ID() != 1 {
		t.Fatalf("Expected facet to receive id 1, got %+v", f)
	}

	m.Update(Custom, map[string]interface{}{"title": "second"})
	if err := m.Save(w, 1, Custom); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if len(w.blobs) != 1 {
		t.Fatalf("Expected one stored facet, got %d", len(w.blobs))
	}
	if w.blobs[1] != `{"title":"second"}` {
		t.Errorf("Unexpected blob %s", w.blobs[1])
	}
}

func TestManagerDelete(t *testing.T) {
	t.Parallel()

	w := newMemoryWriter()
	m := NewManager()
	m.Update(Custom, map[string]interface{}{"title": "x"})
	m.Update(Catalog, map[string]interface{}{"title": "y"})
	if err := m.Save(w, 1); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := m.Delete(w, Custom); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := m.Facet(Custom); ok {
		t.Error("Expected custom facet removed")
	}
	if err := m.DeleteAll(w); err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}
	if len(w.blobs) != 0 {
		t.Errorf("Expected store emptied, got %v", w.blobs)
	}
	if len(w.deleted) != 2 {
		t.Errorf("Expected two deletes, got %v", w.deleted)
	}
}

func TestManagerApplyEdits(t *testing.T) {
	t.Parallel()

	w := newMemoryWriter()
	m := NewManager()

	title := "Edited"
	tags := "one, two"
	rating := 0.0
	url := "https://exhentai.org/g/5/abc/"
	changed, err := m.ApplyEdits(w, 1, map[FacetName]Edit{
		Custom:  {Title: &title, Tags: &tags, Rating: &rating},
		Catalog: {URL: &url},
	})
	if err != nil {
		t.Fatalf("ApplyEdits failed: %v", err)
	}
	if !changed {
		t.Error("Expected url change to be reported")
	}
	if m.Title() != "Edited" {
		t.Errorf("Unexpected title %q", m.Title())
	}
	if got := m.Tags(); !reflect.DeepEqual(got, []string{"one", "two"}) {
		t.Errorf("Unexpected tags %v", got)
	}
	if ref, ok := m.Ref(); !ok || ref.GID != 5 {
		t.Errorf("Unexpected ref %+v", ref)
	}
	if len(w.blobs) != 2 {
		t.Errorf("Expected two saved facets, got %d", len(w.blobs))
	}

	// same url again is not a change
	changed, err = m.ApplyEdits(w, 1, map[FacetName]Edit{Catalog: {URL: &url}})
	if err != nil {
		t.Fatalf("ApplyEdits failed: %v", err)
	}
	if changed {
		t.Error("Expected unchanged url not to be reported")
	}
}

func TestManagerApplyEditsDropsEmptyCatalogFacet(t *testing.T) {
	t.Parallel()

	w := newMemoryWriter()
	m := NewManager()
	url := "http://exhentai.org/g/5/abc/"
	if _, err := m.ApplyEdits(w, 1, map[FacetName]Edit{Catalog: {URL: &url}}); err != nil {
		t.Fatalf("ApplyEdits failed: %v", err)
	}

	empty := ""
	if _, err := m.ApplyEdits(w, 1, map[FacetName]Edit{Catalog: {URL: &empty}}); err != nil {
		t.Fatalf("ApplyEdits failed: %v", err)
	}
	if _, ok := m.Facet(Catalog); ok {
		t.Error("Expected catalog facet without url to be dropped")
	}
	if len(w.blobs) != 0 {
		t.Errorf("Expected dropped facet deleted from store, got %v", w.blobs)
	}

	// a disabled auto flag is kept even without a url
	off := false
	if _, err := m.ApplyEdits(w, 1, map[FacetName]Edit{Catalog: {AutoCollection: &off}}); err != nil {
		t.Fatalf("ApplyEdits failed: %v", err)
	}
	if m.CollectionEnabled() {
		t.Error("Expected collection disabled to persist")
	}
}

func TestManagerApplyEditsRejectsBadURL(t *testing.T) {
	t.Parallel()

	bad := "http://example.com"
	if _, err := NewManager().ApplyEdits(newMemoryWriter(), 1, map[FacetName]Edit{Catalog: {URL: &bad}}); err == nil {
		t.Error("Expected invalid url to fail")
	}
}

func TestManagerViews(t *testing.T) {
	t.Parallel()

	m := NewManager()
	m.Update(Custom, map[string]interface{}{"title": "t", "tags": []interface{}{"a", "b"}})

	views := m.Views()
	if len(views) != len(Priority) {
		t.Fatalf("Expected %d views, got %d", len(Priority), len(views))
	}
	if views[0].Name != Custom || views[0].Tags != "a, b" || views[0].AutoCollection != nil {
		t.Errorf("Unexpected custom view %+v", views[0])
	}
	if views[1].AutoCollection == nil || !*views[1].AutoCollection {
		t.Errorf("Expected catalog view to expose auto-collection, got %+v", views[1])
	}
}

func TestManagerPersistsThroughStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := database.New(ctx, filepath.Join(t.TempDir(), "meta.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	m := NewManager()
	m.Update(Catalog, map[string]interface{}{
		"title": "Stored", "gid": int64(77), "token": "ff", "filecount": "12",
		"tags": []interface{}{"language:english"},
	})
	m.SetAutoCollection(false)

	var galleryID int64
	err = db.Session(ctx, true, func(s *database.Session) error {
		var err error
		galleryID, err = s.InsertGallery(&database.GalleryRow{UUID: "u", Path: "/g"})
		if err != nil {
			return err
		}
		return m.Save(s, galleryID)
	})
	if err != nil {
		t.Fatalf("Save session failed: %v", err)
	}

	var rows []database.FacetRow
	err = db.Session(ctx, false, func(s *database.Session) error {
		var err error
		rows, err = s.QueryFacets([]int64{galleryID})
		return err
	})
	if err != nil {
		t.Fatalf("Query session failed: %v", err)
	}

	loaded := NewManager()
	if err := loaded.Load(rows); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Title() != "Stored" {
		t.Errorf("Unexpected title %q", loaded.Title())
	}
	if ref, ok := loaded.Ref(); !ok || ref.GID != 77 || ref.Token != "ff" {
		t.Errorf("Unexpected ref %+v", ref)
	}
	if loaded.CollectionEnabled() {
		t.Error("Expected auto-collection flag to survive reload")
	}
	f, _ := loaded.Facet(Catalog)
	if f.FileCount() != 12 {
		t.Errorf("Expected filecount 12, got %d", f.FileCount())
	}
}

func TestManagerLoadSkipsUnknownFacets(t *testing.T) {
	t.Parallel()

	m := NewManager()
	err := m.Load([]database.FacetRow{
		{ID: 1, Name: "legacy", JSON: `{"title":"x"}`},
		{ID: 2, Name: string(Custom), JSON: `{"title":"kept"}`},
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Title() != "kept" {
		t.Errorf("Unexpected title %q", m.Title())
	}
}
