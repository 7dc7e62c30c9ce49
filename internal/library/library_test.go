package library

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gallery-viewer/internal/database"
	"gallery-viewer/internal/gallery"
	"gallery-viewer/internal/mediatypes"
)

func newTestLibrary(t testing.TB) *Library {
	t.Helper()

	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "library.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(gallery.Deps{Store: db, TempDir: t.TempDir()}, NewBroker(0))
}

// buildFolder creates a folder gallery whose single page holds content.
func buildFolder(t testing.TB, lib *Library, dir, content string) *gallery.Gallery {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "1.png"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	g, err := gallery.Build(context.Background(), lib.Deps(), gallery.Candidate{Kind: gallery.KindFolder, Path: dir})
	if err != nil {
		t.Fatalf("Build(%s) failed: %v", dir, err)
	}
	return g
}

func TestAddGetRemove(t *testing.T) {
	t.Parallel()

	lib := newTestLibrary(t)
	root := t.TempDir()
	a := buildFolder(t, lib, filepath.Join(root, "a"), "a")
	b := buildFolder(t, lib, filepath.Join(root, "b"), "b")

	added := lib.Add(a, b)
	if len(added) != 2 || lib.Len() != 2 {
		t.Fatalf("Expected 2 galleries, got added=%d len=%d", len(added), lib.Len())
	}

	if g, ok := lib.Get(a.ID()); !ok || g != a {
		t.Error("Expected Get to return the added gallery")
	}
	if g, ok := lib.ByPath(b.Location()); !ok || g != b {
		t.Error("Expected ByPath to return the added gallery")
	}
	if !lib.HasPath(a.Location()) {
		t.Error("Expected HasPath to report the location")
	}

	removed := lib.Remove(a.ID(), 12345)
	if len(removed) != 1 || removed[0] != a {
		t.Fatalf("Expected only a removed, got %v", removed)
	}
	if lib.HasPath(a.Location()) {
		t.Error("Expected location to be released")
	}
	if _, ok := lib.Get(a.ID()); ok {
		t.Error("Expected gallery to be gone")
	}
}

func TestAddRejectsDuplicates(t *testing.T) {
	t.Parallel()

	lib := newTestLibrary(t)
	dir := filepath.Join(t.TempDir(), "g")
	g := buildFolder(t, lib, dir, "a")

	if added := lib.Add(g); len(added) != 1 {
		t.Fatal("Expected first add to succeed")
	}
	if added := lib.Add(g); len(added) != 0 {
		t.Error("Expected duplicate add to be skipped")
	}

	other, err := gallery.Build(context.Background(), lib.Deps(), gallery.Candidate{
		Kind: gallery.KindFolder, Path: dir,
		Row: &database.GalleryRow{ID: g.ID() + 100, Path: dir},
	})
	if err != nil {
		t.Fatal(err)
	}
	if added := lib.Add(other); len(added) != 0 {
		t.Error("Expected second gallery at the same path to be skipped")
	}
	if lib.Len() != 1 {
		t.Errorf("Expected 1 gallery, got %d", lib.Len())
	}
}

func TestOwner(t *testing.T) {
	t.Parallel()

	lib := newTestLibrary(t)
	dir := filepath.Join(t.TempDir(), "g")
	g := buildFolder(t, lib, dir, "a")
	lib.Add(g)

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"gallery location", dir, true},
		{"file inside", filepath.Join(dir, "1.png"), true},
		{"nested file", filepath.Join(dir, "sub", "1.png"), false},
		{"unrelated", filepath.Join(t.TempDir(), "x.png"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, ok := lib.Owner(tt.path)
			if ok != tt.want {
				t.Fatalf("Expected owner found=%v, got %v", tt.want, ok)
			}
			if ok && owner != g {
				t.Error("Expected the folder gallery as owner")
			}
		})
	}
}

func TestRelocate(t *testing.T) {
	t.Parallel()

	lib := newTestLibrary(t)
	root := t.TempDir()
	g := buildFolder(t, lib, filepath.Join(root, "old"), "a")
	taken := buildFolder(t, lib, filepath.Join(root, "taken"), "b")
	lib.Add(g, taken)

	newPath := filepath.Join(root, "new")
	if err := os.Rename(g.Location(), newPath); err != nil {
		t.Fatal(err)
	}
	if err := lib.Relocate(g.ID(), newPath); err != nil {
		t.Fatalf("Relocate failed: %v", err)
	}
	if got, ok := lib.ByPath(newPath); !ok || got != g {
		t.Error("Expected gallery at new path")
	}
	if lib.HasPath(filepath.Join(root, "old")) {
		t.Error("Expected old path to be released")
	}

	err := lib.Relocate(g.ID(), taken.Location())
	if !errors.Is(err, gallery.ErrAssertion) {
		t.Errorf("Expected ErrAssertion for taken path, got %v", err)
	}
}

func TestListSorting(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	lib := newTestLibrary(t)
	root := t.TempDir()
	b := buildFolder(t, lib, filepath.Join(root, "Bravo"), "b")
	a := buildFolder(t, lib, filepath.Join(root, "alpha"), "a")
	c := buildFolder(t, lib, filepath.Join(root, "Charlie"), "c")
	lib.Add(b, a, c)

	if err := c.SetRating(ctx, 5); err != nil {
		t.Fatal(err)
	}
	if err := a.SetRating(ctx, 2); err != nil {
		t.Fatal(err)
	}

	names := func(list []*gallery.Gallery) []string {
		out := make([]string, len(list))
		for i, g := range list {
			out[i] = g.Name()
		}
		return out
	}

	tests := []struct {
		name  string
		field mediatypes.SortField
		order mediatypes.SortOrder
		want  []string
	}{
		{"by id", "", mediatypes.SortAsc, []string{"Bravo", "alpha", "Charlie"}},
		{"by name", mediatypes.SortByName, mediatypes.SortAsc, []string{"alpha", "Bravo", "Charlie"}},
		{"by name desc", mediatypes.SortByName, mediatypes.SortDesc, []string{"Charlie", "Bravo", "alpha"}},
		{"by rating desc", mediatypes.SortByRating, mediatypes.SortDesc, []string{"Charlie", "alpha", "Bravo"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := names(lib.List(tt.field, tt.order))
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("Expected %v, got %v", tt.want, got)
				}
			}
		})
	}

	a.MarkExpired()
	if got := lib.All(); len(got) != 2 {
		t.Errorf("Expected expired gallery to be hidden, got %d", len(got))
	}
}

func TestGetStats(t *testing.T) {
	t.Parallel()

	lib := newTestLibrary(t)
	root := t.TempDir()
	lib.Add(buildFolder(t, lib, filepath.Join(root, "a"), "a"), buildFolder(t, lib, filepath.Join(root, "b"), "b"))

	stats := lib.GetStats()
	if stats.FolderGalleries != 2 || stats.ZipGalleries != 0 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestAddPublishesEvent(t *testing.T) {
	t.Parallel()

	lib := newTestLibrary(t)
	_, events := lib.Events().Subscribe()
	g := buildFolder(t, lib, filepath.Join(t.TempDir(), "g"), "a")
	lib.Add(g)

	select {
	case e := <-events:
		if e.Type != EventGalleriesAdded || len(e.GalleryIDs) != 1 || e.GalleryIDs[0] != g.ID() {
			t.Errorf("Unexpected event %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected an added event")
	}
}

type recordingRemover struct {
	paths []string
	err   error
}

func (r *recordingRemover) Remove(paths ...string) error {
	if r.err != nil {
		return r.err
	}
	r.paths = append(r.paths, paths...)
	return nil
}

func TestDeleteGalleries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	lib := newTestLibrary(t)
	root := t.TempDir()
	a := buildFolder(t, lib, filepath.Join(root, "a"), "a")
	b := buildFolder(t, lib, filepath.Join(root, "b"), "b")
	lib.Add(a, b)

	remover := &recordingRemover{}
	deleted, err := lib.Delete(ctx, remover, a.ID(), 999)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if len(deleted) != 1 || deleted[0] != a.ID() {
		t.Errorf("Expected only %d deleted, got %v", a.ID(), deleted)
	}
	if len(remover.paths) != 1 || remover.paths[0] != a.Location() {
		t.Errorf("Expected %s to be removed, got %v", a.Location(), remover.paths)
	}
	if _, ok := lib.Get(a.ID()); ok || !a.Expired() {
		t.Error("Expected deleted gallery to leave the library")
	}

	err = lib.Deps().Store.Session(ctx, false, func(s *database.Session) error {
		_, found, err := s.GetGallery(a.ID())
		if found {
			t.Error("Expected row to be deleted")
		}
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestDeleteKeepsGalleryWhenRemovalFails(t *testing.T) {
	t.Parallel()

	lib := newTestLibrary(t)
	a := buildFolder(t, lib, filepath.Join(t.TempDir(), "a"), "a")
	lib.Add(a)

	deleted, err := lib.Delete(context.Background(), &recordingRemover{err: errors.New("read-only")}, a.ID())
	if err == nil {
		t.Error("Expected removal error")
	}
	if len(deleted) != 0 || lib.Len() != 1 || a.Expired() {
		t.Error("Expected gallery to stay in the library")
	}
}
