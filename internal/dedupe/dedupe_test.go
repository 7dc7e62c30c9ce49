package dedupe

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"

	"gallery-viewer/internal/database"
	"gallery-viewer/internal/filesystem"
	"gallery-viewer/internal/gallery"
	"gallery-viewer/internal/library"
	"gallery-viewer/internal/metadata"
)

type fakeMember struct {
	id       int64
	location string
	catalog  bool
	custom   bool
	archive  bool
}

func (f fakeMember) ID() int64                { return f.id }
func (f fakeMember) Location() string         { return f.location }
func (f fakeMember) HasCatalogMetadata() bool { return f.catalog }
func (f fakeMember) HasCustomMetadata() bool  { return f.custom }
func (f fakeMember) IsArchive() bool          { return f.archive }

func TestSelect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		group []fakeMember
		keep  int64
	}{
		{
			name:  "plain duplicates keep lowest id",
			group: []fakeMember{{id: 3, location: "/c"}, {id: 1, location: "/a"}, {id: 2, location: "/b"}},
			keep:  1,
		},
		{
			name:  "custom archive beats plain folder",
			group: []fakeMember{{id: 1, location: "/a"}, {id: 2, location: "/b.zip", custom: true, archive: true}},
			keep:  2,
		},
		{
			name: "catalog beats custom",
			group: []fakeMember{
				{id: 1, location: "/a", custom: true, archive: true},
				{id: 2, location: "/b", catalog: true},
			},
			keep: 2,
		},
		{
			name: "archive breaks a catalog tie",
			group: []fakeMember{
				{id: 1, location: "/a", catalog: true},
				{id: 2, location: "/b.rar", catalog: true, archive: true},
			},
			keep: 2,
		},
		{
			name: "unsatisfied pass is skipped",
			group: []fakeMember{
				{id: 5, location: "/a", archive: true},
				{id: 4, location: "/b", archive: true},
			},
			keep: 4,
		},
		{
			name:  "same id ordered by location",
			group: []fakeMember{{id: 0, location: "/z"}, {id: 0, location: "/m"}},
			keep:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			keep, drop := Select(tt.group)
			if keep.ID() != tt.keep {
				t.Errorf("Expected survivor %d, got %d", tt.keep, keep.ID())
			}
			if len(drop) != len(tt.group)-1 {
				t.Errorf("Expected %d dropped, got %d", len(tt.group)-1, len(drop))
			}
			for _, d := range drop {
				if d == keep {
					t.Error("Survivor must not be dropped")
				}
			}
		})
	}
}

func TestSelectLocationTieBreak(t *testing.T) {
	t.Parallel()

	keep, _ := Select([]fakeMember{{id: 0, location: "/z"}, {id: 0, location: "/m"}})
	if keep.Location() != "/m" {
		t.Errorf("Expected /m to survive, got %s", keep.Location())
	}
}

func TestSelectEmpty(t *testing.T) {
	t.Parallel()

	keep, drop := Select([]fakeMember(nil))
	if keep != (fakeMember{}) || drop != nil {
		t.Errorf("Expected nothing, got %v %v", keep, drop)
	}
}

func setupLibrary(t testing.TB) *library.Library {
	t.Helper()
	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return library.New(gallery.Deps{Store: db, TempDir: t.TempDir()}, library.NewBroker(0))
}

var pages = map[string]string{"01.png": "one", "02.png": "two", "03.png": "three"}

func addFolder(t testing.TB, lib *library.Library, dir string) *gallery.Gallery {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, content := range pages {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return add(t, lib, gallery.KindFolder, dir)
}

func addZip(t testing.TB, lib *library.Library, path string) *gallery.Gallery {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := zip.NewWriter(f)
	for _, name := range []string{"01.png", "02.png", "03.png"} {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(pages[name])); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return add(t, lib, gallery.KindZip, path)
}

func add(t testing.TB, lib *library.Library, kind gallery.Kind, path string) *gallery.Gallery {
	t.Helper()
	g, err := gallery.Build(context.Background(), lib.Deps(), gallery.Candidate{Kind: kind, Path: path})
	if err != nil {
		t.Fatalf("Build(%s) failed: %v", path, err)
	}
	if len(lib.Add(g)) != 1 {
		t.Fatalf("Failed to add %s", path)
	}
	return g
}

func TestResolveIdenticalFolders(t *testing.T) {
	t.Parallel()

	lib := setupLibrary(t)
	root := t.TempDir()
	a := addFolder(t, lib, filepath.Join(root, "A"))
	b := addFolder(t, lib, filepath.Join(root, "B"))
	other := add(t, lib, gallery.KindFolder, func() string {
		dir := filepath.Join(root, "C")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "1.png"), []byte("different"), 0o644); err != nil {
			t.Fatal(err)
		}
		return dir
	}())

	r := New(lib, filesystem.NewRemover(filesystem.DeleteRemove, ""), 2)
	report, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if report.Groups != 1 || len(report.Removed) != 1 || report.Removed[0] != b.ID() {
		t.Errorf("Expected only %d removed, got %+v", b.ID(), report)
	}
	if _, ok := lib.Get(a.ID()); !ok {
		t.Error("Expected the first gallery to survive")
	}
	if _, ok := lib.Get(other.ID()); !ok {
		t.Error("Expected the unrelated gallery to survive")
	}
	if filesystem.Exists(b.Location()) {
		t.Error("Expected duplicate content to be removed from disk")
	}
}

func TestResolvePrefersCustomArchive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	lib := setupLibrary(t)
	root := t.TempDir()
	folder := addFolder(t, lib, filepath.Join(root, "folder"))
	archive := addZip(t, lib, filepath.Join(root, "book.zip"))
	err := archive.UpdateMetadata(ctx, map[metadata.FacetName]map[string]interface{}{
		metadata.Custom: {"title": "Kept"},
	})
	if err != nil {
		t.Fatal(err)
	}

	trash := t.TempDir()
	r := New(lib, filesystem.NewRemover(filesystem.DeleteTrash, trash), 1)
	report, err := r.Resolve(ctx)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(report.Removed) != 1 || report.Removed[0] != folder.ID() {
		t.Errorf("Expected folder %d removed, got %v", folder.ID(), report.Removed)
	}
	if _, ok := lib.Get(archive.ID()); !ok {
		t.Error("Expected the archive to survive")
	}
	entries, err := os.ReadDir(trash)
	if err != nil || len(entries) != 1 {
		t.Errorf("Expected folder moved to trash, got %v (%v)", entries, err)
	}
}

func TestResolveWithoutDuplicates(t *testing.T) {
	t.Parallel()

	lib := setupLibrary(t)
	addFolder(t, lib, filepath.Join(t.TempDir(), "only"))
	_, events := lib.Events().Subscribe()

	report, err := New(lib, filesystem.NewRemover(filesystem.DeleteRemove, ""), 0).Resolve(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Groups != 0 || len(report.Removed) != 0 {
		t.Errorf("Expected nothing to do, got %+v", report)
	}
	select {
	case e := <-events:
		t.Errorf("Expected no event, got %s", e.Type)
	default:
	}
}
