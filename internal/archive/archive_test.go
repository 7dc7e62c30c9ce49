package archive

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/klauspost/compress/zip"

	"gallery-viewer/internal/fingerprint"
	"gallery-viewer/internal/mediatypes"
)

func writeFiles(t testing.TB, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

// writeZip creates a zip archive with members written in the given order.
func writeZip(t testing.TB, path string, members [][2]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := zip.NewWriter(f)
	for _, m := range members {
		fw, err := w.Create(m[0])
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(m[1])); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func readAll(t testing.TB, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestFolderList(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"10.jpg":       "ten",
		"2.PNG":        "two",
		"1.jpg":        "one",
		"notes.txt":    "skip",
		"nested/3.jpg": "nested pages are not part of this gallery",
	})

	src := NewFolder(dir, nil)
	got, err := src.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	want := []string{filepath.Join(dir, "1.jpg"), filepath.Join(dir, "2.PNG"), filepath.Join(dir, "10.jpg")}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}

	if src.Location() != dir {
		t.Errorf("Expected location %s, got %s", dir, src.Location())
	}
}

func TestFolderSizeHashAndStamps(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.jpg": "abc", "b.jpg": "12345", "c.txt": "ignored"})

	cache, err := fingerprint.NewCache(8)
	if err != nil {
		t.Fatal(err)
	}
	src := NewFolder(dir, cache)

	size, err := src.Size()
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if size != 8 {
		t.Errorf("Expected size 8, got %d", size)
	}

	first := filepath.Join(dir, "a.jpg")
	sum, err := src.Hash(first)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if sum != "a9993e364706816aba3e25717850c26c9cd0d89d" {
		t.Errorf("Unexpected hash %s", sum)
	}
	if cache.Len() != 1 {
		t.Errorf("Expected hash to be cached, cache has %d entries", cache.Len())
	}

	files, _ := src.List()
	stamps, err := src.Stamps(files)
	if err != nil {
		t.Fatalf("Stamps failed: %v", err)
	}
	if len(stamps) != 2 || stamps[0].Size != 3 || stamps[1].Size != 5 {
		t.Errorf("Unexpected stamps %+v", stamps)
	}

	if _, err := src.Stamps(nil); err == nil {
		t.Error("Expected error for empty file list")
	}

	extracted, err := src.Extract(files, t.TempDir())
	if err != nil || !reflect.DeepEqual(extracted, files) {
		t.Errorf("Expected folder extract to return files unchanged, got %v (%v)", extracted, err)
	}
}

func TestZipSource(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "set.cbz")
	writeZip(t, path, [][2]string{
		{"p10.jpg", "ten"},
		{"info.txt", "skip"},
		{"p2.jpg", "two"},
		{"sub/", ""},
		{"sub/p1.png", "one"},
	})

	src, err := New(path, mediatypes.ArchiveZip, nil)
	if err != nil {
		t.Fatal(err)
	}

	names, err := src.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"p2.jpg", "p10.jpg", "sub/p1.png"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("Expected %v, got %v", want, names)
	}

	rc, err := src.Open("p10.jpg")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if got := readAll(t, rc); got != "ten" {
		t.Errorf("Expected member content 'ten', got %q", got)
	}

	if _, err := src.Open("missing.jpg"); err == nil {
		t.Error("Expected error for missing member")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	size, err := src.Size()
	if err != nil || size != info.Size() {
		t.Errorf("Expected archive size %d, got %d (%v)", info.Size(), size, err)
	}

	stamps, err := src.Stamps(names)
	if err != nil || len(stamps) != 1 || stamps[0].Size != info.Size() {
		t.Errorf("Expected a single archive stamp, got %+v (%v)", stamps, err)
	}
}

func TestZipExtract(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "set.zip")
	writeZip(t, path, [][2]string{{"a.jpg", "A"}, {"dir/b.jpg", "B"}})

	src, err := New(path, mediatypes.ArchiveZip, nil)
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	got, err := src.Extract([]string{"dir/b.jpg", "a.jpg"}, dir)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	want := []string{filepath.Join(dir, "dir", "b.jpg"), filepath.Join(dir, "a.jpg")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	data, err := os.ReadFile(got[0])
	if err != nil || string(data) != "B" {
		t.Errorf("Expected extracted content 'B', got %q (%v)", data, err)
	}

	if _, err := src.Extract([]string{"missing.jpg"}, t.TempDir()); err == nil {
		t.Error("Expected error when a requested member is missing")
	}
}

func TestExtractRejectsEscapingNames(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "evil.zip")
	writeZip(t, path, [][2]string{{"../evil.jpg", "x"}})

	src, err := New(path, mediatypes.ArchiveZip, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := src.Extract([]string{"../evil.jpg"}, t.TempDir()); err == nil {
		t.Error("Expected error for member escaping the extraction directory")
	}
}

func TestUnreadableArchives(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		file   string
		format mediatypes.ArchiveFormat
	}{
		{name: "Corrupt zip", file: "broken.zip", format: mediatypes.ArchiveZip},
		{name: "Corrupt rar", file: "broken.cbr", format: mediatypes.ArchiveRar},
		{name: "Missing zip", file: "", format: mediatypes.ArchiveZip},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			path := filepath.Join(dir, "absent.zip")
			if tt.file != "" {
				path = filepath.Join(dir, tt.file)
				if err := os.WriteFile(path, []byte("this is not an archive"), 0644); err != nil {
					t.Fatal(err)
				}
			}

			src, err := New(path, tt.format, nil)
			if err != nil {
				t.Fatal(err)
			}
			_, err = src.List()
			if !errors.Is(err, ErrUnreadable) {
				t.Errorf("Expected ErrUnreadable, got %v", err)
			}
		})
	}
}

func TestNewUnsupportedFormat(t *testing.T) {
	t.Parallel()

	if _, err := New("/tmp/x.7z", mediatypes.ArchiveFormat("7z"), nil); err == nil {
		t.Error("Expected error for unsupported format")
	}
}
