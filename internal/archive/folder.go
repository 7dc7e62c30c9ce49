package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gallery-viewer/internal/fingerprint"
	"gallery-viewer/internal/mediatypes"
)

// Folder is a directory whose top-level image files form a gallery.
// Entry names are absolute file paths.
type Folder struct {
	dir   string
	cache *fingerprint.Cache
}

// NewFolder returns the Source for a folder gallery.
func NewFolder(dir string, cache *fingerprint.Cache) *Folder {
	return &Folder{dir: dir, cache: cache}
}

// Location returns the folder path.
func (f *Folder) Location() string {
	return f.dir
}

// List returns the top-level image files of the folder.
func (f *Folder) List() ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !mediatypes.IsImage(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(f.dir, entry.Name()))
	}
	fingerprint.NaturalSort(files)
	return files, nil
}

// Open opens one file.
func (f *Folder) Open(name string) (io.ReadCloser, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	return file, nil
}

// Hash returns the content hash of one file.
func (f *Folder) Hash(name string) (string, error) {
	info, err := os.Stat(name)
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", name, err)
	}
	key := fingerprint.Key{Path: name, Size: info.Size(), ModTime: info.ModTime().UnixNano()}
	return hashCached(f.cache, key, func() (io.ReadCloser, error) { return f.Open(name) })
}

// Stamps returns the stamps of the first and last file.
func (f *Folder) Stamps(files []string) ([]fingerprint.Stamp, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no files in %s", f.dir)
	}

	stamps := make([]fingerprint.Stamp, 0, 2)
	for _, name := range []string{files[0], files[len(files)-1]} {
		info, err := os.Stat(name)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", name, err)
		}
		stamps = append(stamps, fingerprint.StampOf(info))
	}
	return stamps, nil
}

// Size sums the sizes of all image files in the folder.
func (f *Folder) Size() (int64, error) {
	files, err := f.List()
	if err != nil {
		return 0, err
	}

	var total int64
	for _, name := range files {
		info, err := os.Stat(name)
		if err != nil {
			return 0, fmt.Errorf("failed to stat %s: %w", name, err)
		}
		total += info.Size()
	}
	return total, nil
}

// Extract is a no-op for folders: the files are already local.
func (f *Folder) Extract(names []string, _ string) ([]string, error) {
	return append([]string(nil), names...), nil
}
