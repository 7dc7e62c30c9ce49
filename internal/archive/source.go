package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gallery-viewer/internal/fingerprint"
	"gallery-viewer/internal/mediatypes"
)

// ErrUnreadable is returned when an archive cannot be opened or listed.
var ErrUnreadable = errors.New("archive unreadable")

// Source is a read-only view over the content files of one gallery.
// Names returned by List are the handles accepted by the other methods.
type Source interface {
	// Location is the folder or archive file backing the gallery.
	Location() string
	// List returns all image entries in natural order, filler files included.
	List() ([]string, error)
	// Open returns a reader for one entry.
	Open(name string) (io.ReadCloser, error)
	// Hash returns the content hash of one entry.
	Hash(name string) (string, error)
	// Stamps returns the change-detection inputs for the given ordered files.
	Stamps(files []string) ([]fingerprint.Stamp, error)
	// Size is the total byte size of the gallery.
	Size() (int64, error)
	// Extract makes the named entries available as local files under dir and
	// returns their paths in the same order.
	Extract(names []string, dir string) ([]string, error)
}

// New returns the Source for an archive file.
func New(path string, format mediatypes.ArchiveFormat, cache *fingerprint.Cache) (Source, error) {
	switch format {
	case mediatypes.ArchiveZip:
		return &Zip{path: path, cache: cache}, nil
	case mediatypes.ArchiveRar:
		return &Rar{path: path, cache: cache}, nil
	}
	return nil, fmt.Errorf("unsupported archive format %q", format)
}

func unreadable(path string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
}

// memberReader reads one archive member and closes the archive with it.
type memberReader struct {
	io.Reader
	closers []io.Closer
}

func (m *memberReader) Close() error {
	var errs []error
	for _, c := range m.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// archiveKey builds the hash cache key of a member of an archive file.
func archiveKey(path, member string) (fingerprint.Key, error) {
	info, err := os.Stat(path)
	if err != nil {
		return fingerprint.Key{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return fingerprint.Key{Path: path, Member: member, Size: info.Size(), ModTime: info.ModTime().UnixNano()}, nil
}

func hashCached(cache *fingerprint.Cache, key fingerprint.Key, open func() (io.ReadCloser, error)) (string, error) {
	if sum, ok := cache.Get(key); ok {
		return sum, nil
	}
	rc, err := open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	sum, err := fingerprint.HashReader(rc)
	if err != nil {
		return "", err
	}
	cache.Add(key, sum)
	return sum, nil
}

// archiveStamps is the change stamp of an archive: the archive file itself.
func archiveStamps(path string) ([]fingerprint.Stamp, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return []fingerprint.Stamp{fingerprint.StampOf(info)}, nil
}

func archiveSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return info.Size(), nil
}

// destination resolves an archive member name under dir, rejecting names
// that escape it.
func destination(dir, name string) (string, error) {
	root := filepath.Clean(dir)
	dest := filepath.Join(root, filepath.FromSlash(name))
	if !strings.HasPrefix(dest, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("member %q escapes extraction directory", name)
	}
	return dest, nil
}

func writeMember(dest string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dest), err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return f.Close()
}

// extractAll drives a sequential walk over archive members, writing the
// wanted ones under dir. next returns io.EOF when the walk ends.
func extractAll(names []string, dir string, next func() (string, io.Reader, error)) ([]string, error) {
	wanted := make(map[string]string, len(names))
	for _, name := range names {
		dest, err := destination(dir, name)
		if err != nil {
			return nil, err
		}
		wanted[name] = dest
	}

	written := 0
	for written < len(wanted) {
		name, r, err := next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		dest, ok := wanted[name]
		if !ok {
			continue
		}
		if err := writeMember(dest, r); err != nil {
			return nil, err
		}
		written++
	}
	if written < len(wanted) {
		return nil, fmt.Errorf("archive is missing %d requested members", len(wanted)-written)
	}

	out := make([]string, len(names))
	for i, name := range names {
		out[i] = wanted[name]
	}
	return out, nil
}
