package archive

import (
	"fmt"
	"io"

	"github.com/nwaples/rardecode/v2"

	"gallery-viewer/internal/fingerprint"
	"gallery-viewer/internal/mediatypes"
)

// Rar is a rar or cbr gallery. Entry names are member names.
type Rar struct {
	path  string
	cache *fingerprint.Cache
}

// Location returns the archive path.
func (r *Rar) Location() string {
	return r.path
}

func (r *Rar) open() (*rardecode.ReadCloser, error) {
	rc, err := rardecode.OpenReader(r.path)
	if err != nil {
		return nil, unreadable(r.path, err)
	}
	return rc, nil
}

// walk calls fn for each file member until fn returns false.
func (r *Rar) walk(rc *rardecode.ReadCloser, fn func(h *rardecode.FileHeader) bool) error {
	for {
		h, err := rc.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return unreadable(r.path, err)
		}
		if h.IsDir {
			continue
		}
		if !fn(h) {
			return nil
		}
	}
}

// List returns image members in natural order.
func (r *Rar) List() ([]string, error) {
	rc, err := r.open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var names []string
	err = r.walk(rc, func(h *rardecode.FileHeader) bool {
		if mediatypes.IsImage(h.Name) {
			names = append(names, h.Name)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	fingerprint.NaturalSort(names)
	return names, nil
}

// Open returns a reader positioned on one member. Closing it closes the archive.
func (r *Rar) Open(name string) (io.ReadCloser, error) {
	rc, err := r.open()
	if err != nil {
		return nil, err
	}

	found := false
	err = r.walk(rc, func(h *rardecode.FileHeader) bool {
		found = h.Name == name
		return !found
	})
	if err != nil || !found {
		rc.Close()
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("member %q not found in %s", name, r.path)
	}
	return &memberReader{Reader: rc, closers: []io.Closer{rc}}, nil
}

// Hash returns the content hash of one member.
func (r *Rar) Hash(name string) (string, error) {
	key, err := archiveKey(r.path, name)
	if err != nil {
		return "", err
	}
	return hashCached(r.cache, key, func() (io.ReadCloser, error) { return r.Open(name) })
}

// Stamps returns the stamp of the archive file.
func (r *Rar) Stamps([]string) ([]fingerprint.Stamp, error) {
	return archiveStamps(r.path)
}

// Size returns the archive file size.
func (r *Rar) Size() (int64, error) {
	return archiveSize(r.path)
}

// Extract writes the named members under dir in a single pass.
func (r *Rar) Extract(names []string, dir string) ([]string, error) {
	rc, err := r.open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return extractAll(names, dir, func() (string, io.Reader, error) {
		for {
			h, err := rc.Next()
			if err == io.EOF {
				return "", nil, io.EOF
			}
			if err != nil {
				return "", nil, unreadable(r.path, err)
			}
			if !h.IsDir {
				return h.Name, rc, nil
			}
		}
	})
}
