package archive

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"

	"gallery-viewer/internal/fingerprint"
	"gallery-viewer/internal/mediatypes"
)

// Zip is a zip or cbz gallery. Entry names are member names.
type Zip struct {
	path  string
	cache *fingerprint.Cache
}

// Location returns the archive path.
func (z *Zip) Location() string {
	return z.path
}

func (z *Zip) open() (*zip.ReadCloser, error) {
	r, err := zip.OpenReader(z.path)
	if err != nil {
		return nil, unreadable(z.path, err)
	}
	return r, nil
}

// List returns image members in natural order.
func (z *Zip) List() ([]string, error) {
	r, err := z.open()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var names []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !mediatypes.IsImage(f.Name) {
			continue
		}
		names = append(names, f.Name)
	}
	fingerprint.NaturalSort(names)
	return names, nil
}

// Open returns a reader for one member. Closing it closes the archive.
func (z *Zip) Open(name string) (io.ReadCloser, error) {
	r, err := z.open()
	if err != nil {
		return nil, err
	}

	for _, f := range r.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			r.Close()
			return nil, unreadable(z.path, err)
		}
		return &memberReader{Reader: rc, closers: []io.Closer{rc, r}}, nil
	}

	r.Close()
	return nil, fmt.Errorf("member %q not found in %s", name, z.path)
}

// Hash returns the content hash of one member.
func (z *Zip) Hash(name string) (string, error) {
	key, err := archiveKey(z.path, name)
	if err != nil {
		return "", err
	}
	return hashCached(z.cache, key, func() (io.ReadCloser, error) { return z.Open(name) })
}

// Stamps returns the stamp of the archive file.
func (z *Zip) Stamps([]string) ([]fingerprint.Stamp, error) {
	return archiveStamps(z.path)
}

// Size returns the archive file size.
func (z *Zip) Size() (int64, error) {
	return archiveSize(z.path)
}

// Extract writes the named members under dir.
func (z *Zip) Extract(names []string, dir string) ([]string, error) {
	r, err := z.open()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	i := 0
	var current io.ReadCloser
	defer func() {
		if current != nil {
			current.Close()
		}
	}()

	return extractAll(names, dir, func() (string, io.Reader, error) {
		if current != nil {
			current.Close()
			current = nil
		}
		for i < len(r.File) {
			f := r.File[i]
			i++
			if f.FileInfo().IsDir() {
				continue
			}
			rc, err := f.Open()
			if err != nil {
				return "", nil, unreadable(z.path, err)
			}
			current = rc
			return f.Name, rc, nil
		}
		return "", nil, io.EOF
	})
}
