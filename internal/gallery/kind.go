package gallery

import (
	"fmt"

	"gallery-viewer/internal/archive"
	"gallery-viewer/internal/fingerprint"
	"gallery-viewer/internal/mediatypes"
)

// Kind is the variant of a gallery. The numeric values are persisted.
type Kind int

const (
	KindFolder Kind = iota
	KindZip
	KindRar
)

// String returns the kind name used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindFolder:
		return "folder"
	case KindZip:
		return "zip"
	case KindRar:
		return "rar"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsArchive reports whether the gallery is backed by an archive file.
func (k Kind) IsArchive() bool {
	return k == KindZip || k == KindRar
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k >= KindFolder && k <= KindRar
}

// ArchiveKind maps an archive file name to its kind.
func ArchiveKind(name string) (Kind, bool) {
	format, ok := mediatypes.GetArchiveFormat(mediatypes.Ext(name))
	if !ok {
		return 0, false
	}
	switch format {
	case mediatypes.ArchiveZip:
		return KindZip, true
	case mediatypes.ArchiveRar:
		return KindRar, true
	}
	return 0, false
}

// NewSource returns the content view for a gallery of kind k at path.
func NewSource(k Kind, path string, cache *fingerprint.Cache) (archive.Source, error) {
	switch k {
	case KindFolder:
		return archive.NewFolder(path, cache), nil
	case KindZip:
		return archive.New(path, mediatypes.ArchiveZip, cache)
	case KindRar:
		return archive.New(path, mediatypes.ArchiveRar, cache)
	}
	return nil, fmt.Errorf("unknown gallery kind %d", int(k))
}
