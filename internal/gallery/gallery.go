package gallery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gallery-viewer/internal/archive"
	"gallery-viewer/internal/database"
	"gallery-viewer/internal/fingerprint"
	"gallery-viewer/internal/logging"
	"gallery-viewer/internal/metadata"
)

var (
	// ErrNoContent is returned for a candidate without content files.
	ErrNoContent = errors.New("gallery has no content files")
	// ErrAssertion marks a broken invariant local to one gallery or group.
	ErrAssertion = errors.New("assertion violated")
)

// Store opens persistence sessions. *database.Database satisfies it.
type Store interface {
	Session(ctx context.Context, acquire bool, fn func(*database.Session) error) error
}

var _ Store = (*database.Database)(nil)

// Gallery is one content unit of the library: a folder of images or an
// archive file.
type Gallery struct {
	kind    Kind
	store   Store
	cache   *fingerprint.Cache
	tempDir string

	// mu guards the content view, the file-list cache and extraction.
	mu         sync.Mutex
	source     archive.Source
	files      []string
	extractDir string
	extracted  []string

	// stateMu guards the persisted mirror and lifecycle flags.
	stateMu         sync.RWMutex
	id              int64
	uuid            string
	mtimeHash       string
	imageHash       string
	thumbnailSource string
	readCount       int
	lastRead        int64
	timeAdded       int64
	dead            bool
	expired         bool
	verified        bool
	forceMetadata   bool

	meta *metadata.Manager
}

func newGallery(deps Deps, kind Kind, source archive.Source) *Gallery {
	return &Gallery{
		kind:    kind,
		store:   deps.Store,
		cache:   deps.Cache,
		tempDir: deps.TempDir,
		source:  source,
		meta:    metadata.NewManager(),
	}
}

func (g *Gallery) String() string {
	return fmt.Sprintf("%s gallery %s", g.kind, g.Location())
}

// Kind returns the gallery variant.
func (g *Gallery) Kind() Kind {
	return g.kind
}

// IsArchive reports whether the gallery is archive-backed.
func (g *Gallery) IsArchive() bool {
	return g.kind.IsArchive()
}

// Location is the folder path or archive file path.
func (g *Gallery) Location() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.source.Location()
}

// Name is the folder name or the archive name without extension.
func (g *Gallery) Name() string {
	base := filepath.Base(g.Location())
	if g.kind.IsArchive() {
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
	return base
}

// ID is the store row id.
func (g *Gallery) ID() int64 {
	g.stateMu.RLock()
	defer g.stateMu.RUnlock()
	return g.id
}

// UUID is the stored identity fingerprint.
func (g *Gallery) UUID() string {
	g.stateMu.RLock()
	defer g.stateMu.RUnlock()
	return g.uuid
}

// MtimeHash is the stored change-detection fingerprint.
func (g *Gallery) MtimeHash() string {
	g.stateMu.RLock()
	defer g.stateMu.RUnlock()
	return g.mtimeHash
}

// ReadCount is the number of times the gallery was opened.
func (g *Gallery) ReadCount() int {
	g.stateMu.RLock()
	defer g.stateMu.RUnlock()
	return g.readCount
}

// LastRead is the unix time of the last open, zero if never read.
func (g *Gallery) LastRead() int64 {
	g.stateMu.RLock()
	defer g.stateMu.RUnlock()
	return g.lastRead
}

// TimeAdded is the unix time the row was created.
func (g *Gallery) TimeAdded() int64 {
	g.stateMu.RLock()
	defer g.stateMu.RUnlock()
	return g.timeAdded
}

// Expired reports whether the gallery was logically removed.
func (g *Gallery) Expired() bool {
	g.stateMu.RLock()
	defer g.stateMu.RUnlock()
	return g.expired
}

// MarkExpired removes the gallery from consideration by later operations.
func (g *Gallery) MarkExpired() {
	g.stateMu.Lock()
	g.expired = true
	g.stateMu.Unlock()
}

// Dead reports whether the store row is flagged as absent from disk.
func (g *Gallery) Dead() bool {
	g.stateMu.RLock()
	defer g.stateMu.RUnlock()
	return g.dead
}

// ForceMetadata reports whether a metadata refresh was requested for a
// gallery that already has a catalog record.
func (g *Gallery) ForceMetadata() bool {
	g.stateMu.RLock()
	defer g.stateMu.RUnlock()
	return g.forceMetadata
}

// Metadata returns the facet manager of the gallery.
func (g *Gallery) Metadata() *metadata.Manager {
	return g.meta
}

// loadRow copies a stored row into the gallery.
func (g *Gallery) loadRow(row database.GalleryRow) {
	g.stateMu.Lock()
	defer g.stateMu.Unlock()
	g.id = row.ID
	g.uuid = row.UUID
	g.mtimeHash = row.MtimeHash
	g.imageHash = row.ImageHash
	g.thumbnailSource = row.ThumbnailSource
	g.readCount = row.ReadCount
	g.lastRead = row.LastRead
	g.timeAdded = row.TimeAdded
	g.dead = row.Dead
}

// Files returns the content files in natural order with filler removed.
// The list is cached until InvalidateFiles.
func (g *Gallery) Files() ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.filesLocked()
}

func (g *Gallery) filesLocked() ([]string, error) {
	if g.files == nil {
		all, err := g.source.List()
		if err != nil {
			return nil, err
		}
		g.files = fingerprint.Ordered(all)
	}
	return append([]string(nil), g.files...), nil
}

// FileCount is the number of content files.
func (g *Gallery) FileCount() (int, error) {
	files, err := g.Files()
	if err != nil {
		return 0, err
	}
	return len(files), nil
}

// InvalidateFiles drops the cached file list and any extracted copy.
func (g *Gallery) InvalidateFiles() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.files = nil
	g.clearExtractedLocked()
}

// Size is the total byte size of the gallery.
func (g *Gallery) Size() (int64, error) {
	g.mu.Lock()
	src := g.source
	g.mu.Unlock()
	return src.Size()
}

// ComputeIdentity derives the identity fingerprint from the current content.
func (g *Gallery) ComputeIdentity() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	files, err := g.filesLocked()
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", ErrNoContent
	}
	first, err := g.source.Hash(files[0])
	if err != nil {
		return "", err
	}
	last, err := g.source.Hash(files[len(files)-1])
	if err != nil {
		return "", err
	}
	return fingerprint.Identity(first, last, len(files)), nil
}

// ComputeMtimeHash derives the change-detection fingerprint from the
// current content.
func (g *Gallery) ComputeMtimeHash() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	files, err := g.filesLocked()
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", ErrNoContent
	}
	stamps, err := g.source.Stamps(files)
	if err != nil {
		return "", err
	}
	return fingerprint.MtimeHash(stamps...), nil
}

// Revalidated records the outcome of an identity check.
func (g *Gallery) Revalidated(uuid, mtimeHash string) {
	g.stateMu.Lock()
	defer g.stateMu.Unlock()
	if uuid != g.uuid {
		g.uuid = uuid
		g.verified = false
	}
	g.mtimeHash = mtimeHash
}

// LocalFiles returns content files as local paths. Archives are extracted
// once into a temporary directory, under the gallery lock.
func (g *Gallery) LocalFiles() ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	files, err := g.filesLocked()
	if err != nil {
		return nil, err
	}
	if !g.kind.IsArchive() {
		return files, nil
	}
	if g.extracted != nil {
		return append([]string(nil), g.extracted...), nil
	}

	dir, err := os.MkdirTemp(g.tempDir, "gallery-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction directory: %w", err)
	}
	paths, err := g.source.Extract(files, dir)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	logging.Debug("Extracted %d files of %s to %s", len(paths), g.source.Location(), dir)
	g.extractDir = dir
	g.extracted = paths
	return append([]string(nil), paths...), nil
}

func (g *Gallery) clearExtractedLocked() {
	if g.extractDir == "" {
		return
	}
	if err := os.RemoveAll(g.extractDir); err != nil {
		logging.Warn("Failed to remove extraction directory %s: %v", g.extractDir, err)
	}
	g.extractDir = ""
	g.extracted = nil
}

// Release removes temporary files held by the gallery.
func (g *Gallery) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clearExtractedLocked()
}

// Moved points the gallery at a new location and drops cached state.
func (g *Gallery) Moved(location string) error {
	source, err := NewSource(g.kind, location, g.cache)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.source = source
	g.files = nil
	g.clearExtractedLocked()
	return nil
}

// Owns reports whether a filesystem path belongs to the gallery content.
func (g *Gallery) Owns(path string) bool {
	location := g.Location()
	if g.kind.IsArchive() {
		return path == location
	}
	return filepath.Dir(path) == location
}

// DeletionTargets lists what to remove from disk when the gallery is
// deleted: the archive, the folder, or only the image files when the folder
// holds other files as well.
func (g *Gallery) DeletionTargets() ([]string, error) {
	location := g.Location()
	if g.kind.IsArchive() {
		return []string{location}, nil
	}

	g.mu.Lock()
	all, err := g.source.List()
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(location)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", location, err)
	}
	files := 0
	for _, e := range entries {
		if !e.IsDir() {
			files++
		}
	}
	if files != len(all) {
		return all, nil
	}
	return []string{location}, nil
}

// ThumbnailSource is the representative file: an index into Files or an
// external path. Defaults to the first file.
func (g *Gallery) ThumbnailSource() string {
	g.stateMu.RLock()
	defer g.stateMu.RUnlock()
	if g.thumbnailSource == "" {
		return "0"
	}
	return g.thumbnailSource
}

// ImageHash is the content hash of the representative file when the
// thumbnail was generated.
func (g *Gallery) ImageHash() string {
	g.stateMu.RLock()
	defer g.stateMu.RUnlock()
	return g.imageHash
}

// ThumbnailVerified reports whether the thumbnail was confirmed this session.
func (g *Gallery) ThumbnailVerified() bool {
	g.stateMu.RLock()
	defer g.stateMu.RUnlock()
	return g.verified
}

// SetThumbnail records a freshly validated thumbnail.
func (g *Gallery) SetThumbnail(source, imageHash string) {
	g.stateMu.Lock()
	defer g.stateMu.Unlock()
	g.thumbnailSource = source
	g.imageHash = imageHash
	g.verified = true
}

// InvalidateThumbnail forces the thumbnail to be revalidated.
func (g *Gallery) InvalidateThumbnail() {
	g.stateMu.Lock()
	g.verified = false
	g.stateMu.Unlock()
}

// representative resolves the thumbnail source to an entry of the content
// view, or to an external file when it is not an index.
func (g *Gallery) representative() (entry string, external bool, err error) {
	source := g.ThumbnailSource()
	index, convErr := strconv.Atoi(source)
	if convErr != nil {
		return source, true, nil
	}
	files, err := g.Files()
	if err != nil {
		return "", false, err
	}
	if len(files) == 0 {
		return "", false, ErrNoContent
	}
	if index < 0 || index >= len(files) {
		index = 0
	}
	return files[index], false, nil
}

// RepresentativeHash hashes the representative file.
func (g *Gallery) RepresentativeHash() (string, error) {
	entry, external, err := g.representative()
	if err != nil {
		return "", err
	}
	if external {
		return fingerprint.HashFile(entry)
	}
	g.mu.Lock()
	src := g.source
	g.mu.Unlock()
	return src.Hash(entry)
}

// FileHash hashes the content file at index. ok is false when the gallery
// has no file at that position.
func (g *Gallery) FileHash(index int) (hash string, ok bool, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	files, err := g.filesLocked()
	if err != nil {
		return "", false, err
	}
	if index < 0 || index >= len(files) {
		return "", false, nil
	}
	hash, err = g.source.Hash(files[index])
	return hash, err == nil, err
}

// OpenRepresentative opens the representative file for reading.
func (g *Gallery) OpenRepresentative() (io.ReadCloser, error) {
	entry, external, err := g.representative()
	if err != nil {
		return nil, err
	}
	if external {
		f, err := os.Open(entry)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", entry, err)
		}
		return f, nil
	}
	g.mu.Lock()
	src := g.source
	g.mu.Unlock()
	return src.Open(entry)
}

// FileIndex finds path among the content files. Archive entries match by
// base name.
func (g *Gallery) FileIndex(path string) (int, bool) {
	files, err := g.Files()
	if err != nil {
		return 0, false
	}
	for i, f := range files {
		if g.kind.IsArchive() {
			if filepath.Base(f) == filepath.Base(path) {
				return i, true
			}
			continue
		}
		if f == path {
			return i, true
		}
	}
	return 0, false
}

// PickThumbnail sets the representative file from a user choice, either a
// content file or an external image, and clears thumbnail validity.
func (g *Gallery) PickThumbnail(path string) {
	source := path
	if i, ok := g.FileIndex(path); ok {
		source = strconv.Itoa(i)
	}
	g.stateMu.Lock()
	g.thumbnailSource = source
	g.verified = false
	g.stateMu.Unlock()
}

// Save persists the row fields and all facets in one session.
func (g *Gallery) Save(ctx context.Context) error {
	location := g.Location()
	g.stateMu.RLock()
	id := g.id
	update := database.GalleryUpdate{
		UUID:            database.Ptr(g.uuid),
		Path:            database.Ptr(location),
		MtimeHash:       database.Ptr(g.mtimeHash),
		ImageHash:       database.Ptr(g.imageHash),
		ThumbnailSource: database.Ptr(g.thumbnailSource),
		ReadCount:       database.Ptr(g.readCount),
		LastRead:        database.Ptr(g.lastRead),
	}
	g.stateMu.RUnlock()

	err := g.store.Session(ctx, true, func(s *database.Session) error {
		if err := s.UpdateGallery(id, update); err != nil {
			return err
		}
		return g.meta.Save(s, id)
	})
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", g, err)
	}
	return nil
}

// Open increments the read count, stamps the last-read time and returns the
// path to show: the selected file for folders, the extracted page for
// archives.
func (g *Gallery) Open(ctx context.Context, index int) (string, error) {
	files, err := g.LocalFiles()
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", ErrNoContent
	}
	if index < 0 || index >= len(files) {
		index = 0
	}

	g.stateMu.Lock()
	g.readCount++
	g.lastRead = time.Now().Unix()
	g.stateMu.Unlock()

	if err := g.Save(ctx); err != nil {
		return "", err
	}
	return files[index], nil
}

// SetRating stores a user rating on the custom facet. Zero clears it.
func (g *Gallery) SetRating(ctx context.Context, rating float64) error {
	if rating == 0 {
		g.meta.SetValue(metadata.Custom, "rating", nil)
	} else {
		g.meta.SetValue(metadata.Custom, "rating", rating)
	}
	return g.store.Session(ctx, true, func(s *database.Session) error {
		return g.meta.Save(s, g.ID(), metadata.Custom)
	})
}

// ApplyEdits applies user facet edits. When a catalog url changed the
// gallery is flagged for a forced metadata refresh.
func (g *Gallery) ApplyEdits(ctx context.Context, edits map[metadata.FacetName]metadata.Edit) (bool, error) {
	var changed bool
	err := g.store.Session(ctx, true, func(s *database.Session) error {
		var err error
		changed, err = g.meta.ApplyEdits(s, g.ID(), edits)
		return err
	})
	if err != nil {
		return false, err
	}
	if changed {
		g.stateMu.Lock()
		g.forceMetadata = true
		g.stateMu.Unlock()
	}
	return changed, nil
}

// UpdateMetadata merges fetched facet values and persists them.
func (g *Gallery) UpdateMetadata(ctx context.Context, values map[metadata.FacetName]map[string]interface{}) error {
	names := make([]metadata.FacetName, 0, len(values))
	for name, v := range values {
		g.meta.Update(name, v)
		names = append(names, name)
	}
	g.stateMu.Lock()
	g.forceMetadata = false
	g.stateMu.Unlock()

	return g.store.Session(ctx, true, func(s *database.Session) error {
		return g.meta.Save(s, g.ID(), names...)
	})
}

// SetCatalogURL points the catalog facet at a record found by search.
func (g *Gallery) SetCatalogURL(url string) error {
	return g.meta.SetURL(metadata.Catalog, url)
}

// ValidForSearch reports whether a metadata search should run. Disabled
// auto-collection only excludes the gallery from searches that did not name
// it. Galleries with a catalog record are only refreshed when forced or
// flagged by an edit.
func (g *Gallery) ValidForSearch(force, explicit bool) bool {
	if g.Expired() || (!explicit && !g.meta.CollectionEnabled()) {
		return false
	}
	if _, hasRef := g.meta.Ref(); !hasRef {
		return true
	}
	return force || g.ForceMetadata()
}

// HasCatalogMetadata reports whether the catalog facet carries data.
func (g *Gallery) HasCatalogMetadata() bool {
	return g.meta.Has(metadata.Catalog)
}

// HasCustomMetadata reports whether the custom facet carries data.
func (g *Gallery) HasCustomMetadata() bool {
	return g.meta.Has(metadata.Custom)
}

// MarkGone flags the gallery as absent from disk: expired in memory, dead in
// the store.
func (g *Gallery) MarkGone(ctx context.Context) error {
	g.stateMu.Lock()
	g.expired = true
	g.dead = true
	id := g.id
	g.stateMu.Unlock()

	g.Release()
	return g.store.Session(ctx, true, func(s *database.Session) error {
		return s.MarkDead([]int64{id}, true)
	})
}

// Delete removes the facets and the row from the store.
func (g *Gallery) Delete(ctx context.Context) error {
	g.MarkExpired()
	g.Release()
	id := g.ID()
	return g.store.Session(ctx, true, func(s *database.Session) error {
		if err := g.meta.DeleteAll(s); err != nil {
			return err
		}
		return s.DeleteGallery(id)
	})
}
