package gallery

import (
	"context"
	"fmt"
	"os"
	"time"

	"gallery-viewer/internal/database"
	"gallery-viewer/internal/fingerprint"
	"gallery-viewer/internal/metadata"
)

// Deps are the collaborators shared by all galleries of a library.
type Deps struct {
	Store Store
	Cache *fingerprint.Cache
	// TempDir is where archives are extracted. Empty means os.TempDir.
	TempDir string
}

// Candidate describes a gallery that has not been constructed yet.
type Candidate struct {
	Kind Kind
	Path string
	// Row and Facets are set when the candidate comes from the store.
	Row    *database.GalleryRow
	Facets []database.FacetRow
	// NoAutoCollection disables automatic metadata collection for galleries
	// created from this candidate.
	NoAutoCollection bool
}

// Loaded reports whether the candidate is a stored row.
func (c Candidate) Loaded() bool {
	return c.Row != nil
}

// Build constructs a gallery from a candidate.
//
// Stored rows are checked for presence on disk and loaded as they are.
// New candidates must hold at least one content file; their identity is
// computed and a dead row with the same identity and kind is resurrected
// instead of inserting a new one. Facets of the row are loaded last.
func Build(ctx context.Context, deps Deps, c Candidate) (*Gallery, error) {
	source, err := NewSource(c.Kind, c.Path, deps.Cache)
	if err != nil {
		return nil, err
	}
	g := newGallery(deps, c.Kind, source)

	if c.Loaded() {
		if err := g.buildLoaded(c); err != nil {
			return nil, err
		}
		return g, nil
	}

	files, err := g.Files()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoContent, c.Path)
	}
	uuid, err := g.ComputeIdentity()
	if err != nil {
		return nil, err
	}

	var row database.GalleryRow
	var facets []database.FacetRow
	err = deps.Store.Session(ctx, true, func(s *database.Session) error {
		dead, found, err := s.FindDeadGallery(uuid, int(c.Kind))
		if err != nil {
			return err
		}
		if found {
			if err := s.UpdateGallery(dead.ID, database.GalleryUpdate{
				Path: database.Ptr(c.Path),
				Dead: database.Ptr(false),
			}); err != nil {
				return err
			}
			dead.Path = c.Path
			dead.Dead = false
			row = dead
		} else {
			mtimeHash, err := g.ComputeMtimeHash()
			if err != nil {
				return err
			}
			row = database.GalleryRow{
				UUID:      uuid,
				Type:      int(c.Kind),
				Path:      c.Path,
				MtimeHash: mtimeHash,
				TimeAdded: time.Now().Unix(),
			}
			id, err := s.InsertGallery(&row)
			if err != nil {
				return err
			}
			row.ID = id
		}

		facets, err = s.QueryFacets([]int64{row.ID})
		if err != nil {
			return err
		}
		if err := g.meta.Load(facets); err != nil {
			return err
		}
		if c.NoAutoCollection && g.meta.CollectionEnabled() {
			g.meta.SetAutoCollection(false)
			return g.meta.Save(s, row.ID, metadata.Catalog, metadata.Alternate)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", c.Path, err)
	}

	g.loadRow(row)
	return g, nil
}

func (g *Gallery) buildLoaded(c Candidate) error {
	if g.kind.IsArchive() {
		if _, err := os.Stat(c.Path); err != nil {
			return fmt.Errorf("archive %s is not accessible: %w", c.Path, err)
		}
	} else {
		n, err := g.FileCount()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrNoContent, c.Path)
		}
	}

	g.loadRow(*c.Row)
	return g.meta.Load(c.Facets)
}
