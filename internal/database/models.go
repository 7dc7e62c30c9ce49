package database

// GalleryRow is the persisted form of a gallery.
type GalleryRow struct {
	ID              int64  `db:"id"`
	UUID            string `db:"uuid"`
	Type            int    `db:"type"`
	Path            string `db:"path"`
	MtimeHash       string `db:"mtime_hash"`
	ImageHash       string `db:"image_hash"`
	ThumbnailSource string `db:"thumbnail_source"`
	ReadCount       int    `db:"read_count"`
	LastRead        int64  `db:"last_read"`
	TimeAdded       int64  `db:"time_added"`
	Dead            bool   `db:"dead"`
}

// FacetRow is one persisted metadata facet.
type FacetRow struct {
	ID        int64  `db:"id"`
	GalleryID int64  `db:"gallery_id"`
	Name      string `db:"name"`
	JSON      string `db:"json"`
}

// GalleryUpdate lists the columns to change; nil fields are left alone.
type GalleryUpdate struct {
	UUID            *string
	Path            *string
	MtimeHash       *string
	ImageHash       *string
	ThumbnailSource *string
	ReadCount       *int
	LastRead        *int64
	Dead            *bool
}

// GalleryFilter narrows QueryGalleries. The zero value matches every row.
type GalleryFilter struct {
	IDs  []int64
	UUID string
	Type *int
	Path string
	Dead *bool
}

// Ptr returns a pointer to v, for building updates and filters.
func Ptr[T any](v T) *T {
	return &v
}
