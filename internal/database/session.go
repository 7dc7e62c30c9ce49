package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

const galleryColumns = `id, uuid, type, path, mtime_hash, image_hash, thumbnail_source,
	read_count, last_read, time_added, dead`

// Session is one transaction against the store.
type Session struct {
	tx  *sqlx.Tx
	ctx context.Context
}

// InsertGallery inserts row and returns its id. row.ID is ignored.
func (s *Session) InsertGallery(row *GalleryRow) (int64, error) {
	start := time.Now()
	if row.TimeAdded == 0 {
		row.TimeAdded = time.Now().Unix()
	}

	res, err := s.tx.NamedExecContext(s.ctx, `
		INSERT INTO galleries (uuid, type, path, mtime_hash, image_hash, thumbnail_source,
			read_count, last_read, time_added, dead)
		VALUES (:uuid, :type, :path, :mtime_hash, :image_hash, :thumbnail_source,
			:read_count, :last_read, :time_added, :dead)
	`, row)
	if err != nil {
		recordQuery("insert_gallery", start, err)
		return 0, fmt.Errorf("failed to insert gallery %s: %w", row.Path, err)
	}

	id, err := res.LastInsertId()
	recordQuery("insert_gallery", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted gallery id: %w", err)
	}
	return id, nil
}

// UpdateGallery changes the non-nil fields of u on row id.
func (s *Session) UpdateGallery(id int64, u GalleryUpdate) error {
	var sets []string
	var args []interface{}
	add := func(column string, value interface{}) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if u.UUID != nil {
		add("uuid", *u.UUID)
	}
	if u.Path != nil {
		add("path", *u.Path)
	}
	if u.MtimeHash != nil {
		add("mtime_hash", *u.MtimeHash)
	}
	if u.ImageHash != nil {
		add("image_hash", *u.ImageHash)
	}
	if u.ThumbnailSource != nil {
		add("thumbnail_source", *u.ThumbnailSource)
	}
	if u.ReadCount != nil {
		add("read_count", *u.ReadCount)
	}
	if u.LastRead != nil {
		add("last_read", *u.LastRead)
	}
	if u.Dead != nil {
		add("dead", *u.Dead)
	}
	if len(sets) == 0 {
		return nil
	}

	start := time.Now()
	args = append(args, id)
	_, err := s.tx.ExecContext(s.ctx, "UPDATE galleries SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	recordQuery("update_gallery", start, err)
	if err != nil {
		return fmt.Errorf("failed to update gallery %d: %w", id, err)
	}
	return nil
}

// DeleteGallery removes a gallery row and its facets.
func (s *Session) DeleteGallery(id int64) error {
	start := time.Now()
	if _, err := s.tx.ExecContext(s.ctx, `DELETE FROM metadata WHERE gallery_id = ?`, id); err != nil {
		recordQuery("delete_gallery", start, err)
		return fmt.Errorf("failed to delete facets of gallery %d: %w", id, err)
	}
	_, err := s.tx.ExecContext(s.ctx, `DELETE FROM galleries WHERE id = ?`, id)
	recordQuery("delete_gallery", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete gallery %d: %w", id, err)
	}
	return nil
}

// QueryGalleries returns the rows matching f ordered by id.
func (s *Session) QueryGalleries(f GalleryFilter) ([]GalleryRow, error) {
	var where []string
	var args []interface{}

	if len(f.IDs) > 0 {
		clause, inArgs, err := sqlx.In("id IN (?)", f.IDs)
		if err != nil {
			return nil, fmt.Errorf("failed to expand id filter: %w", err)
		}
		where = append(where, clause)
		args = append(args, inArgs...)
	}
	if f.UUID != "" {
		where = append(where, "uuid = ?")
		args = append(args, f.UUID)
	}
	if f.Type != nil {
		where = append(where, "type = ?")
		args = append(args, *f.Type)
	}
	if f.Path != "" {
		where = append(where, "path = ?")
		args = append(args, f.Path)
	}
	if f.Dead != nil {
		where = append(where, "dead = ?")
		args = append(args, *f.Dead)
	}

	query := "SELECT " + galleryColumns + " FROM galleries"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	start := time.Now()
	var rows []GalleryRow
	err := s.tx.SelectContext(s.ctx, &rows, query, args...)
	recordQuery("query_galleries", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to query galleries: %w", err)
	}
	return rows, nil
}

// GetGallery returns one row by id. found is false when no row exists.
func (s *Session) GetGallery(id int64) (row GalleryRow, found bool, err error) {
	start := time.Now()
	err = s.tx.GetContext(s.ctx, &row, "SELECT "+galleryColumns+" FROM galleries WHERE id = ?", id)
	recordQuery("query_galleries", start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return GalleryRow{}, false, nil
	}
	if err != nil {
		return GalleryRow{}, false, fmt.Errorf("failed to get gallery %d: %w", id, err)
	}
	return row, true, nil
}

// FindDeadGallery returns the oldest dead row with the given identity and kind.
func (s *Session) FindDeadGallery(uuid string, kind int) (row GalleryRow, found bool, err error) {
	start := time.Now()
	err = s.tx.GetContext(s.ctx, &row, "SELECT "+galleryColumns+`
		FROM galleries WHERE uuid = ? AND type = ? AND dead = 1
		ORDER BY id LIMIT 1`, uuid, kind)
	recordQuery("find_dead_gallery", start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return GalleryRow{}, false, nil
	}
	if err != nil {
		return GalleryRow{}, false, fmt.Errorf("failed to look up dead gallery: %w", err)
	}
	return row, true, nil
}

// MarkDead sets the dead flag on every listed row.
func (s *Session) MarkDead(ids []int64, dead bool) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In("UPDATE galleries SET dead = ? WHERE id IN (?)", dead, ids)
	if err != nil {
		return fmt.Errorf("failed to expand id list: %w", err)
	}

	start := time.Now()
	_, err = s.tx.ExecContext(s.ctx, query, args...)
	recordQuery("mark_dead", start, err)
	if err != nil {
		return fmt.Errorf("failed to mark %d galleries dead=%v: %w", len(ids), dead, err)
	}
	return nil
}

// InsertFacet stores a new facet and returns its id.
func (s *Session) InsertFacet(galleryID int64, name, blob string) (int64, error) {
	start := time.Now()
	res, err := s.tx.ExecContext(s.ctx,
		`INSERT INTO metadata (gallery_id, name, json) VALUES (?, ?, ?)`, galleryID, name, blob)
	if err != nil {
		recordQuery("insert_facet", start, err)
		return 0, fmt.Errorf("failed to insert %s facet for gallery %d: %w", name, galleryID, err)
	}
	id, err := res.LastInsertId()
	recordQuery("insert_facet", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted facet id: %w", err)
	}
	return id, nil
}

// UpdateFacet replaces the JSON blob of a facet.
func (s *Session) UpdateFacet(id int64, blob string) error {
	start := time.Now()
	_, err := s.tx.ExecContext(s.ctx, `UPDATE metadata SET json = ? WHERE id = ?`, blob, id)
	recordQuery("update_facet", start, err)
	if err != nil {
		return fmt.Errorf("failed to update facet %d: %w", id, err)
	}
	return nil
}

// DeleteFacet removes a facet.
func (s *Session) DeleteFacet(id int64) error {
	start := time.Now()
	_, err := s.tx.ExecContext(s.ctx, `DELETE FROM metadata WHERE id = ?`, id)
	recordQuery("delete_facet", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete facet %d: %w", id, err)
	}
	return nil
}

// QueryFacets returns the facets of the listed galleries, or of every
// gallery when galleryIDs is empty.
func (s *Session) QueryFacets(galleryIDs []int64) ([]FacetRow, error) {
	query := `SELECT id, gallery_id, name, json FROM metadata`
	var args []interface{}

	if len(galleryIDs) > 0 {
		q, inArgs, err := sqlx.In(query+` WHERE gallery_id IN (?)`, galleryIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to expand gallery id list: %w", err)
		}
		query, args = q, inArgs
	}
	query += ` ORDER BY gallery_id, id`

	start := time.Now()
	var rows []FacetRow
	err := s.tx.SelectContext(s.ctx, &rows, query, args...)
	recordQuery("query_facets", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to query facets: %w", err)
	}
	return rows, nil
}
