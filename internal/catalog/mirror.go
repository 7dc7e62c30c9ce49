package catalog

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"gallery-viewer/internal/logging"
	"gallery-viewer/internal/metadata"
	"gallery-viewer/internal/metrics"
)

const (
	defaultTimeout = 5 * time.Second
	// importBatch is how many records one import transaction writes.
	importBatch = 500
	// maxResults bounds a single title query.
	maxResults = 200
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	gid INTEGER PRIMARY KEY,
	token TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	title_jpn TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	rating REAL NOT NULL DEFAULT 0,
	filecount INTEGER NOT NULL DEFAULT 0,
	filesize INTEGER NOT NULL DEFAULT 0,
	posted INTEGER NOT NULL DEFAULT 0,
	raw TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_entries_token ON entries(token);
CREATE INDEX IF NOT EXISTS idx_entries_title ON entries(title COLLATE NOCASE);
`

const ftsSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
	title,
	content='entries',
	content_rowid='gid'
);

CREATE TRIGGER IF NOT EXISTS entries_ai AFTER INSERT ON entries BEGIN
	INSERT INTO entries_fts(rowid, title) VALUES (new.gid, new.title);
END;

CREATE TRIGGER IF NOT EXISTS entries_ad AFTER DELETE ON entries BEGIN
	INSERT INTO entries_fts(entries_fts, rowid, title) VALUES('delete', old.gid, old.title);
END;

CREATE TRIGGER IF NOT EXISTS entries_au AFTER UPDATE ON entries BEGIN
	INSERT INTO entries_fts(entries_fts, rowid, title) VALUES('delete', old.gid, old.title);
	INSERT INTO entries_fts(rowid, title) VALUES (new.gid, new.title);
END;
`

// entry is a stored record.
type entry struct {
	GID       int64   `db:"gid"`
	Token     string  `db:"token"`
	Title     string  `db:"title"`
	TitleJpn  string  `db:"title_jpn"`
	Category  string  `db:"category"`
	Rating    float64 `db:"rating"`
	FileCount int     `db:"filecount"`
	FileSize  int64   `db:"filesize"`
	Posted    int64   `db:"posted"`
	Raw       string  `db:"raw"`
}

func (e entry) record() (metadata.CatalogRecord, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(e.Raw), &raw); err != nil {
		return metadata.CatalogRecord{}, fmt.Errorf("failed to decode mirror entry %d: %w", e.GID, err)
	}
	if raw == nil {
		raw = make(map[string]interface{})
	}
	r := metadata.NewCatalogRecord(raw)
	r.GID, r.Token, r.Title, r.TitleJpn, r.Category = e.GID, e.Token, e.Title, e.TitleJpn, e.Category
	r.Rating, r.FileCount, r.FileSize, r.Posted = e.Rating, e.FileCount, e.FileSize, e.Posted
	return r, nil
}

// Mirror is the local catalog mirror.
type Mirror struct {
	db   *sqlx.DB
	path string
	fts  bool
}

// Open opens (creating if needed) the mirror at path.
func Open(ctx context.Context, path string) (*Mirror, error) {
	db, err := sqlx.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog mirror: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to catalog mirror: %w", err)
	}

	m := &Mirror{db: db, path: path}
	if err := m.initialize(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize catalog mirror: %w", err)
	}
	logging.Info("Catalog mirror opened at %s (full-text index: %v)", path, m.fts)
	return m, nil
}

func (m *Mirror) initialize(ctx context.Context) error {
	start := time.Now()
	_, err := m.db.ExecContext(ctx, schema)
	recordQuery("mirror_schema", start, err)
	if err != nil {
		return err
	}

	if _, err := m.db.ExecContext(ctx, ftsSchema); err != nil {
		if !strings.Contains(err.Error(), "fts5") {
			return err
		}
		logging.Warn("SQLite built without FTS5, catalog title search falls back to LIKE")
		return nil
	}
	m.fts = true
	return nil
}

// Close closes the mirror.
func (m *Mirror) Close() error {
	return m.db.Close()
}

// HasFTS reports whether title queries use the full-text index.
func (m *Mirror) HasFTS() bool {
	return m.fts
}

// Count returns the number of stored records.
func (m *Mirror) Count(ctx context.Context) (int, error) {
	var n int
	start := time.Now()
	err := m.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM entries`)
	recordQuery("mirror_count", start, err)
	return n, err
}

// Upsert stores records in one transaction, replacing existing gids.
func (m *Mirror) Upsert(ctx context.Context, records []metadata.CatalogRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]entry, 0, len(records))
	for _, r := range records {
		if !r.Valid() {
			continue
		}
		raw, err := json.Marshal(r.Raw)
		if err != nil {
			return fmt.Errorf("failed to encode record %d: %w", r.GID, err)
		}
		rows = append(rows, entry{
			GID: r.GID, Token: r.Token, Title: r.Title, TitleJpn: r.TitleJpn,
			Category: r.Category, Rating: r.Rating, FileCount: r.FileCount,
			FileSize: r.FileSize, Posted: r.Posted, Raw: string(raw),
		})
	}

	start := time.Now()
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin mirror transaction: %w", err)
	}
	for _, row := range rows {
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO entries (gid, token, title, title_jpn, category, rating, filecount, filesize, posted, raw)
			VALUES (:gid, :token, :title, :title_jpn, :category, :rating, :filecount, :filesize, :posted, :raw)
			ON CONFLICT(gid) DO UPDATE SET
				token = excluded.token, title = excluded.title, title_jpn = excluded.title_jpn,
				category = excluded.category, rating = excluded.rating, filecount = excluded.filecount,
				filesize = excluded.filesize, posted = excluded.posted, raw = excluded.raw
		`, row)
		if err != nil {
			break
		}
	}
	if err != nil {
		_ = tx.Rollback()
		recordQuery("mirror_upsert", start, err)
		return fmt.Errorf("failed to store mirror records: %w", err)
	}
	err = tx.Commit()
	recordQuery("mirror_upsert", start, err)
	return err
}

// Get returns the record with the given gid.
func (m *Mirror) Get(ctx context.Context, gid int64) (metadata.CatalogRecord, bool, error) {
	var rows []entry
	start := time.Now()
	err := m.db.SelectContext(ctx, &rows, `SELECT * FROM entries WHERE gid = ?`, gid)
	recordQuery("mirror_get", start, err)
	if err != nil || len(rows) == 0 {
		return metadata.CatalogRecord{}, false, err
	}
	r, err := rows[0].record()
	return r, err == nil, err
}

// SearchPhrase returns records whose title contains phrase.
func (m *Mirror) SearchPhrase(ctx context.Context, phrase string) ([]metadata.CatalogRecord, error) {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return nil, nil
	}
	if m.fts {
		return m.match(ctx, quote(phrase))
	}
	return m.like(ctx, []string{phrase})
}

// SearchWords returns records whose title contains every word.
func (m *Mirror) SearchWords(ctx context.Context, words []string) ([]metadata.CatalogRecord, error) {
	var kept []string
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		return nil, nil
	}
	if m.fts {
		quoted := make([]string, len(kept))
		for i, w := range kept {
			quoted[i] = quote(w)
		}
		return m.match(ctx, strings.Join(quoted, " "))
	}
	return m.like(ctx, kept)
}

func (m *Mirror) match(ctx context.Context, query string) ([]metadata.CatalogRecord, error) {
	var rows []entry
	start := time.Now()
	err := m.db.SelectContext(ctx, &rows, `
		SELECT e.* FROM entries e
		JOIN entries_fts f ON f.rowid = e.gid
		WHERE entries_fts MATCH ?
		ORDER BY e.gid
		LIMIT ?
	`, query, maxResults)
	recordQuery("mirror_match", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to search catalog mirror: %w", err)
	}
	return records(rows)
}

func (m *Mirror) like(ctx context.Context, terms []string) ([]metadata.CatalogRecord, error) {
	clauses := make([]string, len(terms))
	args := make([]interface{}, 0, len(terms)+1)
	for i, t := range terms {
		clauses[i] = `title LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(t)+"%")
	}
	args = append(args, maxResults)

	var rows []entry
	start := time.Now()
	err := m.db.SelectContext(ctx, &rows,
		`SELECT * FROM entries WHERE `+strings.Join(clauses, " AND ")+` ORDER BY gid LIMIT ?`, args...)
	recordQuery("mirror_like", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to search catalog mirror: %w", err)
	}
	return records(rows)
}

// Import loads a JSON array of metadata API records, writing them in
// batches. Returns how many records were stored.
func (m *Mirror) Import(ctx context.Context, r io.Reader) (int, error) {
	var raws []map[string]interface{}
	if err := json.NewDecoder(r).Decode(&raws); err != nil {
		return 0, fmt.Errorf("failed to decode import: %w", err)
	}

	total := 0
	for i := 0; i < len(raws); i += importBatch {
		end := min(i+importBatch, len(raws))
		batch := make([]metadata.CatalogRecord, 0, end-i)
		for _, raw := range raws[i:end] {
			if rec := metadata.NewCatalogRecord(raw); rec.Valid() {
				batch = append(batch, rec)
			}
		}
		if err := m.Upsert(ctx, batch); err != nil {
			return total, err
		}
		total += len(batch)
	}
	logging.Info("Imported %d catalog records into %s", total, m.path)
	return total, nil
}

func records(rows []entry) ([]metadata.CatalogRecord, error) {
	out := make([]metadata.CatalogRecord, 0, len(rows))
	for _, row := range rows {
		r, err := row.record()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// quote makes s a single FTS5 string token.
func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func recordQuery(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
