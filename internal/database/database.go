package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"gallery-viewer/internal/logging"
	"gallery-viewer/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// Database is the persistent store for galleries and their metadata facets.
type Database struct {
	db     *sqlx.DB
	dbPath string
	// writeMu is the global write-serialization section. Sessions opened
	// with acquire=true hold it from begin to commit/rollback.
	writeMu sync.Mutex
}

// New opens (creating if needed) the store at dbPath.
// The parent directory must already exist and be writable.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("Database path: %s", dbPath)

	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Database permission diagnostics: %v", err)
	}

	// _txlock=immediate takes the SQLite write lock at BEGIN so concurrent
	// sessions wait on busy_timeout instead of failing on lock upgrade.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate", dbPath)

	db, err := sqlx.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:     db,
		dbPath: dbPath,
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Database initialized successfully at %s", dbPath)
	return d, nil
}

// NewFromDB wraps an already open connection without touching the schema.
func NewFromDB(db *sql.DB, driverName string) *Database {
	return &Database{db: sqlx.NewDb(db, driverName)}
}

func (d *Database) initialize(ctx context.Context) error {
	start := time.Now()

	schema := `
	CREATE TABLE IF NOT EXISTS galleries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL,
		type INTEGER NOT NULL,
		path TEXT NOT NULL,
		mtime_hash TEXT NOT NULL DEFAULT '',
		image_hash TEXT NOT NULL DEFAULT '',
		thumbnail_source TEXT NOT NULL DEFAULT '',
		read_count INTEGER NOT NULL DEFAULT 0,
		last_read INTEGER NOT NULL DEFAULT 0,
		time_added INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		dead BOOLEAN NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_galleries_identity ON galleries(uuid, type, dead);
	CREATE INDEX IF NOT EXISTS idx_galleries_path ON galleries(path);

	CREATE TABLE IF NOT EXISTS metadata (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		gallery_id INTEGER NOT NULL REFERENCES galleries(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		json TEXT NOT NULL DEFAULT '{}',
		UNIQUE(gallery_id, name)
	);

	CREATE INDEX IF NOT EXISTS idx_metadata_gallery ON metadata(gallery_id);
	`

	_, err := d.db.ExecContext(ctx, schema)
	recordQuery("initialize_schema", start, err)
	if err != nil {
		return err
	}

	return d.runMigrations(ctx)
}

// columnMigrations are columns added after the first schema version.
var columnMigrations = []struct {
	table  string
	column string
	ddl    string
}{
	{"galleries", "thumbnail_source", `ALTER TABLE galleries ADD COLUMN thumbnail_source TEXT NOT NULL DEFAULT ''`},
	{"galleries", "last_read", `ALTER TABLE galleries ADD COLUMN last_read INTEGER NOT NULL DEFAULT 0`},
}

// runMigrations applies database schema migrations
func (d *Database) runMigrations(ctx context.Context) error {
	for _, m := range columnMigrations {
		var exists bool
		err := d.db.QueryRowContext(ctx, `
			SELECT COUNT(*) > 0
			FROM pragma_table_info(?)
			WHERE name = ?
		`, m.table, m.column).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check for %s.%s column: %w", m.table, m.column, err)
		}
		if exists {
			continue
		}

		logging.Info("Migrating database: adding %s column to %s table", m.column, m.table)
		if _, err := d.db.ExecContext(ctx, m.ddl); err != nil {
			return fmt.Errorf("failed to add %s column: %w", m.column, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.dbPath
}

// OpenConnections reports the number of open pool connections.
func (d *Database) OpenConnections() int {
	return d.db.Stats().OpenConnections
}

// Session runs fn inside one transaction: committed when fn returns nil,
// rolled back when it returns an error or panics. With acquire set, the
// whole session holds the global write lock so it cannot interleave with
// another acquiring session.
func (d *Database) Session(ctx context.Context, acquire bool, fn func(*Session) error) (err error) {
	if acquire {
		d.writeMu.Lock()
		defer d.writeMu.Unlock()
	}

	start := time.Now()
	tx, err := d.db.BeginTxx(ctx, nil)
	recordQuery("begin_transaction", start, err)
	if err != nil {
		return fmt.Errorf("failed to begin session: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(time.Since(start).Seconds())
			panic(p)
		}
	}()

	return endSession(tx, start, fn(&Session{tx: tx, ctx: ctx}))
}

// endSession commits or rolls back a transaction.
func endSession(tx *sqlx.Tx, start time.Time, err error) error {
	duration := time.Since(start).Seconds()

	if err != nil {
		metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(duration)
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}

	metrics.DBTransactionDuration.WithLabelValues("commit").Observe(duration)
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}

	logging.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	for _, path := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.Mode().Perm()&0o200 == 0 {
			logging.Warn("%s is read-only (mode %v), writes will fail", path, info.Mode())
		}
	}

	return nil
}
