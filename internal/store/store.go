// Package store persists Records in a sqlite database with a full-text
// mirror. The primary table and the FTS table are kept row-consistent
// inside every write transaction.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lightsearch/lightsearch/internal/domain"
)

// Metadata keys maintained by the store
const (
	MetaLastFullScan    = "last_full_scan"
	MetaLastIncremental = "last_incremental_update"
	MetaTotalFiles      = "total_files"
)

// DefaultBatchSize is the number of records per bulk-load transaction
const DefaultBatchSize = 1000

// Store wraps the sqlite index database
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the index database at dbPath
func Open(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection prevents "database is locked" between our own
	// statements; concurrent readers open their own Store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// WAL keeps readers non-blocking while a writer transaction commits
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000; PRAGMA synchronous=NORMAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// initSchema creates the database schema
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		inode INTEGER NOT NULL DEFAULT 0,
		size INTEGER NOT NULL DEFAULT 0,
		mtime INTEGER NOT NULL DEFAULT 0,
		mode INTEGER NOT NULL DEFAULT 0,
		is_dir INTEGER NOT NULL DEFAULT 0,
		indexed_at INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_files_name ON files(name);
	CREATE INDEX IF NOT EXISTS idx_files_size ON files(size);
	CREATE INDEX IF NOT EXISTS idx_files_mtime ON files(mtime);
	CREATE INDEX IF NOT EXISTS idx_files_is_dir ON files(is_dir);
	CREATE INDEX IF NOT EXISTS idx_files_inode ON files(inode);

	CREATE VIRTUAL TABLE IF NOT EXISTS files_fts USING fts5(name, path);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

// DB exposes the underlying handle to the query engine
func (s *Store) DB() *sql.DB {
	return s.db
}

const upsertSQL = `
	INSERT INTO files (path, name, inode, size, mtime, mode, is_dir, indexed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(path) DO UPDATE SET
		name = excluded.name,
		inode = excluded.inode,
		size = excluded.size,
		mtime = excluded.mtime,
		mode = excluded.mode,
		is_dir = excluded.is_dir,
		indexed_at = MAX(files.indexed_at, excluded.indexed_at)
`

// mirrorSQL refreshes the FTS row for one path inside the same transaction
const mirrorSQL = `
	INSERT OR REPLACE INTO files_fts (rowid, name, path)
	SELECT id, name, path FROM files WHERE path = ?
`

func execUpsert(tx *sql.Tx, rec domain.Record, now int64) error {
	if _, err := tx.Exec(upsertSQL,
		rec.Path, rec.Name, rec.Inode, rec.Size, rec.ModTime.Unix(),
		rec.Mode, boolToInt(rec.IsDir), now,
	); err != nil {
		return err
	}
	_, err := tx.Exec(mirrorSQL, rec.Path)
	return err
}

// BulkLoad inserts many records inside batched transactions. Upsert-by-path
// semantics make an interrupted load safe to re-run without duplicating rows.
func (s *Store) BulkLoad(records []domain.Record, batchSize int) error {
	if err := s.BulkUpsert(records, batchSize); err != nil {
		return err
	}

	if err := s.SetMetadata(MetaLastFullScan, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return s.SetMetadata(MetaTotalFiles, fmt.Sprintf("%d", len(records)))
}

// BulkUpsert batches records into the store without touching the scan
// metadata. Partial loads (a single subtree) go through here so they
// cannot masquerade as a full scan.
func (s *Store) BulkUpsert(records []domain.Record, batchSize int) error {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		if err := s.loadBatch(records[start:end]); err != nil {
			return fmt.Errorf("bulk load failed at record %d: %w", start, err)
		}
	}
	return nil
}

func (s *Store) loadBatch(records []domain.Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	now := time.Now().Unix()
	for _, rec := range records {
		if err := execUpsert(tx, rec, now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	committed = true
	return nil
}

// Upsert inserts or replaces one record by path
func (s *Store) Upsert(rec domain.Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if err := execUpsert(tx, rec, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to upsert %s: %w", rec.Path, err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true

	return s.SetMetadata(MetaLastIncremental, time.Now().UTC().Format(time.RFC3339))
}

// Remove deletes the record at path, mirror row included
func (s *Store) Remove(path string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if _, err := tx.Exec(`DELETE FROM files_fts WHERE rowid IN (SELECT id FROM files WHERE path = ?)`, path); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM files WHERE path = ?`, path); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true

	return s.SetMetadata(MetaLastIncremental, time.Now().UTC().Format(time.RFC3339))
}

// RemoveTree deletes the record at root and every record beneath it.
// Deep subtrees never produce their own change events, so a directory
// removal has to sweep the whole prefix.
func (s *Store) RemoveTree(root string) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	prefix := root + string(filepath.Separator) + "%"
	if _, err := tx.Exec(
		`DELETE FROM files_fts WHERE rowid IN (SELECT id FROM files WHERE path = ? OR path LIKE ?)`,
		root, prefix,
	); err != nil {
		return 0, err
	}
	res, err := tx.Exec(`DELETE FROM files WHERE path = ? OR path LIKE ?`, root, prefix)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true

	if err := s.SetMetadata(MetaLastIncremental, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return n, err
	}
	return n, nil
}

// Rename collapses a correlated delete+create pair into a path update for
// the row matching oldPath and inode, preserving the row identity
func (s *Store) Rename(oldPath, newPath string, inode uint64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	// A rename can land on a path that is still indexed (mv over an
	// existing file). The overwritten row has to go first or the UNIQUE
	// constraint on path rejects the update.
	if _, err := tx.Exec(
		`DELETE FROM files_fts WHERE rowid IN (SELECT id FROM files WHERE path = ? AND inode != ?)`,
		newPath, inode,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`DELETE FROM files WHERE path = ? AND inode != ?`, newPath, inode,
	); err != nil {
		return err
	}

	newName := filepath.Base(newPath)
	res, err := tx.Exec(`
		UPDATE files SET path = ?, name = ?, indexed_at = MAX(indexed_at, ?)
		WHERE path = ? AND inode = ?`,
		newPath, newName, time.Now().Unix(), oldPath, inode,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s (inode %d)", domain.ErrNotFound, oldPath, inode)
	}

	if _, err := tx.Exec(mirrorSQL, newPath); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true

	return s.SetMetadata(MetaLastIncremental, time.Now().UTC().Format(time.RFC3339))
}

// LookupInode returns the stored inode for path
func (s *Store) LookupInode(path string) (uint64, bool) {
	var inode uint64
	err := s.db.QueryRow(`SELECT inode FROM files WHERE path = ?`, path).Scan(&inode)
	if err != nil {
		return 0, false
	}
	return inode, true
}

// Get returns the record at path, or ErrNotFound
func (s *Store) Get(path string) (domain.Record, error) {
	var rec domain.Record
	var mtime, indexedAt int64
	var isDir int
	err := s.db.QueryRow(`
		SELECT path, name, inode, size, mtime, mode, is_dir, indexed_at
		FROM files WHERE path = ?`, path,
	).Scan(&rec.Path, &rec.Name, &rec.Inode, &rec.Size, &mtime, &rec.Mode, &isDir, &indexedAt)
	if err == sql.ErrNoRows {
		return rec, fmt.Errorf("%w: %s", domain.ErrNotFound, path)
	}
	if err != nil {
		return rec, fmt.Errorf("failed to get %s: %w", path, err)
	}
	rec.ModTime = time.Unix(mtime, 0)
	rec.IndexedAt = time.Unix(indexedAt, 0)
	rec.IsDir = isDir != 0
	return rec, nil
}

// SizeCandidates returns files (never directories) of at least minSize
// whose size is shared with at least one other file, ordered by size
// descending. Size collision is a cheap prefilter for duplicate
// detection; content hashing settles the rest.
func (s *Store) SizeCandidates(minSize int64) ([]domain.Record, error) {
	rows, err := s.db.Query(`
		SELECT path, name, inode, size, mtime, mode, is_dir, indexed_at
		FROM files
		WHERE is_dir = 0 AND size >= ?
		  AND size IN (
			SELECT size FROM files
			WHERE is_dir = 0 AND size >= ?
			GROUP BY size HAVING COUNT(*) > 1
		  )
		ORDER BY size DESC, path`, minSize, minSize)
	if err != nil {
		return nil, fmt.Errorf("failed to query size candidates: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// ListUnder returns every record at root or beneath it, ordered by path
func (s *Store) ListUnder(root string) ([]domain.Record, error) {
	prefix := root + string(filepath.Separator) + "%"
	rows, err := s.db.Query(`
		SELECT path, name, inode, size, mtime, mode, is_dir, indexed_at
		FROM files
		WHERE path = ? OR path LIKE ?
		ORDER BY path`, root, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list under %s: %w", root, err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

func collectRecords(rows *sql.Rows) ([]domain.Record, error) {
	var records []domain.Record
	for rows.Next() {
		var rec domain.Record
		var mtime, indexedAt int64
		var isDir int
		if err := rows.Scan(&rec.Path, &rec.Name, &rec.Inode, &rec.Size,
			&mtime, &rec.Mode, &isDir, &indexedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.ModTime = time.Unix(mtime, 0)
		rec.IndexedAt = time.Unix(indexedAt, 0)
		rec.IsDir = isDir != 0
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return records, nil
}

// DeleteStale removes rows under root whose indexed_at predates cutoff.
// Used to reconcile the store after an overflow-triggered rescan: rows the
// rescan re-observed carry a fresh indexed_at and survive.
func (s *Store) DeleteStale(root string, cutoff time.Time) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	prefix := root + string(filepath.Separator) + "%"
	where := `(path = ? OR path LIKE ?) AND indexed_at < ?`

	if _, err := tx.Exec(
		`DELETE FROM files_fts WHERE rowid IN (SELECT id FROM files WHERE `+where+`)`,
		root, prefix, cutoff.Unix(),
	); err != nil {
		return 0, err
	}
	res, err := tx.Exec(`DELETE FROM files WHERE `+where, root, prefix, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true
	return n, nil
}

// Count returns the number of indexed records
func (s *Store) Count() (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM files`).Scan(&n)
	return n, err
}

// SetMetadata upserts one metadata key
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set metadata %s: %w", key, err)
	}
	return nil
}

// GetMetadata reads one metadata key; ok is false when unset
func (s *Store) GetMetadata(key string) (string, bool) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", false
	}
	return value, true
}

// Optimize refreshes planner statistics and compacts the FTS structure,
// run after a bulk load
func (s *Store) Optimize() error {
	if _, err := s.db.Exec(`INSERT INTO files_fts(files_fts) VALUES('optimize')`); err != nil {
		return err
	}
	_, err := s.db.Exec(`ANALYZE`)
	return err
}

// Warm touches the hot rows and index pages so first queries hit cache
func (s *Store) Warm() error {
	statements := []string{
		`SELECT COUNT(*) FROM files`,
		`SELECT name FROM files ORDER BY name LIMIT 1000`,
		`SELECT rowid FROM files_fts LIMIT 5000`,
		`SELECT path FROM files WHERE is_dir = 1 LIMIT 1000`,
	}
	for _, q := range statements {
		rows, err := s.db.Query(q)
		if err != nil {
			return err
		}
		for rows.Next() {
		}
		if err := rows.Close(); err != nil {
			return err
		}
	}
	return nil
}

// SizeOnDisk reports the database file size in bytes
func (s *Store) SizeOnDisk() int64 {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
