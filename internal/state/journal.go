// Package state 保存掃描執行歷史
// Package state persists the history of scan and load runs so operators
// can see when the index was last rebuilt and how each run went.
package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Run statuses
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusPartial = "partial"
)

// Run represents one recorded scan, load or rescan execution
type Run struct {
	ID        int64
	Operation string // "full-scan", "document-load", "rescan"
	Root      string
	StartTime time.Time
	EndTime   time.Time
	Status    string
	Records   int
	Error     string
}

// Journal handles scan history persistence
type Journal struct {
	db *sql.DB
}

// Open opens the journal colocated with the index database
func Open(dataDir string) (*Journal, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory cannot be empty")
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "journal.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	// Single connection prevents "database is locked" errors
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode and busy timeout: %w", err)
	}

	j := &Journal{db: db}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	return j, nil
}

func (j *Journal) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scan_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		operation TEXT NOT NULL,
		root TEXT NOT NULL,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP NOT NULL,
		status TEXT NOT NULL,
		records INTEGER DEFAULT 0,
		error TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_scan_runs_op_time ON scan_runs(operation, start_time DESC);
	CREATE INDEX IF NOT EXISTS idx_scan_runs_status ON scan_runs(status);
	`

	_, err := j.db.Exec(schema)
	return err
}

// SaveRun records one execution
func (j *Journal) SaveRun(run Run) error {
	if run.Status != StatusSuccess && run.Status != StatusFailed && run.Status != StatusPartial {
		return fmt.Errorf("invalid status: %s", run.Status)
	}

	_, err := j.db.Exec(`
		INSERT INTO scan_runs (operation, root, start_time, end_time, status, records, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.Operation,
		run.Root,
		run.StartTime,
		run.EndTime,
		run.Status,
		run.Records,
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

const runCols = "id, operation, root, start_time, end_time, status, records, error"

func scanRun(rows *sql.Rows) (Run, error) {
	var run Run
	err := rows.Scan(&run.ID, &run.Operation, &run.Root, &run.StartTime, &run.EndTime,
		&run.Status, &run.Records, &run.Error)
	return run, err
}

// History retrieves the most recent runs, newest first
func (j *Journal) History(limit int) ([]Run, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	rows, err := j.db.Query(`
		SELECT `+runCols+`
		FROM scan_runs
		ORDER BY start_time DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// LastSuccess retrieves the most recent successful run of an operation,
// or nil when none has succeeded yet
func (j *Journal) LastSuccess(operation string) (*Run, error) {
	rows, err := j.db.Query(`
		SELECT `+runCols+`
		FROM scan_runs
		WHERE operation = ? AND status = ?
		ORDER BY start_time DESC
		LIMIT 1`, operation, StatusSuccess)
	if err != nil {
		return nil, fmt.Errorf("failed to query last success: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	run, err := scanRun(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	return &run, nil
}

// Close closes the journal database
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}
