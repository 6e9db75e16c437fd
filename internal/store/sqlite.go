package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"chartdrill/internal/analysis"
	"chartdrill/internal/analysis/patterns"
	apperrors "chartdrill/internal/errors"
)

// SQLiteStore implements Journal using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Journal = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the journal database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, dbError("failed to open database", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, dbError("failed to initialize schema", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- One row per scan
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		source TEXT NOT NULL,
		detectors TEXT NOT NULL,
		candles INTEGER NOT NULL,
		patterns INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	-- Emitted patterns
	CREATE TABLE IF NOT EXISTS patterns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		type TEXT NOT NULL,
		direction TEXT NOT NULL,
		start_index INTEGER NOT NULL,
		end_index INTEGER NOT NULL,
		expected_entry REAL NOT NULL,
		expected_exit REAL NOT NULL,
		stop_loss REAL NOT NULL,
		quality REAL NOT NULL,
		detector TEXT,
		metadata TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	-- Retest diagnostics, including rejections
	CREATE TABLE IF NOT EXISTS retest_signals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		side TEXT NOT NULL,
		level REAL NOT NULL,
		breakout_index INTEGER NOT NULL,
		payload TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_runs_symbol ON runs(symbol, created_at);
	CREATE INDEX IF NOT EXISTS idx_patterns_run ON patterns(run_id, end_index);
	CREATE INDEX IF NOT EXISTS idx_signals_run ON retest_signals(run_id, breakout_index);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbError tags a SQL failure with ErrDatabaseError, keeping the driver
// error in the chain.
func dbError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, apperrors.ErrDatabaseError, err)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun inserts run, assigning an ID and creation time when they are unset.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (id, symbol, source, detectors, candles, patterns, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Symbol, run.Source, strings.Join(run.Detectors, ","), run.Candles, run.Patterns, run.CreatedAt)
	if err != nil {
		return dbError("failed to save run", err)
	}
	return nil
}

// GetRun returns the run with the given ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, symbol, source, detectors, candles, patterns, created_at
		FROM runs WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.Wrapf(apperrors.ErrDataNotFound, "run %s", id)
	}
	if err != nil {
		return nil, dbError("failed to get run", err)
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT id, symbol, source, detectors, candles, patterns, created_at FROM runs WHERE 1=1`
	args := []interface{}{}

	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if !filter.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, filter.Since.UTC())
	}

	query += " ORDER BY created_at DESC, rowid DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError("failed to query runs", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, dbError("failed to scan run", err)
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, dbError("error iterating runs", err)
	}

	return runs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var detectors string
	if err := row.Scan(&run.ID, &run.Symbol, &run.Source, &detectors, &run.Candles, &run.Patterns, &run.CreatedAt); err != nil {
		return nil, err
	}
	if detectors != "" {
		run.Detectors = strings.Split(detectors, ",")
	}
	run.CreatedAt = run.CreatedAt.UTC()
	return &run, nil
}

// SavePatterns appends patterns to a run.
func (s *SQLiteStore) SavePatterns(ctx context.Context, runID string, patterns []analysis.Pattern) error {
	if len(patterns) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO patterns (run_id, type, direction, start_index, end_index, expected_entry, expected_exit, stop_loss, quality, detector, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return dbError("failed to prepare statement", err)
	}
	defer stmt.Close()

	for _, p := range patterns {
		metadata, err := json.Marshal(p.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		_, err = stmt.ExecContext(ctx, runID, p.Type, p.Direction, p.StartIndex, p.EndIndex,
			p.ExpectedEntry, p.ExpectedExit, p.StopLoss, p.Metadata.Quality, p.Metadata.Detector, string(metadata))
		if err != nil {
			return dbError("failed to insert pattern", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return dbError("failed to commit transaction", err)
	}

	return nil
}

// GetPatterns returns the patterns of a run ordered by end index.
func (s *SQLiteStore) GetPatterns(ctx context.Context, runID string) ([]analysis.Pattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT type, direction, start_index, end_index, expected_entry, expected_exit, stop_loss, metadata
		FROM patterns
		WHERE run_id = ?
		ORDER BY end_index ASC, start_index ASC, id ASC
	`, runID)
	if err != nil {
		return nil, dbError("failed to query patterns", err)
	}
	defer rows.Close()

	out := []analysis.Pattern{}
	for rows.Next() {
		var p analysis.Pattern
		var metadata string
		if err := rows.Scan(&p.Type, &p.Direction, &p.StartIndex, &p.EndIndex,
			&p.ExpectedEntry, &p.ExpectedExit, &p.StopLoss, &metadata); err != nil {
			return nil, dbError("failed to scan pattern", err)
		}
		if err := json.Unmarshal([]byte(metadata), &p.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
		out = append(out, p)
	}

	if err := rows.Err(); err != nil {
		return nil, dbError("error iterating patterns", err)
	}

	return out, nil
}

// SaveSignals appends retest signals to a run.
func (s *SQLiteStore) SaveSignals(ctx context.Context, runID string, signals []patterns.RetestSignal) error {
	if len(signals) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO retest_signals (run_id, kind, side, level, breakout_index, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return dbError("failed to prepare statement", err)
	}
	defer stmt.Close()

	for _, sig := range signals {
		payload, err := json.Marshal(sig)
		if err != nil {
			return fmt.Errorf("failed to encode signal: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, runID, sig.Kind, sig.Side, sig.Level, sig.BreakoutIndex, string(payload)); err != nil {
			return dbError("failed to insert signal", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return dbError("failed to commit transaction", err)
	}

	return nil
}

// GetSignals returns the retest signals of a run ordered by breakout index.
func (s *SQLiteStore) GetSignals(ctx context.Context, runID string) ([]patterns.RetestSignal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM retest_signals
		WHERE run_id = ?
		ORDER BY breakout_index ASC, id ASC
	`, runID)
	if err != nil {
		return nil, dbError("failed to query signals", err)
	}
	defer rows.Close()

	out := []patterns.RetestSignal{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, dbError("failed to scan signal", err)
		}
		var sig patterns.RetestSignal
		if err := json.Unmarshal([]byte(payload), &sig); err != nil {
			return nil, fmt.Errorf("failed to decode signal: %w", err)
		}
		out = append(out, sig)
	}

	if err := rows.Err(); err != nil {
		return nil, dbError("error iterating signals", err)
	}

	return out, nil
}
