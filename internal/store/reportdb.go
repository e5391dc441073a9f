package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/GoSim-25-26J-441/coverage-core/internal/search"
	"github.com/GoSim-25-26J-441/coverage-core/pkg/config"
	"github.com/GoSim-25-26J-441/coverage-core/pkg/models"
)

// DatabaseFile is the name of the database inside the store directory
const DatabaseFile = "coverage.db"

// ErrNotFound is returned when a run or report does not exist
var ErrNotFound = errors.New("not found")

// ReportDB stores runs, reports and per-algorithm results
type ReportDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures ReportDB behavior
type Options struct {
	// CreateIfNotExists creates the directory and database file when missing
	CreateIfNotExists bool
	// EnableWAL enables write-ahead logging
	EnableWAL bool
}

// DefaultOptions returns the default database options
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the database in dir
func Open(dir string, opts Options) (*ReportDB, error) {
	dbPath := filepath.Join(dir, DatabaseFile)

	mode := "rw"
	if opts.CreateIfNotExists {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		mode = "rwc"
	} else if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("database not available at %s: %w", dbPath, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?mode="+mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	rdb := &ReportDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if err := rdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return rdb, nil
}

// Path returns the database file path
func (r *ReportDB) Path() string {
	return r.dbPath
}

// Close closes the database connection
func (r *ReportDB) Close() error {
	return r.db.Close()
}

func (r *ReportDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		started_at INTEGER NOT NULL DEFAULT 0,
		ended_at INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		experiment_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);

	CREATE TABLE IF NOT EXISTS reports (
		run_id TEXT PRIMARY KEY REFERENCES runs(id) ON DELETE CASCADE,
		winner TEXT NOT NULL,
		improvement REAL NOT NULL,
		cancelled INTEGER NOT NULL DEFAULT 0,
		report_json TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		algorithm TEXT NOT NULL,
		area INTEGER NOT NULL,
		elapsed_ms INTEGER NOT NULL,
		iterations INTEGER NOT NULL,
		placement_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_results_algorithm_area ON results(algorithm, area DESC);
	`
	_, err := r.db.ExecContext(context.Background(), schema)
	return err
}

// StoredRun is a run together with the experiment it executed
type StoredRun struct {
	Run        models.Run
	Experiment *config.Experiment
}

// SaveRun inserts or updates a run
func (r *ReportDB) SaveRun(ctx context.Context, run *models.Run, exp *config.Experiment) error {
	var expJSON []byte
	if exp != nil {
		var err error
		if expJSON, err = json.Marshal(exp); err != nil {
			return fmt.Errorf("failed to serialize experiment: %w", err)
		}
	}

	query := `
	INSERT INTO runs (id, status, created_at, started_at, ended_at, error, experiment_json)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		status = excluded.status,
		started_at = excluded.started_at,
		ended_at = excluded.ended_at,
		error = excluded.error,
		experiment_json = COALESCE(excluded.experiment_json, runs.experiment_json)
	`
	_, err := r.db.ExecContext(ctx, query,
		run.ID, string(run.Status), toMillis(run.CreatedAt), toMillis(run.StartedAt),
		toMillis(run.EndedAt), run.Error, nullString(expJSON))
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun loads a run by id
func (r *ReportDB) GetRun(ctx context.Context, id string) (*StoredRun, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, status, created_at, started_at, ended_at, error, experiment_json
	FROM runs WHERE id = ?`, id)

	stored, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return stored, err
}

// ListRuns returns the most recent runs first
func (r *ReportDB) ListRuns(ctx context.Context, limit int) ([]*StoredRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, status, created_at, started_at, ended_at, error, experiment_json
	FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*StoredRun
	for rows.Next() {
		stored, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, stored)
	}
	return runs, rows.Err()
}

// SaveReport stores the comparison of a run and one row per result,
// replacing anything stored for the run before.
func (r *ReportDB) SaveReport(ctx context.Context, runID string, report *search.ComparisonReport) error {
	if report == nil || report.Winner == nil {
		return errors.New("report has no results")
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO reports (run_id, winner, improvement, cancelled, report_json, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id) DO UPDATE SET
		winner = excluded.winner,
		improvement = excluded.improvement,
		cancelled = excluded.cancelled,
		report_json = excluded.report_json,
		created_at = excluded.created_at`,
		runID, report.Winner.Algorithm, report.Improvement, report.Cancelled, string(reportJSON), toMillis(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save report for %s: %w", runID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM results WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to clear results for %s: %w", runID, err)
	}
	for _, res := range report.Results {
		placement, err := json.Marshal(res.Placement)
		if err != nil {
			return fmt.Errorf("failed to serialize placement: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
		INSERT INTO results (run_id, algorithm, area, elapsed_ms, iterations, placement_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
			runID, res.Algorithm, res.Area, res.Elapsed.Milliseconds(), res.Iterations, string(placement))
		if err != nil {
			return fmt.Errorf("failed to save %s result: %w", res.Algorithm, err)
		}
	}

	return tx.Commit()
}

// GetReport loads the comparison of a run
func (r *ReportDB) GetReport(ctx context.Context, runID string) (*search.ComparisonReport, error) {
	var reportJSON string
	err := r.db.QueryRowContext(ctx, `SELECT report_json FROM reports WHERE run_id = ?`, runID).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("report %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load report %s: %w", runID, err)
	}

	var report search.ComparisonReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to decode report %s: %w", runID, err)
	}
	// Winner is serialized as a copy; point it back into Results
	if report.Winner != nil {
		for _, res := range report.Results {
			if res.Algorithm == report.Winner.Algorithm && res.Area == report.Winner.Area {
				report.Winner = res
				break
			}
		}
	}
	return &report, nil
}

// ResultRow is one stored search result
type ResultRow struct {
	RunID      string
	Algorithm  string
	Area       int
	Elapsed    time.Duration
	Iterations int
}

// BestResults returns the highest-area results of an algorithm across all runs.
// An empty algorithm matches every algorithm.
func (r *ReportDB) BestResults(ctx context.Context, algorithm string, limit int) ([]ResultRow, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `
	SELECT run_id, algorithm, area, elapsed_ms, iterations
	FROM results
	WHERE ? = '' OR algorithm = ?
	ORDER BY area DESC, id
	LIMIT ?`, algorithm, algorithm, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var out []ResultRow
	for rows.Next() {
		var (
			row       ResultRow
			elapsedMs int64
		)
		if err := rows.Scan(&row.RunID, &row.Algorithm, &row.Area, &elapsedMs, &row.Iterations); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		row.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		out = append(out, row)
	}
	return out, rows.Err()
}

// DeleteRun removes a run with its report and results
func (r *ReportDB) DeleteRun(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{
		`DELETE FROM results WHERE run_id = ?`,
		`DELETE FROM reports WHERE run_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("failed to delete run %s: %w", id, err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*StoredRun, error) {
	var (
		stored                  StoredRun
		status                  string
		created, started, ended int64
		expJSON                 sql.NullString
	)
	if err := row.Scan(&stored.Run.ID, &status, &created, &started, &ended, &stored.Run.Error, &expJSON); err != nil {
		return nil, err
	}
	stored.Run.Status = models.RunStatus(status)
	stored.Run.CreatedAt = fromMillis(created)
	stored.Run.StartedAt = fromMillis(started)
	stored.Run.EndedAt = fromMillis(ended)

	if expJSON.Valid && expJSON.String != "" {
		var exp config.Experiment
		if err := json.Unmarshal([]byte(expJSON.String), &exp); err != nil {
			return nil, fmt.Errorf("failed to decode experiment of %s: %w", stored.Run.ID, err)
		}
		stored.Experiment = &exp
	}
	return &stored, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func nullString(b []byte) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
