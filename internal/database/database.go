package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/polarfoxDev/lambder/internal/model"
	_ "modernc.org/sqlite"
)

type DB struct {
	db *sql.DB
}

func InitDB(dbPath string) (*DB, error) {
	// Retry logic for handling concurrent initialization
	var db *sql.DB
	var err error
	maxRetries := 5
	baseDelay := 100 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			delay := baseDelay * time.Duration(1<<uint(attempt-1))
			time.Sleep(delay)
		}

		db, err = sql.Open("sqlite", dbPath)
		if err != nil {
			if attempt == maxRetries-1 {
				return nil, fmt.Errorf("failed to open database after %d attempts: %w", maxRetries, err)
			}
			continue
		}

		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(time.Minute * 5)

		pragmas := []string{
			"PRAGMA busy_timeout = 10000", // 10 second timeout - set this FIRST
			"PRAGMA journal_mode = WAL",
			"PRAGMA foreign_keys = ON",
			"PRAGMA synchronous = NORMAL",
		}

		pragmaFailed := false
		for _, pragma := range pragmas {
			if _, err = db.Exec(pragma); err != nil {
				db.Close()
				if attempt == maxRetries-1 {
					return nil, fmt.Errorf("failed to set pragma %q after %d attempts: %w", pragma, maxRetries, err)
				}
				pragmaFailed = true
				break
			}
		}

		if pragmaFailed {
			continue
		}

		if err = createSchema(db); err != nil {
			db.Close()
			if attempt == maxRetries-1 {
				return nil, fmt.Errorf("failed to create schema after %d attempts: %w", maxRetries, err)
			}
			continue
		}

		return &DB{db: db}, nil
	}

	return nil, fmt.Errorf("failed to initialize database after %d attempts: %w", maxRetries, err)
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		status TEXT NOT NULL,
		dry_run INTEGER DEFAULT 0,
		started_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP,
		images_deleted INTEGER DEFAULT 0,
		images_created INTEGER DEFAULT 0,
		failures INTEGER DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

	CREATE TABLE IF NOT EXISTS logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		run_id INTEGER,
		region TEXT,
		source TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_logs_timestamp ON logs(timestamp);
	CREATE INDEX IF NOT EXISTS idx_logs_run_id ON logs(run_id);
	CREATE INDEX IF NOT EXISTS idx_logs_region ON logs(region);
	CREATE INDEX IF NOT EXISTS idx_logs_source ON logs(source);
	CREATE INDEX IF NOT EXISTS idx_logs_level ON logs(level);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

// GetDB returns the underlying *sql.DB for use by other packages (e.g., logger)
func (d *DB) GetDB() *sql.DB {
	return d.db
}

// CleanupInterruptedRuns marks runs left in progress by a killed process as aborted
func (d *DB) CleanupInterruptedRuns(ctx context.Context) (int, error) {
	query := `
		UPDATE runs
		SET status = ?, updated_at = ?
		WHERE status = ?
	`

	result, err := d.db.ExecContext(ctx, query, model.RunAborted, time.Now(), model.RunInProgress)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup interrupted runs: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rowsAffected), nil
}

// StartRun inserts a new in-progress run and returns its ID
func (d *DB) StartRun(ctx context.Context, startedAt time.Time, dryRun bool) (int, error) {
	now := time.Now()
	result, err := d.db.ExecContext(ctx,
		`INSERT INTO runs (status, dry_run, started_at, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		model.RunInProgress, dryRun, startedAt, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to start run: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return int(id), nil
}

// FinishRun stores the outcome of a run
func (d *DB) FinishRun(ctx context.Context, report *model.RunReport) error {
	query := `
	UPDATE runs SET
		status = ?,
		completed_at = ?,
		images_deleted = ?,
		images_created = ?,
		failures = ?,
		updated_at = ?
	WHERE id = ?
	`

	_, err := d.db.ExecContext(ctx, query,
		report.Status,
		report.CompletedAt,
		report.DeletedCount(),
		len(report.Created),
		len(report.Failures),
		time.Now(),
		report.RunID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %d: %w", report.RunID, err)
	}
	return nil
}

const selectRuns = `
	SELECT id, status, dry_run, started_at, completed_at,
		images_deleted, images_created, failures,
		created_at, updated_at
	FROM runs
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.RunRecord, error) {
	run := &model.RunRecord{}
	err := row.Scan(
		&run.ID, &run.Status, &run.DryRun, &run.StartedAt, &run.CompletedAt,
		&run.ImagesDeleted, &run.ImagesCreated, &run.Failures,
		&run.CreatedAt, &run.UpdatedAt,
	)
	return run, err
}

// GetRun retrieves a run by its ID, nil if it does not exist
func (d *DB) GetRun(ctx context.Context, id int) (*model.RunRecord, error) {
	run, err := scanRun(d.db.QueryRowContext(ctx, selectRuns+" WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first
func (d *DB) ListRuns(ctx context.Context, limit int) ([]*model.RunRecord, error) {
	query := selectRuns + " ORDER BY id DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	// Initialize as empty slice so JSON encodes as [] instead of null
	runs := make([]*model.RunRecord, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
