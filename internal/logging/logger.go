package logging

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// LogLevel represents the severity of a log entry
type LogLevel string

const (
	LevelDebug LogLevel = "DEBUG"
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
)

var levelRank = map[LogLevel]int{LevelDebug: 0, LevelInfo: 1, LevelWarn: 2, LevelError: 3}

// ParseLevel returns the level for s, defaulting to INFO
func ParseLevel(s string) LogLevel {
	l := LogLevel(s)
	if _, ok := levelRank[l]; ok {
		return l
	}
	switch s {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	}
	return LevelInfo
}

// Logger provides leveled logging to the console and, when a database is attached,
// to the logs table as well
type Logger struct {
	db       *sql.DB
	console  io.Writer
	minLevel LogLevel
	mu       sync.Mutex
}

// LogEntry represents a single log entry
type LogEntry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	RunID     int       `json:"runId"`  // runs.id from the state database
	Region    string    `json:"region"` // region the entry refers to
	Source    string    `json:"source"` // backup source the entry refers to
}

// New creates a new Logger. db may be nil for console-only logging.
// The caller is responsible for closing the database connection.
func New(db *sql.DB, console io.Writer) *Logger {
	if console == nil {
		console = os.Stdout
	}
	return &Logger{
		db:       db,
		console:  console,
		minLevel: LevelInfo,
	}
}

// SetLevel sets the minimum level written to the console. The database receives every entry.
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = level
}

// Log writes a log entry to the console and database
func (l *Logger) Log(level LogLevel, runID int, region, source string, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	message := fmt.Sprintf(format, args...)
	timestamp := time.Now()

	if levelRank[level] >= levelRank[l.minLevel] {
		prefix := timestamp.Format("2006-01-02 15:04:05")
		if region != "" {
			prefix += " [" + region
			if source != "" {
				prefix += "/" + source
			}
			prefix += "]"
		}
		fmt.Fprintf(l.console, "%s %s: %s\n", prefix, level, message)
	}

	if l.db == nil {
		return
	}
	_, err := l.db.Exec(
		"INSERT INTO logs (timestamp, level, message, run_id, region, source) VALUES (?, ?, ?, ?, ?, ?)",
		timestamp, string(level), message, nullInt(runID), nullString(region), nullString(source),
	)
	if err != nil {
		// If DB write fails, at least we have console output
		fmt.Fprintf(l.console, "ERROR: failed to write to log database: %v\n", err)
	}
}

// Info logs an info-level message
func (l *Logger) Info(format string, args ...any) {
	l.Log(LevelInfo, 0, "", "", format, args...)
}

// Warn logs a warning-level message
func (l *Logger) Warn(format string, args ...any) {
	l.Log(LevelWarn, 0, "", "", format, args...)
}

// Error logs an error-level message
func (l *Logger) Error(format string, args ...any) {
	l.Log(LevelError, 0, "", "", format, args...)
}

// Debug logs a debug-level message
func (l *Logger) Debug(format string, args ...any) {
	l.Log(LevelDebug, 0, "", "", format, args...)
}

// Logf provides compatibility with func(string, ...any) callbacks
func (l *Logger) Logf(format string, args ...any) {
	l.Info(format, args...)
}

// QueryOptions defines filters for querying logs
type QueryOptions struct {
	RunID  int
	Region string
	Source string
	Level  LogLevel
	Since  time.Time
	Until  time.Time
	Limit  int
}

const selectLogs = "SELECT id, timestamp, level, message, COALESCE(run_id, 0), COALESCE(region, ''), COALESCE(source, '') FROM logs"

// Query retrieves log entries based on filters, newest first
func (l *Logger) Query(opts QueryOptions) ([]LogEntry, error) {
	if l.db == nil {
		return nil, fmt.Errorf("query logs: no state database configured")
	}
	query := selectLogs + " WHERE 1=1"
	args := []any{}

	if opts.RunID != 0 {
		query += " AND run_id = ?"
		args = append(args, opts.RunID)
	}
	if opts.Region != "" {
		query += " AND region = ?"
		args = append(args, opts.Region)
	}
	if opts.Source != "" {
		query += " AND source = ?"
		args = append(args, opts.Source)
	}
	if opts.Level != "" {
		query += " AND level = ?"
		args = append(args, string(opts.Level))
	}
	if !opts.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, opts.Since)
	}
	if !opts.Until.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, opts.Until)
	}

	query += " ORDER BY timestamp DESC, id DESC"

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	return l.scan(query, args...)
}

// QueryByRunID retrieves the log entries of one run in chronological order
func (l *Logger) QueryByRunID(runID int, limit int) ([]LogEntry, error) {
	if l.db == nil {
		return nil, fmt.Errorf("query logs by run ID: no state database configured")
	}
	query := selectLogs + " WHERE run_id = ? ORDER BY timestamp ASC, id ASC"
	args := []any{runID}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return l.scan(query, args...)
}

func (l *Logger) scan(query string, args ...any) ([]LogEntry, error) {
	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	// Initialize as empty slice so JSON encodes as [] instead of null
	entries := make([]LogEntry, 0)
	for rows.Next() {
		var e LogEntry
		var levelStr string
		if err := rows.Scan(&e.ID, &e.Timestamp, &levelStr, &e.Message, &e.RunID, &e.Region, &e.Source); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		e.Level = LogLevel(levelStr)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// PruneOldLogs removes log entries older than the specified duration
func (l *Logger) PruneOldLogs(olderThan time.Duration) (int64, error) {
	if l.db == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-olderThan)
	result, err := l.db.Exec("DELETE FROM logs WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune logs: %w", err)
	}
	return result.RowsAffected()
}

// nullString returns a sql.NullString for use with nullable columns
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullInt returns a sql.NullInt64 for use with nullable columns
func nullInt(i int) sql.NullInt64 {
	if i == 0 {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: int64(i), Valid: true}
}

// RunLogger wraps a Logger with run, region and source context
type RunLogger struct {
	logger *Logger
	runID  int
	region string
	source string
}

// NewRunLogger creates a RunLogger for one run (runID 0 when no state database is used)
func (l *Logger) NewRunLogger(runID int) *RunLogger {
	return &RunLogger{logger: l, runID: runID}
}

// WithRegion returns a copy scoped to a region
func (rl *RunLogger) WithRegion(region string) *RunLogger {
	return &RunLogger{logger: rl.logger, runID: rl.runID, region: region}
}

// WithSource returns a copy scoped to a backup source within the current region
func (rl *RunLogger) WithSource(source string) *RunLogger {
	return &RunLogger{logger: rl.logger, runID: rl.runID, region: rl.region, source: source}
}

func (rl *RunLogger) Info(format string, args ...any) {
	rl.logger.Log(LevelInfo, rl.runID, rl.region, rl.source, format, args...)
}

func (rl *RunLogger) Warn(format string, args ...any) {
	rl.logger.Log(LevelWarn, rl.runID, rl.region, rl.source, format, args...)
}

func (rl *RunLogger) Error(format string, args ...any) {
	rl.logger.Log(LevelError, rl.runID, rl.region, rl.source, format, args...)
}

func (rl *RunLogger) Debug(format string, args ...any) {
	rl.logger.Log(LevelDebug, rl.runID, rl.region, rl.source, format, args...)
}

// Logf provides compatibility with func(string, ...any) callbacks
func (rl *RunLogger) Logf(format string, args ...any) {
	rl.Info(format, args...)
}

// Debugf is Debug under the callback name used by the lifecycle package
func (rl *RunLogger) Debugf(format string, args ...any) {
	rl.Debug(format, args...)
}
