package logging

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/polarfoxDev/lambder/internal/database"
)

// helper function to create a test database with proper schema
func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.InitDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to initialize test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLogger_BasicLogging(t *testing.T) {
	db := setupTestDB(t)

	console := &bytes.Buffer{}
	logger := New(db.GetDB(), console)

	logger.Info("test info message")
	logger.Warn("test warning message")
	logger.Error("test error message")

	output := console.String()
	for _, want := range []string{"INFO: test info message", "WARN: test warning message", "ERROR: test error message"} {
		if !strings.Contains(output, want) {
			t.Errorf("console output missing %q: %s", want, output)
		}
	}
}

func TestLogger_ConsoleOnly(t *testing.T) {
	console := &bytes.Buffer{}
	logger := New(nil, console)

	logger.NewRunLogger(0).WithRegion("eu-west-1").WithSource("db").Info("deleting %s", "ami-1")

	if !strings.Contains(console.String(), "[eu-west-1/db] INFO: deleting ami-1") {
		t.Fatalf("unexpected console output: %s", console.String())
	}
	if _, err := logger.Query(QueryOptions{}); err == nil {
		t.Fatalf("expected query error without database")
	}
	if n, err := logger.PruneOldLogs(time.Hour); err != nil || n != 0 {
		t.Fatalf("PruneOldLogs without database = (%d, %v)", n, err)
	}
}

func TestLogger_LevelFiltersConsoleOnly(t *testing.T) {
	db := setupTestDB(t)

	console := &bytes.Buffer{}
	logger := New(db.GetDB(), console)
	logger.Debug("hidden by default")
	logger.SetLevel(LevelDebug)
	logger.Debug("now visible")

	if strings.Contains(console.String(), "hidden by default") {
		t.Errorf("debug message should not reach console at INFO level")
	}
	if !strings.Contains(console.String(), "now visible") {
		t.Errorf("debug message missing after SetLevel(DEBUG)")
	}

	entries, err := logger.Query(QueryOptions{Level: LevelDebug})
	if err != nil {
		t.Fatalf("failed to query logs: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected both debug entries in database, got %d", len(entries))
	}
}

func TestLogger_RunContext(t *testing.T) {
	db := setupTestDB(t)
	logger := New(db.GetDB(), &bytes.Buffer{})

	run := logger.NewRunLogger(7)
	run.Info("run started")
	run.WithRegion("eu-west-1").Info("pruning")
	run.WithRegion("eu-west-1").WithSource("db").Warn("deleting ami-1")
	run.WithRegion("us-east-1").WithSource("web").Error("deregister failed")
	logger.NewRunLogger(8).Info("other run")

	entries, err := logger.Query(QueryOptions{Region: "eu-west-1"})
	if err != nil {
		t.Fatalf("failed to query logs: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries for eu-west-1, got %d", len(entries))
	}

	entries, err = logger.Query(QueryOptions{Source: "db"})
	if err != nil {
		t.Fatalf("failed to query logs: %v", err)
	}
	if len(entries) != 1 || entries[0].RunID != 7 || entries[0].Region != "eu-west-1" || entries[0].Message != "deleting ami-1" {
		t.Fatalf("unexpected entries for source db: %+v", entries)
	}

	byRun, err := logger.QueryByRunID(7, 0)
	if err != nil {
		t.Fatalf("failed to query by run: %v", err)
	}
	if len(byRun) != 4 {
		t.Fatalf("expected 4 entries for run 7, got %d", len(byRun))
	}
	if byRun[0].Message != "run started" || byRun[3].Message != "deregister failed" {
		t.Fatalf("expected chronological order, got %q .. %q", byRun[0].Message, byRun[3].Message)
	}
}

func TestLogger_QueryByLevel(t *testing.T) {
	db := setupTestDB(t)
	logger := New(db.GetDB(), &bytes.Buffer{})

	logger.Info("info message")
	logger.Error("error message")
	logger.Warn("warning message")
	logger.Error("another error")

	entries, err := logger.Query(QueryOptions{Level: LevelError})
	if err != nil {
		t.Fatalf("failed to query logs: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 error entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Level != LevelError {
			t.Errorf("expected level ERROR, got %s", e.Level)
		}
	}
}

func TestLogger_QueryByTimeRange(t *testing.T) {
	db := setupTestDB(t)
	logger := New(db.GetDB(), &bytes.Buffer{})

	start := time.Now()
	logger.Info("message 1")
	time.Sleep(10 * time.Millisecond)
	middle := time.Now()
	time.Sleep(10 * time.Millisecond)
	logger.Info("message 2")
	end := time.Now()

	entries, err := logger.Query(QueryOptions{Since: middle})
	if err != nil {
		t.Fatalf("failed to query logs: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry after middle, got %d", len(entries))
	}
	if entries[0].Message != "message 2" {
		t.Errorf("expected 'message 2', got '%s'", entries[0].Message)
	}

	entries, err = logger.Query(QueryOptions{Since: start, Until: end})
	if err != nil {
		t.Fatalf("failed to query logs: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries in range, got %d", len(entries))
	}
}

func TestLogger_QueryWithLimit(t *testing.T) {
	db := setupTestDB(t)
	logger := New(db.GetDB(), &bytes.Buffer{})

	for i := 0; i < 10; i++ {
		logger.Info("message %d", i)
	}

	entries, err := logger.Query(QueryOptions{Limit: 5})
	if err != nil {
		t.Fatalf("failed to query logs: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}
}

func TestLogger_PruneOldLogs(t *testing.T) {
	db := setupTestDB(t)
	logger := New(db.GetDB(), &bytes.Buffer{})

	logger.Info("message 1")
	logger.Info("message 2")
	logger.Info("message 3")

	deleted, err := logger.PruneOldLogs(1 * time.Hour)
	if err != nil {
		t.Fatalf("failed to prune logs: %v", err)
	}
	if deleted != 0 {
		t.Errorf("expected 0 deleted entries, got %d", deleted)
	}

	// Prune logs older than -1 hour (should delete all)
	deleted, err = logger.PruneOldLogs(-1 * time.Hour)
	if err != nil {
		t.Fatalf("failed to prune logs: %v", err)
	}
	if deleted != 3 {
		t.Errorf("expected 3 deleted entries, got %d", deleted)
	}

	entries, err := logger.Query(QueryOptions{})
	if err != nil {
		t.Fatalf("failed to query logs: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected 0 entries after pruning, got %d", len(entries))
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"DEBUG":   LevelDebug,
		"debug":   LevelDebug,
		"warning": LevelWarn,
		"ERROR":   LevelError,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
