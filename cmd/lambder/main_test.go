package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/polarfoxDev/lambder/internal/database"
	"github.com/polarfoxDev/lambder/internal/model"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)
	root.SetArgs(args)
	code := execute(context.Background(), root)
	return code, stdout.String(), stderr.String()
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestVersion(t *testing.T) {
	code, out, _ := runCLI(t, "version")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.HasPrefix(out, "lambder dev") {
		t.Errorf("unexpected version output %q", out)
	}
}

func TestMissingConfigExitsNonZero(t *testing.T) {
	code, _, stderr := runCLI(t, "run", "--config", filepath.Join(t.TempDir(), "missing.yml"))
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr, "read config") {
		t.Errorf("expected config error on stderr, got %q", stderr)
	}
}

func TestInvalidConfigExitsNonZero(t *testing.T) {
	path := writeConfig(t, "regions: []\n")
	t.Setenv("LAMBDER_REGIONS", "")
	t.Setenv("LAMBDER_DEFAULT_REGION", "")
	code, _, stderr := runCLI(t, "--config", path)
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr, "regions") {
		t.Errorf("expected a regions error, got %q", stderr)
	}
}

func TestScheduleRequiresSpec(t *testing.T) {
	path := writeConfig(t, "regions: [eu-west-1]\ndefaultRegion: eu-west-1\n")
	code, _, stderr := runCLI(t, "schedule", "--config", path)
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr, "no schedule") {
		t.Errorf("unexpected stderr %q", stderr)
	}
}

func TestHistoryWithoutStateDB(t *testing.T) {
	path := writeConfig(t, "regions: [eu-west-1]\ndefaultRegion: eu-west-1\n")
	code, _, stderr := runCLI(t, "history", "--config", path)
	if code != 1 || !strings.Contains(stderr, "no stateDB") {
		t.Fatalf("expected stateDB error, got %d %q", code, stderr)
	}
}

func TestHistoryListsRuns(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "state.db")

	db, err := database.InitDB(dbPath)
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	ctx := context.Background()
	started := time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC)
	id, err := db.StartRun(ctx, started, false)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	err = db.FinishRun(ctx, &model.RunReport{
		RunID:       id,
		Status:      model.RunPartialSuccess,
		CompletedAt: started.Add(42 * time.Second),
		Regions:     []model.RegionSummary{{Region: "eu-west-1", Deleted: []string{"ami-1"}}},
		Created:     []string{"ami-2"},
	})
	if err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	db.Close()

	path := writeConfig(t, "regions: [eu-west-1]\ndefaultRegion: eu-west-1\nstateDB: "+dbPath+"\n")
	code, out, stderr := runCLI(t, "history", "--config", path)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, stderr)
	}
	for _, want := range []string{"partial_success", "42s"} {
		if !strings.Contains(out, want) {
			t.Errorf("history output missing %q:\n%s", want, out)
		}
	}
}

func TestHistoryLeavesRunningRunAlone(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "state.db")

	db, err := database.InitDB(dbPath)
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	ctx := context.Background()
	id, err := db.StartRun(ctx, time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC), false)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	db.Close()

	path := writeConfig(t, "regions: [eu-west-1]\ndefaultRegion: eu-west-1\nstateDB: "+dbPath+"\n")
	code, out, stderr := runCLI(t, "history", "--config", path)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, stderr)
	}
	if !strings.Contains(out, string(model.RunInProgress)) {
		t.Errorf("history output missing in-progress run:\n%s", out)
	}

	db, err = database.InitDB(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	run, err := db.GetRun(ctx, id)
	if err != nil || run == nil {
		t.Fatalf("GetRun: %v %v", run, err)
	}
	if run.Status != model.RunInProgress {
		t.Fatalf("expected run to stay %s, got %s", model.RunInProgress, run.Status)
	}
}
