package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfgYAML := `
regions: [eu-west-1, us-east-1]
defaultRegion: eu-west-1
`
	cfg, err := Load(writeTempConfig(t, cfgYAML))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(cfg.Regions) != 2 || cfg.Regions[0] != "eu-west-1" || cfg.Regions[1] != "us-east-1" {
		t.Fatalf("unexpected regions: %v", cfg.Regions)
	}
	if cfg.MaxToKeep != 3 {
		t.Fatalf("expected default maxToKeep 3, got %d", cfg.MaxToKeep)
	}
	if cfg.BackupTag != "LambderBackup" || cfg.ReplicateTag != "LambderReplicate" {
		t.Fatalf("unexpected default tags: %q %q", cfg.BackupTag, cfg.ReplicateTag)
	}
	if cfg.NoReboot == nil || !*cfg.NoReboot {
		t.Fatalf("expected noReboot default true")
	}
	if cfg.DeregisterTimeout.Std() != DefaultDeregisterTimeout || cfg.SnapshotTimeout.Std() != DefaultSnapshotTimeout {
		t.Fatalf("unexpected default timeouts: %v %v", cfg.DeregisterTimeout.Std(), cfg.SnapshotTimeout.Std())
	}
	if cfg.RunTimeout != 0 {
		t.Fatalf("expected unbounded run timeout, got %v", cfg.RunTimeout.Std())
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("AWS_KEY", "key123")
	t.Setenv("AWS_SECRET", "sec456")
	t.Setenv("PRIMARY", "eu-central-1")
	cfgYAML := `
regions: "${PRIMARY}, us-east-1 ,eu-central-1"
defaultRegion: $PRIMARY
maxToKeep: 5
backupTag: Backup
replicateTag: Replicate
noReboot: false
deregisterTimeout: 90s
snapshotTimeout: 3m
runTimeout: 1h
schedule: "0 3 * * *"
stateDB: /tmp/lambder.db
aws:
  accessKeyId: ${AWS_KEY}
  secretAccessKey: $AWS_SECRET
  endpoint: http://localhost:4566
`
	cfg, err := Load(writeTempConfig(t, cfgYAML))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(cfg.Regions) != 2 || cfg.Regions[0] != "eu-central-1" || cfg.Regions[1] != "us-east-1" {
		t.Fatalf("regions not expanded/deduplicated: %v", cfg.Regions)
	}
	if cfg.DefaultRegion != "eu-central-1" {
		t.Fatalf("defaultRegion not expanded: %q", cfg.DefaultRegion)
	}
	if cfg.MaxToKeep != 5 || cfg.BackupTag != "Backup" || cfg.ReplicateTag != "Replicate" {
		t.Fatalf("unexpected values: %+v", cfg)
	}
	if *cfg.NoReboot {
		t.Fatalf("expected noReboot false")
	}
	if cfg.DeregisterTimeout.Std() != 90*time.Second || cfg.SnapshotTimeout.Std() != 3*time.Minute || cfg.RunTimeout.Std() != time.Hour {
		t.Fatalf("unexpected durations: %v %v %v", cfg.DeregisterTimeout.Std(), cfg.SnapshotTimeout.Std(), cfg.RunTimeout.Std())
	}
	if cfg.AWS.AccessKeyID != "key123" || cfg.AWS.SecretAccessKey != "sec456" {
		t.Fatalf("aws credentials not expanded: %+v", cfg.AWS)
	}
	if cfg.AWS.Endpoint != "http://localhost:4566" {
		t.Fatalf("unexpected endpoint: %q", cfg.AWS.Endpoint)
	}
}

func TestLoad_EnvOverridesRegions(t *testing.T) {
	t.Setenv("LAMBDER_REGIONS", "ap-southeast-2,us-west-2")
	t.Setenv("LAMBDER_DEFAULT_REGION", "us-west-2")
	cfg, err := Load(writeTempConfig(t, "regions: [eu-west-1]\ndefaultRegion: eu-west-1\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(cfg.Regions) != 2 || cfg.Regions[0] != "ap-southeast-2" || cfg.DefaultRegion != "us-west-2" {
		t.Fatalf("env overrides not applied: %v %q", cfg.Regions, cfg.DefaultRegion)
	}
}

func TestLoad_DefaultRegionIsSwept(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, "regions: [us-east-1]\ndefaultRegion: eu-west-1\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(cfg.Regions) != 2 || cfg.Regions[0] != "us-east-1" || cfg.Regions[1] != "eu-west-1" {
		t.Fatalf("expected default region appended to regions, got %v", cfg.Regions)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	if err == nil || !strings.Contains(err.Error(), "read config") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		cfgYAML string
		wantErr string
	}{
		{
			name:    "no regions",
			cfgYAML: "defaultRegion: eu-west-1\n",
			wantErr: "at least one region is required",
		},
		{
			name:    "empty region string",
			cfgYAML: "regions: \"\"\ndefaultRegion: eu-west-1\n",
			wantErr: "at least one region is required",
		},
		{
			name:    "no default region",
			cfgYAML: "regions: [eu-west-1]\n",
			wantErr: "defaultRegion: required",
		},
		{
			name:    "negative maxToKeep",
			cfgYAML: "regions: [eu-west-1]\ndefaultRegion: eu-west-1\nmaxToKeep: -1\n",
			wantErr: "maxToKeep: must be >= 1",
		},
		{
			name:    "same tags",
			cfgYAML: "regions: [eu-west-1]\ndefaultRegion: eu-west-1\nbackupTag: X\nreplicateTag: X\n",
			wantErr: "must differ",
		},
		{
			name:    "bad duration",
			cfgYAML: "regions: [eu-west-1]\ndefaultRegion: eu-west-1\nderegisterTimeout: soon\n",
			wantErr: "invalid duration",
		},
		{
			name:    "bad schedule",
			cfgYAML: "regions: [eu-west-1]\ndefaultRegion: eu-west-1\nschedule: \"0 3 * *\"\n",
			wantErr: "schedule:",
		},
		{
			name:    "half credentials",
			cfgYAML: "regions: [eu-west-1]\ndefaultRegion: eu-west-1\naws:\n  accessKeyId: abc\n",
			wantErr: "must be set together",
		},
		{
			name:    "malformed yaml",
			cfgYAML: "regions: [eu-west-1\n",
			wantErr: "parse config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTempConfig(t, tt.cfgYAML))
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoad_APISection(t *testing.T) {
	t.Setenv("LAMBDER_API_TOKEN", "s3cret")
	cfgYAML := `regions: [eu-west-1]
defaultRegion: eu-west-1
api:
  listen: ":9090"
  token: ${LAMBDER_API_TOKEN}
  corsOrigins: [https://ops.example.com]
`
	cfg, err := Load(writeTempConfig(t, cfgYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.Listen != ":9090" || cfg.API.Token != "s3cret" {
		t.Fatalf("unexpected api config: %+v", cfg.API)
	}
	if len(cfg.API.CORSOrigins) != 1 || cfg.API.CORSOrigins[0] != "https://ops.example.com" {
		t.Fatalf("unexpected cors origins: %v", cfg.API.CORSOrigins)
	}
}

func TestLoad_NoRebootOverride(t *testing.T) {
	t.Setenv("LAMBDER_NO_REBOOT", "false")
	cfg, err := Load(writeTempConfig(t, "regions: [eu-west-1]\ndefaultRegion: eu-west-1\nnoReboot: true\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NoReboot == nil || *cfg.NoReboot {
		t.Fatalf("expected noReboot overridden to false, got %v", cfg.NoReboot)
	}
}
