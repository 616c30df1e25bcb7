package helpers

import (
	"testing"
	"time"
)

func TestBackupName(t *testing.T) {
	cases := []struct {
		source string
		at     time.Time
		want   string
	}{
		{"web-01", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), "web-01-20240102T030405Z"},
		{"db", time.Date(2023, 12, 31, 23, 59, 59, 999999999, time.UTC), "db-20231231T235959Z"},
		// non-UTC input is normalised, no offset leaks into the name
		{"web-01", time.Date(2024, 1, 2, 5, 4, 5, 0, time.FixedZone("EET", 2*3600)), "web-01-20240102T030405Z"},
	}
	for _, c := range cases {
		if got := BackupName(c.source, c.at); got != c.want {
			t.Errorf("BackupName(%q, %s) = %q, want %q", c.source, c.at, got, c.want)
		}
	}
}

func TestBackupDescription(t *testing.T) {
	if got := BackupDescription("db"); got != "Backup of db" {
		t.Fatalf("BackupDescription() = %q", got)
	}
}
