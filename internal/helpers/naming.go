package helpers

import "time"

// backupTimeLayout is ISO 8601 basic format: no colons, no offset, literal Z
const backupTimeLayout = "20060102T150405Z"

// BackupName builds the image name for a backup of source taken at t.
// "web-01" at 2024-01-02T03:04:05Z -> "web-01-20240102T030405Z"
func BackupName(source string, t time.Time) string {
	return source + "-" + t.UTC().Format(backupTimeLayout)
}

// BackupDescription is the human readable image description
func BackupDescription(source string) string {
	return "Backup of " + source
}
