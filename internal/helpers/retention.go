package helpers

import "github.com/polarfoxDev/lambder/internal/model"

const DefaultMaxToKeep = 3

// ImagesToDelete takes one source's images sorted oldest first and returns the oldest prefix
// to delete. One extra image is removed to make room for the backup created later in the run,
// so len(images)-len(result) == maxToKeep-1 whenever anything is deleted.
func ImagesToDelete(images []model.Image, maxToKeep int) []model.Image {
	if maxToKeep < 1 {
		maxToKeep = DefaultMaxToKeep
	}
	if len(images) < maxToKeep {
		return nil
	}
	n := len(images) - maxToKeep + 1
	return images[:n:n]
}
