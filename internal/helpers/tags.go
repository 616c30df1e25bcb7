package helpers

import "github.com/polarfoxDev/lambder/internal/model"

// Tagged is anything carrying a tag list (instances and images)
type Tagged interface {
	TagList() []model.Tag
}

// HasTag reports whether key is present in tags, regardless of its value
func HasTag(tags []model.Tag, key string) bool {
	for _, t := range tags {
		if t.Key == key {
			return true
		}
	}
	return false
}

// SelectTagged returns the items carrying the tag key, preserving input order
func SelectTagged[T Tagged](items []T, key string) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if HasTag(it.TagList(), key) {
			out = append(out, it)
		}
	}
	return out
}

// BackupSource returns the value of the first tag with the given key.
// ok is false when the key is absent.
func BackupSource(tags []model.Tag, key string) (source string, ok bool) {
	for _, t := range tags {
		if t.Key == key {
			return t.Value, true
		}
	}
	return "", false
}
