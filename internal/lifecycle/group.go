package lifecycle

import (
	"sort"

	"github.com/polarfoxDev/lambder/internal/helpers"
	"github.com/polarfoxDev/lambder/internal/model"
)

// Grouping is the result of partitioning images by backup source
type Grouping struct {
	// Groups maps a backup source to its images, oldest first
	Groups map[string][]model.Image
	// Unresolved holds images that cannot take part in retention: the source tag is
	// missing or empty, the creation time is unknown or the image failed. They are never
	// deleted.
	Unresolved []model.Image
}

// Sources returns the group keys in sorted order
func (g Grouping) Sources() []string {
	out := make([]string, 0, len(g.Groups))
	for s := range g.Groups {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// GroupBySource partitions images by the value of tagKey. Each group is sorted by
// creation time ascending, ties broken by image ID.
func GroupBySource(images []model.Image, tagKey string) Grouping {
	g := Grouping{Groups: map[string][]model.Image{}}
	for _, img := range images {
		source, ok := helpers.BackupSource(img.Tags, tagKey)
		if !ok || source == "" || img.CreatedAt.IsZero() || img.Unusable() {
			g.Unresolved = append(g.Unresolved, img)
			continue
		}
		g.Groups[source] = append(g.Groups[source], img)
	}
	for _, imgs := range g.Groups {
		sortOldestFirst(imgs)
	}
	sort.Slice(g.Unresolved, func(i, j int) bool { return g.Unresolved[i].ID < g.Unresolved[j].ID })
	return g
}

func sortOldestFirst(images []model.Image) {
	sort.SliceStable(images, func(i, j int) bool {
		a, b := images[i], images[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
