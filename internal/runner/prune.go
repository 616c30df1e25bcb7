package runner

import (
	"context"
	"fmt"

	"github.com/polarfoxDev/lambder/internal/helpers"
	"github.com/polarfoxDev/lambder/internal/lifecycle"
	"github.com/polarfoxDev/lambder/internal/logging"
	"github.com/polarfoxDev/lambder/internal/model"
)

// PruneRegions applies retention to the backup images of every region, one region at a
// time. A region whose images cannot be listed is reported as failed and the sweep moves on.
func (r *Runner) PruneRegions(ctx context.Context, regions []string) []model.RegionSummary {
	return r.pruneRegions(ctx, r.Logger.NewRunLogger(0), regions)
}

func (r *Runner) pruneRegions(ctx context.Context, rl *logging.RunLogger, regions []string) []model.RegionSummary {
	summaries := make([]model.RegionSummary, 0, len(regions))
	for _, region := range regions {
		summaries = append(summaries, r.pruneRegion(ctx, rl.WithRegion(region), region))
	}
	return summaries
}

func (r *Runner) pruneRegion(ctx context.Context, rl *logging.RunLogger, region string) model.RegionSummary {
	summary := model.RegionSummary{Region: region, Deleted: []string{}, Unresolved: []string{}}

	if err := ctx.Err(); err != nil {
		summary.ListFailed = true
		summary.Failures = append(summary.Failures, itemFailure(model.ItemList, region, "", "", err))
		rl.Error("skipped: %v", err)
		return summary
	}

	images, err := r.Compute.ListImages(ctx, region, r.Config.BackupTag)
	if err != nil {
		err = fmt.Errorf("list images in %s: %w", region, err)
		summary.ListFailed = true
		summary.Failures = append(summary.Failures, itemFailure(model.ItemList, region, "", "", err))
		rl.Error("%v", err)
		return summary
	}

	grouping := lifecycle.GroupBySource(images, r.Config.BackupTag)
	summary.Sources = len(grouping.Groups)
	for _, img := range grouping.Unresolved {
		summary.Unresolved = append(summary.Unresolved, img.ID)
		if img.Unusable() {
			rl.Warn("image %s (%s) is in state %s, leaving it alone", img.ID, img.Name, img.State)
			continue
		}
		rl.Warn("image %s (%s) has no usable %s tag or creation date, leaving it alone", img.ID, img.Name, r.Config.BackupTag)
	}
	rl.Debug("%d image(s) across %d source(s)", len(images), summary.Sources)

	destroyer := *r.Destroyer
	destroyer.Debugf = rl.Debugf

	for _, source := range grouping.Sources() {
		sl := rl.WithSource(source)
		group := grouping.Groups[source]
		doomed := helpers.ImagesToDelete(group, r.Config.MaxToKeep)
		if len(doomed) == 0 {
			sl.Debug("%d image(s), nothing to delete", len(group))
			continue
		}
		sl.Info("%d image(s), deleting %d oldest", len(group), len(doomed))

		for _, img := range doomed {
			summary.Planned = append(summary.Planned, model.Deletion{Source: source, ImageID: img.ID, CreatedAt: img.CreatedAt})
			if r.DryRun {
				sl.Info("would delete image %s (%s, created %s)", img.ID, img.Name, img.CreatedAt.Format("2006-01-02 15:04:05"))
				summary.Deleted = append(summary.Deleted, img.ID)
				continue
			}
			if err := destroyer.Destroy(ctx, region, img); err != nil {
				sl.Error("delete image %s: %v", img.ID, err)
				summary.Failures = append(summary.Failures, itemFailure(model.ItemPrune, region, source, img.ID, err))
				continue
			}
			sl.Info("deleted image %s (%s) and %d snapshot(s)", img.ID, img.Name, len(lifecycle.SnapshotIDs(img)))
			summary.Deleted = append(summary.Deleted, img.ID)
		}
	}
	return summary
}
