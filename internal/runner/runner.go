package runner

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/juju/clock"

	"github.com/polarfoxDev/lambder/internal/cloud"
	"github.com/polarfoxDev/lambder/internal/config"
	"github.com/polarfoxDev/lambder/internal/database"
	"github.com/polarfoxDev/lambder/internal/helpers"
	"github.com/polarfoxDev/lambder/internal/lifecycle"
	"github.com/polarfoxDev/lambder/internal/logging"
	"github.com/polarfoxDev/lambder/internal/metrics"
	"github.com/polarfoxDev/lambder/internal/model"
)

type Runner struct {
	Compute   cloud.Compute
	Config    *config.Config
	Creator   *lifecycle.Creator
	Destroyer *lifecycle.Destroyer
	Logger    *logging.Logger
	Clock     clock.Clock

	DB      *database.DB      // optional run history
	Metrics *metrics.Recorder // optional, written to Config.MetricsFile after each run

	// DryRun plans deletions and lists backup candidates without changing anything
	DryRun bool
}

// New wires a Runner for cfg on top of c. db and rec may be nil.
func New(c cloud.Compute, cfg *config.Config, logger *logging.Logger, db *database.DB, rec *metrics.Recorder) *Runner {
	if logger == nil {
		logger = logging.New(nil, nil)
	}
	clk := clock.WallClock
	noReboot := true
	if cfg.NoReboot != nil {
		noReboot = *cfg.NoReboot
	}
	return &Runner{
		Compute: c,
		Config:  cfg,
		Creator: &lifecycle.Creator{
			Compute:      c,
			Clock:        clk,
			BackupTag:    cfg.BackupTag,
			ReplicateTag: cfg.ReplicateTag,
			NoReboot:     noReboot,
		},
		Destroyer: &lifecycle.Destroyer{
			Compute:           c,
			Clock:             clk,
			DeregisterTimeout: cfg.DeregisterTimeout.Std(),
			SnapshotTimeout:   cfg.SnapshotTimeout.Std(),
		},
		Logger:  logger,
		Clock:   clk,
		DB:      db,
		Metrics: rec,
	}
}

// Candidate is an instance selected for backup together with its resolved source
type Candidate struct {
	Instance model.Instance
	Source   string
}

// RunOnce prunes every configured region and then backs up the tagged instances of the
// default region. Per-item failures are collected in the report; the error is non-nil
// only when the run as a whole failed.
func (r *Runner) RunOnce(ctx context.Context) (*model.RunReport, error) {
	if d := r.Config.RunTimeout.Std(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	report := &model.RunReport{
		Status:    model.RunInProgress,
		DryRun:    r.DryRun,
		StartedAt: r.now(),
	}
	if r.DB != nil {
		id, err := r.DB.StartRun(ctx, report.StartedAt, r.DryRun)
		if err != nil {
			r.Logger.Warn("failed to record run start: %v", err)
		} else {
			report.RunID = id
		}
	}
	rl := r.Logger.NewRunLogger(report.RunID)
	regions := r.sweepRegions()
	if r.DryRun {
		rl.Info("dry run: pruning %d region(s), backups in %s", len(regions), r.Config.DefaultRegion)
	} else {
		rl.Info("run started: pruning %d region(s), backups in %s", len(regions), r.Config.DefaultRegion)
	}

	report.Regions = r.pruneRegions(ctx, rl, regions)
	for _, s := range report.Regions {
		report.Failures = append(report.Failures, s.Failures...)
	}

	created, succeeded := r.createBackups(ctx, rl, report)
	report.Created = created

	report.CompletedAt = r.now()
	report.Status = runStatus(report, succeeded)
	r.finish(ctx, rl, report)

	if report.Status == model.RunFailed {
		errs := make([]error, 0, len(report.Failures))
		for _, f := range report.Failures {
			errs = append(errs, f.Err)
		}
		return report, fmt.Errorf("run failed: %w", errors.Join(errs...))
	}
	return report, nil
}

// sweepRegions is the configured region list plus the default region, where backups land
func (r *Runner) sweepRegions() []string {
	regions := helpers.Deduplicate(r.Config.Regions)
	if r.Config.DefaultRegion != "" && !slices.Contains(regions, r.Config.DefaultRegion) {
		regions = append(regions, r.Config.DefaultRegion)
	}
	return regions
}

// Candidates lists the instances of region carrying the backup tag and resolves their
// backup source. Instances whose source is empty are returned as failures.
func (r *Runner) Candidates(ctx context.Context, region string) ([]Candidate, []model.ItemResult, error) {
	instances, err := r.Compute.ListInstances(ctx, region, r.Config.BackupTag)
	if err != nil {
		return nil, nil, fmt.Errorf("list instances in %s: %w", region, err)
	}
	var out []Candidate
	var failures []model.ItemResult
	for _, inst := range helpers.SelectTagged(instances, r.Config.BackupTag) {
		source, _ := helpers.BackupSource(inst.Tags, r.Config.BackupTag)
		if source == "" {
			failures = append(failures, itemFailure(model.ItemCreate, region, "", inst.ID, lifecycle.ErrNoSource))
			continue
		}
		out = append(out, Candidate{Instance: inst, Source: source})
	}
	return out, failures, nil
}

// createBackups runs the creation phase and returns the new image IDs plus the number of
// items (deletions and creations) that succeeded over the whole run
func (r *Runner) createBackups(ctx context.Context, rl *logging.RunLogger, report *model.RunReport) ([]string, int) {
	succeeded := report.DeletedCount()
	region := r.Config.DefaultRegion
	rl = rl.WithRegion(region)

	candidates, failures, err := r.Candidates(ctx, region)
	if err != nil {
		rl.Error("%v", err)
		report.Failures = append(report.Failures, itemFailure(model.ItemList, region, "", "", err))
		return nil, succeeded
	}
	for _, f := range failures {
		rl.Error("instance %s: %v", f.ResourceID, f.Err)
	}
	report.Failures = append(report.Failures, failures...)

	created := []string{}
	for _, c := range candidates {
		report.Eligible = append(report.Eligible, c.Instance.ID)
		sl := rl.WithSource(c.Source)
		if r.DryRun {
			req := r.Creator.Request(c.Instance, c.Source)
			sl.Info("would create image %s from %s", req.Name, c.Instance.ID)
			succeeded++
			continue
		}
		img, err := r.Creator.Create(ctx, region, c.Instance, c.Source)
		if err != nil {
			sl.Error("create image from %s: %v", c.Instance.ID, err)
			report.Failures = append(report.Failures, itemFailure(model.ItemCreate, region, c.Source, c.Instance.ID, err))
			continue
		}
		sl.Info("created image %s (%s) from %s", img.ID, img.Name, c.Instance.ID)
		created = append(created, img.ID)
		succeeded++
	}
	return created, succeeded
}

func runStatus(report *model.RunReport, succeeded int) model.RunStatus {
	if len(report.Failures) == 0 {
		return model.RunSuccess
	}
	allListsFailed := len(report.Regions) > 0
	for _, s := range report.Regions {
		if !s.ListFailed {
			allListsFailed = false
			break
		}
	}
	if allListsFailed || succeeded == 0 {
		return model.RunFailed
	}
	return model.RunPartialSuccess
}

// finish persists the report and exports metrics. The run context may already be
// cancelled, so bookkeeping runs detached from it.
func (r *Runner) finish(ctx context.Context, rl *logging.RunLogger, report *model.RunReport) {
	ctx = context.WithoutCancel(ctx)

	rl.Info("run finished: %s (%d deleted, %d created, %d failed, %d unresolved) in %s",
		report.Status, report.DeletedCount(), len(report.Created), len(report.Failures),
		unresolvedCount(report), report.CompletedAt.Sub(report.StartedAt).Round(time.Millisecond))

	if r.DB != nil && report.RunID != 0 {
		if err := r.DB.FinishRun(ctx, report); err != nil {
			rl.Warn("failed to record run result: %v", err)
		}
	}
	if r.Metrics != nil {
		r.Metrics.Observe(report)
		if r.Config.MetricsFile != "" {
			if err := r.Metrics.WriteTextfile(r.Config.MetricsFile); err != nil {
				rl.Warn("%v", err)
			}
		}
	}
}

func unresolvedCount(report *model.RunReport) int {
	n := 0
	for _, s := range report.Regions {
		n += len(s.Unresolved)
	}
	return n
}

func itemFailure(kind model.ItemKind, region, source, id string, err error) model.ItemResult {
	return model.ItemResult{Kind: kind, Region: region, Source: source, ResourceID: id, Err: err, Error: err.Error()}
}

func (r *Runner) now() time.Time {
	if r.Clock == nil {
		return time.Now().UTC()
	}
	return r.Clock.Now().UTC()
}
