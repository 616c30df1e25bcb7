package runner

import (
	"context"

	"github.com/polarfoxDev/lambder/internal/scheduler"
)

// Schedule registers RunOnce under the cron spec and starts the scheduler. Runs never
// overlap: an activation that fires while a run is still going is skipped. The caller
// stops the returned scheduler when ctx is done.
func (r *Runner) Schedule(ctx context.Context, spec string) (*scheduler.Scheduler, error) {
	s := scheduler.New(func(format string, args ...any) { r.Logger.Debug(format, args...) })
	id, err := s.Add(ctx, spec, func(ctx context.Context) {
		report, err := r.RunOnce(ctx)
		if err != nil {
			r.Logger.Error("scheduled run %d failed: %v", report.RunID, err)
		}
	})
	if err != nil {
		return nil, err
	}
	s.Start()
	r.Logger.Info("scheduled runs with %q, next at %s", spec, s.Next(id).Format("2006-01-02 15:04:05"))
	return s, nil
}
