package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/polarfoxDev/lambder/internal/helpers"
)

// Job is one scheduled unit of work. ctx is the context passed to Add.
type Job func(ctx context.Context)

// Scheduler runs jobs on cron schedules. A job that is still running when its next
// activation comes around is skipped, so runs of the same job never overlap.
type Scheduler struct {
	cron *cron.Cron
	logf func(string, ...any)
}

// printfLogger adapts a printf style func to cron's logger
type printfLogger func(string, ...any)

func (f printfLogger) Printf(format string, args ...any) { f(format, args...) }

func New(logf func(string, ...any)) *Scheduler {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	logger := cron.PrintfLogger(printfLogger(logf))
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(helpers.CronParser),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		logf: logf,
	}
}

// Add registers job under spec
func (s *Scheduler) Add(ctx context.Context, spec string, job Job) (cron.EntryID, error) {
	id, err := s.cron.AddFunc(spec, func() {
		if ctx.Err() != nil {
			return
		}
		job(ctx)
	})
	if err != nil {
		return 0, fmt.Errorf("schedule %q: %w", spec, err)
	}
	return id, nil
}

// Next returns the next activation time of an entry, zero if unknown or not started
func (s *Scheduler) Next(id cron.EntryID) time.Time {
	return s.cron.Entry(id).Next
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops scheduling new activations. The returned context is done once running
// jobs have finished.
func (s *Scheduler) Stop() context.Context { return s.cron.Stop() }
