package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"

	"github.com/polarfoxDev/lambder/internal/cloud"
	"github.com/polarfoxDev/lambder/internal/model"
)

const (
	DefaultPollDelay    = 2 * time.Second
	DefaultMaxPollDelay = 15 * time.Second
	DefaultTimeout      = 2 * time.Minute
)

var errStillVisible = errors.New("image still visible after deregistration")

// Destroyer deregisters images and deletes the snapshots behind them
type Destroyer struct {
	Compute cloud.Compute
	Clock   clock.Clock

	// DeregisterTimeout bounds the wait for a deregistration to become visible
	DeregisterTimeout time.Duration
	// SnapshotTimeout bounds the retries of one snapshot deletion
	SnapshotTimeout time.Duration
	PollDelay       time.Duration
	MaxPollDelay    time.Duration

	Debugf func(string, ...any)
}

// SnapshotIDs returns the distinct snapshots referenced by the image's device mappings
func SnapshotIDs(img model.Image) []string {
	seen := map[string]bool{}
	var out []string
	for _, d := range img.Devices {
		if d.SnapshotID == "" || seen[d.SnapshotID] {
			continue
		}
		seen[d.SnapshotID] = true
		out = append(out, d.SnapshotID)
	}
	return out
}

// Destroy deregisters img, waits until the deregistration is visible and then deletes every
// snapshot the image referenced. A failed deregistration aborts; a failed snapshot does not
// stop the others. All snapshot errors are returned joined.
func (d *Destroyer) Destroy(ctx context.Context, region string, img model.Image) error {
	snapshots := SnapshotIDs(img)

	if err := d.Compute.DeregisterImage(ctx, region, img.ID); err != nil {
		return err
	}
	if len(snapshots) == 0 {
		return nil
	}

	if err := d.waitDeregistered(ctx, region, img.ID); err != nil {
		return fmt.Errorf("image %s deregistered, snapshots %v kept: %w", img.ID, snapshots, err)
	}

	var errs []error
	for _, snap := range snapshots {
		if err := d.deleteSnapshot(ctx, region, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Destroyer) waitDeregistered(ctx context.Context, region, imageID string) error {
	err := d.call(ctx, d.timeout(d.DeregisterTimeout), func() error {
		exists, err := d.Compute.ImageExists(ctx, region, imageID)
		if err != nil {
			return err
		}
		if exists {
			return errStillVisible
		}
		return nil
	}, func(err error) bool {
		return !errors.Is(err, errStillVisible) && !cloud.IsTransient(err)
	}, imageID)
	if err != nil {
		return fmt.Errorf("wait for deregistration of %s: %w", imageID, err)
	}
	return nil
}

func (d *Destroyer) deleteSnapshot(ctx context.Context, region, snapshotID string) error {
	err := d.call(ctx, d.timeout(d.SnapshotTimeout), func() error {
		err := d.Compute.DeleteSnapshot(ctx, region, snapshotID)
		if cloud.IsNotFound(err) {
			d.debugf("snapshot %s already gone", snapshotID)
			return nil
		}
		return err
	}, func(err error) bool {
		return !cloud.IsTransient(err)
	}, snapshotID)
	return err
}

// call runs fn with doubling backoff until it succeeds, fails fatally, maxDuration
// elapses or ctx is done
func (d *Destroyer) call(ctx context.Context, maxDuration time.Duration, fn func() error, fatal func(error) bool, what string) error {
	err := retry.Call(retry.CallArgs{
		Func:         fn,
		IsFatalError: fatal,
		NotifyFunc: func(err error, attempt int) {
			d.debugf("%s: attempt %d: %v", what, attempt, err)
		},
		Attempts:    -1,
		Delay:       d.pollDelay(),
		MaxDelay:    d.maxPollDelay(),
		MaxDuration: maxDuration,
		BackoffFunc: retry.DoubleDelay,
		Clock:       d.clock(),
		Stop:        ctx.Done(),
	})
	switch {
	case err == nil:
		return nil
	case retry.IsRetryStopped(err):
		return fmt.Errorf("%s: %w", what, ctx.Err())
	case retry.IsDurationExceeded(err):
		return fmt.Errorf("%s: gave up after %s: %w", what, maxDuration, retry.LastError(err))
	case retry.IsAttemptsExceeded(err):
		return fmt.Errorf("%s: %w", what, retry.LastError(err))
	}
	// fatal errors come back as returned by fn
	return err
}

func (d *Destroyer) timeout(v time.Duration) time.Duration {
	if v <= 0 {
		return DefaultTimeout
	}
	return v
}

func (d *Destroyer) pollDelay() time.Duration {
	if d.PollDelay <= 0 {
		return DefaultPollDelay
	}
	return d.PollDelay
}

func (d *Destroyer) maxPollDelay() time.Duration {
	if d.MaxPollDelay <= 0 {
		return DefaultMaxPollDelay
	}
	return d.MaxPollDelay
}

func (d *Destroyer) clock() clock.Clock {
	if d.Clock == nil {
		return clock.WallClock
	}
	return d.Clock
}

func (d *Destroyer) debugf(format string, args ...any) {
	if d.Debugf != nil {
		d.Debugf(format, args...)
	}
}
