package lifecycle

import (
	"context"
	"errors"

	"github.com/juju/clock"

	"github.com/polarfoxDev/lambder/internal/cloud"
	"github.com/polarfoxDev/lambder/internal/helpers"
	"github.com/polarfoxDev/lambder/internal/model"
)

var ErrNoSource = errors.New("instance has no backup source")

// Creator takes new backup images of instances
type Creator struct {
	Compute      cloud.Compute
	Clock        clock.Clock
	BackupTag    string
	ReplicateTag string
	NoReboot     bool
}

// Request builds the image creation request for inst without calling the provider
func (c *Creator) Request(inst model.Instance, source string) cloud.CreateImageRequest {
	tags := []model.Tag{{Key: c.BackupTag, Value: source}}
	if c.ReplicateTag != "" && helpers.HasTag(inst.Tags, c.ReplicateTag) {
		// the value is irrelevant downstream, only the key is looked for
		tags = append(tags, model.Tag{Key: c.ReplicateTag, Value: ""})
	}
	now := c.Clock.Now().UTC()
	return cloud.CreateImageRequest{
		InstanceID:  inst.ID,
		Name:        helpers.BackupName(source, now),
		Description: helpers.BackupDescription(source),
		NoReboot:    c.NoReboot,
		Tags:        tags,
		CreatedAt:   now,
	}
}

// Create takes an image of inst in region, tagged with the backup source
func (c *Creator) Create(ctx context.Context, region string, inst model.Instance, source string) (model.Image, error) {
	if source == "" {
		return model.Image{}, ErrNoSource
	}
	return c.Compute.CreateImage(ctx, region, c.Request(inst, source))
}
