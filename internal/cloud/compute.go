package cloud

import (
	"context"
	"errors"
	"time"

	"github.com/polarfoxDev/lambder/internal/model"
)

// Compute is the slice of the provider API the backup job needs.
// Every call names its region explicitly; implementations keep no "current region".
type Compute interface {
	// ListInstances returns non-terminated instances carrying tagKey (any value)
	ListInstances(ctx context.Context, region, tagKey string) ([]model.Instance, error)

	// ListImages returns images owned by the caller carrying tagKey (any value)
	ListImages(ctx context.Context, region, tagKey string) ([]model.Image, error)

	// ImageExists reports whether the image is still registered and visible
	ImageExists(ctx context.Context, region, imageID string) (bool, error)

	// CreateImage creates an image from an instance and applies req.Tags to it atomically
	CreateImage(ctx context.Context, region string, req CreateImageRequest) (model.Image, error)

	// DeregisterImage removes the image from the catalog; its snapshots stay allocated
	DeregisterImage(ctx context.Context, region, imageID string) error

	// DeleteSnapshot deletes one storage snapshot
	DeleteSnapshot(ctx context.Context, region, snapshotID string) error
}

type CreateImageRequest struct {
	InstanceID  string
	Name        string
	Description string
	NoReboot    bool
	Tags        []model.Tag
	// CreatedAt is the request time stamped on the returned image; zero means now
	CreatedAt time.Time
}

var (
	// ErrNotFound is returned when the referenced image or snapshot does not exist
	ErrNotFound = errors.New("resource not found")
	// ErrSnapshotInUse is returned while a snapshot is still referenced by a registered image
	ErrSnapshotInUse = errors.New("snapshot in use")
	// ErrThrottled is returned when the provider rate limits the caller
	ErrThrottled = errors.New("request throttled")
)

// IsTransient reports whether err is worth retrying after a delay
func IsTransient(err error) bool {
	return errors.Is(err, ErrSnapshotInUse) || errors.Is(err, ErrThrottled)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
