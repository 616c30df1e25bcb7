package model

import (
	"time"
)

// Tag is a single key/value pair as returned by the cloud API.
// Order is preserved; the API does not guarantee unique keys in every response shape.
type Tag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Instance is a compute instance that may be backed up
type Instance struct {
	ID     string
	Region string
	State  string // pending, running, stopped, ...
	Tags   []Tag
}

func (i Instance) TagList() []Tag { return i.Tags }

// BlockDevice is one storage-device mapping of an image.
// SnapshotID is empty for mappings without snapshot backing (instance store, no-device).
type BlockDevice struct {
	DeviceName string
	SnapshotID string
}

const (
	ImageStateFailed = "failed"
	ImageStateError  = "error"
)

// Image is a point-in-time backup artifact (an AMI)
type Image struct {
	ID        string
	Name      string
	Region    string
	State     string    // pending, available, failed, ...; empty when unknown
	CreatedAt time.Time // zero if the provider returned no parseable creation date
	Tags      []Tag
	Devices   []BlockDevice
}

func (i Image) TagList() []Tag { return i.Tags }

// Unusable reports whether the image ended in a state it cannot be restored from
func (i Image) Unusable() bool {
	return i.State == ImageStateFailed || i.State == ImageStateError
}

type ItemKind string

const (
	ItemPrune  ItemKind = "prune"
	ItemCreate ItemKind = "create"
	ItemList   ItemKind = "list"
)

// ItemResult is the outcome of one per-item operation (an image deletion, an image creation)
// or of a region-level listing.
type ItemResult struct {
	Kind       ItemKind `json:"kind"`
	Region     string   `json:"region"`
	Source     string   `json:"source,omitempty"`
	ResourceID string   `json:"resourceId,omitempty"` // image ID for prune, instance ID for create
	Err        error    `json:"-"`
	Error      string   `json:"error,omitempty"`
}

// Deletion is one image selected by retention
type Deletion struct {
	Source    string    `json:"source"`
	ImageID   string    `json:"imageId"`
	CreatedAt time.Time `json:"createdAt"`
}

// RegionSummary describes the prune sweep of one region
type RegionSummary struct {
	Region     string       `json:"region"`
	Sources    int          `json:"sources"`
	Planned    []Deletion   `json:"planned"`
	Deleted    []string     `json:"deleted"`    // image IDs destroyed (or planned in dry-run)
	Unresolved []string     `json:"unresolved"` // image IDs that could not be attributed to a source
	Failures   []ItemResult `json:"failures"`
	ListFailed bool         `json:"listFailed"`
}

// RunStatus represents the outcome of a run
type RunStatus string

const (
	RunInProgress     RunStatus = "in_progress"
	RunSuccess        RunStatus = "success"
	RunPartialSuccess RunStatus = "partial_success" // some items failed
	RunFailed         RunStatus = "failed"          // nothing succeeded or no region could be listed
	RunAborted        RunStatus = "aborted"         // interrupted by restart/shutdown
)

// RunReport is the aggregate outcome of one run
type RunReport struct {
	RunID       int             `json:"runId"`
	Status      RunStatus       `json:"status"`
	DryRun      bool            `json:"dryRun"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt time.Time       `json:"completedAt"`
	Regions     []RegionSummary `json:"regions"`
	Created     []string        `json:"created"`  // new image IDs
	Eligible    []string        `json:"eligible"` // instance IDs selected for backup
	Failures    []ItemResult    `json:"failures"`
}

// DeletedCount returns the number of images destroyed across all regions
func (r *RunReport) DeletedCount() int {
	n := 0
	for _, reg := range r.Regions {
		n += len(reg.Deleted)
	}
	return n
}

// RunRecord is the persisted row for a run, used for history display
type RunRecord struct {
	ID            int        `json:"id"`
	Status        RunStatus  `json:"status"`
	DryRun        bool       `json:"dryRun"`
	StartedAt     time.Time  `json:"startedAt"`
	CompletedAt   *time.Time `json:"completedAt"`
	ImagesDeleted int        `json:"imagesDeleted"`
	ImagesCreated int        `json:"imagesCreated"`
	Failures      int        `json:"failures"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}
