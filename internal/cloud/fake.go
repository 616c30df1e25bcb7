package cloud

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/polarfoxDev/lambder/internal/model"
)

// Call is one recorded invocation on the Fake
type Call struct {
	Op     string
	Region string
	ID     string
}

type fakeImage struct {
	image      model.Image
	registered bool
	linger     int // polls left during which a deregistered image is still visible
}

type fakeRegion struct {
	instances map[string]model.Instance
	images    map[string]*fakeImage
	snapshots map[string]bool
}

// Fake is an in-memory, multi-region Compute for unit tests.
// Like EC2 it refuses to delete a snapshot while an image that references it is still visible.
type Fake struct {
	mu      sync.Mutex
	regions map[string]*fakeRegion
	seq     int

	// DeregisterLag keeps deregistered images visible for this many ImageExists polls
	DeregisterLag int
	// Now stamps created images; defaults to time.Now
	Now func() time.Time
	// Failures injects errors keyed by "Op:id", e.g. "DeregisterImage:ami-1" or
	// "ListImages:eu-west-1". Each entry is used once unless Sticky is set.
	Failures map[string]error
	Sticky   bool

	Calls []Call
}

var _ Compute = (*Fake)(nil)

func NewFake() *Fake {
	return &Fake{
		regions:  map[string]*fakeRegion{},
		Failures: map[string]error{},
		Now:      time.Now,
	}
}

func (f *Fake) region(name string) *fakeRegion {
	r, ok := f.regions[name]
	if !ok {
		r = &fakeRegion{
			instances: map[string]model.Instance{},
			images:    map[string]*fakeImage{},
			snapshots: map[string]bool{},
		}
		f.regions[name] = r
	}
	return r
}

func (f *Fake) record(op, region, id string) error {
	f.Calls = append(f.Calls, Call{Op: op, Region: region, ID: id})
	key := op + ":" + id
	if err, ok := f.Failures[key]; ok {
		if !f.Sticky {
			delete(f.Failures, key)
		}
		return err
	}
	return nil
}

// AddInstance registers an instance in region
func (f *Fake) AddInstance(region, id string, tags ...model.Tag) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.region(region).instances[id] = model.Instance{ID: id, Region: region, State: "running", Tags: tags}
}

// AddImage registers an image and the snapshots its devices reference
func (f *Fake) AddImage(region string, img model.Image) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.region(region)
	img.Region = region
	r.images[img.ID] = &fakeImage{image: img, registered: true}
	for _, d := range img.Devices {
		if d.SnapshotID != "" {
			r.snapshots[d.SnapshotID] = true
		}
	}
}

// Images returns the registered images of region sorted by ID
func (f *Fake) Images(region string) []model.Image {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Image
	for _, fi := range f.region(region).images {
		if fi.registered {
			out = append(out, fi.image)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// HasSnapshot reports whether a snapshot still exists in region
func (f *Fake) HasSnapshot(region, id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.region(region).snapshots[id]
}

// CallsFor returns the recorded calls with the given operation name
func (f *Fake) CallsFor(op string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.Calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *Fake) ListInstances(ctx context.Context, region, tagKey string) ([]model.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListInstances", region, region); err != nil {
		return nil, err
	}
	var out []model.Instance
	for _, inst := range f.region(region).instances {
		for _, t := range inst.Tags {
			if t.Key == tagKey {
				out = append(out, inst)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *Fake) ListImages(ctx context.Context, region, tagKey string) ([]model.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListImages", region, region); err != nil {
		return nil, err
	}
	var out []model.Image
	for _, fi := range f.region(region).images {
		if !fi.registered {
			continue
		}
		for _, t := range fi.image.Tags {
			if t.Key == tagKey {
				out = append(out, fi.image)
				break
			}
		}
	}
	// map order is random; sort newest first so callers cannot rely on input order
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f *Fake) ImageExists(ctx context.Context, region, imageID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ImageExists", region, imageID); err != nil {
		return false, err
	}
	fi, ok := f.region(region).images[imageID]
	if !ok {
		return false, nil
	}
	if fi.registered {
		return true, nil
	}
	if fi.linger > 0 {
		fi.linger--
		return true, nil
	}
	return false, nil
}

func (f *Fake) CreateImage(ctx context.Context, region string, req CreateImageRequest) (model.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateImage", region, req.InstanceID); err != nil {
		return model.Image{}, err
	}
	r := f.region(region)
	if _, ok := r.instances[req.InstanceID]; !ok {
		return model.Image{}, fmt.Errorf("create image from %s: instance %w", req.InstanceID, ErrNotFound)
	}
	for _, fi := range r.images {
		if fi.registered && fi.image.Name == req.Name {
			return model.Image{}, fmt.Errorf("create image from %s: image name %q already in use", req.InstanceID, req.Name)
		}
	}
	created := req.CreatedAt
	if created.IsZero() {
		created = f.Now()
	}
	f.seq++
	snap := fmt.Sprintf("snap-fake%04d", f.seq)
	img := model.Image{
		ID:        fmt.Sprintf("ami-fake%04d", f.seq),
		Name:      req.Name,
		Region:    region,
		CreatedAt: created.UTC(),
		Tags:      append([]model.Tag(nil), req.Tags...),
		Devices:   []model.BlockDevice{{DeviceName: "/dev/xvda", SnapshotID: snap}},
	}
	r.images[img.ID] = &fakeImage{image: img, registered: true}
	r.snapshots[snap] = true
	return img, nil
}

func (f *Fake) DeregisterImage(ctx context.Context, region, imageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeregisterImage", region, imageID); err != nil {
		return err
	}
	fi, ok := f.region(region).images[imageID]
	if !ok || !fi.registered {
		return fmt.Errorf("deregister %s: %w", imageID, ErrNotFound)
	}
	fi.registered = false
	fi.linger = f.DeregisterLag
	return nil
}

func (f *Fake) DeleteSnapshot(ctx context.Context, region, snapshotID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteSnapshot", region, snapshotID); err != nil {
		return err
	}
	r := f.region(region)
	if !r.snapshots[snapshotID] {
		return fmt.Errorf("delete snapshot %s: %w", snapshotID, ErrNotFound)
	}
	for _, fi := range r.images {
		if !fi.registered && fi.linger == 0 {
			continue
		}
		for _, d := range fi.image.Devices {
			if d.SnapshotID == snapshotID {
				return fmt.Errorf("delete snapshot %s: %w (image %s)", snapshotID, ErrSnapshotInUse, fi.image.ID)
			}
		}
	}
	delete(r.snapshots, snapshotID)
	return nil
}
