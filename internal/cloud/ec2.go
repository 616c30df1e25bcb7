package cloud

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"

	"github.com/polarfoxDev/lambder/internal/labels"
	"github.com/polarfoxDev/lambder/internal/model"
)

// EC2API is the subset of *ec2.Client used by the EC2 adapter
type EC2API interface {
	DescribeInstances(context.Context, *ec2.DescribeInstancesInput, ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	DescribeImages(context.Context, *ec2.DescribeImagesInput, ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error)
	CreateImage(context.Context, *ec2.CreateImageInput, ...func(*ec2.Options)) (*ec2.CreateImageOutput, error)
	DeregisterImage(context.Context, *ec2.DeregisterImageInput, ...func(*ec2.Options)) (*ec2.DeregisterImageOutput, error)
	DeleteSnapshot(context.Context, *ec2.DeleteSnapshotInput, ...func(*ec2.Options)) (*ec2.DeleteSnapshotOutput, error)
}

// EC2 implements Compute on top of the AWS SDK
type EC2 struct {
	api EC2API
}

var _ Compute = (*EC2)(nil)

func NewEC2(cfg aws.Config, endpoint string) *EC2 {
	client := ec2.NewFromConfig(cfg, func(o *ec2.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return &EC2{api: client}
}

// NewEC2WithAPI wraps an existing client, mainly for tests
func NewEC2WithAPI(api EC2API) *EC2 {
	return &EC2{api: api}
}

func inRegion(region string) func(*ec2.Options) {
	return func(o *ec2.Options) { o.Region = region }
}

func tagKeyFilter(tagKey string) []types.Filter {
	return []types.Filter{{Name: aws.String(labels.TagKeyFilter), Values: []string{tagKey}}}
}

func (e *EC2) ListInstances(ctx context.Context, region, tagKey string) ([]model.Instance, error) {
	p := ec2.NewDescribeInstancesPaginator(e.api, &ec2.DescribeInstancesInput{Filters: tagKeyFilter(tagKey)})
	var out []model.Instance
	for p.HasMorePages() {
		page, err := p.NextPage(ctx, inRegion(region))
		if err != nil {
			return nil, fmt.Errorf("describe instances in %s: %w", region, classify(err))
		}
		for _, res := range page.Reservations {
			for _, inst := range res.Instances {
				state := ""
				if inst.State != nil {
					state = string(inst.State.Name)
				}
				if state == string(types.InstanceStateNameTerminated) || state == string(types.InstanceStateNameShuttingDown) {
					continue
				}
				out = append(out, model.Instance{
					ID:     aws.ToString(inst.InstanceId),
					Region: region,
					State:  state,
					Tags:   fromEC2Tags(inst.Tags),
				})
			}
		}
	}
	return out, nil
}

func (e *EC2) ListImages(ctx context.Context, region, tagKey string) ([]model.Image, error) {
	p := ec2.NewDescribeImagesPaginator(e.api, &ec2.DescribeImagesInput{
		Owners:  []string{"self"},
		Filters: tagKeyFilter(tagKey),
	})
	var out []model.Image
	for p.HasMorePages() {
		page, err := p.NextPage(ctx, inRegion(region))
		if err != nil {
			return nil, fmt.Errorf("describe images in %s: %w", region, classify(err))
		}
		for _, img := range page.Images {
			if img.State == types.ImageStateDeregistered {
				continue
			}
			out = append(out, toImage(region, img))
		}
	}
	return out, nil
}

func (e *EC2) ImageExists(ctx context.Context, region, imageID string) (bool, error) {
	out, err := e.api.DescribeImages(ctx, &ec2.DescribeImagesInput{ImageIds: []string{imageID}}, inRegion(region))
	if err != nil {
		err = classify(err)
		if IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("describe image %s: %w", imageID, err)
	}
	for _, img := range out.Images {
		if aws.ToString(img.ImageId) == imageID && img.State != types.ImageStateDeregistered {
			return true, nil
		}
	}
	return false, nil
}

func (e *EC2) CreateImage(ctx context.Context, region string, req CreateImageRequest) (model.Image, error) {
	in := &ec2.CreateImageInput{
		InstanceId:  aws.String(req.InstanceID),
		Name:        aws.String(req.Name),
		Description: aws.String(req.Description),
		NoReboot:    aws.Bool(req.NoReboot),
	}
	if len(req.Tags) > 0 {
		in.TagSpecifications = []types.TagSpecification{{
			ResourceType: types.ResourceTypeImage,
			Tags:         toEC2Tags(req.Tags),
		}}
	}
	out, err := e.api.CreateImage(ctx, in, inRegion(region))
	if err != nil {
		return model.Image{}, fmt.Errorf("create image from %s: %w", req.InstanceID, classify(err))
	}
	return model.Image{
		ID:        aws.ToString(out.ImageId),
		Name:      req.Name,
		Region:    region,
		CreatedAt: requestTime(req),
		Tags:      req.Tags,
	}, nil
}

func requestTime(req CreateImageRequest) time.Time {
	if req.CreatedAt.IsZero() {
		return time.Now().UTC()
	}
	return req.CreatedAt.UTC()
}

func (e *EC2) DeregisterImage(ctx context.Context, region, imageID string) error {
	if _, err := e.api.DeregisterImage(ctx, &ec2.DeregisterImageInput{ImageId: aws.String(imageID)}, inRegion(region)); err != nil {
		return fmt.Errorf("deregister %s: %w", imageID, classify(err))
	}
	return nil
}

func (e *EC2) DeleteSnapshot(ctx context.Context, region, snapshotID string) error {
	if _, err := e.api.DeleteSnapshot(ctx, &ec2.DeleteSnapshotInput{SnapshotId: aws.String(snapshotID)}, inRegion(region)); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", snapshotID, classify(err))
	}
	return nil
}

func toImage(region string, img types.Image) model.Image {
	var created time.Time
	if s := aws.ToString(img.CreationDate); s != "" {
		// zero on failure; the grouper sets such images aside
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			created = t.UTC()
		}
	}
	devices := make([]model.BlockDevice, 0, len(img.BlockDeviceMappings))
	for _, m := range img.BlockDeviceMappings {
		d := model.BlockDevice{DeviceName: aws.ToString(m.DeviceName)}
		if m.Ebs != nil {
			d.SnapshotID = aws.ToString(m.Ebs.SnapshotId)
		}
		devices = append(devices, d)
	}
	return model.Image{
		ID:        aws.ToString(img.ImageId),
		Name:      aws.ToString(img.Name),
		Region:    region,
		State:     string(img.State),
		CreatedAt: created,
		Tags:      fromEC2Tags(img.Tags),
		Devices:   devices,
	}
}

func fromEC2Tags(tags []types.Tag) []model.Tag {
	out := make([]model.Tag, 0, len(tags))
	for _, t := range tags {
		out = append(out, model.Tag{Key: aws.ToString(t.Key), Value: aws.ToString(t.Value)})
	}
	return out
}

func toEC2Tags(tags []model.Tag) []types.Tag {
	out := make([]types.Tag, 0, len(tags))
	for _, t := range tags {
		out = append(out, types.Tag{Key: aws.String(t.Key), Value: aws.String(t.Value)})
	}
	return out
}

// classify maps provider error codes onto the package sentinels, keeping the original error
func classify(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.ErrorCode() {
	case "InvalidSnapshot.InUse":
		return fmt.Errorf("%w: %w", ErrSnapshotInUse, err)
	case "InvalidAMIID.NotFound", "InvalidAMIID.Unavailable", "InvalidSnapshot.NotFound":
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case "RequestLimitExceeded", "Throttling", "ThrottlingException":
		return fmt.Errorf("%w: %w", ErrThrottled, err)
	}
	return err
}
