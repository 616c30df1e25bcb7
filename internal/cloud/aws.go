package cloud

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/polarfoxDev/lambder/internal/config"
)

// LoadAWSConfig builds the SDK configuration from the default credential chain plus the
// optional overrides in the config file. defaultRegion is only a fallback: every call
// made through EC2 sets its region explicitly.
func LoadAWSConfig(ctx context.Context, c config.AWSConfig, defaultRegion string) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(defaultRegion),
	}
	if c.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(c.Profile))
	}
	if c.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, c.SessionToken),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

// NewFromConfig builds the EC2-backed Compute for a loaded lambder config
func NewFromConfig(ctx context.Context, cfg *config.Config) (*EC2, error) {
	awsCfg, err := LoadAWSConfig(ctx, cfg.AWS, cfg.DefaultRegion)
	if err != nil {
		return nil, err
	}
	return NewEC2(awsCfg, cfg.AWS.Endpoint), nil
}
