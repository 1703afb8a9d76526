// Package awsclient wraps the AWS SDK calls the pipelines make at run time:
// SSM lookups, cross-account role assumption, Glue crawler and QuickSight
// ingestion triggers, and S3 object, bucket policy and asset uploads.
package awsclient

import (
	"context"
	"fmt"

	"github.com/apex/log"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// DefaultRegion is used when no region is configured.
const DefaultRegion = "eu-central-1"

type options struct {
	region      string
	profile     string
	credentials *aws.Credentials
	retryer     func() aws.Retryer
}

// Option customizes LoadConfig.
type Option func(*options)

// WithRegion overrides DefaultRegion.
func WithRegion(region string) Option {
	return func(o *options) { o.region = region }
}

// WithProfile selects a shared config profile.
func WithProfile(profile string) Option {
	return func(o *options) { o.profile = profile }
}

// WithCredentials uses fixed credentials, e.g. those returned by
// CrossAccountCredentials, instead of the default chain.
func WithCredentials(c aws.Credentials) Option {
	return func(o *options) { o.credentials = &c }
}

// WithRetryer injects a custom retryer.
func WithRetryer(newRetryer func() aws.Retryer) Option {
	return func(o *options) { o.retryer = newRetryer }
}

// LoadConfig loads the SDK configuration from the environment and shared
// config files, in DefaultRegion unless WithRegion is given.
func LoadConfig(ctx context.Context, opts ...Option) (aws.Config, error) {
	o := options{region: DefaultRegion}
	for _, opt := range opts {
		opt(&o)
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(o.region)}
	if o.profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(o.profile))
	}
	if o.credentials != nil {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(staticProvider(*o.credentials)))
	}
	if o.retryer != nil {
		loadOpts = append(loadOpts, config.WithRetryer(o.retryer))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	log.WithField("region", cfg.Region).WithField("profile", o.profile).Debug("aws config loaded")
	return cfg, nil
}

// withCredentials returns a copy of cfg using creds when creds is set.
func withCredentials(cfg aws.Config, creds *aws.Credentials) aws.Config {
	if creds == nil {
		return cfg
	}
	out := cfg.Copy()
	out.Credentials = staticProvider(*creds)
	return out
}

func staticProvider(c aws.Credentials) aws.CredentialsProvider {
	return credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, c.SessionToken)
}
