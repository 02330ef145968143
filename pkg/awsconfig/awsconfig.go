// Package awsconfig loads the AWS SDK configuration shared by the DynamoDB
// store and the S3 signature store.
package awsconfig

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// Options selects the region and, for local emulators, an endpoint override
type Options struct {
	Region string
	// Endpoint points the clients at DynamoDB Local or LocalStack. When set,
	// static dummy credentials are used unless the environment provides some.
	Endpoint string
	// Local forces static credentials, matching AWS_SAM_LOCAL deployments.
	Local bool
}

// Load resolves an aws.Config from the default chain plus opts
func Load(ctx context.Context, opts Options) (aws.Config, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.Local {
		loadOpts = append(loadOpts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "test")))
		if opts.Region == "" {
			loadOpts = append(loadOpts, config.WithRegion("us-east-1"))
		}
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS SDK config: %w", err)
	}
	return cfg, nil
}

// BaseEndpoint returns the endpoint override to set on a client, or nil
func (o Options) BaseEndpoint() *string {
	if o.Endpoint == "" {
		return nil
	}
	return aws.String(o.Endpoint)
}
