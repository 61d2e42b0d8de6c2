// Package cloud adapts AWS services to the interfaces the grouping pipeline
// depends on: the Step Functions check runner, Cloud Map discovery, Secrets
// Manager and the S3 fingerprint store.
package cloud

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/servicediscovery"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
)

// Clients bundles the AWS service clients built from one shared config.
type Clients struct {
	Config    aws.Config
	SFN       *sfn.Client
	S3        *s3.Client
	Discovery *servicediscovery.Client
	Secrets   *secretsmanager.Client
}

// LoadClients resolves credentials the standard AWS way (env, profile,
// instance role). An empty region defers to the environment.
func LoadClients(ctx context.Context, region string) (*Clients, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &Clients{
		Config:    cfg,
		SFN:       sfn.NewFromConfig(cfg),
		S3:        s3.NewFromConfig(cfg),
		Discovery: servicediscovery.NewFromConfig(cfg),
		Secrets:   secretsmanager.NewFromConfig(cfg),
	}, nil
}
