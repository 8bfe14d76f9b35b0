// Package eks implements the cluster-lifecycle ResourceManager on top of
// the Amazon EKS API.
package eks

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	awseks "github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// Client is the subset of the EKS API the manager uses.
type Client interface {
	CreateCluster(ctx context.Context, params *awseks.CreateClusterInput, optFns ...func(*awseks.Options)) (*awseks.CreateClusterOutput, error)
	DescribeCluster(ctx context.Context, params *awseks.DescribeClusterInput, optFns ...func(*awseks.Options)) (*awseks.DescribeClusterOutput, error)
	DeleteCluster(ctx context.Context, params *awseks.DeleteClusterInput, optFns ...func(*awseks.Options)) (*awseks.DeleteClusterOutput, error)
	UpdateClusterVersion(ctx context.Context, params *awseks.UpdateClusterVersionInput, optFns ...func(*awseks.Options)) (*awseks.UpdateClusterVersionOutput, error)
	UpdateClusterConfig(ctx context.Context, params *awseks.UpdateClusterConfigInput, optFns ...func(*awseks.Options)) (*awseks.UpdateClusterConfigOutput, error)
}

// ClientConfig selects the region and credentials of the EKS client.
type ClientConfig struct {
	// Region overrides the region from the environment
	Region string

	// AssumeRoleArn, when set, is assumed through STS for every call
	AssumeRoleArn string

	// MaxAttempts bounds the SDK's own retries of a single API call
	MaxAttempts int
}

// NewClient builds an EKS client from the default credential chain.
func NewClient(ctx context.Context, cfg ClientConfig) (*awseks.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.MaxAttempts > 0 {
		opts = append(opts, awsconfig.WithRetryMaxAttempts(cfg.MaxAttempts))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if cfg.AssumeRoleArn != "" {
		provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(awsCfg), cfg.AssumeRoleArn,
			func(o *stscreds.AssumeRoleOptions) {
				o.RoleSessionName = "clusterforge"
			})
		awsCfg.Credentials = aws.NewCredentialsCache(provider)
	}

	return awseks.NewFromConfig(awsCfg), nil
}
