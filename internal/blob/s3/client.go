// Package s3blob archives trade outcomes to S3-compatible object storage
// (AWS S3, MinIO, Cloudflare R2, and similar) via AWS SDK v2.
package s3blob

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig holds connection parameters for the object store.
type ClientConfig struct {
	Endpoint       string // S3-compatible endpoint URL; empty means AWS S3
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	UseSSL         bool // scheme to assume when Endpoint carries none
	ForcePathStyle bool // bucket in path, required by most non-AWS providers
}

// Client holds the SDK client and the bucket every archival write targets.
type Client struct {
	s3     *s3.Client
	bucket string
}

// New builds the SDK client from cfg and verifies the bucket is reachable
// before returning. Archival must fail at startup, not on the first trade.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3blob: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3blob: region is required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(withScheme(cfg.Endpoint, cfg.UseSSL))
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	}); err != nil {
		return nil, fmt.Errorf("s3blob: bucket %s not reachable: %w", cfg.Bucket, err)
	}

	return &Client{s3: client, bucket: cfg.Bucket}, nil
}

// withScheme prepends http:// or https:// when the endpoint carries no
// scheme of its own. url.Parse is no help here: it reads the host of a
// bare "host:port" endpoint as a scheme.
func withScheme(endpoint string, useSSL bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
