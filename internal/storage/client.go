package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config describes the S3-compatible backend (MinIO in development)
type Config struct {
	// Endpoint is where the client sends API calls, e.g. http://minio:9000
	Endpoint string
	// PublicEndpoint is the base of the URLs handed to clients. Defaults to Endpoint.
	PublicEndpoint string
	AccessKey      string
	SecretKey      string
	Region         string
	Bucket         string
	// Timeout bounds every call to the backend
	Timeout time.Duration
	// MaxSize is the largest accepted upload in bytes; 0 means unlimited
	MaxSize int64
}

func (c Config) publicBase() string {
	base := c.PublicEndpoint
	if base == "" {
		base = c.Endpoint
	}
	return strings.TrimRight(base, "/")
}

// NewS3Client builds the single long-lived client shared by all requests.
// Path-style addressing keeps object URLs in the {endpoint}/{bucket}/{key} form.
func NewS3Client(ctx context.Context, cfg Config) (*s3.Client, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("storage endpoint and bucket are required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(strings.TrimRight(cfg.Endpoint, "/"))
		o.UsePathStyle = true
	})
	return client, nil
}
