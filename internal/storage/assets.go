// Package storage stores profile images in an S3-compatible bucket and
// hands back public URLs for them.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/anonto42/nano-midea/user-service/internal/apperr"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultTimeout = 10 * time.Second

// S3API is the part of *s3.Client the asset store uses
type S3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutBucketPolicy(ctx context.Context, params *s3.PutBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.PutBucketPolicyOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Asset is an uploaded file as received from the client
type Asset struct {
	Body        io.Reader
	ContentType string
	Filename    string
}

// AssetStore uploads and deletes objects in one bucket. It is safe for
// concurrent use.
type AssetStore struct {
	client     S3API
	bucket     string
	region     string
	publicBase string
	timeout    time.Duration
	maxSize    int64
	logger     *zap.Logger

	mu          sync.Mutex
	bucketReady bool
}

// NewAssetStore creates a new AssetStore
func NewAssetStore(client S3API, cfg Config, logger *zap.Logger) *AssetStore {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &AssetStore{
		client:     client,
		bucket:     cfg.Bucket,
		region:     cfg.Region,
		publicBase: cfg.publicBase(),
		timeout:    timeout,
		maxSize:    cfg.MaxSize,
		logger:     logger.With(zap.String("bucket", cfg.Bucket)),
	}
}

// OwnedPrefix is the URL prefix every object of this store starts with
func (s *AssetStore) OwnedPrefix() string {
	return s.publicBase + "/" + s.bucket + "/"
}

// Owns reports whether url points at an object inside this store's bucket
func (s *AssetStore) Owns(url string) bool {
	_, ok := s.objectKey(url)
	return ok
}

// Upload stores asset under folder and returns its public URL. Empty and
// non-image payloads are rejected with apperr.ErrInvalidAsset.
func (s *AssetStore) Upload(ctx context.Context, asset Asset, folder string) (string, error) {
	if asset.Body == nil {
		return "", fmt.Errorf("%w: no file provided", apperr.ErrInvalidAsset)
	}

	data, err := s.readBody(asset.Body)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: file is empty", apperr.ErrInvalidAsset)
	}

	// browsers send octet-stream for files without a known extension; the
	// sniffed type still has to be an image
	contentType := resolveContentType(asset.ContentType, data)
	if !isImage(contentType) {
		return "", fmt.Errorf("%w: file must be an image, got %q", apperr.ErrInvalidAsset, contentType)
	}

	if err := s.ensureBucket(ctx); err != nil {
		return "", err
	}

	key := folder + "/" + uuid.NewString() + extension(asset.Filename)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err = s.client.PutObject(callCtx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("%w: put object %s: %w", apperr.ErrUpstream, key, err)
	}

	s.logger.Debug("object uploaded", zap.String("key", key), zap.Int("size", len(data)), zap.String("contentType", contentType))
	return s.OwnedPrefix() + key, nil
}

// Delete removes the object behind url. URLs this store does not own and
// objects that are already gone are not errors.
func (s *AssetStore) Delete(ctx context.Context, url string) error {
	key, ok := s.objectKey(url)
	if !ok {
		if url != "" {
			s.logger.Debug("skipping delete of foreign url", zap.String("url", url))
		}
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.client.DeleteObject(callCtx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("%w: delete object %s: %w", apperr.ErrUpstream, key, err)
	}
	return nil
}

// ensureBucket creates the bucket with a public-read policy the first time it
// is needed. A failed attempt is retried on the next call.
func (s *AssetStore) ensureBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bucketReady {
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.client.HeadBucket(callCtx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		s.bucketReady = true
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("%w: head bucket %s: %w", apperr.ErrUpstream, s.bucket, err)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}
	if s.region != "" && s.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}
	if _, err := s.client.CreateBucket(callCtx, input); err != nil && !isAlreadyCreated(err) {
		return fmt.Errorf("%w: create bucket %s: %w", apperr.ErrUpstream, s.bucket, err)
	}

	// Another instance may have won the create race; the policy document is
	// identical so writing it again is harmless.
	policy, err := publicReadPolicy(s.bucket)
	if err != nil {
		return err
	}
	_, err = s.client.PutBucketPolicy(callCtx, &s3.PutBucketPolicyInput{
		Bucket: aws.String(s.bucket),
		Policy: aws.String(policy),
	})
	if err != nil {
		return fmt.Errorf("%w: put bucket policy %s: %w", apperr.ErrUpstream, s.bucket, err)
	}

	s.logger.Info("bucket created with public-read policy")
	s.bucketReady = true
	return nil
}

func (s *AssetStore) readBody(body io.Reader) ([]byte, error) {
	if s.maxSize <= 0 {
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read file: %w", apperr.ErrInvalidAsset, err)
		}
		return data, nil
	}

	data, err := io.ReadAll(io.LimitReader(body, s.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read file: %w", apperr.ErrInvalidAsset, err)
	}
	if int64(len(data)) > s.maxSize {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", apperr.ErrInvalidAsset, s.maxSize)
	}
	return data, nil
}

func (s *AssetStore) objectKey(url string) (string, bool) {
	prefix := s.OwnedPrefix()
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(url, prefix)
	if key == "" || strings.Contains(key, "..") {
		return "", false
	}
	return key, true
}

// resolveContentType trusts the declared type unless it is missing or
// generic, in which case the payload is sniffed.
func resolveContentType(declared string, data []byte) string {
	ct := strings.ToLower(strings.TrimSpace(declared))
	if ct == "" || strings.HasPrefix(ct, "application/octet-stream") {
		return mimetype.Detect(data).String()
	}
	return ct
}

func isImage(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "image/")
}

var extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)

// extension keeps the original file extension when it looks like one
func extension(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if !extPattern.MatchString(ext) {
		return ""
	}
	return ext
}

func publicReadPolicy(bucket string) (string, error) {
	policy := map[string]interface{}{
		"Version": "2012-10-17",
		"Statement": []map[string]interface{}{
			{
				"Effect":    "Allow",
				"Principal": map[string]interface{}{"AWS": []string{"*"}},
				"Action":    []string{"s3:GetObject"},
				"Resource":  []string{"arn:aws:s3:::" + bucket + "/*"},
			},
		},
	}
	raw, err := json.Marshal(policy)
	if err != nil {
		return "", fmt.Errorf("failed to encode bucket policy: %w", err)
	}
	return string(raw), nil
}

func isNotFound(err error) bool {
	var (
		notFound *types.NotFound
		noBucket *types.NoSuchBucket
		noKey    *types.NoSuchKey
	)
	if errors.As(err, &notFound) || errors.As(err, &noBucket) || errors.As(err, &noKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchBucket", "NoSuchKey":
			return true
		}
	}
	return false
}

func isAlreadyCreated(err error) bool {
	var (
		owned  *types.BucketAlreadyOwnedByYou
		exists *types.BucketAlreadyExists
	)
	return errors.As(err, &owned) || errors.As(err, &exists)
}
