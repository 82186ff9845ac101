// Package s3 keeps digest caches as objects in an S3 bucket, which lets
// several client hosts that mirror the same inbox share one cache.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/marmos91/filemq/pkg/store/digest"
)

// objectName is the final path element of every cache object.
const objectName = "digest.cache"

// Client is the subset of the S3 API the store uses.
type Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3DigestStore persists one object per directory under KeyPrefix.
type S3DigestStore struct {
	client    Client
	bucket    string
	keyPrefix string
}

// S3DigestStoreConfig configures the store.
type S3DigestStoreConfig struct {
	Client    Client
	Bucket    string
	KeyPrefix string
}

// NewS3DigestStore checks that the bucket is reachable and returns the store.
func NewS3DigestStore(ctx context.Context, cfg S3DigestStoreConfig) (*S3DigestStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	if _, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	}); err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	return &S3DigestStore{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
	}, nil
}

// objectKey maps an absolute directory to an object key.
func (s *S3DigestStore) objectKey(dir string) string {
	clean := strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(dir, "\\", "/")), "/")
	return path.Join(s.keyPrefix, clean, objectName)
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey"
	}
	return false
}

func (s *S3DigestStore) Load(ctx context.Context, dir string) (map[string]string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(dir)),
	})
	if err != nil {
		if isNotFound(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("get digest cache for %s: %w", dir, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read digest cache for %s: %w", dir, err)
	}
	return digest.Decode(data), nil
}

func (s *S3DigestStore) Save(ctx context.Context, dir string, entries map[string]string) error {
	data := digest.Encode(entries)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(dir)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("text/plain"),
	})
	if err != nil {
		return fmt.Errorf("put digest cache for %s: %w", dir, err)
	}
	return nil
}

func (s *S3DigestStore) Close() error { return nil }
