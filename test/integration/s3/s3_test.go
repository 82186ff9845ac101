//go:build integration

package s3_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/filemq/pkg/config"
	"github.com/marmos91/filemq/pkg/store/digest"
	digests3 "github.com/marmos91/filemq/pkg/store/digest/s3"
	digesttesting "github.com/marmos91/filemq/pkg/store/digest/testing"
)

func localstackEndpoint() string {
	if endpoint := os.Getenv("LOCALSTACK_ENDPOINT"); endpoint != "" {
		return endpoint
	}
	return "http://localhost:4566"
}

// setupTestS3 creates a bucket on Localstack and returns a client for it.
// The bucket and its objects are removed when the test ends.
func setupTestS3(t *testing.T, bucketName string) *s3.Client {
	t.Helper()
	ctx := context.Background()

	cfg, err := awsConfig.LoadDefaultConfig(ctx,
		awsConfig.WithRegion("us-east-1"),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
	)
	require.NoError(t, err, "load AWS config")

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(localstackEndpoint())
		o.UsePathStyle = true
	})

	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucketName)})
	require.NoError(t, err, "create test bucket")

	t.Cleanup(func() {
		listResp, _ := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{Bucket: aws.String(bucketName)})
		if listResp != nil {
			for _, obj := range listResp.Contents {
				_, _ = client.DeleteObject(ctx, &s3.DeleteObjectInput{
					Bucket: aws.String(bucketName),
					Key:    obj.Key,
				})
			}
		}
		_, _ = client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucketName)})
	})
	return client
}

// TestS3DigestStore_Integration runs the digest store suite against
// Localstack.
//
// Prerequisites:
//   - Localstack running on localhost:4566 (or LOCALSTACK_ENDPOINT)
//   - Run with: go test -tags=integration ./test/integration/s3/...
//
// To start Localstack:
//
//	docker run --rm -p 4566:4566 localstack/localstack
func TestS3DigestStore_Integration(t *testing.T) {
	ctx := context.Background()
	bucketName := "filemq-digest-suite"
	client := setupTestS3(t, bucketName)

	// Each test gets its own key prefix
	testCounter := 0
	suite := &digesttesting.StoreTestSuite{
		NewStore: func(t *testing.T) digest.Store {
			testCounter++
			store, err := digests3.NewS3DigestStore(ctx, digests3.S3DigestStoreConfig{
				Client:    client,
				Bucket:    bucketName,
				KeyPrefix: fmt.Sprintf("test-%d/", testCounter),
			})
			require.NoError(t, err)
			return store
		},
	}
	suite.Run(t)
}

// TestS3DigestStore_FromConfig builds the store the way "filemq client"
// does and checks that a second store sees what the first saved.
func TestS3DigestStore_FromConfig(t *testing.T) {
	ctx := context.Background()
	bucketName := "filemq-digest-config"
	setupTestS3(t, bucketName)

	cacheCfg := &config.CacheConfig{
		Type: "s3",
		S3: map[string]any{
			"endpoint":          localstackEndpoint(),
			"region":            "us-east-1",
			"bucket":            bucketName,
			"access_key_id":     "test",
			"secret_access_key": "test",
			"key_prefix":        "inbox/",
		},
	}

	first, err := config.CreateDigestStore(ctx, cacheCfg)
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, "/srv/inbox/photos", map[string]string{
		"a.jpg": "A9993E364706816ABA3E25717850C26C9CD0D89D",
	}))
	require.NoError(t, first.Close())

	second, err := config.CreateDigestStore(ctx, cacheCfg)
	require.NoError(t, err)
	defer second.Close()

	entries, err := second.Load(ctx, "/srv/inbox/photos")
	require.NoError(t, err)
	assert.Equal(t, "A9993E364706816ABA3E25717850C26C9CD0D89D", entries["a.jpg"])
}
