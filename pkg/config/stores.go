package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/filemq/internal/logger"
	"github.com/marmos91/filemq/pkg/store/digest"
	digestbadger "github.com/marmos91/filemq/pkg/store/digest/badger"
	digestfile "github.com/marmos91/filemq/pkg/store/digest/file"
	digestmemory "github.com/marmos91/filemq/pkg/store/digest/memory"
	digests3 "github.com/marmos91/filemq/pkg/store/digest/s3"
)

// s3YAMLConfig represents S3 configuration loaded from YAML files.
type s3YAMLConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

type fileYAMLConfig struct {
	Name string `mapstructure:"name"`
}

type badgerYAMLConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// CreateDigestStore creates the digest cache store selected by cfg.Type.
//
// Supported types:
//   - "file": one .cache file per directory (pkg/store/digest/file)
//   - "memory": process-local maps (pkg/store/digest/memory)
//   - "badger": one BadgerDB database for all directories
//   - "s3": one object per directory in a bucket
func CreateDigestStore(ctx context.Context, cfg *CacheConfig) (digest.Store, error) {
	switch cfg.Type {
	case "", "file":
		var fileCfg fileYAMLConfig
		if err := mapstructure.Decode(cfg.File, &fileCfg); err != nil {
			return nil, fmt.Errorf("invalid file cache config: %w", err)
		}
		return digestfile.NewFileDigestStore(fileCfg.Name), nil

	case "memory":
		return digestmemory.NewMemoryDigestStore(), nil

	case "badger":
		return createBadgerDigestStore(ctx, cfg.Badger)

	case "s3":
		return createS3DigestStore(ctx, cfg.S3)

	default:
		return nil, fmt.Errorf("unknown cache type: %q", cfg.Type)
	}
}

// createBadgerDigestStore creates a BadgerDB digest store.
func createBadgerDigestStore(ctx context.Context, options map[string]any) (digest.Store, error) {
	var badgerCfg badgerYAMLConfig
	if err := mapstructure.Decode(options, &badgerCfg); err != nil {
		return nil, fmt.Errorf("invalid badger cache config: %w", err)
	}

	store, err := digestbadger.NewBadgerDigestStore(ctx, digestbadger.BadgerDigestStoreConfig{
		DBPath: badgerCfg.DBPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	logger.Info("Badger digest cache initialized: path=%s", badgerCfg.DBPath)
	return store, nil
}

// createS3DigestStore creates an S3-backed digest store.
func createS3DigestStore(ctx context.Context, options map[string]any) (digest.Store, error) {
	var storeCfg s3YAMLConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 cache config: %w", err)
	}

	if storeCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 digest cache: bucket is required")
	}
	if storeCfg.Region == "" {
		storeCfg.Region = "us-east-1"
	}

	// ========================================================================
	// Step 1: Build AWS Config
	// ========================================================================

	var configOptions []func(*awsConfig.LoadOptions) error

	configOptions = append(configOptions, awsConfig.WithRegion(storeCfg.Region))

	// Set credentials if provided, otherwise use default credential chain
	if storeCfg.AccessKeyID != "" && storeCfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			storeCfg.AccessKeyID,
			storeCfg.SecretAccessKey,
			"",
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := storeCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 5
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// ========================================================================
	// Step 2: Create S3 Client
	// ========================================================================

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// MinIO and Localstack need path-style addressing
		if storeCfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(storeCfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	// ========================================================================
	// Step 3: Create S3 Digest Store
	// ========================================================================

	store, err := digests3.NewS3DigestStore(ctx, digests3.S3DigestStoreConfig{
		Client:    client,
		Bucket:    storeCfg.Bucket,
		KeyPrefix: storeCfg.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 digest cache: %w", err)
	}

	logger.Info("S3 digest cache initialized: bucket=%s, region=%s, prefix=%s",
		storeCfg.Bucket, storeCfg.Region, storeCfg.KeyPrefix)

	return store, nil
}
