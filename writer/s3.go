package writer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/FilippoBovo/betfair-data/config"
	"github.com/FilippoBovo/betfair-data/logger"
)

// ArtifactUploader pushes finished run artifacts (the packaged store archive
// or the merged Parquet table) to an S3 bucket.
type ArtifactUploader struct {
	cfg      appconfig.S3Config
	s3Client *s3.Client
	log      *logger.Log
}

// NewArtifactUploader builds an uploader from the storage configuration.
func NewArtifactUploader(ctx context.Context, cfg appconfig.S3Config) (*ArtifactUploader, error) {
	log := logger.GetLogger()

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				"",
			),
		))
	}

	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsConfig.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	log.WithComponent("s3_uploader").WithFields(logger.Fields{
		"bucket":     cfg.Bucket,
		"region":     cfg.Region,
		"endpoint":   cfg.Endpoint,
		"path_style": cfg.PathStyle,
	}).Info("s3 uploader initialized")

	return &ArtifactUploader{cfg: cfg, s3Client: s3Client, log: log}, nil
}

// Upload stores a local file under the file's base name in the bucket.
func (u *ArtifactUploader) Upload(ctx context.Context, path string) error {
	key := filepath.Base(path)

	log := u.log.WithComponent("s3_uploader").WithFields(logger.Fields{
		"bucket": u.cfg.Bucket,
		"s3_key": key,
	})

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read artifact: %w", err)
	}

	log.WithFields(logger.Fields{"data_size": len(data)}).Info("uploading artifact to S3")

	input := &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	}

	if _, err := u.s3Client.PutObject(context.WithoutCancel(ctx), input); err != nil {
		log.WithError(err).WithEnv("S3_BUCKET").Error("failed to upload to S3")
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", u.cfg.Bucket, err)
	}

	log.Info("artifact uploaded successfully")
	return nil
}
