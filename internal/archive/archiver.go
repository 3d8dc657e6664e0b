// Package archive provides S3-compatible storage of raw report extracts.
// When the archive is not configured (empty bucket), the NoopArchiver is
// used and extracts are not retained beyond the current cycle.
package archive

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hyperengineering/invoicesync/internal/config"
)

// Archiver stores the raw payload of one sync run.
type Archiver interface {
	// Archive uploads the raw extract payload for the given job and run.
	Archive(ctx context.Context, jobName, runID string, payload []byte) error
}

// s3Client defines the minimal minio.Client operations used by S3Archiver.
// This interface enables testing with mock implementations.
type s3Client interface {
	PutObject(ctx context.Context, bucket, objectName string, payload []byte) error
}

// minioClientWrapper wraps *minio.Client to satisfy the s3Client interface.
type minioClientWrapper struct {
	client *minio.Client
}

func (w *minioClientWrapper) PutObject(ctx context.Context, bucket, objectName string, payload []byte) error {
	opts := minio.PutObjectOptions{ContentType: "text/csv"}
	_, err := w.client.PutObject(ctx, bucket, objectName, bytes.NewReader(payload), int64(len(payload)), opts)
	return err
}

// S3Archiver uploads extracts to S3-compatible storage.
type S3Archiver struct {
	client s3Client
	bucket string
}

// Archive uploads the payload under {job}/{run_id}.csv.
func (a *S3Archiver) Archive(ctx context.Context, jobName, runID string, payload []byte) error {
	if err := a.client.PutObject(ctx, a.bucket, objectKey(jobName, runID), payload); err != nil {
		return fmt.Errorf("archive extract to S3: %w", err)
	}
	return nil
}

// NoopArchiver is used when extract archiving is not configured.
type NoopArchiver struct{}

// Archive is a no-op when archiving is not configured.
func (a *NoopArchiver) Archive(ctx context.Context, jobName, runID string, payload []byte) error {
	return nil
}

// NewArchiver creates the appropriate Archiver based on configuration.
// Returns NoopArchiver when bucket is empty, S3Archiver otherwise.
func NewArchiver(cfg config.ArchiveConfig) (Archiver, error) {
	if cfg.Bucket == "" {
		return &NoopArchiver{}, nil
	}

	useSSL := true
	if cfg.UseSSL != nil {
		useSSL = *cfg.UseSSL
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	return &S3Archiver{
		client: &minioClientWrapper{client: client},
		bucket: cfg.Bucket,
	}, nil
}

// objectKey returns the S3 object key for one run's extract.
// Convention: {job}/{run_id}.csv
func objectKey(jobName, runID string) string {
	return jobName + "/" + runID + ".csv"
}
