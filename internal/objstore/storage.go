// Package objstore wraps MinIO/S3 interactions for artifacts, extracted text,
// and export outputs.
package objstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/fiecsoft/procflow/internal/config"
)

// Storage holds one bucket per content family: raw artifacts, extracted
// plain text, and generated exports.
type Storage struct {
	client          *minio.Client
	artifactBucket  string
	processedBucket string
	exportBucket    string
	region          string
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{
		client:          client,
		artifactBucket:  cfg.ArtifactBucket,
		processedBucket: cfg.ProcessedBucket,
		exportBucket:    cfg.ExportBucket,
		region:          cfg.S3Region,
	}, nil
}

// EnsureBuckets makes sure all three buckets exist before use.
func (s *Storage) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.artifactBucket, s.processedBucket, s.exportBucket} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
				return fmt.Errorf("make bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

// UploadArtifact streams one uploaded document into the artifact bucket.
func (s *Storage) UploadArtifact(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.client.PutObject(ctx, s.artifactBucket, objectKey, reader, size, opts); err != nil {
		return fmt.Errorf("upload artifact: %w", err)
	}
	return nil
}

// DownloadArtifact fetches raw artifact bytes, used by the extraction worker.
func (s *Storage) DownloadArtifact(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.artifactBucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	defer obj.Close()
	buf, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return buf, nil
}

// UploadProcessed stores extracted plain text next to its artifact.
func (s *Storage) UploadProcessed(ctx context.Context, objectKey string, data []byte) error {
	reader := bytes.NewReader(data)
	opts := minio.PutObjectOptions{ContentType: "text/plain; charset=utf-8"}
	if _, err := s.client.PutObject(ctx, s.processedBucket, objectKey, reader, int64(len(data)), opts); err != nil {
		return fmt.Errorf("upload processed object: %w", err)
	}
	return nil
}

// UploadExport stores a generated CSV export.
func (s *Storage) UploadExport(ctx context.Context, objectKey string, data []byte) error {
	reader := bytes.NewReader(data)
	opts := minio.PutObjectOptions{ContentType: "text/csv"}
	if _, err := s.client.PutObject(ctx, s.exportBucket, objectKey, reader, int64(len(data)), opts); err != nil {
		return fmt.Errorf("upload export: %w", err)
	}
	return nil
}

// PresignArtifactURL returns a signed GET URL for an artifact version.
func (s *Storage) PresignArtifactURL(ctx context.Context, objectKey string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.artifactBucket, objectKey, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign artifact: %w", err)
	}
	return u.String(), nil
}

// PresignExportURL returns a signed GET URL for an export file.
func (s *Storage) PresignExportURL(ctx context.Context, objectKey string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.exportBucket, objectKey, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign export: %w", err)
	}
	return u.String(), nil
}
