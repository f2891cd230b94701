package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("docsync-storage")

// MinioClient wraps MinIO operations with tracing
type MinioClient struct {
	client     *minio.Client
	bucketName string
	logger     *slog.Logger
}

// NewMinioClient initializes a new MinIO client
func NewMinioClient(endpoint, accessKey, secretKey, bucketName string, useSSL bool, logger *slog.Logger) (*MinioClient, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	mc := &MinioClient{
		client:     client,
		bucketName: bucketName,
		logger:     logger.With(slog.String("component", "minio")),
	}

	// Ensure bucket exists
	ctx := context.Background()
	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		mc.logger.Info("creating bucket", slog.String("bucket", bucketName))
		err = client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return mc, nil
}

// ObjectKey builds a unique object key for an owner's upload
func ObjectKey(ownerID, filename string) string {
	return path.Join("documents", ownerID, uuid.New().String(), path.Base("/"+filename))
}

// checksumMeta is the user metadata key holding the hex SHA-256 of an object
const checksumMeta = "Sha256"

// PutObject stores document bytes under key with tracing
func (mc *MinioClient) PutObject(ctx context.Context, key string, data []byte, contentType, checksum string) error {
	ctx, span := tracer.Start(ctx, "minio.put_object",
		trace.WithAttributes(
			attribute.String("object_key", key),
			attribute.Int("size_bytes", len(data)),
		),
	)
	defer span.End()

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	reader := bytes.NewReader(data)
	opts := minio.PutObjectOptions{ContentType: contentType}
	if checksum != "" {
		opts.UserMetadata = map[string]string{checksumMeta: checksum}
	}
	_, err := mc.client.PutObject(ctx, mc.bucketName, key, reader, int64(len(data)), opts)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upload object: %w", err)
	}

	span.SetAttributes(attribute.Bool("upload_success", true))
	return nil
}

// GetObject downloads document bytes and the checksum recorded at upload
func (mc *MinioClient) GetObject(ctx context.Context, key string) ([]byte, string, error) {
	ctx, span := tracer.Start(ctx, "minio.get_object",
		trace.WithAttributes(
			attribute.String("object_key", key),
		),
	)
	defer span.End()

	object, err := mc.client.GetObject(ctx, mc.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		span.RecordError(err)
		return nil, "", fmt.Errorf("failed to get object: %w", err)
	}
	defer object.Close()

	info, err := object.Stat()
	if err != nil {
		span.RecordError(err)
		return nil, "", fmt.Errorf("failed to stat object: %w", err)
	}

	data, err := io.ReadAll(object)
	if err != nil {
		span.RecordError(err)
		return nil, "", fmt.Errorf("failed to read object data: %w", err)
	}

	checksum := objectChecksum(info.UserMetadata)
	span.SetAttributes(
		attribute.Int("size_bytes", len(data)),
		attribute.Bool("has_checksum", checksum != ""),
		attribute.Bool("download_success", true),
	)
	return data, checksum, nil
}

// objectChecksum finds the checksum regardless of header canonicalisation
func objectChecksum(meta map[string]string) string {
	for k, v := range meta {
		if strings.EqualFold(k, checksumMeta) {
			return v
		}
	}
	return ""
}

// DeleteObject removes document bytes
func (mc *MinioClient) DeleteObject(ctx context.Context, key string) error {
	ctx, span := tracer.Start(ctx, "minio.delete_object",
		trace.WithAttributes(
			attribute.String("object_key", key),
		),
	)
	defer span.End()

	err := mc.client.RemoveObject(ctx, mc.bucketName, key, minio.RemoveObjectOptions{})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete object: %w", err)
	}

	return nil
}
