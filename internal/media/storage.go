// Package media resolves stored media references into retrievable URLs and
// accepts uploads into object storage.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrObjectNotFound is returned when a storage id names no stored object.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStorage is the blob store behind opaque storage ids.
type ObjectStorage interface {
	Put(ctx context.Context, id string, r io.Reader, size int64, contentType string) error
	PresignedURL(ctx context.Context, id string, expiry time.Duration) (string, error)
	Remove(ctx context.Context, id string) error
}

// MinIOConfig holds connection settings for an S3-compatible store.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

// MinIOStorage keeps media objects in a single bucket.
type MinIOStorage struct {
	client *minio.Client
	bucket string
}

// NewMinIOStorage connects to the store and creates the bucket if needed.
func NewMinIOStorage(ctx context.Context, cfg MinIOConfig) (*MinIOStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", cfg.Bucket, err)
		}
	}
	return &MinIOStorage{client: client, bucket: cfg.Bucket}, nil
}

func (m *MinIOStorage) Put(ctx context.Context, id string, r io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, id, r, size, minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"uploaded-at": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("upload object %s: %w", id, err)
	}
	return nil
}

// PresignedURL checks the object exists before signing, since signing alone
// succeeds for any key.
func (m *MinIOStorage) PresignedURL(ctx context.Context, id string, expiry time.Duration) (string, error) {
	if _, err := m.client.StatObject(ctx, m.bucket, id, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return "", ErrObjectNotFound
		}
		return "", fmt.Errorf("stat object %s: %w", id, err)
	}
	u, err := m.client.PresignedGetObject(ctx, m.bucket, id, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign object %s: %w", id, err)
	}
	return u.String(), nil
}

func (m *MinIOStorage) Remove(ctx context.Context, id string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, id, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", id, err)
	}
	return nil
}
