package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// MinioClient is the access-key client: endpoint plus a static key pair.
type MinioClient struct {
	client *minio.Client
	logger zerolog.Logger
}

var _ Client = (*MinioClient)(nil)

// NewMinioClient creates a new MinIO client
func NewMinioClient(endpoint, accessKey, secretKey string, useSSL bool, logger zerolog.Logger) (*MinioClient, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	return &MinioClient{
		client: client,
		logger: logger.With().Str("backend", "minio").Logger(),
	}, nil
}

func (m *MinioClient) Name() string { return "minio" }

// EnsureContainer creates the bucket if it doesn't exist
func (m *MinioClient) EnsureContainer(ctx context.Context, container string) error {
	exists, err := m.client.BucketExists(ctx, container)
	if err != nil {
		return fmt.Errorf("error checking if bucket exists: %w", err)
	}

	if !exists {
		err = m.client.MakeBucket(ctx, container, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("error creating bucket: %w", err)
		}
		m.logger.Info().Str("container", container).Msg("created bucket")
	}

	return nil
}

// Upload stores the object. Without Overwrite the existence check and the
// write are two requests, so a concurrent writer can still win.
func (m *MinioClient) Upload(ctx context.Context, container, key string, r io.Reader, size int64, opts UploadOptions) (UploadResult, error) {
	if !opts.Overwrite {
		_, err := m.client.StatObject(ctx, container, key, minio.StatObjectOptions{})
		if err == nil {
			return UploadResult{}, fmt.Errorf("upload %s/%s: %w", container, key, ErrAlreadyExists)
		}
		if mapped := m.mapError(err); mapped != ErrNotFound {
			return UploadResult{}, fmt.Errorf("stat %s/%s: %w", container, key, mapped)
		}
	}

	info, err := m.client.PutObject(ctx, container, key, r, size, minio.PutObjectOptions{
		ContentType: contentTypeOrDefault(opts.ContentType),
	})
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to upload object %s: %w", key, m.mapError(err))
	}

	return UploadResult{
		ETag:      normalizeETag(info.ETag),
		VersionID: info.VersionID,
		Size:      info.Size,
	}, nil
}

// Download streams an object from MinIO
func (m *MinioClient) Download(ctx context.Context, container, key string, w io.Writer) error {
	object, err := m.client.GetObject(ctx, container, key, minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to get object %s: %w", key, m.mapError(err))
	}
	defer object.Close()

	// GetObject is lazy; a missing key only shows up on the first read.
	if _, err := io.Copy(w, object); err != nil {
		return fmt.Errorf("failed to read object %s: %w", key, m.mapError(err))
	}
	return nil
}

// Delete removes an object. MinIO reports success for missing keys.
func (m *MinioClient) Delete(ctx context.Context, container, key string) error {
	err := m.client.RemoveObject(ctx, container, key, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, m.mapError(err))
	}
	return nil
}

// List lists the objects under prefix
func (m *MinioClient) List(ctx context.Context, container, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo

	objectCh := m.client.ListObjects(ctx, container, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("error listing objects: %w", m.mapError(object.Err))
		}
		objects = append(objects, ObjectInfo{
			Key:          object.Key,
			Size:         object.Size,
			ETag:         normalizeETag(object.ETag),
			LastModified: object.LastModified,
		})
	}

	return objects, nil
}

func (m *MinioClient) mapError(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey":
		return ErrNotFound
	case "NoSuchBucket":
		return ErrContainerNotFound
	}
	return err
}
