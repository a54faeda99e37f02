package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

// GoCloudClient implements Client on a single portable bucket opened from a URL.
// Containers become top-level key prefixes inside that bucket.
type GoCloudClient struct {
	bucket *blob.Bucket
	logger zerolog.Logger
}

var _ Client = (*GoCloudClient)(nil)

// NewGoCloudClient opens the bucket at url (mem://, file:///path, s3://, gs://, azblob://).
func NewGoCloudClient(ctx context.Context, url string, logger zerolog.Logger) (*GoCloudClient, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", url, err)
	}
	return NewGoCloudClientFromBucket(bucket, logger), nil
}

// NewGoCloudClientFromBucket wraps an already opened bucket.
func NewGoCloudClientFromBucket(bucket *blob.Bucket, logger zerolog.Logger) *GoCloudClient {
	return &GoCloudClient{
		bucket: bucket,
		logger: logger.With().Str("backend", "gocloud").Logger(),
	}
}

func (g *GoCloudClient) Name() string { return "gocloud" }

func (g *GoCloudClient) Close() error {
	return g.bucket.Close()
}

// EnsureContainer is a no-op: a prefix exists as soon as a key is written under it.
func (g *GoCloudClient) EnsureContainer(ctx context.Context, container string) error {
	return nil
}

// Upload writes the object. Without Overwrite the existence check and the
// write are two requests.
func (g *GoCloudClient) Upload(ctx context.Context, container, key string, r io.Reader, size int64, opts UploadOptions) (UploadResult, error) {
	fullKey := objectPath(container, key)

	if !opts.Overwrite {
		exists, err := g.bucket.Exists(ctx, fullKey)
		if err != nil {
			return UploadResult{}, fmt.Errorf("check %s: %w", fullKey, mapGoCloudError(err))
		}
		if exists {
			return UploadResult{}, fmt.Errorf("upload %s: %w", fullKey, ErrAlreadyExists)
		}
	}

	hash := md5.New()
	w, err := g.bucket.NewWriter(ctx, fullKey, &blob.WriterOptions{
		ContentType: contentTypeOrDefault(opts.ContentType),
	})
	if err != nil {
		return UploadResult{}, fmt.Errorf("open writer %s: %w", fullKey, mapGoCloudWriteError(err, opts.Overwrite))
	}
	written, copyErr := io.Copy(io.MultiWriter(w, hash), r)
	closeErr := w.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		return UploadResult{}, fmt.Errorf("write %s: %w", fullKey, mapGoCloudWriteError(err, opts.Overwrite))
	}

	result := UploadResult{Size: written}
	attrs, err := g.bucket.Attributes(ctx, fullKey)
	if err == nil {
		result.ETag = normalizeETag(attrs.ETag)
	}
	// Not every driver reports an ETag; fall back to the content hash.
	if result.ETag == "" {
		result.ETag = hex.EncodeToString(hash.Sum(nil))
	}
	return result, nil
}

func (g *GoCloudClient) Download(ctx context.Context, container, key string, w io.Writer) error {
	fullKey := objectPath(container, key)

	r, err := g.bucket.NewReader(ctx, fullKey, nil)
	if err != nil {
		return fmt.Errorf("open reader %s: %w", fullKey, mapGoCloudError(err))
	}
	defer r.Close()

	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("read %s: %w", fullKey, mapGoCloudError(err))
	}
	return nil
}

func (g *GoCloudClient) Delete(ctx context.Context, container, key string) error {
	fullKey := objectPath(container, key)
	if err := g.bucket.Delete(ctx, fullKey); err != nil {
		return fmt.Errorf("delete %s: %w", fullKey, mapGoCloudError(err))
	}
	return nil
}

func (g *GoCloudClient) List(ctx context.Context, container, prefix string) ([]ObjectInfo, error) {
	containerPrefix := container + "/"

	var objects []ObjectInfo
	iter := g.bucket.List(&blob.ListOptions{Prefix: containerPrefix + prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", container, mapGoCloudError(err))
		}
		if obj.IsDir {
			continue
		}
		info := ObjectInfo{
			Key:          strings.TrimPrefix(obj.Key, containerPrefix),
			Size:         obj.Size,
			LastModified: obj.ModTime,
		}
		if len(obj.MD5) > 0 {
			info.ETag = hex.EncodeToString(obj.MD5)
		}
		objects = append(objects, info)
	}
	return objects, nil
}

func objectPath(container, key string) string {
	return container + "/" + key
}

func mapGoCloudError(err error) error {
	return mapGoCloudCode(gcerrors.Code(err), err, false)
}

// mapGoCloudWriteError reads FailedPrecondition as a lost create-only write.
// Overwriting writes have no precondition, so there it stays a plain failure
// (closed bucket, MD5 mismatch).
func mapGoCloudWriteError(err error, overwrite bool) error {
	return mapGoCloudCode(gcerrors.Code(err), err, !overwrite)
}

func mapGoCloudCode(code gcerrors.ErrorCode, err error, createOnly bool) error {
	switch code {
	case gcerrors.NotFound:
		return ErrNotFound
	case gcerrors.AlreadyExists:
		return ErrAlreadyExists
	case gcerrors.FailedPrecondition:
		if createOnly {
			return ErrAlreadyExists
		}
	}
	return err
}
