// Package storage wraps the object storage SDKs behind a single Client interface.
package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

var (
	ErrNotFound           = errors.New("object not found")
	ErrContainerNotFound  = errors.New("container not found")
	ErrAlreadyExists      = errors.New("object already exists")
	ErrUnsupportedBackend = errors.New("unsupported storage backend")
)

// Client is the SDK surface the data service delegates to.
type Client interface {
	// Upload writes size bytes from r to container/key. size may be -1 when unknown.
	Upload(ctx context.Context, container, key string, r io.Reader, size int64, opts UploadOptions) (UploadResult, error)
	// Download streams container/key into w.
	Download(ctx context.Context, container, key string, w io.Writer) error
	// Delete removes container/key.
	Delete(ctx context.Context, container, key string) error
	// List returns the objects in container whose key starts with prefix.
	List(ctx context.Context, container, prefix string) ([]ObjectInfo, error)
	// EnsureContainer creates the container if it does not exist.
	EnsureContainer(ctx context.Context, container string) error
	// Name identifies the backend in logs and metrics.
	Name() string
}

// UploadOptions controls a single upload.
type UploadOptions struct {
	ContentType string
	// Overwrite replaces an existing object. When false an existing object
	// makes the upload fail with ErrAlreadyExists.
	Overwrite bool
}

// UploadResult is what the backend reported for a completed upload.
type UploadResult struct {
	ETag      string
	VersionID string
	Size      int64
}

// Identifier returns the ETag, or the version ID for backends that report no ETag.
func (r UploadResult) Identifier() string {
	if r.ETag != "" {
		return r.ETag
	}
	return r.VersionID
}

// ObjectInfo describes a listed object.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// normalizeETag strips the quotes some SDKs keep around ETag values.
func normalizeETag(etag string) string {
	return strings.Trim(etag, `"`)
}

func contentTypeOrDefault(contentType string) string {
	if contentType == "" {
		return "application/octet-stream"
	}
	return contentType
}
