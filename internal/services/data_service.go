package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ahmad-alkadri/depot-dataservice/internal/cache"
	"github.com/ahmad-alkadri/depot-dataservice/internal/events"
	"github.com/ahmad-alkadri/depot-dataservice/internal/metrics"
	"github.com/ahmad-alkadri/depot-dataservice/internal/storage"
)

// DataService is a thin layer over a storage.Client. Every data operation is a
// single SDK delegation; caching and events are best-effort side paths.
type DataService struct {
	client    storage.Client
	cache     cache.BlobCache
	notifier  events.Notifier
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	detector  ContentTypeDetector
	processor *MultipartProcessor
	zip       ZipService
	guard     cacheGuard
}

// NewDataService wires a data service around client. blobCache, notifier and m
// may be nil.
func NewDataService(
	client storage.Client,
	blobCache cache.BlobCache,
	notifier events.Notifier,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *DataService {
	if blobCache == nil {
		blobCache = cache.Nop{}
	}
	if notifier == nil {
		notifier = events.Nop{}
	}
	if m == nil {
		m = metrics.NewNop()
	}
	detector := NewDefaultContentTypeDetector()
	return &DataService{
		client:    client,
		cache:     blobCache,
		notifier:  notifier,
		metrics:   m,
		logger:    logger.With().Str("component", "dataservice").Str("backend", client.Name()).Logger(),
		detector:  detector,
		processor: NewMultipartProcessor(detector),
		zip:       NewDefaultZipService(),
	}
}

// Backend names the storage backend in use.
func (s *DataService) Backend() string {
	return s.client.Name()
}

// UploadData stores data at container/key, replacing any existing object, and
// returns the identifier the backend reported.
func (s *DataService) UploadData(ctx context.Context, container, key string, data []byte) (string, error) {
	result, err := s.UploadDataWithOptions(ctx, container, key, data, storage.UploadOptions{Overwrite: true})
	if err != nil {
		return "", err
	}
	return result.Identifier(), nil
}

// UploadDataWithOptions is UploadData with explicit content type and overwrite
// control. An empty content type is detected from the key and the data.
func (s *DataService) UploadDataWithOptions(ctx context.Context, container, key string, data []byte, opts storage.UploadOptions) (storage.UploadResult, error) {
	if err := validateLocation(container, key); err != nil {
		return storage.UploadResult{}, err
	}
	if opts.ContentType == "" {
		opts.ContentType = s.detector.Detect(key, data)
	}

	start := time.Now()
	result, err := s.client.Upload(ctx, container, key, bytes.NewReader(data), int64(len(data)), opts)
	s.observe("upload", start, err)
	logger := s.requestLogger(ctx, container, key)
	if err != nil {
		logger.Error().Err(err).Bool("overwrite", opts.Overwrite).Msg("upload failed")
		return storage.UploadResult{}, fmt.Errorf("upload %s/%s: %w", container, key, err)
	}
	if result.Size == 0 {
		result.Size = int64(len(data))
	}
	s.metrics.StorageBytes.WithLabelValues(s.client.Name(), "upload").Add(float64(len(data)))

	s.invalidate(ctx, container, key)
	s.notifier.Notify(ctx, events.BlobEvent{
		Type:      events.BlobUploaded,
		Container: container,
		Key:       key,
		ETag:      result.Identifier(),
		Size:      result.Size,
		RequestID: RequestIDFromContext(ctx),
	})

	logger.Info().
		Str("etag", result.Identifier()).
		Int64("size", result.Size).
		Str("content_type", opts.ContentType).
		Dur("took", time.Since(start)).
		Msg("uploaded")
	return result, nil
}

// DownloadData returns the full content of container/key.
func (s *DataService) DownloadData(ctx context.Context, container, key string) ([]byte, error) {
	if err := validateLocation(container, key); err != nil {
		return nil, err
	}
	if data, ok := s.cache.Get(ctx, container, key); ok {
		return data, nil
	}

	ticket := s.guard.ticket(container, key)
	var buf bytes.Buffer
	start := time.Now()
	err := s.client.Download(ctx, container, key, &buf)
	s.observe("download", start, err)
	logger := s.requestLogger(ctx, container, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			logger.Debug().Msg("download: not found")
		} else {
			logger.Error().Err(err).Msg("download failed")
		}
		return nil, fmt.Errorf("download %s/%s: %w", container, key, err)
	}

	data := buf.Bytes()
	s.metrics.StorageBytes.WithLabelValues(s.client.Name(), "download").Add(float64(len(data)))
	// A write that landed while we were reading makes data stale; don't cache it.
	s.guard.fillIf(container, key, ticket, func() {
		s.cache.Set(ctx, container, key, data)
	})
	logger.Debug().Int("size", len(data)).Dur("took", time.Since(start)).Msg("downloaded")
	return data, nil
}

// DeleteData removes container/key.
func (s *DataService) DeleteData(ctx context.Context, container, key string) error {
	if err := validateLocation(container, key); err != nil {
		return err
	}

	start := time.Now()
	err := s.client.Delete(ctx, container, key)
	s.observe("delete", start, err)
	logger := s.requestLogger(ctx, container, key)
	if err != nil {
		logger.Error().Err(err).Msg("delete failed")
		return fmt.Errorf("delete %s/%s: %w", container, key, err)
	}

	s.invalidate(ctx, container, key)
	s.notifier.Notify(ctx, events.BlobEvent{
		Type:      events.BlobDeleted,
		Container: container,
		Key:       key,
		RequestID: RequestIDFromContext(ctx),
	})
	logger.Info().Msg("deleted")
	return nil
}

// ListData returns the objects in container whose key starts with prefix.
func (s *DataService) ListData(ctx context.Context, container, prefix string) ([]storage.ObjectInfo, error) {
	if container == "" {
		return nil, fmt.Errorf("%w: container is required", ErrInvalidArgument)
	}

	start := time.Now()
	objects, err := s.client.List(ctx, container, prefix)
	s.observe("list", start, err)
	if err != nil {
		s.requestLogger(ctx, container, "").Error().Err(err).Str("prefix", prefix).Msg("list failed")
		return nil, fmt.Errorf("list %s: %w", container, err)
	}
	return objects, nil
}

// ArchiveData zips every object under prefix. Entries are named by their full key.
func (s *DataService) ArchiveData(ctx context.Context, container, prefix string) ([]byte, error) {
	objects, err := s.ListData(ctx, container, prefix)
	if err != nil {
		return nil, err
	}
	if len(objects) == 0 {
		return nil, fmt.Errorf("archive %s/%s: %w", container, prefix, storage.ErrNotFound)
	}

	entries := make([]ArchiveEntry, 0, len(objects))
	for _, obj := range objects {
		data, err := s.DownloadData(ctx, container, obj.Key)
		if err != nil {
			return nil, err
		}
		entries = append(entries, ArchiveEntry{Name: obj.Key, Data: data})
	}

	archive, err := s.zip.CreateZip(entries)
	if err != nil {
		return nil, fmt.Errorf("archive %s/%s: %w", container, prefix, err)
	}
	s.requestLogger(ctx, container, "").Info().
		Str("prefix", prefix).
		Int("files", len(entries)).
		Int("size", len(archive)).
		Msg("archived")
	return archive, nil
}

// UploadMultipart stores every file part of a multipart body in container.
// Parts are uploaded in order; the first failure stops the batch and the files
// stored so far are returned alongside the error.
func (s *DataService) UploadMultipart(ctx context.Context, container, prefix, contentType string, body []byte) ([]UploadedFile, error) {
	if container == "" {
		return nil, fmt.Errorf("%w: container is required", ErrInvalidArgument)
	}
	parts, err := s.processor.Process(prefix, body, contentType)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: multipart body contains no files", ErrInvalidArgument)
	}

	uploaded := make([]UploadedFile, 0, len(parts))
	for _, part := range parts {
		result, err := s.UploadDataWithOptions(ctx, container, part.Key, part.Data, storage.UploadOptions{
			ContentType: part.ContentType,
			Overwrite:   true,
		})
		if err != nil {
			return uploaded, err
		}
		uploaded = append(uploaded, UploadedFile{
			Container:   container,
			Key:         part.Key,
			ETag:        result.Identifier(),
			Size:        result.Size,
			ContentType: part.ContentType,
		})
	}
	return uploaded, nil
}

// EnsureContainer creates container on the backend if needed.
func (s *DataService) EnsureContainer(ctx context.Context, container string) error {
	if container == "" {
		return fmt.Errorf("%w: container is required", ErrInvalidArgument)
	}
	start := time.Now()
	err := s.client.EnsureContainer(ctx, container)
	s.observe("ensure_container", start, err)
	if err != nil {
		return fmt.Errorf("ensure container %s: %w", container, err)
	}
	return nil
}

func (s *DataService) invalidate(ctx context.Context, container, key string) {
	s.guard.bump(container, key)
	s.cache.Invalidate(ctx, container, key)
}

func (s *DataService) observe(operation string, start time.Time, err error) {
	backend := s.client.Name()
	s.metrics.StorageDuration.WithLabelValues(backend, operation).Observe(time.Since(start).Seconds())
	s.metrics.StorageOperations.WithLabelValues(backend, operation, statusLabel(err)).Inc()
}

func (s *DataService) requestLogger(ctx context.Context, container, key string) *zerolog.Logger {
	lc := s.logger.With().Str("container", container)
	if key != "" {
		lc = lc.Str("key", key)
	}
	if id := RequestIDFromContext(ctx); id != "" {
		lc = lc.Str("request_id", id)
	}
	logger := lc.Logger()
	return &logger
}

func statusLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrContainerNotFound):
		return "not_found"
	case errors.Is(err, storage.ErrAlreadyExists):
		return "conflict"
	default:
		return "error"
	}
}

func validateLocation(container, key string) error {
	if container == "" {
		return fmt.Errorf("%w: container is required", ErrInvalidArgument)
	}
	if key == "" {
		return fmt.Errorf("%w: key is required", ErrInvalidArgument)
	}
	return nil
}
