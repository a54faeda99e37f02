package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ahmad-alkadri/depot-dataservice/internal/config"
)

// New builds the Client selected by cfg.Backend.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (Client, error) {
	switch cfg.Backend {
	case config.BackendMinio:
		return NewMinioClient(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.UseSSL, logger)
	case config.BackendS3:
		return NewS3Client(ctx, S3Options{
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
		}, logger)
	case config.BackendAzure:
		// A connection string wins when both are configured.
		if cfg.Azure.ConnectionString != "" {
			return NewAzureClientFromConnectionString(cfg.Azure.ConnectionString, logger)
		}
		return NewAzureClient(cfg.Azure.Endpoint, logger)
	case config.BackendGoCloud:
		return NewGoCloudClient(ctx, cfg.GoCloud.BucketURL, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, cfg.Backend)
	}
}
