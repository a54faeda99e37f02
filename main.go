package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ahmad-alkadri/depot-dataservice/internal/cache"
	"github.com/ahmad-alkadri/depot-dataservice/internal/config"
	"github.com/ahmad-alkadri/depot-dataservice/internal/events"
	"github.com/ahmad-alkadri/depot-dataservice/internal/logging"
	"github.com/ahmad-alkadri/depot-dataservice/internal/metrics"
	"github.com/ahmad-alkadri/depot-dataservice/internal/services"
	"github.com/ahmad-alkadri/depot-dataservice/internal/storage"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:          "dataservice",
	Short:        "Depot data service - upload, download and delete blobs",
	Long:         "A thin data service over object storage (MinIO, S3, Azure Blob or any gocloud bucket), usable as an HTTP server or from the command line.",
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it). Logs go to
// the command's stderr.
func loadConfig(cmd *cobra.Command) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.SetupWithWriter(cfg.Environment, cfg.LogLevel, cmd.ErrOrStderr())
	return nil
}

// dataService bundles a DataService with the resources it owns.
type dataService struct {
	*services.DataService
	closers []io.Closer
}

func (d *dataService) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			logger.Warn().Err(err).Msg("close failed")
		}
	}
}

// newDataService builds the storage client, cache and notifier from cfg.
func newDataService(ctx context.Context, m *metrics.Metrics) (*dataService, error) {
	client, err := storage.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize %s storage: %w", cfg.Backend, err)
	}
	ds := &dataService{}
	if c, ok := client.(io.Closer); ok {
		ds.closers = append(ds.closers, c)
	}

	blobCache := cache.New(cache.Config{
		RedisAddr:      cfg.RedisAddr,
		RedisPassword:  cfg.RedisPassword,
		RedisDB:        cfg.RedisDB,
		TTL:            cfg.CacheTTL,
		MaxObjectBytes: cfg.CacheMaxObjectBytes,
	}, logger, m)
	ds.closers = append(ds.closers, blobCache)

	notifier, err := events.NewNotifier(cfg.NATSURL, cfg.NATSSubjectPrefix, logger)
	if err != nil {
		ds.Close()
		return nil, err
	}
	ds.closers = append(ds.closers, notifier)

	ds.DataService = services.NewDataService(client, blobCache, notifier, m, logger)
	logger.Info().
		Str("backend", client.Name()).
		Bool("cache", cfg.RedisAddr != "").
		Bool("events", cfg.NATSURL != "").
		Msg("data service initialized")
	return ds, nil
}

func containerOrDefault(container string) string {
	if container == "" || container == "-" {
		return cfg.DefaultContainer
	}
	return container
}
