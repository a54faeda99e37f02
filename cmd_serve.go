package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ahmad-alkadri/depot-dataservice/internal/config"
	"github.com/ahmad-alkadri/depot-dataservice/internal/httpapi"
	"github.com/ahmad-alkadri/depot-dataservice/internal/logging"
	"github.com/ahmad-alkadri/depot-dataservice/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long:  "Start the blob HTTP API and the Prometheus metrics endpoint",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(cmd); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	ds, err := newDataService(ctx, m)
	if err != nil {
		return err
	}
	defer ds.Close()

	if cfg.EnsureContainer {
		if err := ds.EnsureContainer(ctx, cfg.DefaultContainer); err != nil {
			return err
		}
		logger.Info().Str("container", cfg.DefaultContainer).Msg("default container ready")
	}

	api := httpapi.NewServer(ds.DataService, httpapi.Options{
		DefaultContainer: cfg.DefaultContainer,
		MaxUploadBytes:   cfg.MaxUploadBytes,
		RateLimitRPS:     cfg.RateLimitRPS,
		RateLimitBurst:   cfg.RateLimitBurst,
	}, m, logger)

	configManager := config.NewConfigManager(cfg)
	configManager.OnChange(func(old, updated *config.Config) {
		if old.LogLevel != updated.LogLevel {
			logging.SetLevel(updated.LogLevel)
			logger.Info().Str("level", updated.LogLevel).Msg("log level changed")
		}
		if old.RateLimitRPS != updated.RateLimitRPS || old.RateLimitBurst != updated.RateLimitBurst {
			api.SetRateLimit(updated.RateLimitRPS, updated.RateLimitBurst)
			logger.Info().
				Float64("rps", updated.RateLimitRPS).
				Int("burst", updated.RateLimitBurst).
				Msg("rate limit changed")
		}
		if old.Backend != updated.Backend || old.DefaultContainer != updated.DefaultContainer {
			logger.Warn().Msg("storage settings changed; restart to apply")
		}
	})
	go configManager.Run(ctx, func(err error) {
		logger.Warn().Err(err).Msg("config reload failed, keeping previous config")
	})

	httpServer := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	for _, srv := range []*http.Server{httpServer, metricsServer} {
		go func(srv *http.Server) {
			logger.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}(srv)
	}

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down gracefully...")
	case err = <-errCh:
		logger.Error().Err(err).Msg("http server error")
	}

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, srv := range []*http.Server{httpServer, metricsServer} {
		if shutdownErr := srv.Shutdown(timeoutCtx); shutdownErr != nil {
			logger.Error().Err(shutdownErr).Str("addr", srv.Addr).Msg("graceful shutdown failed")
		}
	}

	logger.Info().Msg("data service stopped")
	return err
}
