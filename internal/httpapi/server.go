// Package httpapi exposes the data service over HTTP.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ahmad-alkadri/depot-dataservice/internal/metrics"
	"github.com/ahmad-alkadri/depot-dataservice/internal/services"
	"github.com/ahmad-alkadri/depot-dataservice/internal/storage"
)

// DataService is the part of services.DataService the API calls.
type DataService interface {
	UploadDataWithOptions(ctx context.Context, container, key string, data []byte, opts storage.UploadOptions) (storage.UploadResult, error)
	DownloadData(ctx context.Context, container, key string) ([]byte, error)
	DeleteData(ctx context.Context, container, key string) error
	ListData(ctx context.Context, container, prefix string) ([]storage.ObjectInfo, error)
	ArchiveData(ctx context.Context, container, prefix string) ([]byte, error)
	UploadMultipart(ctx context.Context, container, prefix, contentType string, body []byte) ([]services.UploadedFile, error)
	Backend() string
}

// Options configures the API.
type Options struct {
	DefaultContainer string
	MaxUploadBytes   int64
	// RateLimitRPS <= 0 disables rate limiting.
	RateLimitRPS   float64
	RateLimitBurst int
}

// Server holds the router and the state shared by handlers.
type Server struct {
	router  chi.Router
	handler *Handler
	limiter *rate.Limiter
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewServer builds the router.
func NewServer(svc DataService, opts Options, m *metrics.Metrics, logger zerolog.Logger) *Server {
	if m == nil {
		m = metrics.NewNop()
	}
	s := &Server{
		limiter: newLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
		metrics: m,
		logger:  logger.With().Str("component", "httpapi").Logger(),
	}
	s.handler = NewHandler(
		svc,
		opts,
		services.NewDefaultFilenameExtractor(),
		services.NewUUIDGenerator(),
		services.NewDefaultContentTypeDetector(),
		s.logger,
	)

	router := chi.NewRouter()
	router.Use(middleware.RealIP)
	router.Use(s.requestID)
	router.Use(middleware.Recoverer)
	router.Use(s.accessLog)
	router.Use(s.instrument)

	router.Get("/healthz", s.handler.Health)

	router.Group(func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Use(s.maxBody(opts.MaxUploadBytes))

		r.Route("/containers/{container}", func(r chi.Router) {
			s.mountBlobRoutes(r)
			r.Get("/archive", s.handler.Archive)
		})
		// Same operations against the configured default container.
		r.Route("/default", func(r chi.Router) {
			s.mountBlobRoutes(r)
			r.Get("/archive", s.handler.Archive)
		})
	})

	s.router = router
	return s
}

func (s *Server) mountBlobRoutes(r chi.Router) {
	r.Get("/blobs", s.handler.List)
	r.Post("/blobs", s.handler.Create)
	r.Put("/blobs/*", s.handler.Upload)
	r.Get("/blobs/*", s.handler.Download)
	r.Delete("/blobs/*", s.handler.Delete)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SetRateLimit changes the request rate limit in place. rps <= 0 removes it.
func (s *Server) SetRateLimit(rps float64, burst int) {
	if rps <= 0 {
		s.limiter.SetLimit(rate.Inf)
		return
	}
	s.limiter.SetLimit(rate.Limit(rps))
	s.limiter.SetBurst(max(burst, 1))
}

func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rps), max(burst, 1))
}
