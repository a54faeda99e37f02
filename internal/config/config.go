package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Storage backend names.
const (
	BackendMinio   = "minio"
	BackendS3      = "s3"
	BackendAzure   = "azure"
	BackendGoCloud = "gocloud"
)

// ErrInvalidConfig is returned by Validate for any missing or inconsistent setting.
var ErrInvalidConfig = errors.New("invalid configuration")

// MinioConfig holds the access-key client settings.
type MinioConfig struct {
	Endpoint  string `env:"ENDPOINT" envDefault:"localhost:9000"`
	AccessKey string `env:"ACCESS_KEY" envDefault:"minioadmin"`
	SecretKey string `env:"SECRET_KEY" envDefault:"minioadmin"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"false"`
}

// S3Config holds AWS S3 (or S3-compatible) settings. Empty keys mean the
// default AWS credential chain is used.
type S3Config struct {
	Region          string `env:"REGION" envDefault:"us-east-1"`
	Endpoint        string `env:"ENDPOINT"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	UsePathStyle    bool   `env:"USE_PATH_STYLE" envDefault:"false"`
}

// AzureConfig holds Azure Blob Storage settings. Either Endpoint (used with the
// default Azure credential chain) or ConnectionString must be set.
type AzureConfig struct {
	Endpoint         string `env:"ENDPOINT"`
	ConnectionString string `env:"CONNECTION_STRING"`
}

// GoCloudConfig holds the portable bucket URL, e.g. mem://, file:///var/lib/depot.
type GoCloudConfig struct {
	BucketURL string `env:"BUCKET_URL" envDefault:"mem://"`
}

// Config holds the application configuration
type Config struct {
	Environment    string        `env:"DATASERVICE_ENV" envDefault:"development"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	ServerAddr     string        `env:"SERVER_ADDR" envDefault:":3003"`
	MetricsAddr    string        `env:"METRICS_ADDR" envDefault:":9091"`
	MaxUploadBytes int64         `env:"MAX_UPLOAD_BYTES" envDefault:"104857600"` // 100MB
	ReloadInterval time.Duration `env:"CONFIG_RELOAD_INTERVAL" envDefault:"10s"`

	Backend          string `env:"STORAGE_BACKEND" envDefault:"minio"`
	DefaultContainer string `env:"STORAGE_DEFAULT_CONTAINER" envDefault:"depot-payloads"`
	EnsureContainer  bool   `env:"STORAGE_ENSURE_CONTAINER" envDefault:"true"`

	Minio   MinioConfig   `envPrefix:"MINIO_"`
	S3      S3Config      `envPrefix:"S3_"`
	Azure   AzureConfig   `envPrefix:"AZURE_STORAGE_"`
	GoCloud GoCloudConfig `envPrefix:"GOCLOUD_"`

	RedisAddr           string        `env:"REDIS_ADDR"`
	RedisPassword       string        `env:"REDIS_PASSWORD"`
	RedisDB             int           `env:"REDIS_DB" envDefault:"0"`
	CacheTTL            time.Duration `env:"CACHE_TTL" envDefault:"5m"`
	CacheMaxObjectBytes int64         `env:"CACHE_MAX_OBJECT_BYTES" envDefault:"1048576"` // 1MB

	NATSURL           string `env:"NATS_URL"`
	NATSSubjectPrefix string `env:"NATS_SUBJECT_PREFIX" envDefault:"dataservice"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"0"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"20"`
}

// LoadConfig reads an optional .env file and then the process environment.
// Variables set in the environment win over .env.
func LoadConfig() (*Config, error) {
	if err := applyDotEnv(".env"); err != nil {
		return nil, fmt.Errorf("read .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	return cfg, nil
}

// dotenv remembers which variables were exported from .env, and with what
// value, so later loads can pick up edits to the file.
var dotenv struct {
	mu  sync.Mutex
	set map[string]string
}

// applyDotEnv exports the variables of filename into the process environment,
// so SDK credential chains see them too. A variable the environment already
// defines is left alone. A variable exported by an earlier call follows the
// file: it is updated when the file changes and unset when the file drops it.
// A missing file is not an error.
func applyDotEnv(filename string) error {
	values, err := godotenv.Read(filename)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		values = map[string]string{}
	}

	dotenv.mu.Lock()
	defer dotenv.mu.Unlock()
	if dotenv.set == nil {
		dotenv.set = make(map[string]string)
	}

	for key, exported := range dotenv.set {
		if current, ok := os.LookupEnv(key); !ok || current != exported {
			// Changed outside of .env; the environment owns it now.
			delete(dotenv.set, key)
			continue
		}
		if _, ok := values[key]; !ok {
			os.Unsetenv(key)
			delete(dotenv.set, key)
		}
	}

	for key, value := range values {
		_, ours := dotenv.set[key]
		if _, ok := os.LookupEnv(key); ok && !ours {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return err
		}
		dotenv.set[key] = value
	}
	return nil
}

// Validate checks that the selected backend has what it needs to connect.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMinio:
		if c.Minio.Endpoint == "" || c.Minio.AccessKey == "" || c.Minio.SecretKey == "" {
			return fmt.Errorf("%w: MINIO_ENDPOINT, MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required", ErrInvalidConfig)
		}
	case BackendS3:
		if c.S3.Region == "" {
			return fmt.Errorf("%w: S3_REGION is required", ErrInvalidConfig)
		}
		if (c.S3.AccessKeyID == "") != (c.S3.SecretAccessKey == "") {
			return fmt.Errorf("%w: S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY must be set together", ErrInvalidConfig)
		}
	case BackendAzure:
		if c.Azure.Endpoint == "" && c.Azure.ConnectionString == "" {
			return fmt.Errorf("%w: AZURE_STORAGE_ENDPOINT or AZURE_STORAGE_CONNECTION_STRING is required", ErrInvalidConfig)
		}
	case BackendGoCloud:
		if c.GoCloud.BucketURL == "" {
			return fmt.Errorf("%w: GOCLOUD_BUCKET_URL is required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown STORAGE_BACKEND %q", ErrInvalidConfig, c.Backend)
	}

	if c.RateLimitRPS < 0 {
		return fmt.Errorf("%w: RATE_LIMIT_RPS must not be negative", ErrInvalidConfig)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("%w: MAX_UPLOAD_BYTES must be positive", ErrInvalidConfig)
	}
	return nil
}

// Load reads and validates the configuration.
func Load() (*Config, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConfigManager keeps the latest configuration and re-reads the environment on
// a fixed interval. Subscribers are called only when the configuration changed.
type ConfigManager struct {
	mu       sync.RWMutex
	config   *Config
	interval time.Duration
	onChange []func(old, updated *Config)
}

func NewConfigManager(cfg *Config) *ConfigManager {
	interval := cfg.ReloadInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &ConfigManager{
		config:   cfg,
		interval: interval,
	}
}

// OnChange registers fn to run after a reload produced a different config.
func (cm *ConfigManager) OnChange(fn func(old, updated *Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.onChange = append(cm.onChange, fn)
}

// Run reloads until ctx is cancelled. Invalid reloads are reported through
// errFn and the previous config is kept.
func (cm *ConfigManager) Run(ctx context.Context, errFn func(error)) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := cm.Reload(); err != nil && errFn != nil {
				errFn(err)
			}
		}
	}
}

// Reload reads the environment once and swaps the config if it changed.
func (cm *ConfigManager) Reload() error {
	newConfig, err := Load()
	if err != nil {
		return err
	}

	cm.mu.Lock()
	old := cm.config
	if reflect.DeepEqual(old, newConfig) {
		cm.mu.Unlock()
		return nil
	}
	cm.config = newConfig
	subscribers := append([]func(old, updated *Config){}, cm.onChange...)
	cm.mu.Unlock()

	for _, fn := range subscribers {
		fn(old, newConfig)
	}
	return nil
}

func (cm *ConfigManager) GetConfig() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}
