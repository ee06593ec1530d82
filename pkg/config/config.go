package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/puzzlelog/pkg/analytics"
	"github.com/platinummonkey/puzzlelog/pkg/archive"
	"github.com/platinummonkey/puzzlelog/pkg/cache"
	"github.com/platinummonkey/puzzlelog/pkg/observability"
	"github.com/platinummonkey/puzzlelog/pkg/storage"
)

// EnvPrefix prefixes every environment variable read by LoadConfig
const EnvPrefix = "PUZZLELOG_"

// Archive backends
const (
	ArchiveNone       = "none"
	ArchiveFilesystem = "filesystem"
	ArchiveS3         = "s3"
)

// DefaultPuzzleOrder is the puzzle sequence of the shipped game
var DefaultPuzzleOrder = []string{"puzzle1", "puzzle2", "puzzle3", "puzzle4", "puzzle5", "puzzle6"}

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Analytics     AnalyticsConfig     `yaml:"analytics"`
	Storage       storage.Config      `yaml:"storage"`
	Cache         CacheConfig         `yaml:"cache"`
	Archive       ArchiveConfig       `yaml:"archive"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// AnalyticsConfig holds aggregation settings
type AnalyticsConfig struct {
	PuzzleOrder []string `yaml:"puzzle_order"`
}

// CacheConfig holds report cache settings
type CacheConfig struct {
	Enabled      bool              `yaml:"enabled"`
	cache.Config `yaml:",inline"`
	Redis        cache.RedisConfig `yaml:"redis"`
}

// ArchiveConfig holds report archive settings
type ArchiveConfig struct {
	Backend  string           `yaml:"backend"`
	Dir      string           `yaml:"dir"`
	Schedule string           `yaml:"schedule"`
	S3       archive.S3Config `yaml:"s3"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel           string  `yaml:"log_level"`
	MetricsEnabled     bool    `yaml:"metrics_enabled"`
	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"`
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// Level returns the parsed log level
func (o ObservabilityConfig) Level() observability.LogLevel {
	return parseLogLevel(o.LogLevel)
}

// OTel converts the settings for observability.InitOTel
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "5000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORSOrigins:     []string{"*"},
			MaxBodyBytes:    1 << 20,
		},
		Analytics: AnalyticsConfig{
			PuzzleOrder: append([]string(nil), DefaultPuzzleOrder...),
		},
		Storage: storage.DefaultConfig(),
		Cache: CacheConfig{
			Enabled: true,
			Config:  cache.DefaultConfig(),
		},
		Archive: ArchiveConfig{
			Backend:  ArchiveNone,
			Dir:      "archive",
			Schedule: "@hourly",
			S3:       archive.S3Config{Region: "us-east-1"},
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "puzzlelog",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1,
		},
	}
}

// LoadConfig builds the configuration from defaults, the optional YAML file
// and the environment, then validates it
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(EnvPrefix + "CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile overlays a YAML file on cfg. Keys absent from the file keep their
// current values.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	// Server
	setString(&c.Server.Host, "HOST")
	setString(&c.Server.Port, "PORT")
	setDuration(&c.Server.ReadTimeout, "READ_TIMEOUT")
	setDuration(&c.Server.WriteTimeout, "WRITE_TIMEOUT")
	setDuration(&c.Server.IdleTimeout, "IDLE_TIMEOUT")
	setDuration(&c.Server.ShutdownTimeout, "SHUTDOWN_TIMEOUT")
	setList(&c.Server.CORSOrigins, "CORS_ORIGINS")
	setInt64(&c.Server.MaxBodyBytes, "MAX_BODY_BYTES")

	// Analytics
	setList(&c.Analytics.PuzzleOrder, "PUZZLE_ORDER")

	// Storage
	setString(&c.Storage.Type, "STORAGE_TYPE")
	setString(&c.Storage.SQLitePath, "SQLITE_PATH")
	setString(&c.Storage.PostgresURL, "POSTGRES_URL")
	setList(&c.Storage.PostgresReplicaURLs, "POSTGRES_REPLICA_URLS")
	setInt(&c.Storage.PostgresMaxConns, "POSTGRES_MAX_CONNS")
	setInt(&c.Storage.PostgresMinConns, "POSTGRES_MIN_CONNS")
	setDuration(&c.Storage.PostgresTimeout, "POSTGRES_TIMEOUT")

	// Cache
	setBool(&c.Cache.Enabled, "CACHE_ENABLED")
	setDuration(&c.Cache.TTL, "CACHE_TTL")
	setInt(&c.Cache.L1Size, "CACHE_L1_SIZE")
	setString(&c.Cache.KeyPrefix, "CACHE_KEY_PREFIX")
	setString(&c.Cache.Redis.URL, "REDIS_URL")
	setString(&c.Cache.Redis.Password, "REDIS_PASSWORD")
	setInt(&c.Cache.Redis.DB, "REDIS_DB")
	setInt(&c.Cache.Redis.MaxRetries, "REDIS_MAX_RETRIES")
	setInt(&c.Cache.Redis.PoolSize, "REDIS_POOL_SIZE")

	// Archive
	setString(&c.Archive.Backend, "ARCHIVE_BACKEND")
	setString(&c.Archive.Dir, "ARCHIVE_DIR")
	setString(&c.Archive.Schedule, "ARCHIVE_SCHEDULE")
	setString(&c.Archive.S3.Endpoint, "S3_ENDPOINT")
	setString(&c.Archive.S3.Region, "S3_REGION")
	setString(&c.Archive.S3.Bucket, "S3_BUCKET")
	setString(&c.Archive.S3.AccessKey, "S3_ACCESS_KEY")
	setString(&c.Archive.S3.SecretKey, "S3_SECRET_KEY")
	setBool(&c.Archive.S3.UsePathStyle, "S3_USE_PATH_STYLE")
	setBool(&c.Archive.S3.CreateBucket, "S3_CREATE_BUCKET")

	// Observability
	setString(&c.Observability.LogLevel, "LOG_LEVEL")
	setBool(&c.Observability.MetricsEnabled, "METRICS_ENABLED")
	setBool(&c.Observability.OTelEnabled, "OTEL_ENABLED")
	setString(&c.Observability.OTelEndpoint, "OTEL_ENDPOINT")
	setString(&c.Observability.OTelServiceName, "OTEL_SERVICE_NAME")
	setString(&c.Observability.OTelServiceVersion, "OTEL_SERVICE_VERSION")
	setBool(&c.Observability.OTelInsecure, "OTEL_INSECURE")
	setFloat(&c.Observability.OTelSampleRatio, "OTEL_SAMPLE_RATIO")
}

// PuzzleOrder builds the immutable puzzle order
func (c *Config) PuzzleOrder() (analytics.PuzzleOrder, error) {
	return analytics.NewPuzzleOrder(c.Analytics.PuzzleOrder...)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server port is required")
	}
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("server port must be numeric: %q", c.Server.Port)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return errors.New("max body bytes must be positive")
	}

	if _, err := c.PuzzleOrder(); err != nil {
		return fmt.Errorf("invalid puzzle order: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return err
	}

	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		return errors.New("cache TTL must be positive when the cache is enabled")
	}
	if c.Cache.L1Size < 0 {
		return errors.New("cache L1 size must not be negative")
	}

	switch c.Archive.Backend {
	case ArchiveNone, "":
	case ArchiveFilesystem:
		if c.Archive.Dir == "" {
			return errors.New("archive dir is required for the filesystem archive")
		}
	case ArchiveS3:
		if c.Archive.S3.Bucket == "" {
			return errors.New("S3 bucket is required for the s3 archive")
		}
	default:
		return fmt.Errorf("invalid archive backend: %s (must be none, filesystem, or s3)", c.Archive.Backend)
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return errors.New("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return errors.New("OpenTelemetry service name is required when OTel is enabled")
		}
	}
	if r := c.Observability.OTelSampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("OpenTelemetry sample ratio must be within [0, 1], got %v", r)
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// lookup returns the trimmed value of PUZZLELOG_<key> when it is set and non-empty
func lookup(key string) (string, bool) {
	value := strings.TrimSpace(os.Getenv(EnvPrefix + key))
	return value, value != ""
}

func setString(dst *string, key string) {
	if value, ok := lookup(key); ok {
		*dst = value
	}
}

func setBool(dst *bool, key string) {
	if value, ok := lookup(key); ok {
		*dst = strings.EqualFold(value, "true") || value == "1"
	}
}

func setInt(dst *int, key string) {
	if value, ok := lookup(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if value, ok := lookup(key); ok {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if value, ok := lookup(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			*dst = f
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if value, ok := lookup(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			*dst = d
		}
	}
}

// setList splits a comma-separated value, dropping blank items
func setList(dst *[]string, key string) {
	value, ok := lookup(key)
	if !ok {
		return
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	*dst = items
}
