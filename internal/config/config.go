package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/reelworks/reelpress/internal/apperror"
)

const (
	BackendLocal = "local"
	BackendMinIO = "minio"
)

type Config struct {
	Environment string
	LogLevel    string

	DatabaseURL string
	RedisURL    string

	// Storage backend selection: "local" or "minio". Picked once at process
	// start; nothing downstream branches on it again.
	StorageBackend string
	LocalBasePath  string
	ScratchPath    string

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool
	MinIORegion    string

	QueueStream  string
	QueueGroup   string
	LeaseTimeout time.Duration
	PollWait     time.Duration

	WorkerConcurrency int
	JobTimeout        time.Duration
	ShutdownGrace     time.Duration
	MetricsAddr       string

	ScratchTTL time.Duration

	ProbeTimeout     time.Duration
	MaxClipSeconds   float64
	IntroSeconds     float64
	OutroSeconds     float64
	TargetHeight     int
	MinOutputBytes   int64
	PresignedExpiry  time.Duration
	BrandingKey      string
	BrandingRequired bool

	TracingEnabled    bool
	TracingEndpoint   string
	TracingSampleRate float64
}

func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	cfg.Environment = getEnvString("ENVIRONMENT", "development")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, apperror.New(apperror.KindConfig, "DATABASE_URL is required")
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.RedisURL == "" {
		return nil, apperror.New(apperror.KindConfig, "REDIS_URL is required")
	}

	cfg.StorageBackend = getEnvString("STORAGE_BACKEND", BackendLocal)
	cfg.LocalBasePath = getEnvString("STORAGE_PATH", "./storage")
	cfg.ScratchPath = getEnvString("SCRATCH_PATH", os.TempDir()+"/reelpress")

	cfg.MinIOEndpoint = os.Getenv("MINIO_ENDPOINT")
	cfg.MinIOAccessKey = os.Getenv("MINIO_ACCESS_KEY")
	cfg.MinIOSecretKey = os.Getenv("MINIO_SECRET_KEY")
	cfg.MinIOBucket = os.Getenv("MINIO_BUCKET")
	cfg.MinIOUseSSL = getEnvBool("MINIO_USE_SSL", false)
	cfg.MinIORegion = getEnvString("MINIO_REGION", "us-east-1")

	cfg.QueueStream = getEnvString("QUEUE_STREAM", "videos:process")
	cfg.QueueGroup = getEnvString("QUEUE_GROUP", "workers")
	cfg.LeaseTimeout, err = getEnvDuration("QUEUE_LEASE_TIMEOUT", "60s")
	if err != nil {
		return nil, apperror.Wrap(err, apperror.KindConfig, "invalid QUEUE_LEASE_TIMEOUT")
	}
	cfg.PollWait, err = getEnvDuration("QUEUE_POLL_WAIT", "20s")
	if err != nil {
		return nil, apperror.Wrap(err, apperror.KindConfig, "invalid QUEUE_POLL_WAIT")
	}

	cfg.WorkerConcurrency = getEnvInt("WORKER_CONCURRENCY", 2)
	cfg.JobTimeout, err = getEnvDuration("JOB_TIMEOUT", "15m")
	if err != nil {
		return nil, apperror.Wrap(err, apperror.KindConfig, "invalid JOB_TIMEOUT")
	}
	cfg.ShutdownGrace, err = getEnvDuration("SHUTDOWN_GRACE", "30s")
	if err != nil {
		return nil, apperror.Wrap(err, apperror.KindConfig, "invalid SHUTDOWN_GRACE")
	}
	cfg.MetricsAddr = getEnvString("METRICS_ADDR", ":9090")
	cfg.ScratchTTL, err = getEnvDuration("SCRATCH_TTL", "24h")
	if err != nil {
		return nil, apperror.Wrap(err, apperror.KindConfig, "invalid SCRATCH_TTL")
	}

	cfg.ProbeTimeout, err = getEnvDuration("PROBE_TIMEOUT", "30s")
	if err != nil {
		return nil, apperror.Wrap(err, apperror.KindConfig, "invalid PROBE_TIMEOUT")
	}
	cfg.MaxClipSeconds = getEnvFloat("MAX_CLIP_SECONDS", 30)
	cfg.IntroSeconds = getEnvFloat("INTRO_SECONDS", 2.5)
	cfg.OutroSeconds = getEnvFloat("OUTRO_SECONDS", 2.5)
	cfg.TargetHeight = getEnvInt("TARGET_HEIGHT", 720)
	cfg.MinOutputBytes = getEnvInt64("MIN_OUTPUT_BYTES", 1000)
	cfg.PresignedExpiry, err = getEnvDuration("PRESIGNED_EXPIRY", "1h")
	if err != nil {
		return nil, apperror.Wrap(err, apperror.KindConfig, "invalid PRESIGNED_EXPIRY")
	}
	cfg.BrandingKey = getEnvString("BRANDING_KEY", "resources/logo720.png")
	cfg.BrandingRequired = getEnvBool("BRANDING_REQUIRED", true)

	cfg.TracingEnabled = getEnvBool("TRACING_ENABLED", false)
	cfg.TracingEndpoint = getEnvString("OTLP_ENDPOINT", "localhost:4317")
	cfg.TracingSampleRate = getEnvFloat("TRACING_SAMPLE_RATE", 1.0)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StorageBackend {
	case BackendLocal:
		if c.LocalBasePath == "" {
			return apperror.New(apperror.KindConfig, "STORAGE_PATH is required when STORAGE_BACKEND=local")
		}
	case BackendMinIO:
		if c.MinIOEndpoint == "" {
			return apperror.New(apperror.KindConfig, "MINIO_ENDPOINT is required when STORAGE_BACKEND=minio")
		}
		if c.MinIOAccessKey == "" || c.MinIOSecretKey == "" {
			return apperror.New(apperror.KindConfig, "MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when STORAGE_BACKEND=minio")
		}
		if c.MinIOBucket == "" {
			return apperror.New(apperror.KindConfig, "MINIO_BUCKET is required when STORAGE_BACKEND=minio")
		}
	default:
		return apperror.Newf(apperror.KindConfig, "unknown STORAGE_BACKEND %q", c.StorageBackend)
	}

	if c.WorkerConcurrency < 1 {
		return apperror.Newf(apperror.KindConfig, "invalid worker concurrency: %d", c.WorkerConcurrency)
	}
	if c.LeaseTimeout <= 0 {
		return apperror.Newf(apperror.KindConfig, "invalid lease timeout: %s", c.LeaseTimeout)
	}
	if c.MaxClipSeconds <= 0 {
		return apperror.Newf(apperror.KindConfig, "invalid max clip seconds: %f", c.MaxClipSeconds)
	}
	if c.TargetHeight <= 0 || c.TargetHeight%2 != 0 {
		return apperror.Newf(apperror.KindConfig, "target height must be positive and even: %d", c.TargetHeight)
	}

	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key, defaultValue string) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
