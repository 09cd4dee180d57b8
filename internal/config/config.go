package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// DefaultEnvFile is read by Load when it exists
const DefaultEnvFile = ".env"

// Config holds all configuration for the image generation service
type Config struct {
	// Server configuration
	HTTPPort int    `env:"GLIMAGE_HTTP_PORT" envDefault:"7860"`
	GRPCPort int    `env:"GLIMAGE_GRPC_PORT" envDefault:"7861"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Redis configuration
	Redis RedisConfig

	// Pipeline configuration
	Pipeline PipelineConfig

	// Generation limits
	Generation GenerationConfig

	// Event bus and record storage backends
	Events  EventsConfig
	Storage StorageConfig

	// Worker configuration
	Workers WorkerConfig

	// Timeouts
	Timeouts TimeoutConfig
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// PipelineConfig holds image pipeline configuration
type PipelineConfig struct {
	Backend   string `env:"PIPELINE_BACKEND" envDefault:"procedural"`
	Model     string `env:"PIPELINE_MODEL" envDefault:"zai-org/GLM-Image"`
	RunnerURL string `env:"PIPELINE_RUNNER_URL" envDefault:"http://127.0.0.1:8188"`

	LoadTimeout    time.Duration `env:"PIPELINE_LOAD_TIMEOUT" envDefault:"10m"`
	RequestTimeout time.Duration `env:"PIPELINE_REQUEST_TIMEOUT" envDefault:"15m"`

	// Simulated load time of the procedural backend
	LoadDelay time.Duration `env:"PIPELINE_LOAD_DELAY" envDefault:"0s"`
}

// GenerationConfig holds request limits
type GenerationConfig struct {
	MinSteps    int `env:"GENERATION_MIN_STEPS" envDefault:"10"`
	MaxSteps    int `env:"GENERATION_MAX_STEPS" envDefault:"100"`
	MaxUploadMB int `env:"GENERATION_MAX_UPLOAD_MB" envDefault:"64"`

	// Largest width*height accepted per uploaded image, 4096x4096 by default
	MaxInputPixels int `env:"GENERATION_MAX_INPUT_PIXELS" envDefault:"16777216"`
}

// EventsConfig selects the event bus
type EventsConfig struct {
	Backend      string `env:"EVENTS_BACKEND" envDefault:"memory"`
	StreamMaxLen int64  `env:"EVENTS_STREAM_MAX_LEN" envDefault:"10000"`
}

// StorageConfig selects the generation record storage
type StorageConfig struct {
	Backend    string        `env:"STORAGE_BACKEND" envDefault:"memory"`
	RecordTTL  time.Duration `env:"STORAGE_RECORD_TTL" envDefault:"24h"`
	MaxRecords int           `env:"STORAGE_MAX_RECORDS" envDefault:"1000"`
}

// WorkerConfig holds inference worker configuration
type WorkerConfig struct {
	HealthCheckInterval time.Duration `env:"WORKER_HEALTH_CHECK_INTERVAL" envDefault:"30s"`
}

// TimeoutConfig holds various timeout configurations
type TimeoutConfig struct {
	ShutdownTimeout time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// Load reads configuration from environment variables. Variables from
// envFiles (DefaultEnvFile when none are given) fill in anything not already
// set in the environment; a missing file is ignored.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{DefaultEnvFile}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error loading %s: %w", file, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	// 0 disables the gRPC health server
	if c.GRPCPort < 0 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}
	if c.GRPCPort == c.HTTPPort {
		return fmt.Errorf("HTTP and gRPC ports must differ: %d", c.HTTPPort)
	}

	// Validate pipeline config
	switch c.Pipeline.Backend {
	case "procedural":
	case "runner":
		if c.Pipeline.RunnerURL == "" {
			return fmt.Errorf("pipeline runner URL is required for the runner backend")
		}
	default:
		return fmt.Errorf("unsupported pipeline backend: %s (must be procedural or runner)", c.Pipeline.Backend)
	}
	if c.Pipeline.Model == "" {
		return fmt.Errorf("pipeline model is required")
	}

	// Validate generation limits
	if c.Generation.MinSteps < 1 {
		return fmt.Errorf("minimum steps must be at least 1")
	}
	if c.Generation.MaxSteps < c.Generation.MinSteps {
		return fmt.Errorf("maximum steps %d is below minimum steps %d", c.Generation.MaxSteps, c.Generation.MinSteps)
	}
	if c.Generation.MaxUploadMB < 1 {
		return fmt.Errorf("maximum upload size must be at least 1 MB")
	}
	if c.Generation.MaxInputPixels < 1 {
		return fmt.Errorf("maximum input pixels must be at least 1")
	}
	if c.Pipeline.LoadDelay < 0 {
		return fmt.Errorf("pipeline load delay must not be negative")
	}

	// Validate backends
	if !validBackend(c.Events.Backend) {
		return fmt.Errorf("unsupported events backend: %s (must be memory or redis)", c.Events.Backend)
	}
	if !validBackend(c.Storage.Backend) {
		return fmt.Errorf("unsupported storage backend: %s (must be memory or redis)", c.Storage.Backend)
	}
	if c.UsesRedis() && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}
	if c.Storage.MaxRecords < 1 {
		return fmt.Errorf("storage max records must be at least 1")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// UsesRedis reports whether any backend needs a Redis connection
func (c *Config) UsesRedis() bool {
	return c.Events.Backend == "redis" || c.Storage.Backend == "redis"
}

// MaxUploadBytes returns the request body limit for uploads
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Generation.MaxUploadMB) << 20
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}

func validBackend(backend string) bool {
	return backend == "memory" || backend == "redis"
}
