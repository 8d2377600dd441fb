// Package config loads flat environment-variable configuration into typed
// structs, matching pkg/database's LoadConfigFromEnv style rather than the
// original service's HCL-file loader — this system has no per-agent/chain
// authoring surface, only the connection and tuning knobs in the external
// interfaces table.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	HTTPPort string `yaml:"http_port"`
	GinMode  string `yaml:"gin_mode"`

	// IngestRatePerSecond and IngestBurst bound the ingestion pool per spec
	// §5 ("an ingestion pool ... bounded to the server's connection limit"):
	// a per-client-IP token bucket in front of /events and /initialize.
	IngestRatePerSecond float64 `yaml:"ingest_rate_per_second"`
	IngestBurst         int     `yaml:"ingest_burst"`
}

func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{HTTPPort: "8080", GinMode: "release", IngestRatePerSecond: 50, IngestBurst: 100}
}

func (s *ServerConfig) Validate() error {
	if s == nil {
		return fmt.Errorf("server configuration is nil")
	}
	if s.HTTPPort == "" {
		return fmt.Errorf("http_port is required")
	}
	if s.IngestRatePerSecond <= 0 {
		return fmt.Errorf("ingest_rate_per_second must be positive")
	}
	if s.IngestBurst < 1 {
		return fmt.Errorf("ingest_burst must be at least 1")
	}
	return nil
}

// Config is the umbrella configuration object returned by Load.
type Config struct {
	Server    *ServerConfig
	Queue     *QueueConfig
	Retention *RetentionConfig
	Container *ContainerConfig
	WebSocket *WebSocketConfig
}

// Validate checks every sub-configuration.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Queue.Validate(); err != nil {
		return err
	}
	if err := c.Retention.Validate(); err != nil {
		return err
	}
	if err := c.Container.Validate(); err != nil {
		return err
	}
	if err := c.WebSocket.Validate(); err != nil {
		return err
	}
	return nil
}

// Load reads environment variables (after loading envPath if present,
// mirroring cmd/orchestrator/main.go's godotenv.Load call) into a Config,
// starting from the built-in defaults and overriding with any variable
// that is actually set.
func Load(envPath string) (*Config, error) {
	if envPath != "" {
		_ = godotenv.Load(envPath)
	}

	cfg := &Config{
		Server:    DefaultServerConfig(),
		Queue:     DefaultQueueConfig(),
		Retention: DefaultRetentionConfig(),
		Container: DefaultContainerConfig(),
		WebSocket: DefaultWebSocketConfig(),
	}

	cfg.Server.HTTPPort = getEnvOrDefault("HTTP_PORT", cfg.Server.HTTPPort)
	cfg.Server.GinMode = getEnvOrDefault("GIN_MODE", cfg.Server.GinMode)

	if v := os.Getenv("INGEST_RATE_PER_SECOND"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid INGEST_RATE_PER_SECOND: %w", err)
		}
		cfg.Server.IngestRatePerSecond = f
	}
	if v := os.Getenv("INGEST_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid INGEST_BURST: %w", err)
		}
		cfg.Server.IngestBurst = n
	}

	cfg.WebSocket.ServiceKey = os.Getenv("WS_SERVICE_KEY")

	if v := os.Getenv("QUEUE_WORKER_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid QUEUE_WORKER_COUNT: %w", err)
		}
		cfg.Queue.WorkerCount = n
	}
	if v := os.Getenv("QUEUE_MAX_CONCURRENT_EVENTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid QUEUE_MAX_CONCURRENT_EVENTS: %w", err)
		}
		cfg.Queue.MaxConcurrentEvents = n
	}
	if v := os.Getenv("CONTAINER_TTL_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CONTAINER_TTL_DAYS: %w", err)
		}
		cfg.Retention.ContainerTTLDays = n
	}
	if v := os.Getenv("IDEMPOTENCY_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid IDEMPOTENCY_WINDOW: %w", err)
		}
		cfg.Retention.IdempotencyWindow = d
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
