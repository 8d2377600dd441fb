package config

import (
	"fmt"
	"time"
)

// RetentionConfig controls data retention and background cleanup behavior.
type RetentionConfig struct {
	// ContainerTTLDays is the age, in days, after which a per-project
	// container and its volume are eligible for reclamation.
	ContainerTTLDays int `yaml:"container_ttl_days"`

	// IdempotencyWindow bounds how long an idempotency_key is honored
	// against replays of lifecycle.initialize.
	IdempotencyWindow time.Duration `yaml:"idempotency_window"`

	// CleanupInterval is how often the background reclamation loop runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		ContainerTTLDays:  7,
		IdempotencyWindow: 6 * time.Hour,
		CleanupInterval:   24 * time.Hour,
	}
}

func (r *RetentionConfig) Validate() error {
	if r == nil {
		return fmt.Errorf("retention configuration is nil")
	}
	if r.ContainerTTLDays < 1 {
		return fmt.Errorf("container_ttl_days must be at least 1")
	}
	if r.IdempotencyWindow <= 0 {
		return fmt.Errorf("idempotency_window must be positive")
	}
	if r.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup_interval must be positive")
	}
	return nil
}
