package config

import (
	"fmt"
	"time"
)

// QueueConfig contains dispatcher and worker pool configuration. These
// values control how events are polled, claimed, and processed.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines per process.
	WorkerCount int `yaml:"worker_count"`

	// MaxConcurrentEvents is the global limit of concurrently processed
	// events across all workers, enforced by a database COUNT(*) check.
	MaxConcurrentEvents int `yaml:"max_concurrent_events"`

	// PollInterval is the base interval for checking pending events.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter is random jitter added to PollInterval so workers
	// don't thunder-herd the claim query.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// EventTimeout is the maximum time a single event's workflow run may take.
	EventTimeout time.Duration `yaml:"event_timeout"`

	// GracefulShutdownTimeout bounds how long Stop waits for active workers
	// to drain before returning.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`

	// OrphanDetectionInterval is how often to scan for stuck in-flight events.
	OrphanDetectionInterval time.Duration `yaml:"orphan_detection_interval"`

	// OrphanThreshold is how long an event can go without a heartbeat before
	// it is considered orphaned and requeued.
	OrphanThreshold time.Duration `yaml:"orphan_threshold"`

	// HeartbeatInterval is how often an in-flight claim renews its lease.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// DefaultQueueConfig returns the built-in dispatcher defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             5,
		MaxConcurrentEvents:     5,
		PollInterval:            1 * time.Second,
		PollIntervalJitter:      500 * time.Millisecond,
		EventTimeout:            15 * time.Minute,
		GracefulShutdownTimeout: 15 * time.Minute,
		OrphanDetectionInterval: 5 * time.Minute,
		OrphanThreshold:         5 * time.Minute,
		HeartbeatInterval:       30 * time.Second,
	}
}

// Validate checks internal consistency of the queue configuration.
func (q *QueueConfig) Validate() error {
	if q == nil {
		return fmt.Errorf("queue configuration is nil")
	}
	if q.WorkerCount < 1 || q.WorkerCount > 50 {
		return fmt.Errorf("worker_count must be between 1 and 50")
	}
	if q.MaxConcurrentEvents < 1 {
		return fmt.Errorf("max_concurrent_events must be at least 1")
	}
	if q.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if q.PollIntervalJitter < 0 {
		return fmt.Errorf("poll_interval_jitter must be non-negative")
	}
	if q.PollIntervalJitter >= q.PollInterval {
		return fmt.Errorf("poll_interval_jitter must be less than poll_interval")
	}
	if q.EventTimeout <= 0 {
		return fmt.Errorf("event_timeout must be positive")
	}
	if q.GracefulShutdownTimeout <= 0 {
		return fmt.Errorf("graceful_shutdown_timeout must be positive")
	}
	if q.OrphanDetectionInterval <= 0 {
		return fmt.Errorf("orphan_detection_interval must be positive")
	}
	if q.OrphanThreshold <= 0 {
		return fmt.Errorf("orphan_threshold must be positive")
	}
	if q.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive")
	}
	if q.HeartbeatInterval >= q.OrphanThreshold {
		return fmt.Errorf("heartbeat_interval must be less than orphan_threshold")
	}
	return nil
}
