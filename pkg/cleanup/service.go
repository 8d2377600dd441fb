// Package cleanup runs the background reclamation loop that removes
// expired per-project containers and volumes.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/devteam-orchestrator/pkg/config"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/container"
)

// Reclaimer is the subset of *container.Manager the cleanup loop needs.
type Reclaimer interface {
	CleanupExpired(ctx context.Context, maxAgeDays int, projectID string) (*container.CleanupResult, error)
}

// Service periodically reclaims containers and volumes past their TTL.
// Safe to run from multiple processes: CleanupExpired tolerates racing
// removal attempts on the same resource.
type Service struct {
	config    *config.RetentionConfig
	reclaimer Reclaimer
	logger    *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewService(cfg *config.RetentionConfig, reclaimer Reclaimer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{config: cfg, reclaimer: reclaimer, logger: logger}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	s.logger.Info("cleanup service started",
		"container_ttl_days", s.config.ContainerTTLDays,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runOnce(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Service) runOnce(ctx context.Context) {
	result, err := s.reclaimer.CleanupExpired(ctx, s.config.ContainerTTLDays, "")
	if err != nil {
		s.logger.Error("container reclamation failed", "error", err)
		return
	}
	if result.ContainersRemoved > 0 || result.VolumesRemoved > 0 {
		s.logger.Info("reclaimed expired containers",
			"containers_removed", result.ContainersRemoved,
			"volumes_removed", result.VolumesRemoved)
	}
	for _, e := range result.Errors {
		s.logger.Warn("reclamation item failed", "error", e)
	}
}
