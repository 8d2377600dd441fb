package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codeready-toolchain/devteam-orchestrator/pkg/config"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/eventstore"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/workflow"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/wshub"
)

// Pool owns a fixed set of Workers sharing one store, runtime, and hub.
type Pool struct {
	workers []*Worker
}

// NewPool constructs cfg.WorkerCount workers.
func NewPool(store *eventstore.Store, runtime *workflow.Runtime, hub *wshub.Hub, cfg *config.QueueConfig, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	workers := make([]*Worker, 0, cfg.WorkerCount)
	for i := 0; i < cfg.WorkerCount; i++ {
		workers = append(workers, NewWorker(fmt.Sprintf("worker-%d", i), store, runtime, hub, cfg, logger))
	}
	return &Pool{workers: workers}
}

// Start launches every worker's poll loop.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		w.Start(ctx)
	}
}

// Stop stops every worker and waits for them to exit.
func (p *Pool) Stop() {
	for _, w := range p.workers {
		w.Stop()
	}
}
