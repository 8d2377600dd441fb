// Package dispatch is the C8 worker dispatcher: polls the event store for
// unclaimed events, invokes the workflow runtime, and persists the updated
// task_context, grounded on this module's existing queue worker's
// poll-claim-execute-update loop.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/codeready-toolchain/devteam-orchestrator/pkg/apperr"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/config"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/eventstore"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/taskcontext"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/workflow"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/wshub"
)

// ErrNoEventsAvailable signals an empty poll; the caller should back off
// and retry rather than treat it as a processing failure.
var ErrNoEventsAvailable = errors.New("dispatch: no events available")

// Worker polls the event store, runs one event's workflow to completion
// (or to its first error), and persists the result.
type Worker struct {
	id      string
	store   *eventstore.Store
	runtime *workflow.Runtime
	hub     *wshub.Hub
	cfg     *config.QueueConfig
	logger  *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewWorker(id string, store *eventstore.Store, runtime *workflow.Runtime, hub *wshub.Hub, cfg *config.QueueConfig, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		id:      id,
		store:   store,
		runtime: runtime,
		hub:     hub,
		cfg:     cfg,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
}

// Start begins the worker's poll loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for its loop to exit. Safe to
// call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	log := w.logger.With("worker_id", w.id)
	log.Info("dispatch worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("dispatch worker shutting down")
			return
		case <-ctx.Done():
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoEventsAvailable) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("error processing event", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

func (w *Worker) pollInterval() time.Duration {
	jitter := time.Duration(0)
	if w.cfg.PollIntervalJitter > 0 {
		jitter = time.Duration(rand.Int64N(int64(w.cfg.PollIntervalJitter)))
	}
	return w.cfg.PollInterval + jitter
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess claims one event, executes its workflow, and persists the
// resulting task_context. Infrastructure errors (claim/store failures) are
// returned to the caller for nack-style redelivery via backoff + retry;
// workflow-internal errors are already captured into task_context by the
// runtime and this method acks them by persisting, returning nil.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	evt, err := w.store.ClaimNext(ctx, w.id, w.cfg.OrphanThreshold)
	if err != nil {
		return err
	}
	if evt == nil {
		return ErrNoEventsAvailable
	}

	log := w.logger.With("worker_id", w.id, "event_id", evt.ID)
	log.Info("event claimed")

	eventCtx, cancel := context.WithTimeout(ctx, w.cfg.EventTimeout)
	defer cancel()

	var submission map[string]any
	if err := json.Unmarshal(evt.Data, &submission); err != nil {
		return apperr.Wrap(apperr.Validation, "event data is not a JSON object", err)
	}

	projectID, _ := submission["project_id"].(string)
	priority := extractPriority(submission)
	enqueueLatencyMs := time.Since(evt.CreatedAt).Milliseconds()

	tc, err := w.runtime.Run(eventCtx, evt.WorkflowType, submission, projectID, evt.ID, priority, enqueueLatencyMs)
	if err != nil {
		return apperr.Wrap(apperr.Service, "workflow run failed", err)
	}

	raw, err := taskcontext.Encode(tc)
	if err != nil {
		return err
	}
	if err := w.store.ReplaceTaskContext(ctx, evt.ID, raw); err != nil {
		return err
	}

	w.broadcastUpdate(projectID, evt.ID.String(), tc)
	return nil
}

func (w *Worker) broadcastUpdate(projectID, executionID string, tc *taskcontext.TaskContext) {
	if w.hub == nil || projectID == "" {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"execution_id": executionID,
		"status":       tc.Metadata["status"],
	})
	if err != nil {
		return
	}
	_ = w.hub.Broadcast(wshub.Envelope{
		Type:      "execution-update",
		Ts:        time.Now().UTC().Format(time.RFC3339Nano),
		ProjectID: projectID,
		Payload:   payload,
	})
}

func extractPriority(submission map[string]any) int {
	p, ok := submission["priority"].(float64)
	if !ok {
		return 0
	}
	return int(p)
}
