package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/devteam-orchestrator/pkg/apperr"
)

// Store is the C1 event store: create, load, and mutate Events. Every
// method is a single hand-written SQL statement against the shared pool,
// matching pkg/database/client.go's driver, grounded on
// pkg/services/event_service.go's Create/query-since/delete-by-cutoff shape.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create persists a new Event with an empty task_context.
func (s *Store) Create(ctx context.Context, data []byte, workflowType string, idempotencyKey *string) (*Event, error) {
	id := uuid.New()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, data, workflow_type, task_context, idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		id, data, workflowType, emptyTaskContext, idempotencyKey, now,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.Repository, "failed to create event", err)
	}

	return &Event{
		ID:           id,
		Data:         data,
		WorkflowType: workflowType,
		TaskContext:  emptyTaskContext,
		IdempotencyKey: idempotencyKey,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Get loads a non-deleted Event by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, data, workflow_type, task_context, idempotency_key,
		       created_at, updated_at, deleted_at, claimed_at, claimed_by
		FROM events WHERE id = $1 AND deleted_at IS NULL`, id)

	evt, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, fmt.Sprintf("event %s not found", id))
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Repository, "failed to load event", err)
	}
	return evt, nil
}

// ReplaceTaskContext performs the dispatcher's wholesale replacement of
// task_context (spec §4.2 step 5), clearing the claim so a later poll
// doesn't treat a completed event as still in flight.
func (s *Store) ReplaceTaskContext(ctx context.Context, id uuid.UUID, taskContext []byte) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE events SET task_context = $2, updated_at = now(), claimed_at = NULL, claimed_by = NULL
		WHERE id = $1 AND deleted_at IS NULL`, id, taskContext)
	if err != nil {
		return apperr.Wrap(apperr.Repository, "failed to update task_context", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.NotFound, fmt.Sprintf("event %s not found", id))
	}
	return nil
}

// OverwriteData replaces the submission payload, used by lifecycle.initialize
// (spec §4.1) which persists a temporary Event first to obtain a stable
// event_id, then overwrites its data with the full submission.
func (s *Store) OverwriteData(ctx context.Context, id uuid.UUID, data []byte) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE events SET data = $2, updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id, data)
	if err != nil {
		return apperr.Wrap(apperr.Repository, "failed to overwrite event data", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.NotFound, fmt.Sprintf("event %s not found", id))
	}
	return nil
}

// FindByIdempotencyKey returns the most recent Event created within window
// carrying key, or nil if none. Used by lifecycle.initialize to implement
// the idempotency-key replay contract (spec §8).
func (s *Store) FindByIdempotencyKey(ctx context.Context, key string, window time.Duration) (*Event, error) {
	cutoff := time.Now().UTC().Add(-window)
	row := s.db.QueryRowContext(ctx, `
		SELECT id, data, workflow_type, task_context, idempotency_key,
		       created_at, updated_at, deleted_at, claimed_at, claimed_by
		FROM events
		WHERE idempotency_key = $1 AND created_at >= $2 AND deleted_at IS NULL
		ORDER BY created_at DESC LIMIT 1`, key, cutoff)

	evt, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Repository, "failed to query idempotency key", err)
	}
	return evt, nil
}

// FindRecentByProject scans the most recent scanLimit events for one whose
// task_context.metadata.project_id matches projectID (spec §4.8 step 2,
// "scan the most recent N events ... N>=100"). Returns the newest match.
func (s *Store) FindRecentByProject(ctx context.Context, projectID string, scanLimit int) (*Event, error) {
	if scanLimit < 100 {
		scanLimit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, data, workflow_type, task_context, idempotency_key,
		       created_at, updated_at, deleted_at, claimed_at, claimed_by
		FROM events
		WHERE deleted_at IS NULL AND task_context->'metadata'->>'project_id' = $1
		ORDER BY created_at DESC LIMIT $2`, projectID, scanLimit)
	if err != nil {
		return nil, apperr.Wrap(apperr.Repository, "failed to scan recent events", err)
	}
	defer rows.Close()

	if rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.Repository, "failed to scan event row", err)
		}
		return evt, nil
	}
	return nil, nil
}

// ClaimNext atomically claims the oldest unclaimed, non-deleted Event for
// workerID using SELECT ... FOR UPDATE SKIP LOCKED, so at most one
// dispatcher processes a given event concurrently (spec §4.2 ordering
// guarantee). Returns nil, nil when no event is claimable.
func (s *Store) ClaimNext(ctx context.Context, workerID string, orphanThreshold time.Duration) (*Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.Repository, "failed to begin claim transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	orphanCutoff := time.Now().UTC().Add(-orphanThreshold)
	row := tx.QueryRowContext(ctx, `
		SELECT id, data, workflow_type, task_context, idempotency_key,
		       created_at, updated_at, deleted_at, claimed_at, claimed_by
		FROM events
		WHERE deleted_at IS NULL
		  AND (claimed_at IS NULL OR claimed_at < $1)
		  AND task_context->'metadata'->>'status' IS DISTINCT FROM 'completed'
		  AND task_context->'metadata'->>'status' IS DISTINCT FROM 'error'
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, orphanCutoff)

	evt, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Repository, "failed to claim event", err)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE events SET claimed_at = $2, claimed_by = $3 WHERE id = $1`, evt.ID, now, workerID); err != nil {
		return nil, apperr.Wrap(apperr.Repository, "failed to mark event claimed", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(apperr.Repository, "failed to commit claim", err)
	}

	evt.ClaimedAt = &now
	evt.ClaimedBy = &workerID
	return evt, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*Event, error) {
	var e Event
	if err := row.Scan(
		&e.ID, &e.Data, &e.WorkflowType, &e.TaskContext, &e.IdempotencyKey,
		&e.CreatedAt, &e.UpdatedAt, &e.DeletedAt, &e.ClaimedAt, &e.ClaimedBy,
	); err != nil {
		return nil, err
	}
	return &e, nil
}
