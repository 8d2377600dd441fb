// Package eventstore is the durable store of record: every submission and
// its evolving task_context. Hand-written against database/sql + pgx
// instead of an ORM (see DESIGN.md for why ent is not used here).
package eventstore

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is the durable record of one submission.
type Event struct {
	ID             uuid.UUID
	Data           json.RawMessage
	WorkflowType   string
	TaskContext    json.RawMessage
	IdempotencyKey *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
	ClaimedAt      *time.Time
	ClaimedBy      *string
}

// emptyTaskContext is the well-formed-but-empty task_context the invariant
// in the data model requires: empty, or an object with event/metadata/nodes.
var emptyTaskContext = json.RawMessage(`{}`)
