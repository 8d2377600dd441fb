package wshub

import (
	"encoding/json"
	"strings"

	"github.com/codeready-toolchain/devteam-orchestrator/pkg/apperr"
)

const maxEnvelopeBytes = 10 * 1024

var validTypes = map[string]bool{
	"execution-update":       true,
	"execution-log":          true,
	"error":                  true,
	"completion":             true,
	"connection-established": true,
	"message-received":       true,
}

// Envelope is the exactly-four-field message format delivered to every
// WebSocket subscriber.
type Envelope struct {
	Type      string          `json:"type"`
	Ts        string          `json:"ts"`
	ProjectID string          `json:"projectId"`
	Payload   json.RawMessage `json:"payload"`
}

// Validate enforces the four required fields, the type enum, the
// trailing-Z timestamp format, and the 10 KiB serialized size cap.
func (e Envelope) Validate() error {
	if e.Type == "" || e.Ts == "" || e.ProjectID == "" || len(e.Payload) == 0 {
		return apperr.New(apperr.Validation, "envelope is missing a required field")
	}
	if !validTypes[e.Type] {
		return apperr.New(apperr.Validation, "envelope type is not recognized: "+e.Type)
	}
	if !strings.HasSuffix(e.Ts, "Z") {
		return apperr.New(apperr.Validation, "envelope ts must be UTC with a trailing Z")
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return apperr.Wrap(apperr.Validation, "failed to serialize envelope", err)
	}
	if len(raw) > maxEnvelopeBytes {
		return apperr.New(apperr.Validation, "envelope exceeds the 10 KiB size limit")
	}
	return nil
}
