package wshub

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEnvelope() Envelope {
	payload, _ := json.Marshal(map[string]string{"k": "v"})
	return Envelope{Type: "execution-update", Ts: "2026-01-01T00:00:00.000Z", ProjectID: "proj-1", Payload: payload}
}

func TestEnvelope_Validate_Valid(t *testing.T) {
	require.NoError(t, validEnvelope().Validate())
}

func TestEnvelope_Validate_MissingField(t *testing.T) {
	e := validEnvelope()
	e.ProjectID = ""
	require.Error(t, e.Validate())
}

func TestEnvelope_Validate_UnknownType(t *testing.T) {
	e := validEnvelope()
	e.Type = "not-a-real-type"
	require.Error(t, e.Validate())
}

func TestEnvelope_Validate_TsMustEndInZ(t *testing.T) {
	e := validEnvelope()
	e.Ts = "2026-01-01T00:00:00.000+00:00"
	require.Error(t, e.Validate())
}

func TestEnvelope_Validate_TooLarge(t *testing.T) {
	e := validEnvelope()
	big, _ := json.Marshal(map[string]string{"blob": strings.Repeat("x", 11*1024)})
	e.Payload = big
	require.Error(t, e.Validate())
}
