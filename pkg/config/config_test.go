package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "release", cfg.GinMode)
	assert.Equal(t, 50.0, cfg.IngestRatePerSecond)
	assert.Equal(t, 100, cfg.IngestBurst)
	require.NoError(t, cfg.Validate())
}

func TestServerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ServerConfig)
		wantErr string
	}{
		{"empty port", func(s *ServerConfig) { s.HTTPPort = "" }, "http_port is required"},
		{"rate zero", func(s *ServerConfig) { s.IngestRatePerSecond = 0 }, "ingest_rate_per_second must be positive"},
		{"burst zero", func(s *ServerConfig) { s.IngestBurst = 0 }, "ingest_burst must be at least 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultServerConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestServerConfig_Validate_Nil(t *testing.T) {
	var s *ServerConfig
	require.Error(t, s.Validate())
}

func TestLoad_AppliesEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("INGEST_RATE_PER_SECOND", "10")
	t.Setenv("INGEST_BURST", "20")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.HTTPPort)
	assert.Equal(t, 10.0, cfg.Server.IngestRatePerSecond)
	assert.Equal(t, 20, cfg.Server.IngestBurst)
}

func TestLoad_RejectsInvalidIngestRate(t *testing.T) {
	t.Setenv("INGEST_RATE_PER_SECOND", "not-a-number")

	_, err := Load("")
	require.Error(t, err)
}
