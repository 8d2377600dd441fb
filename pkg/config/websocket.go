package config

import (
	"fmt"
	"time"
)

// WebSocketConfig controls the subscriber hub's envelope limits and the
// service-role bearer key used to authenticate WS upgrades.
type WebSocketConfig struct {
	MaxEnvelopeBytes  int           `yaml:"max_envelope_bytes"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	SendBufferSize    int           `yaml:"send_buffer_size"`
	ServiceKey        string        `yaml:"-"`
}

func DefaultWebSocketConfig() *WebSocketConfig {
	return &WebSocketConfig{
		MaxEnvelopeBytes: 10 * 1024,
		WriteTimeout:     500 * time.Millisecond,
		SendBufferSize:   32,
	}
}

func (w *WebSocketConfig) Validate() error {
	if w == nil {
		return fmt.Errorf("websocket configuration is nil")
	}
	if w.MaxEnvelopeBytes <= 0 {
		return fmt.Errorf("max_envelope_bytes must be positive")
	}
	if w.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive")
	}
	if w.SendBufferSize < 1 {
		return fmt.Errorf("send_buffer_size must be at least 1")
	}
	if w.ServiceKey == "" {
		return fmt.Errorf("service key is required")
	}
	return nil
}
