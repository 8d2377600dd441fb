// Package logging configures structured, redaction-aware logging on top of
// log/slog, matching the library every call site in the original service
// already used.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/codeready-toolchain/devteam-orchestrator/pkg/masking"
)

// Config selects the handler shape and minimum level.
type Config struct {
	// Format is "json" or "text". JSON in production, text in development,
	// matching cmd/orchestrator/main.go's GIN_MODE-driven behavior.
	Format string
	Level  slog.Level
	Output io.Writer
}

func DefaultConfig() Config {
	return Config{Format: "json", Level: slog.LevelInfo, Output: os.Stdout}
}

// redactingHandler wraps an slog.Handler and redacts every string attribute
// value before it reaches the inner handler, and attaches the correlation
// ID carried on the record's context, if any.
type redactingHandler struct {
	inner  slog.Handler
	masker *masking.Service
}

// NewHandler builds the process-wide slog.Handler.
func NewHandler(cfg Config, masker *masking.Service) slog.Handler {
	opts := &slog.HandlerOptions{Level: cfg.Level}
	var inner slog.Handler
	if cfg.Format == "text" {
		inner = slog.NewTextHandler(cfg.Output, opts)
	} else {
		inner = slog.NewJSONHandler(cfg.Output, opts)
	}
	return &redactingHandler{inner: inner, masker: masker}
}

func (h *redactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *redactingHandler) Handle(ctx context.Context, record slog.Record) error {
	if cid := CorrelationID(ctx); cid != "" {
		record.AddAttrs(slog.String("correlation_id", cid))
	}
	redacted := slog.Record{
		Time:    record.Time,
		Message: h.redact(record.Message),
		Level:   record.Level,
		PC:      record.PC,
	}
	record.Attrs(func(a slog.Attr) bool {
		redacted.AddAttrs(h.redactAttr(a))
		return true
	})
	return h.inner.Handle(ctx, redacted)
}

func (h *redactingHandler) redactAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, h.redact(a.Value.String()))
	}
	return a
}

func (h *redactingHandler) redact(s string) string {
	if h.masker == nil {
		return s
	}
	return h.masker.Mask(s)
}

func (h *redactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &redactingHandler{inner: h.inner.WithAttrs(attrs), masker: h.masker}
}

func (h *redactingHandler) WithGroup(name string) slog.Handler {
	return &redactingHandler{inner: h.inner.WithGroup(name), masker: h.masker}
}

// Init installs the process-wide default slog logger. Call once at startup.
func Init(cfg Config, masker *masking.Service) {
	slog.SetDefault(slog.New(NewHandler(cfg, masker)))
}
