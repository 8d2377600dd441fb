// Package masking redacts secrets from log lines, broadcast payloads, and
// command output before they leave the process.
package masking

import "log/slog"

// Service applies secret redaction to arbitrary text. Created once at
// process start (singleton), thread-safe and stateless aside from its
// compiled patterns.
type Service struct {
	patterns []*CompiledPattern
	maskers  []Masker
}

// New builds a masking service from the fixed built-in pattern set plus one
// literal pattern per live secret value in tokenValues (the git tokens this
// process forwards into project containers, so an echoed value is caught
// even outside its usual "KEY=value" shape).
func New(tokenValues []string) *Service {
	s := &Service{
		patterns: compileBuiltinPatterns(),
		maskers:  []Masker{},
	}
	s.patterns = append(s.patterns, compileTokenValuePatterns(tokenValues)...)

	slog.Info("masking service initialized", "patterns", len(s.patterns))
	return s
}

// Mask applies every compiled masker and pattern to text and returns the
// redacted result. Never fails; a masker that cannot safely process text
// returns the text unchanged.
func (s *Service) Mask(text string) string {
	if text == "" {
		return text
	}
	masked := text
	for _, m := range s.maskers {
		if m.AppliesTo(masked) {
			masked = m.Mask(masked)
		}
	}
	for _, p := range s.patterns {
		masked = p.Regex.ReplaceAllString(masked, p.Replacement)
	}
	return masked
}

// MaskCommandOutput redacts secrets from captured stdout/stderr before it is
// persisted into task_context or broadcast to WebSocket subscribers.
// Fail-closed: on any internal issue this still returns a redacted string,
// never the raw, potentially secret-bearing output.
func (s *Service) MaskCommandOutput(output string) string {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("masking: panic while redacting command output", "recover", r)
		}
	}()
	return s.Mask(output)
}
