package masking

import (
	"log/slog"
	"regexp"
)

// CompiledPattern holds a pre-compiled regex pattern with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
	Description string
}

// builtinPatternSources are the default secret shapes redacted from every
// log line and broadcast payload.
var builtinPatternSources = []struct {
	name, pattern, replacement, description string
}{
	{
		name:        "github_token",
		pattern:     `gh[pousr]_[A-Za-z0-9]{20,}`,
		replacement: "[REDACTED_GITHUB_TOKEN]",
		description: "GitHub personal access / OAuth / app tokens",
	},
	{
		name:        "generic_bearer",
		pattern:     `(?i)bearer\s+[A-Za-z0-9._-]{10,}`,
		replacement: "Bearer [REDACTED]",
		description: "Authorization bearer tokens",
	},
	{
		name:        "key_value_secret",
		pattern:     `(?i)(token|password|secret|api[_-]?key)\s*[:=]\s*\S+`,
		replacement: "$1=[REDACTED]",
		description: "key=value style secrets in free text",
	},
	{
		name:        "basic_auth_url",
		pattern:     `(https?://)[^/\s:@]+:[^/\s:@]+@`,
		replacement: "$1[REDACTED]@",
		description: "userinfo embedded in URLs",
	},
}

// compileBuiltinPatterns compiles the fixed built-in pattern set.
// Invalid patterns are logged and skipped rather than failing construction.
func compileBuiltinPatterns() []*CompiledPattern {
	compiled := make([]*CompiledPattern, 0, len(builtinPatternSources))
	for _, src := range builtinPatternSources {
		re, err := regexp.Compile(src.pattern)
		if err != nil {
			slog.Error("masking: failed to compile builtin pattern", "name", src.name, "error", err)
			continue
		}
		compiled = append(compiled, &CompiledPattern{
			Name:        src.name,
			Regex:       re,
			Replacement: src.replacement,
			Description: src.description,
		})
	}
	return compiled
}

// compileTokenValuePatterns adds one exact-match pattern per live secret
// value, so a token echoed verbatim (e.g. in command stdout) is caught even
// outside its usual "KEY=value" shape.
func compileTokenValuePatterns(values []string) []*CompiledPattern {
	patterns := make([]*CompiledPattern, 0, len(values))
	for _, v := range values {
		if len(v) < 6 {
			continue
		}
		patterns = append(patterns, &CompiledPattern{
			Name:        "literal_secret_value",
			Regex:       regexp.MustCompile(regexp.QuoteMeta(v)),
			Replacement: "[REDACTED]",
			Description: "live secret value",
		})
	}
	return patterns
}
