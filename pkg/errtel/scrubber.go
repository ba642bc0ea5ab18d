// scrubber.go implements fail-closed sensitive data redaction for error records.

package errtel

import (
	"fmt"
	"regexp"
	"strings"
)

// RedactionMarker replaces redacted values.
const RedactionMarker = "[REDACTED]"

// DefaultSensitiveTerms are the case-insensitive key fragments that mark a
// context key or environment variable as sensitive.
var DefaultSensitiveTerms = []string{"password", "secret", "key", "token", "credential"}

// ScrubberConfig controls scrubbing behavior.
type ScrubberConfig struct {
	// SensitiveTerms are case-insensitive substrings marking a context key as sensitive.
	// Defaults to DefaultSensitiveTerms plus "auth" and "passwd".
	SensitiveTerms []string

	// MaxMessageSize is the maximum length for messages and details (default: 4096).
	MaxMessageSize int

	// MaxStackTraceSize is the maximum length for stack traces (default: 32768).
	MaxStackTraceSize int

	// MaxContextValueSize is the maximum length of a string context value (default: 1024).
	MaxContextValueSize int

	// ScrubMessages enables scrubbing of messages for secrets/PII (default: true).
	ScrubMessages bool
}

// DefaultScrubberConfig returns production-safe defaults.
func DefaultScrubberConfig() ScrubberConfig {
	terms := append([]string(nil), DefaultSensitiveTerms...)
	terms = append(terms, "auth", "passwd")
	return ScrubberConfig{
		SensitiveTerms:      terms,
		MaxMessageSize:      4096,
		MaxStackTraceSize:   32768,
		MaxContextValueSize: 1024,
		ScrubMessages:       true,
	}
}

// Compiled regex patterns for message scrubbing (compiled once at package init)
var messageScrubPatterns = []*regexp.Regexp{
	// API keys and tokens
	regexp.MustCompile(`(?i)(api[_-]?key|token)[=:\s]+['"]?[\w\-\.]+['"]?`),
	regexp.MustCompile(`(?i)(authorization|bearer)[=:\s]+['"]?[\w\-\.]+['"]?[\s]+['"]?[\w\-\.]+['"]?`), // Authorization: Bearer <token>
	regexp.MustCompile(`(?i)sk-[a-zA-Z0-9_-]{20,}`),                                                   // OpenAI-style keys
	regexp.MustCompile(`(?i)ghp_[a-zA-Z0-9]{36}`),                                                     // GitHub tokens
	regexp.MustCompile(`(?i)github_pat_[a-zA-Z0-9_]{22,}`),                                            // GitHub PAT
	regexp.MustCompile(`(?i)xox[baprs]-[a-zA-Z0-9\-]{10,}`),                                           // Slack tokens
	regexp.MustCompile(`(?i)eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`),                    // JWT tokens

	// Credentials
	regexp.MustCompile(`(?i)password[=:\s]+['"]?[^\s'"",]+['"]?`),
	regexp.MustCompile(`(?i)secret[=:\s]+['"]?[^\s'"",]+['"]?`),
	regexp.MustCompile(`(?i)passwd[=:\s]+['"]?[^\s'"",]+['"]?`),
	regexp.MustCompile(`(?i)credential[=:\s]+['"]?[^\s'"",]+['"]?`),

	// PII
	regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), // Email
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),                              // SSN
	regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`),         // Credit card
}

// Path patterns to normalize in stack traces
var pathNormalizationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/home/[^/]+/`),
	regexp.MustCompile(`/Users/[^/]+/`),
	regexp.MustCompile(`C:\\Users\\[^\\]+\\`),
	regexp.MustCompile(`/tmp/[^/]+/`),
}

// Scrubber redacts sensitive data from error records.
type Scrubber struct {
	cfg ScrubberConfig
}

// NewScrubber creates a new scrubber with the given configuration.
// Zero size limits fall back to the defaults.
func NewScrubber(cfg ScrubberConfig) *Scrubber {
	def := DefaultScrubberConfig()
	if len(cfg.SensitiveTerms) == 0 {
		cfg.SensitiveTerms = def.SensitiveTerms
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.MaxStackTraceSize <= 0 {
		cfg.MaxStackTraceSize = def.MaxStackTraceSize
	}
	if cfg.MaxContextValueSize <= 0 {
		cfg.MaxContextValueSize = def.MaxContextValueSize
	}
	return &Scrubber{cfg: cfg}
}

// ScrubMessage scrubs sensitive patterns from a message.
func (s *Scrubber) ScrubMessage(msg string) string {
	if len(msg) > s.cfg.MaxMessageSize {
		msg = truncateWithMarker(msg, s.cfg.MaxMessageSize)
	}
	if !s.cfg.ScrubMessages {
		return msg
	}

	result := msg
	for _, pattern := range messageScrubPatterns {
		result = pattern.ReplaceAllString(result, RedactionMarker)
	}
	return result
}

// ScrubContext redacts sensitive keys from caller metadata. Nested maps are
// scrubbed recursively; string values are message-scrubbed and truncated.
func (s *Scrubber) ScrubContext(ctx map[string]any) map[string]any {
	if ctx == nil {
		return nil
	}
	result := make(map[string]any, len(ctx))
	for key, value := range ctx {
		if IsSensitiveKey(key, s.cfg.SensitiveTerms) {
			result[key] = RedactionMarker
			continue
		}
		result[key] = s.scrubValue(value)
	}
	return result
}

func (s *Scrubber) scrubValue(value any) any {
	switch v := value.(type) {
	case string:
		if len(v) > s.cfg.MaxContextValueSize {
			v = truncateWithMarker(v, s.cfg.MaxContextValueSize)
		}
		return s.ScrubMessage(v)
	case map[string]any:
		return s.ScrubContext(v)
	case map[string]string:
		converted := make(map[string]any, len(v))
		for k, val := range v {
			converted[k] = val
		}
		return s.ScrubContext(converted)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = s.scrubValue(item)
		}
		return out
	case nil, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return v
	default:
		// Fail closed: values we cannot inspect are rendered and scrubbed as text.
		return s.ScrubMessage(fmt.Sprint(v))
	}
}

// ScrubStackTrace normalizes user paths and limits stack trace size.
func (s *Scrubber) ScrubStackTrace(trace string) string {
	if trace == "" {
		return trace
	}

	result := trace
	for _, pattern := range pathNormalizationPatterns {
		result = pattern.ReplaceAllString(result, "/[PATH]/")
	}

	if len(result) > s.cfg.MaxStackTraceSize {
		result = truncateWithMarker(result, s.cfg.MaxStackTraceSize)
	}
	return result
}

// ScrubFailure scrubs every node of a failure chain in place.
func (s *Scrubber) ScrubFailure(f *FailureInfo) {
	for cur := f; cur != nil; cur = cur.Cause {
		cur.Message = s.ScrubMessage(cur.Message)
		cur.StackTrace = s.ScrubStackTrace(cur.StackTrace)
	}
}

// IsSensitiveKey reports whether key contains any of terms, case-insensitively.
func IsSensitiveKey(key string, terms []string) bool {
	keyLower := strings.ToLower(key)
	for _, term := range terms {
		if term != "" && strings.Contains(keyLower, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

// truncateWithMarker truncates a string and adds a truncation marker.
func truncateWithMarker(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	marker := "...[TRUNCATED]"
	if maxLen <= len(marker) {
		return marker[:maxLen]
	}
	return s[:maxLen-len(marker)] + marker
}
