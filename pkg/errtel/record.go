// record.go defines the error record, failure chain, and pattern data structures.

package errtel

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Severity indicates the severity level of an error record.
// Values are ordered: Info < Warning < Error < Critical.
type Severity int

const (
	// SeverityInfo indicates an expected or caller-side failure (e.g. bad input).
	SeverityInfo Severity = iota

	// SeverityWarning indicates a non-fatal issue that may need attention.
	SeverityWarning

	// SeverityError indicates an operation failed but the process continues.
	SeverityError

	// SeverityCritical indicates a failure requiring immediate attention.
	SeverityCritical
)

var severityNames = [...]string{"info", "warning", "error", "critical"}

// Severities lists every severity in ascending order.
var Severities = []Severity{SeverityInfo, SeverityWarning, SeverityError, SeverityCritical}

func (s Severity) String() string {
	if s < SeverityInfo || s > SeverityCritical {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityNames[s]
}

// ParseSeverity parses a severity name, case-insensitively.
func ParseSeverity(name string) (Severity, error) {
	for i, n := range severityNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return Severity(i), nil
		}
	}
	return SeverityInfo, newError(ReasonInvalidArgument, "parse severity", fmt.Sprintf("unknown severity %q", name), nil)
}

// MarshalText encodes the severity as its lowercase name.
func (s Severity) MarshalText() ([]byte, error) {
	if s < SeverityInfo || s > SeverityCritical {
		return nil, fmt.Errorf("invalid severity %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a severity name.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Category is the failure taxonomy.
type Category string

const (
	CategoryValidation      Category = "validation"
	CategorySecurity        Category = "security"
	CategoryNetwork         Category = "network"
	CategorySystem          Category = "system"
	CategoryConfiguration   Category = "configuration"
	CategoryDatabase        Category = "database"
	CategoryPerformance     Category = "performance"
	CategoryApplication     Category = "application"
	CategoryExternalService Category = "external_service"
)

// Categories lists every category.
var Categories = []Category{
	CategoryValidation,
	CategorySecurity,
	CategoryNetwork,
	CategorySystem,
	CategoryConfiguration,
	CategoryDatabase,
	CategoryPerformance,
	CategoryApplication,
	CategoryExternalService,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory parses a category name, case-insensitively.
func ParseCategory(name string) (Category, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	if normalized == "externalservice" {
		normalized = string(CategoryExternalService)
	}
	c := Category(normalized)
	if !c.Valid() {
		return CategoryApplication, newError(ReasonInvalidArgument, "parse category", fmt.Sprintf("unknown category %q", name), nil)
	}
	return c, nil
}

// FailureInfo describes the failure that produced a record.
// Cause forms an acyclic chain mirroring the wrapped error chain; each node
// is owned by its parent.
type FailureInfo struct {
	// Type is the failure type name (e.g. "*net.OpError", "panic").
	Type string `json:"type" xml:"type"`

	// Kind is a normalized failure kind derived from well-known sentinel
	// errors (see Kind constants). Empty when nothing matched.
	Kind Kind `json:"kind,omitempty" xml:"kind,omitempty"`

	// Message is the failure's own message.
	Message string `json:"message" xml:"message"`

	// StackTrace is the optional stack captured with the failure.
	StackTrace string `json:"stackTrace,omitempty" xml:"stackTrace,omitempty"`

	// Source is the originating call site (function name).
	Source string `json:"source,omitempty" xml:"source,omitempty"`

	// Cause is the next failure in the chain, if any.
	Cause *FailureInfo `json:"cause,omitempty" xml:"cause,omitempty"`
}

// Depth returns the number of nodes in the chain starting at f.
func (f *FailureInfo) Depth() int {
	n := 0
	for cur := f; cur != nil; cur = cur.Cause {
		n++
	}
	return n
}

// Root returns the innermost failure in the chain.
func (f *FailureInfo) Root() *FailureInfo {
	if f == nil {
		return nil
	}
	cur := f
	for cur.Cause != nil {
		cur = cur.Cause
	}
	return cur
}

// Clone returns a deep copy of the chain starting at f.
func (f *FailureInfo) Clone() *FailureInfo {
	if f == nil {
		return nil
	}
	c := *f
	c.Cause = f.Cause.Clone()
	return &c
}

// String renders the chain one node per line, outermost first.
func (f *FailureInfo) String() string {
	var b strings.Builder
	for cur := f; cur != nil; cur = cur.Cause {
		if cur != f {
			b.WriteString("\ncaused by: ")
		}
		fmt.Fprintf(&b, "%s: %s", cur.Type, cur.Message)
	}
	return b.String()
}

// SystemContext is process and host information captured at ingestion.
type SystemContext struct {
	HostName       string `json:"hostName,omitempty" xml:"hostName,omitempty"`
	OSVersion      string `json:"osVersion,omitempty" xml:"osVersion,omitempty"`
	RuntimeVersion string `json:"runtimeVersion,omitempty" xml:"runtimeVersion,omitempty"`
	WorkingDir     string `json:"workingDir,omitempty" xml:"workingDir,omitempty"`
	User           string `json:"user,omitempty" xml:"user,omitempty"`
	ProcessID      int    `json:"processId,omitempty" xml:"processId,omitempty"`
	GoroutineID    uint64 `json:"goroutineId,omitempty" xml:"goroutineId,omitempty"`
	AppVersion     string `json:"appVersion,omitempty" xml:"appVersion,omitempty"`
}

// ErrorRecord is one captured failure instance.
// Records are immutable after ingestion except for IsResolved.
type ErrorRecord struct {
	// ID is a unique identifier for this record (UUID).
	ID string `json:"id"`

	// Message is the human-readable error message. Required.
	Message string `json:"message"`

	// Details is free text such as a full failure dump.
	Details string `json:"details,omitempty"`

	// StackTrace is the optional stack trace.
	StackTrace string `json:"stackTrace,omitempty"`

	// Failure is the structured description of the originating failure.
	Failure *FailureInfo `json:"failureInfo,omitempty"`

	Severity Severity `json:"severity"`
	Category Category `json:"category"`

	// Component is the optional origin label (subsystem or module name).
	Component string `json:"component,omitempty"`

	// Context holds caller-supplied metadata.
	Context map[string]any `json:"context,omitempty"`

	// System is captured at enrichment time.
	System *SystemContext `json:"systemContext,omitempty"`

	// Timestamp is the capture time, set by the engine if zero.
	Timestamp time.Time `json:"timestamp"`

	// ErrorHash is the 16-hex-character dedup key.
	ErrorHash string `json:"errorHash"`

	IsResolved bool `json:"isResolved"`
}

// FailureType returns the failure type name, or "" when no failure is attached.
func (r ErrorRecord) FailureType() string {
	if r.Failure == nil {
		return ""
	}
	return r.Failure.Type
}

// Clone returns a copy of r that shares no mutable state with it.
func (r ErrorRecord) Clone() ErrorRecord {
	r.Context = cloneContext(r.Context)
	r.Failure = r.Failure.Clone()
	if r.System != nil {
		sys := *r.System
		r.System = &sys
	}
	return r
}

// NormalizeContext returns a copy of values in which every value survives a
// JSON round trip. Scalars are kept; composite values are replaced by their
// decoded JSON form; values JSON cannot encode (NaN, channels, functions)
// become their fmt.Sprint text.
func NormalizeContext(values map[string]any) map[string]any {
	if values == nil {
		return nil
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case nil, string, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return v
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Sprint(x)
		}
		return v
	case float32:
		if f := float64(x); math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Sprint(x)
		}
		return v
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Sprint(v)
	}
	return decoded
}

// cloneContext deep-copies the map and slice values produced by
// NormalizeContext.
func cloneContext(values map[string]any) map[string]any {
	if values == nil {
		return nil
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneContext(x)
	case []any:
		c := make([]any, len(x))
		for i := range x {
			c[i] = cloneValue(x[i])
		}
		return c
	default:
		return v
	}
}

// PatternKey returns the component-independent signature used to group
// records into patterns.
func (r ErrorRecord) PatternKey() string {
	return SignatureHash(r.Message, r.FailureType(), r.Category)
}

// ErrorPattern is the aggregate over all records sharing a pattern key.
type ErrorPattern struct {
	// Pattern is the pattern key.
	Pattern  string   `json:"pattern"`
	Category Category `json:"category"`

	// Message is a representative message for the pattern.
	Message string `json:"message"`

	// Occurrences counts every record ever reported for the pattern. It is a
	// lifetime counter and is not decremented when records are evicted.
	Occurrences int64 `json:"occurrences"`

	// Retained is the number of records currently held in the store.
	Retained int64 `json:"retained"`

	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`

	// AffectedComponents grows only, in first-seen order.
	AffectedComponents []string `json:"affectedComponents"`
}
