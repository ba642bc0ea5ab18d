// classify.go maps failures to category, severity, and retry guidance.

package errtel

import (
	"fmt"
	"strings"
)

// Classification is the result of classifying a failure.
type Classification struct {
	Category         Category `json:"category"`
	Severity         Severity `json:"severity"`
	IsTransient      bool     `json:"isTransient"`
	IsRetryable      bool     `json:"isRetryable"`
	Description      string   `json:"description"`
	SuggestedActions []string `json:"suggestedActions"`
}

const actionRetryBackoff = "retry with exponential backoff"

// Keyword tables matched against the lowercased "type message" text.
var (
	invalidArgumentTerms = []string{"invalidargument", "invalid argument", "argumentexception", "argumentnull", "argumentoutofrange", "invalid input", "invalid parameter", "validation failed", "malformed"}
	permissionTerms      = []string{"permission", "denied", "unauthorized", "forbidden", "unauthorizedaccess", "access is denied"}
	timeoutTerms         = []string{"timeout", "timed out", "deadline exceeded", "deadlineexceeded"}
	cancelledTerms       = []string{"canceled", "cancelled", "operationcanceled", "taskcanceled"}
	connectivityTerms    = []string{"connection refused", "connection reset", "no such host", "network is unreachable", "host is unreachable", "broken pipe", "httprequestexception", "socketexception", "*net.operror", "*net.dnserror", "connectivity"}
	outOfMemoryTerms     = []string{"out of memory", "outofmemory", "cannot allocate memory"}
	stackOverflowTerms   = []string{"stack overflow", "stackoverflow", "goroutine stack exceeds"}
	ioTerms              = []string{"ioexception", "i/o error", "input/output error", "no such file", "file not found", "filenotfound", "directorynotfound", "*fs.patherror", "unexpected eof", "disk full", "no space left"}
	unsupportedTerms     = []string{"unsupported", "not implemented", "notimplemented", "notsupported", "not supported"}
)

// categoryActions is the static advice list per category.
var categoryActions = map[Category][]string{
	CategoryValidation: {
		"validate input parameters before the call",
		"check the caller for malformed or missing fields",
	},
	CategorySecurity: {
		"check authentication credentials",
		"verify the caller's permissions for the resource",
		"review recent access-policy changes",
	},
	CategoryNetwork: {
		"check network connectivity",
		"verify service endpoints and DNS resolution",
		"raise the operation timeout if the remote is slow",
	},
	CategorySystem: {
		"check memory, disk, and file-handle usage",
		"inspect host resource limits",
		"restart the service if resources are exhausted",
	},
	CategoryConfiguration: {
		"review configuration settings",
		"confirm the feature is supported in this deployment",
	},
	CategoryDatabase: {
		"check database connectivity and credentials",
		"inspect slow or failing queries",
	},
	CategoryPerformance: {
		"profile the slow path",
		"check resource saturation",
	},
	CategoryExternalService: {
		"check the external service status",
		"verify API credentials and quotas",
	},
	CategoryApplication: {
		"inspect the stack trace for the failing code path",
		"add a regression test for the failure",
	},
}

// kindSet holds every kind a failure matched.
type kindSet map[Kind]bool

func (s kindSet) any(kinds ...Kind) bool {
	for _, k := range kinds {
		if s[k] {
			return true
		}
	}
	return false
}

// matchKinds returns the failure's sentinel kind plus every kind whose
// keywords appear in its type name or message.
func matchKinds(f *FailureInfo) (kindSet, string, string) {
	set := kindSet{}
	if f == nil {
		return set, "", ""
	}
	if f.Kind != KindNone {
		set[f.Kind] = true
	}
	text := strings.ToLower(f.Type + " " + f.Message)
	for _, kw := range kindKeywords {
		if containsAny(text, kw.terms) {
			set[kw.kind] = true
		}
	}
	return set, f.Type, f.Message
}

var kindKeywords = []struct {
	kind  Kind
	terms []string
}{
	{KindInvalidArgument, invalidArgumentTerms},
	{KindPermission, permissionTerms},
	{KindTimeout, timeoutTerms},
	{KindCancelled, cancelledTerms},
	{KindConnectivity, connectivityTerms},
	{KindOutOfMemory, outOfMemoryTerms},
	{KindStackOverflow, stackOverflowTerms},
	{KindIO, ioTerms},
	{KindUnsupported, unsupportedTerms},
}

// Classify maps a failure to its classification. It is deterministic and
// depends only on the failure's type, kind, and message. Each field applies
// its own precedence order; the first matching rule wins.
func Classify(f *FailureInfo) Classification {
	kinds, typeName, message := matchKinds(f)

	c := Classification{
		Category:    categoryFor(kinds),
		Severity:    severityFor(kinds),
		IsTransient: kinds.any(KindTimeout, KindCancelled, KindConnectivity),
	}
	c.IsRetryable = c.IsTransient && c.Severity != SeverityCritical

	actions := append([]string(nil), categoryActions[c.Category]...)
	if c.IsRetryable {
		actions = append(actions, actionRetryBackoff)
	}
	c.SuggestedActions = actions
	c.Description = describe(typeName, message, c)
	return c
}

// ClassifyError captures err and classifies it.
func ClassifyError(err error) Classification {
	if err == nil {
		return Classify(nil)
	}
	return Classify(failureChain(err, 0))
}

// RecoveryAction returns the single recommended recovery step for a failure.
func RecoveryAction(f *FailureInfo) string {
	kinds, _, _ := matchKinds(f)
	switch {
	case kinds.any(KindTimeout, KindCancelled):
		return actionRetryBackoff
	case kinds.any(KindInvalidArgument):
		return "validate input parameters"
	case kinds.any(KindPermission):
		return "check authentication credentials"
	case kinds.any(KindOutOfMemory):
		return "reduce memory usage or restart service"
	case kinds.any(KindConnectivity):
		return "check network connectivity and retry"
	case kinds.any(KindUnsupported):
		return "review configuration settings"
	}
	if Classify(f).IsRetryable {
		return "retry operation"
	}
	return "manual intervention required"
}

func categoryFor(kinds kindSet) Category {
	switch {
	case kinds.any(KindInvalidArgument):
		return CategoryValidation
	case kinds.any(KindPermission):
		return CategorySecurity
	case kinds.any(KindTimeout, KindCancelled, KindConnectivity):
		return CategoryNetwork
	case kinds.any(KindOutOfMemory, KindStackOverflow, KindIO):
		return CategorySystem
	case kinds.any(KindUnsupported):
		return CategoryConfiguration
	}
	return CategoryApplication
}

func severityFor(kinds kindSet) Severity {
	switch {
	case kinds.any(KindOutOfMemory, KindStackOverflow):
		return SeverityCritical
	case kinds.any(KindPermission):
		return SeverityCritical
	case kinds.any(KindTimeout, KindCancelled):
		return SeverityWarning
	case kinds.any(KindInvalidArgument):
		return SeverityInfo
	}
	return SeverityWarning
}

func describe(typeName, message string, c Classification) string {
	if typeName == "" {
		typeName = "unknown"
	}
	retry := "Not retryable: manual intervention required."
	if c.IsRetryable {
		retry = "Retryable: " + actionRetryBackoff + "."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Failure type: %s\n", typeName)
	fmt.Fprintf(&b, "Category: %s\n", c.Category)
	fmt.Fprintf(&b, "Severity: %s\n", c.Severity)
	fmt.Fprintf(&b, "Message: %s\n", message)
	b.WriteString(retry)
	return b.String()
}

func containsAny(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}
