// failure.go converts Go errors into FailureInfo chains.

package errtel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"regexp"
	"runtime/debug"
	"strings"
	"syscall"
)

// Kind is a normalized failure kind used by classification.
type Kind string

const (
	KindNone            Kind = ""
	KindInvalidArgument Kind = "invalid_argument"
	KindPermission      Kind = "permission"
	KindTimeout         Kind = "timeout"
	KindCancelled       Kind = "cancelled"
	KindConnectivity    Kind = "connectivity"
	KindOutOfMemory     Kind = "out_of_memory"
	KindStackOverflow   Kind = "stack_overflow"
	KindIO              Kind = "io"
	KindUnsupported     Kind = "unsupported"
)

// maxChainDepth bounds how far FailureInfoFromError follows wrapped errors.
// Wrapping chains are built by call stacks, so this is only hit by
// pathological Unwrap implementations.
const maxChainDepth = 64

// FailureInfoFromError captures err and its wrapped causes.
// The stack of the calling goroutine is attached to the outermost node.
func FailureInfoFromError(err error) *FailureInfo {
	if err == nil {
		return nil
	}
	stack := string(debug.Stack())
	info := failureChain(err, 0)
	info.StackTrace = stack
	if frames := normalizeStackTrace(stack); len(frames) > 0 {
		info.Source = frames[0]
	}
	return info
}

func failureChain(err error, depth int) *FailureInfo {
	info := &FailureInfo{
		Type:    fmt.Sprintf("%T", err),
		Kind:    KindOf(err),
		Message: err.Error(),
	}
	if depth+1 >= maxChainDepth {
		return info
	}
	if next := unwrapOne(err); next != nil {
		info.Cause = failureChain(next, depth+1)
	}
	return info
}

// unwrapOne follows single-error wrapping, and the first error of a joined error.
func unwrapOne(err error) error {
	if next := errors.Unwrap(err); next != nil {
		return next
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if e != nil {
				return e
			}
		}
	}
	return nil
}

// KindOf maps well-known sentinel errors anywhere in err's chain to a Kind.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, fs.ErrPermission), errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return KindPermission
	case errors.Is(err, fs.ErrInvalid), errors.Is(err, syscall.EINVAL):
		return KindInvalidArgument
	case errors.Is(err, syscall.ENOMEM):
		return KindOutOfMemory
	case errors.Is(err, errors.ErrUnsupported), errors.Is(err, syscall.ENOSYS):
		return KindUnsupported
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindConnectivity
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ENETUNREACH) || errors.Is(err, syscall.EHOSTUNREACH) {
		return KindConnectivity
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrShortWrite) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrClosed) {
		return KindIO
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return KindIO
	}
	return KindNone
}

// Regex patterns for stack trace parsing
var (
	// Match function names like "main.doSomething" or "pkg/subpkg.Function"
	funcNamePattern = regexp.MustCompile(`^([a-zA-Z0-9_./*()\-]+\.[a-zA-Z0-9_]+)`)

	// Match memory addresses like "0x1234abcd"
	memAddrPattern = regexp.MustCompile(`0x[0-9a-fA-F]+`)

	// Match offset patterns like "+0x123"
	offsetPattern = regexp.MustCompile(`\+0x[0-9a-fA-F]+`)
)

// ignoredFramePrefixes are runtime and capture frames that never name the
// originating call site.
var ignoredFramePrefixes = []string{
	"runtime.",
	"runtime/debug.",
	"panic(",
	"github.com/strongdm/errtel/pkg/errtel.",
	"github.com/strongdm/errtel/pkg/errtel/",
}

// normalizeStackTrace extracts the first 3 application function names from a
// Go stack trace, stripping line numbers, memory addresses, and other variable data.
func normalizeStackTrace(trace string) []string {
	if trace == "" {
		return nil
	}

	var frames []string
	for _, line := range strings.Split(trace, "\n") {
		// File path lines are indented with a tab.
		if strings.HasPrefix(line, "\t") {
			continue
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "goroutine ") || strings.HasPrefix(line, "/") {
			continue
		}
		if ignoredFrame(line) {
			continue
		}

		funcLine := memAddrPattern.ReplaceAllString(line, "")
		funcLine = offsetPattern.ReplaceAllString(funcLine, "")

		// Remove the trailing argument list.
		if idx := strings.LastIndex(funcLine, "("); idx > 0 && strings.HasSuffix(funcLine, ")") {
			funcLine = funcLine[:idx]
		}
		funcLine = strings.TrimSpace(funcLine)
		if funcLine == "" {
			continue
		}

		if match := funcNamePattern.FindString(funcLine); match != "" {
			frames = append(frames, match)
			if len(frames) >= 3 {
				break
			}
		}
	}
	return frames
}

func ignoredFrame(line string) bool {
	for _, prefix := range ignoredFramePrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}
