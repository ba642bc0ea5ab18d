// Package stderr provides a sink that prints records in a human-readable form.
// Useful for development and debugging.
package stderr

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/strongdm/errtel/pkg/errtel"
)

// StderrSinkOption configures the stderr sink.
type StderrSinkOption func(*stderrSinkConfig)

type stderrSinkConfig struct {
	verbose bool
	out     io.Writer
}

// WithVerbose adds context values and stack traces to the output.
func WithVerbose() StderrSinkOption {
	return func(c *stderrSinkConfig) {
		c.verbose = true
	}
}

// WithWriter redirects output away from os.Stderr.
func WithWriter(w io.Writer) StderrSinkOption {
	return func(c *stderrSinkConfig) {
		if w != nil {
			c.out = w
		}
	}
}

type stderrSink struct {
	mu      sync.Mutex
	verbose bool
	out     io.Writer
}

// NewStderrSink creates a sink that writes to stderr.
func NewStderrSink(opts ...StderrSinkOption) errtel.Sink {
	cfg := &stderrSinkConfig{out: os.Stderr}
	for _, opt := range opts {
		opt(cfg)
	}
	return &stderrSink{verbose: cfg.verbose, out: cfg.out}
}

// Write prints rec as a header line followed by indented detail lines:
//
//	[ERRTEL] <timestamp> <SEVERITY> <category> <hash> (component: <component>)
func (s *stderrSink) Write(ctx context.Context, rec errtel.ErrorRecord) error {
	var b strings.Builder

	fmt.Fprintf(&b, "[ERRTEL] %s %s %s %s",
		rec.Timestamp.Format(time.RFC3339),
		strings.ToUpper(rec.Severity.String()),
		rec.Category,
		rec.ErrorHash,
	)
	if rec.Component != "" {
		fmt.Fprintf(&b, " (component: %s)", rec.Component)
	}
	b.WriteByte('\n')

	fmt.Fprintf(&b, "        Message: %s\n", rec.Message)
	if t := rec.FailureType(); t != "" {
		fmt.Fprintf(&b, "        Failure: %s\n", t)
	}

	if s.verbose {
		if len(rec.Context) > 0 {
			keys := make([]string, 0, len(rec.Context))
			for k := range rec.Context {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			b.WriteString("        Context:\n")
			for _, k := range keys {
				fmt.Fprintf(&b, "          %s=%v\n", k, rec.Context[k])
			}
		}
		if rec.StackTrace != "" {
			b.WriteString("        Stack trace:\n")
			for _, line := range strings.Split(rec.StackTrace, "\n") {
				fmt.Fprintf(&b, "          %s\n", line)
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.out, b.String())
	return err
}

// Flush is a no-op for the stderr sink.
func (s *stderrSink) Flush(ctx context.Context) error {
	return nil
}

// Close is a no-op for the stderr sink.
func (s *stderrSink) Close() error {
	return nil
}
