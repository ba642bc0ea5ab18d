// sink.go defines the Sink interface for downstream record forwarding.

package errtel

import "context"

// Sink receives every record after it has been stored.
// Implementations must be safe for concurrent use.
type Sink interface {
	// Write forwards a scrubbed, hashed record.
	Write(ctx context.Context, rec ErrorRecord) error

	// Flush ensures any buffered records are delivered.
	// For synchronous sinks, this may be a no-op.
	Flush(ctx context.Context) error

	// Close releases resources held by the sink.
	// After Close is called, Write and Flush should return errors.
	Close() error
}

// discardSink is the default sink; it lives here to avoid an import cycle
// with the sinks/noop package.
type discardSink struct{}

func (discardSink) Write(context.Context, ErrorRecord) error { return nil }
func (discardSink) Flush(context.Context) error              { return nil }
func (discardSink) Close() error                             { return nil }
