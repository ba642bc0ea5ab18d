// Package noop provides a sink that discards every record.
// Useful for tests and for running the engine without forwarding.
package noop

import (
	"context"

	"github.com/strongdm/errtel/pkg/errtel"
)

type noopSink struct{}

// NewNoopSink creates a sink whose methods do nothing and return nil.
func NewNoopSink() errtel.Sink {
	return noopSink{}
}

func (noopSink) Write(context.Context, errtel.ErrorRecord) error { return nil }

func (noopSink) Flush(context.Context) error { return nil }

func (noopSink) Close() error { return nil }
