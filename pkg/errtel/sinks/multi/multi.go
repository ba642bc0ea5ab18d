// Package multi provides a sink that fans out to several sinks.
// Every sink receives every record; failures are aggregated.
package multi

import (
	"context"
	"errors"
	"fmt"

	"github.com/strongdm/errtel/pkg/errtel"
)

type multiSink struct {
	sinks []errtel.Sink
}

// NewMultiSink creates a sink that writes to each of sinks in order.
// Nil sinks are skipped.
func NewMultiSink(sinks ...errtel.Sink) errtel.Sink {
	s := &multiSink{}
	for _, sink := range sinks {
		if sink != nil {
			s.sinks = append(s.sinks, sink)
		}
	}
	return s
}

// Write forwards rec to every sink, even after a failure, and joins the
// errors with the index of the sink that produced each.
func (s *multiSink) Write(ctx context.Context, rec errtel.ErrorRecord) error {
	return s.each(func(sink errtel.Sink) error { return sink.Write(ctx, rec) })
}

// Flush flushes every sink.
func (s *multiSink) Flush(ctx context.Context) error {
	return s.each(func(sink errtel.Sink) error { return sink.Flush(ctx) })
}

// Close closes every sink.
func (s *multiSink) Close() error {
	return s.each(func(sink errtel.Sink) error { return sink.Close() })
}

func (s *multiSink) each(fn func(errtel.Sink) error) error {
	var errs []error
	for i, sink := range s.sinks {
		if err := fn(sink); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
