// Package async provides a sink wrapper with a bounded queue so Report never
// waits on a slow downstream. When the queue is full the oldest queued
// record is dropped.
package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/strongdm/errtel/pkg/errtel"
)

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("async sink is closed")

// AsyncSinkOption configures the async sink.
type AsyncSinkOption func(*asyncSinkConfig)

type asyncSinkConfig struct {
	queueSize int
	onDropped func(count int)
	onError   func(err error)
}

// WithQueueSize sets the maximum number of queued records (default: 1000).
func WithQueueSize(size int) AsyncSinkOption {
	return func(c *asyncSinkConfig) {
		if size > 0 {
			c.queueSize = size
		}
	}
}

// WithOnDropped sets a callback invoked when records are dropped on overflow.
func WithOnDropped(fn func(count int)) AsyncSinkOption {
	return func(c *asyncSinkConfig) {
		c.onDropped = fn
	}
}

// WithOnError sets a callback for inner sink write failures, which would
// otherwise be discarded.
func WithOnError(fn func(err error)) AsyncSinkOption {
	return func(c *asyncSinkConfig) {
		c.onError = fn
	}
}

type asyncSink struct {
	inner     errtel.Sink
	queue     chan errtel.ErrorRecord
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    atomic.Bool

	// pending counts records enqueued but not yet written or dropped.
	pending atomic.Int64

	onDropped func(count int)
	onError   func(err error)
}

// NewAsyncSink wraps inner with a bounded queue drained by one goroutine.
func NewAsyncSink(inner errtel.Sink, opts ...AsyncSinkOption) errtel.Sink {
	cfg := &asyncSinkConfig{queueSize: 1000}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &asyncSink{
		inner:     inner,
		queue:     make(chan errtel.ErrorRecord, cfg.queueSize),
		done:      make(chan struct{}),
		onDropped: cfg.onDropped,
		onError:   cfg.onError,
	}
	s.wg.Add(1)
	go s.processLoop()
	return s
}

func (s *asyncSink) processLoop() {
	defer s.wg.Done()
	for {
		select {
		case rec := <-s.queue:
			s.deliver(rec)
		case <-s.done:
			for {
				select {
				case rec := <-s.queue:
					s.deliver(rec)
				default:
					return
				}
			}
		}
	}
}

func (s *asyncSink) deliver(rec errtel.ErrorRecord) {
	defer s.pending.Add(-1)
	if err := s.inner.Write(context.Background(), rec); err != nil && s.onError != nil {
		s.onError(err)
	}
}

// Write enqueues rec and returns immediately.
func (s *asyncSink) Write(ctx context.Context, rec errtel.ErrorRecord) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.pending.Add(1)
	select {
	case s.queue <- rec:
		return nil
	default:
	}

	// Full: drop the oldest queued record and retry once.
	select {
	case <-s.queue:
		s.dropped()
	default:
	}
	select {
	case s.queue <- rec:
	default:
		s.dropped()
	}
	return nil
}

func (s *asyncSink) dropped() {
	s.pending.Add(-1)
	if s.onDropped != nil {
		s.onDropped(1)
	}
}

// Flush waits until every queued record has been handed to the inner sink,
// then flushes it.
func (s *asyncSink) Flush(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for s.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return s.inner.Flush(ctx)
}

// Close drains the queue and closes the inner sink.
func (s *asyncSink) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)
		s.wg.Wait()
		// Records that raced with the closed flag.
		for {
			select {
			case rec := <-s.queue:
				s.deliver(rec)
				continue
			default:
			}
			break
		}
	})
	return s.inner.Close()
}
