// scheduler.go runs the retention sweep on a fixed interval.

package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/strongdm/errtel/pkg/errtel"
)

// ErrSchedulerRunning is returned by Start when the scheduler is already running.
var ErrSchedulerRunning = errors.New("retention scheduler already running")

// Sweeper runs one retention sweep. *errtel.Engine satisfies it.
type Sweeper interface {
	Cleanup(ctx context.Context) errtel.SweepResult
}

// RetentionScheduler runs Sweeper.Cleanup every interval until stopped.
// Overlapping runs are skipped rather than queued.
type RetentionScheduler struct {
	sweeper  Sweeper
	interval time.Duration
	log      *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entry   cron.EntryID
	cancel  context.CancelFunc
	lastRun errtel.SweepResult
}

// NewRetentionScheduler creates a stopped scheduler.
func NewRetentionScheduler(sweeper Sweeper, interval time.Duration, logger *slog.Logger) *RetentionScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetentionScheduler{
		sweeper:  sweeper,
		interval: interval,
		log:      logger.With("component", "errtel.retention"),
	}
}

// Start begins periodic sweeps. The first sweep runs one interval after
// Start. Values carried by ctx are passed to each sweep; its cancellation is
// not, since Stop ends the schedule.
func (s *RetentionScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return ErrSchedulerRunning
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	logger := cronLogger{s.log}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.SkipIfStillRunning(logger), cron.Recover(logger)),
	)
	s.entry = c.Schedule(cron.Every(s.interval), cron.FuncJob(func() {
		res := s.sweeper.Cleanup(runCtx)
		s.mu.Lock()
		s.lastRun = res
		s.mu.Unlock()
	}))
	c.Start()

	s.cron = c
	s.cancel = cancel
	s.log.InfoContext(ctx, "retention scheduler started", "interval", s.interval)
	return nil
}

// Stop ends the schedule and waits for an in-flight sweep, or for ctx.
// Stopping a stopped scheduler is a no-op.
func (s *RetentionScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	done := c.Stop()
	defer cancel()
	select {
	case <-done.Done():
		s.log.InfoContext(ctx, "retention scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether the scheduler is started.
func (s *RetentionScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

// Next returns when the next sweep is due, or the zero time when stopped.
func (s *RetentionScheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

// LastRun returns the result of the most recent scheduled sweep.
func (s *RetentionScheduler) LastRun() errtel.SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// cronLogger adapts slog to cron's logger interface.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
