// Package service is the boundary the host application calls: reporting,
// queries, diagnostics, export, and the retention schedule, composed from
// configuration.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/strongdm/errtel/pkg/errtel"
	"github.com/strongdm/errtel/pkg/errtel/config"
	"github.com/strongdm/errtel/pkg/errtel/diagnostics"
	"github.com/strongdm/errtel/pkg/errtel/export"
	"github.com/strongdm/errtel/pkg/errtel/sinks/multi"
)

// Option configures a Service.
type Option func(*serviceConfig)

type serviceConfig struct {
	cfg        config.Config
	logger     *slog.Logger
	registerer prometheus.Registerer
	extraSinks []errtel.Sink
	engineOpts []errtel.Option
	diagOpts   []diagnostics.CollectorOption
}

// WithConfig replaces the default configuration.
func WithConfig(cfg config.Config) Option {
	return func(c *serviceConfig) {
		c.cfg = cfg
	}
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(c *serviceConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRegisterer registers the engine metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *serviceConfig) {
		c.registerer = reg
	}
}

// WithSinks forwards records to sinks in addition to the configured sink.
func WithSinks(sinks ...errtel.Sink) Option {
	return func(c *serviceConfig) {
		c.extraSinks = append(c.extraSinks, sinks...)
	}
}

// WithEngineOptions appends engine options; they override configuration.
func WithEngineOptions(opts ...errtel.Option) Option {
	return func(c *serviceConfig) {
		c.engineOpts = append(c.engineOpts, opts...)
	}
}

// WithDiagnosticsOptions appends collector options; they override configuration.
func WithDiagnosticsOptions(opts ...diagnostics.CollectorOption) Option {
	return func(c *serviceConfig) {
		c.diagOpts = append(c.diagOpts, opts...)
	}
}

// Service owns one engine, its diagnostics collector, and its retention
// scheduler. It is safe for concurrent use.
type Service struct {
	engine    *errtel.Engine
	collector *diagnostics.Collector
	scheduler *RetentionScheduler
	sink      errtel.Sink
	log       *slog.Logger
}

// New validates the configuration and builds a stopped Service.
func New(opts ...Option) (*Service, error) {
	sc := serviceConfig{cfg: config.Default(), logger: slog.Default()}
	for _, opt := range opts {
		opt(&sc)
	}
	if err := sc.cfg.Validate(); err != nil {
		return nil, errtel.NewError(errtel.ReasonInvalidArgument, "new service", "invalid configuration", err)
	}

	sink := sc.cfg.NewSink()
	if len(sc.extraSinks) > 0 {
		sink = multi.NewMultiSink(append([]errtel.Sink{sink}, sc.extraSinks...)...)
	}
	metrics := errtel.NewMetrics(sc.registerer)

	engineOpts := append(sc.cfg.EngineOptions(),
		errtel.WithSink(sink),
		errtel.WithLogger(sc.logger),
		errtel.WithMetrics(metrics),
	)
	engine := errtel.New(append(engineOpts, sc.engineOpts...)...)

	diagOpts := append(sc.cfg.DiagnosticsOptions(),
		diagnostics.WithLogger(sc.logger),
		diagnostics.WithMetrics(metrics),
		diagnostics.WithStartTime(engine.StartedAt()),
		diagnostics.WithClock(engine.Now),
	)
	collector := diagnostics.NewCollector(engine, append(diagOpts, sc.diagOpts...)...)

	return &Service{
		engine:    engine,
		collector: collector,
		scheduler: NewRetentionScheduler(engine, engine.CleanupInterval(), sc.logger),
		sink:      sink,
		log:       sc.logger.With("component", "errtel.service"),
	}, nil
}

// Engine returns the underlying engine.
func (s *Service) Engine() *errtel.Engine { return s.engine }

// Scheduler returns the retention scheduler.
func (s *Service) Scheduler() *RetentionScheduler { return s.scheduler }

// Start begins the periodic retention sweep.
func (s *Service) Start(ctx context.Context) error {
	return s.scheduler.Start(ctx)
}

// Stop ends the retention schedule, then flushes and closes the sink.
func (s *Service) Stop(ctx context.Context) error {
	var errs []error
	if err := s.scheduler.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}
	if err := s.sink.Flush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush sink: %w", err))
	}
	if err := s.sink.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close sink: %w", err))
	}
	return errors.Join(errs...)
}

// ReportError ingests a populated record.
func (s *Service) ReportError(ctx context.Context, rec errtel.ErrorRecord) (errtel.ErrorRecord, error) {
	return s.engine.Report(ctx, rec)
}

// ReportException ingests a Go error with its wrapped causes.
func (s *Service) ReportException(ctx context.Context, err error, opts ...errtel.ReportOption) (errtel.ErrorRecord, error) {
	return s.engine.ReportException(ctx, err, opts...)
}

// ReportMessage ingests a plain message.
func (s *Service) ReportMessage(ctx context.Context, message string, opts ...errtel.ReportOption) (errtel.ErrorRecord, error) {
	return s.engine.ReportMessage(ctx, message, opts...)
}

// GetErrorReports returns matching records, newest first.
func (s *Service) GetErrorReports(ctx context.Context, q errtel.Query) []errtel.ErrorRecord {
	return s.engine.Records(q)
}

// GetErrorStatistics summarizes the records between start and end.
func (s *Service) GetErrorStatistics(ctx context.Context, start, end *time.Time) errtel.ErrorStatistics {
	return s.engine.Statistics(start, end)
}

// GetFrequentErrors returns recurring patterns, most frequent first.
func (s *Service) GetFrequentErrors(ctx context.Context, start, end *time.Time, limit int) []errtel.FrequentErrorSummary {
	return s.engine.FrequentErrors(start, end, limit)
}

// AnalyzeErrorPatterns returns patterns with insights and a risk assessment.
func (s *Service) AnalyzeErrorPatterns(ctx context.Context, start, end *time.Time) errtel.PatternAnalysis {
	return s.engine.AnalyzePatterns(start, end)
}

// CollectDiagnosticInfo assembles a diagnostic snapshot.
func (s *Service) CollectDiagnosticInfo(ctx context.Context) diagnostics.DiagnosticInfo {
	return s.collector.Collect(ctx)
}

// CleanupErrorReports runs a retention sweep now.
func (s *Service) CleanupErrorReports(ctx context.Context) errtel.SweepResult {
	return s.engine.Cleanup(ctx)
}

// ResolveError marks one record resolved.
func (s *Service) ResolveError(ctx context.Context, id string) error {
	return s.engine.ResolveError(id)
}

// ResolvePattern marks every stored record of a pattern resolved.
func (s *Service) ResolvePattern(ctx context.Context, pattern string) (int, error) {
	return s.engine.ResolvePattern(pattern)
}

// ExportErrorReports writes every stored record between start and end to
// path, oldest first.
func (s *Service) ExportErrorReports(ctx context.Context, path string, format export.Format, start, end *time.Time) error {
	records := s.engine.Records(errtel.Query{Start: start, End: end, Limit: math.MaxInt})
	slices.Reverse(records)

	if err := export.Export(ctx, records, format, path); err != nil {
		s.log.WarnContext(ctx, "export failed", "path", path, "format", format, "error", err)
		return err
	}
	s.engine.Metrics().ExportedRecords.WithLabelValues(string(format)).Add(float64(len(records)))
	s.log.InfoContext(ctx, "export complete", "path", path, "format", format, "records", len(records))
	return nil
}
