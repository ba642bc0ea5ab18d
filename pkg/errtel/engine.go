// engine.go provides the Engine, which owns the store and pattern analyzer and
// runs the ingestion pipeline.

package errtel

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Defaults applied when an option is not given.
const (
	DefaultMaxPerHash      = 1000
	DefaultMaxTotal        = 50000
	DefaultRetentionPeriod = 30 * 24 * time.Hour
	DefaultCleanupInterval = 6 * time.Hour
)

// Option configures an Engine.
type Option func(*engineConfig)

type engineConfig struct {
	maxPerHash      int
	maxTotal        int
	retentionPeriod time.Duration
	cleanupInterval time.Duration
	sink            Sink
	scrubber        *Scrubber
	logger          *slog.Logger
	metrics         *Metrics
	now             func() time.Time
	appVersion      string
}

// WithMaxPerHash caps the number of records kept per error hash.
func WithMaxPerHash(n int) Option {
	return func(c *engineConfig) {
		if n > 0 {
			c.maxPerHash = n
		}
	}
}

// WithMaxTotal caps the number of records kept across all hashes.
func WithMaxTotal(n int) Option {
	return func(c *engineConfig) {
		if n > 0 {
			c.maxTotal = n
		}
	}
}

// WithRetentionPeriod sets the maximum record age kept by the retention sweep.
func WithRetentionPeriod(d time.Duration) Option {
	return func(c *engineConfig) {
		if d > 0 {
			c.retentionPeriod = d
		}
	}
}

// WithCleanupInterval sets how often a scheduler should run the sweep.
func WithCleanupInterval(d time.Duration) Option {
	return func(c *engineConfig) {
		if d > 0 {
			c.cleanupInterval = d
		}
	}
}

// WithSink sets the downstream sink that receives every stored record.
func WithSink(sink Sink) Option {
	return func(c *engineConfig) {
		c.sink = sink
	}
}

// WithScrubber configures ingestion-time scrubbing with a custom configuration.
func WithScrubber(cfg ScrubberConfig) Option {
	return func(c *engineConfig) {
		c.scrubber = NewScrubber(cfg)
	}
}

// WithDefaultScrubbing enables scrubbing with production-safe defaults.
func WithDefaultScrubbing() Option {
	return func(c *engineConfig) {
		c.scrubber = NewScrubber(DefaultScrubberConfig())
	}
}

// WithLogger sets the logger for absorbed failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *engineConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the Prometheus collectors the engine updates.
func WithMetrics(m *Metrics) Option {
	return func(c *engineConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *engineConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// WithAppVersion sets the application version recorded in system context.
func WithAppVersion(v string) Option {
	return func(c *engineConfig) {
		c.appVersion = v
	}
}

// Engine is the single owner of the record store and pattern map.
// It is safe for concurrent use; configuration is fixed at construction.
type Engine struct {
	cfg      engineConfig
	store    *Store
	patterns *PatternAnalyzer
	log      *slog.Logger
	metrics  *Metrics
	started  time.Time

	// capture is CaptureSystemContext, replaceable in tests.
	capture    func(appVersion string) (*SystemContext, error)
	enrichWarn rate.Sometimes
}

// New creates an Engine with the given options.
func New(opts ...Option) *Engine {
	cfg := engineConfig{
		maxPerHash:      DefaultMaxPerHash,
		maxTotal:        DefaultMaxTotal,
		retentionPeriod: DefaultRetentionPeriod,
		cleanupInterval: DefaultCleanupInterval,
		logger:          slog.Default(),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.sink == nil {
		cfg.sink = discardSink{}
	}
	if cfg.metrics == nil {
		cfg.metrics = NewMetrics(nil)
	}

	return &Engine{
		cfg:        cfg,
		store:      NewStore(cfg.maxPerHash, cfg.maxTotal),
		patterns:   NewPatternAnalyzer(),
		log:        cfg.logger.With("component", "errtel"),
		metrics:    cfg.metrics,
		started:    cfg.now(),
		capture:    CaptureSystemContext,
		enrichWarn: rate.Sometimes{First: 1, Interval: time.Minute},
	}
}

// Now returns the engine's current time.
func (e *Engine) Now() time.Time { return e.cfg.now() }

// StartedAt returns when the engine was constructed.
func (e *Engine) StartedAt() time.Time { return e.started }

// AppVersion returns the configured application version.
func (e *Engine) AppVersion() string { return e.cfg.appVersion }

// CleanupInterval returns the configured sweep interval.
func (e *Engine) CleanupInterval() time.Duration { return e.cfg.cleanupInterval }

// RetentionPeriod returns the configured retention period.
func (e *Engine) RetentionPeriod() time.Duration { return e.cfg.retentionPeriod }

// Logger returns the engine's logger.
func (e *Engine) Logger() *slog.Logger { return e.log }

// Metrics returns the engine's collectors.
func (e *Engine) Metrics() *Metrics { return e.metrics }

// Report ingests rec and returns the stored copy.
//
// The message is mandatory. A zero timestamp is replaced by the current time,
// a missing component or context falls back to the values carried by ctx, and
// a missing category is derived from the attached failure. System context is
// captured best-effort: enrichment failures are logged, never returned.
func (e *Engine) Report(ctx context.Context, rec ErrorRecord) (ErrorRecord, error) {
	const op = "report"
	if strings.TrimSpace(rec.Message) == "" {
		return ErrorRecord{}, newError(ReasonInvalidArgument, op, "message is required", nil)
	}
	if rec.Severity < SeverityInfo || rec.Severity > SeverityCritical {
		return ErrorRecord{}, newError(ReasonInvalidArgument, op, fmt.Sprintf("invalid severity %d", int(rec.Severity)), nil)
	}
	if rec.Category == "" {
		rec.Category = CategoryApplication
		if rec.Failure != nil {
			rec.Category = Classify(rec.Failure).Category
		}
	} else if !rec.Category.Valid() {
		return ErrorRecord{}, newError(ReasonInvalidArgument, op, fmt.Sprintf("unknown category %q", rec.Category), nil)
	}

	rec.ID = uuid.NewString()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = e.cfg.now()
	}
	rec.IsResolved = false
	if rec.Component == "" {
		rec.Component, _ = ComponentFromContext(ctx)
	}
	rec.Context = NormalizeContext(mergeContext(ctx, rec.Context))
	rec.Failure = rec.Failure.Clone()

	if s := e.cfg.scrubber; s != nil {
		rec.Message = s.ScrubMessage(rec.Message)
		rec.Details = s.ScrubMessage(rec.Details)
		rec.StackTrace = s.ScrubStackTrace(rec.StackTrace)
		rec.Context = s.ScrubContext(rec.Context)
		s.ScrubFailure(rec.Failure)
	}

	rec.System = e.enrich()
	rec.ErrorHash = RecordHash(rec)

	// Count the pattern before the record becomes evictable so a concurrent
	// eviction can never release a pattern that has not been counted yet.
	e.patterns.Upsert(rec.PatternKey(), rec.Category, rec.Message, rec.Component, rec.Timestamp)
	evicted := e.store.Add(rec)
	e.release(evicted)

	e.metrics.RecordsIngested.WithLabelValues(rec.Severity.String(), string(rec.Category)).Inc()
	e.updateGauges()

	if err := e.cfg.sink.Write(ctx, rec.Clone()); err != nil {
		e.metrics.SinkFailures.Inc()
		e.log.WarnContext(ctx, "sink write failed", "error_id", rec.ID, "error", err)
	}
	return rec.Clone(), nil
}

// enrich captures system context. It never fails: partial context is kept,
// and a panic in capture yields no context at all.
func (e *Engine) enrich() (sc *SystemContext) {
	defer func() {
		if r := recover(); r != nil {
			sc = nil
			e.enrichFailed(fmt.Errorf("panic: %v", r))
		}
	}()
	sc, err := e.capture(e.cfg.appVersion)
	if err != nil {
		e.enrichFailed(err)
	}
	return sc
}

func (e *Engine) enrichFailed(err error) {
	e.metrics.EnrichmentFailures.Inc()
	e.enrichWarn.Do(func() {
		e.log.Warn("system context enrichment failed", "error", err)
	})
}

// release updates patterns and metrics for evicted records.
func (e *Engine) release(evicted []Eviction) {
	if len(evicted) == 0 {
		return
	}
	perPattern := make(map[string]int)
	for _, ev := range evicted {
		perPattern[ev.Pattern]++
		e.metrics.RecordsEvicted.WithLabelValues(string(ev.Reason)).Inc()
	}
	for key, n := range perPattern {
		e.patterns.Release(key, n)
	}
}

func (e *Engine) updateGauges() {
	e.metrics.RecordsStored.Set(float64(e.store.Len()))
	e.metrics.PatternsTracked.Set(float64(e.patterns.Len()))
}

func mergeContext(ctx context.Context, values map[string]any) map[string]any {
	fromCtx, ok := ContextValuesFromContext(ctx)
	if !ok {
		if len(values) == 0 {
			return nil
		}
		return maps.Clone(values)
	}
	maps.Copy(fromCtx, values)
	return fromCtx
}

// ReportOption adjusts a record built by ReportException or ReportMessage.
type ReportOption func(*ErrorRecord)

// WithReportContext attaches caller metadata.
func WithReportContext(values map[string]any) ReportOption {
	return func(r *ErrorRecord) {
		r.Context = values
	}
}

// WithReportSeverity overrides the severity.
func WithReportSeverity(s Severity) ReportOption {
	return func(r *ErrorRecord) {
		r.Severity = s
	}
}

// WithReportComponent sets the originating component.
func WithReportComponent(component string) ReportOption {
	return func(r *ErrorRecord) {
		r.Component = component
	}
}

// WithReportCategory overrides the category.
func WithReportCategory(c Category) ReportOption {
	return func(r *ErrorRecord) {
		r.Category = c
	}
}

// ReportException captures err with its wrapped causes, classifies it, and
// ingests the result. Options override the classified severity and category.
func (e *Engine) ReportException(ctx context.Context, err error, opts ...ReportOption) (ErrorRecord, error) {
	if err == nil {
		return ErrorRecord{}, newError(ReasonInvalidArgument, "report exception", "error is required", nil)
	}
	failure := FailureInfoFromError(err)
	cls := Classify(failure)
	rec := ErrorRecord{
		Message:    err.Error(),
		Details:    failure.String(),
		StackTrace: failure.StackTrace,
		Failure:    failure,
		Severity:   cls.Severity,
		Category:   cls.Category,
	}
	for _, opt := range opts {
		opt(&rec)
	}
	return e.Report(ctx, rec)
}

// ReportMessage ingests a plain message. Category defaults to Application
// and severity to Error.
func (e *Engine) ReportMessage(ctx context.Context, message string, opts ...ReportOption) (ErrorRecord, error) {
	rec := ErrorRecord{
		Message:  message,
		Severity: SeverityError,
		Category: CategoryApplication,
	}
	for _, opt := range opts {
		opt(&rec)
	}
	return e.Report(ctx, rec)
}

// Len returns the number of stored records.
func (e *Engine) Len() int { return e.store.Len() }

// Pattern returns the pattern with the given key.
func (e *Engine) Pattern(key string) (ErrorPattern, bool) {
	return e.patterns.Get(key)
}

// Patterns returns every tracked pattern, most occurrences first.
func (e *Engine) Patterns() []ErrorPattern {
	return e.patterns.All()
}

// ResolveError marks the record with the given id resolved.
func (e *Engine) ResolveError(id string) error {
	if id == "" {
		return newError(ReasonInvalidArgument, "resolve error", "id is required", nil)
	}
	n := e.store.SetResolved(func(r *ErrorRecord) bool { return r.ID == id }, true)
	if n == 0 {
		return newError(ReasonNotFound, "resolve error", fmt.Sprintf("no record %q", id), nil)
	}
	return nil
}

// ResolvePattern marks every stored record of a pattern resolved and returns
// how many records it covered.
func (e *Engine) ResolvePattern(key string) (int, error) {
	if _, ok := e.patterns.Get(key); !ok {
		return 0, newError(ReasonNotFound, "resolve pattern", fmt.Sprintf("no pattern %q", key), nil)
	}
	return e.store.SetResolved(func(r *ErrorRecord) bool { return r.PatternKey() == key }, true), nil
}
