// Package diagnostics assembles point-in-time support snapshots: process,
// host, performance, environment, build, network, and recent-error facts.
//
// Each section is produced by its own collector. Collectors run concurrently
// and are individually time-bounded; a collector that fails, panics, or times
// out has its section omitted and a warning logged, and the rest of the
// snapshot is still returned.
package diagnostics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/strongdm/errtel/pkg/errtel"
)

var tracer = otel.Tracer("github.com/strongdm/errtel/pkg/errtel/diagnostics")

// Section names, also used as the collector metric label.
const (
	SectionApplication = "application"
	SectionSystem      = "system"
	SectionPerformance = "performance"
	SectionEnvironment = "environment"
	SectionComponents  = "components"
	SectionNetwork     = "network"
	SectionErrors      = "errors"
)

// DefaultCollectorTimeout bounds each collector.
const DefaultCollectorTimeout = 5 * time.Second

// recentErrorCount is how many records the error digest carries.
const recentErrorCount = 5

// ErrorSource is the read side of the engine the error digest needs.
// *errtel.Engine satisfies it.
type ErrorSource interface {
	Len() int
	CountSince(t time.Time) int
	RecentErrors(n int) []errtel.ErrorRecord
}

// DiagnosticInfo is one snapshot. Sections whose collector failed are nil
// and listed in Omitted.
type DiagnosticInfo struct {
	CollectedAt time.Time          `json:"collectedAt"`
	Application *ApplicationInfo   `json:"application,omitempty"`
	System      *SystemInfo        `json:"system,omitempty"`
	Performance *PerformanceInfo   `json:"performance,omitempty"`
	Environment map[string]string  `json:"environment,omitempty"`
	Components  []ComponentInfo    `json:"components,omitempty"`
	Network     *NetworkInfo       `json:"network,omitempty"`
	Errors      *ErrorDigest       `json:"errors,omitempty"`
	Omitted     []string           `json:"omitted,omitempty"`
	Durations   map[string]float64 `json:"collectorDurationsMs,omitempty"`
}

// ErrorDigest summarizes recent engine activity.
type ErrorDigest struct {
	Stored   int                  `json:"stored"`
	LastHour int                  `json:"lastHour"`
	LastDay  int                  `json:"lastDay"`
	Recent   []errtel.ErrorRecord `json:"recent"`
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithSensitiveTerms replaces the environment-variable redaction terms.
func WithSensitiveTerms(terms ...string) CollectorOption {
	return func(c *Collector) {
		if len(terms) > 0 {
			c.terms = terms
		}
	}
}

// WithProbeTargets adds host:port targets checked for TCP reachability.
func WithProbeTargets(targets ...string) CollectorOption {
	return func(c *Collector) {
		c.probes = append(c.probes, targets...)
	}
}

// WithCollectorTimeout sets the per-collector time bound.
func WithCollectorTimeout(d time.Duration) CollectorOption {
	return func(c *Collector) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger for omitted sections.
func WithLogger(logger *slog.Logger) CollectorOption {
	return func(c *Collector) {
		if logger != nil {
			c.log = logger
		}
	}
}

// WithMetrics counts collector failures on m.
func WithMetrics(m *errtel.Metrics) CollectorOption {
	return func(c *Collector) {
		c.metrics = m
	}
}

// WithVersion sets the application version reported in the snapshot.
func WithVersion(v string) CollectorOption {
	return func(c *Collector) {
		c.version = v
	}
}

// WithStartTime sets the process start time used for uptime.
func WithStartTime(t time.Time) CollectorOption {
	return func(c *Collector) {
		c.startedAt = t
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) CollectorOption {
	return func(c *Collector) {
		if now != nil {
			c.now = now
		}
	}
}

// section produces one part of a snapshot. The returned apply function
// stores the result and runs under the snapshot lock.
type section struct {
	name string
	run  func(ctx context.Context) (apply func(*DiagnosticInfo), err error)
}

// Collector builds diagnostic snapshots.
type Collector struct {
	source    ErrorSource
	terms     []string
	probes    []string
	timeout   time.Duration
	version   string
	startedAt time.Time
	now       func() time.Time
	log       *slog.Logger
	metrics   *errtel.Metrics
	sections  []section
}

// NewCollector creates a collector reading recent errors from source, which
// may be nil to skip the error digest.
func NewCollector(source ErrorSource, opts ...CollectorOption) *Collector {
	c := &Collector{
		source:  source,
		terms:   errtel.DefaultSensitiveTerms,
		timeout: DefaultCollectorTimeout,
		now:     time.Now,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.startedAt.IsZero() {
		c.startedAt = c.now()
	}
	c.log = c.log.With("component", "errtel.diagnostics")

	c.sections = []section{
		{SectionApplication, c.collectApplication},
		{SectionSystem, c.collectSystem},
		{SectionPerformance, c.collectPerformance},
		{SectionEnvironment, c.collectEnvironment},
		{SectionComponents, c.collectComponents},
		{SectionNetwork, c.collectNetwork},
	}
	if source != nil {
		c.sections = append(c.sections, section{SectionErrors, c.collectErrors})
	}
	return c
}

// Collect runs every collector and returns the assembled snapshot.
// It never fails; failed sections are reported in Omitted.
func (c *Collector) Collect(ctx context.Context) DiagnosticInfo {
	ctx, span := tracer.Start(ctx, "diagnostics.Collect",
		trace.WithAttributes(attribute.Int("diagnostics.sections", len(c.sections))),
	)
	defer span.End()

	info := DiagnosticInfo{
		CollectedAt: c.now(),
		Durations:   make(map[string]float64, len(c.sections)),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range c.sections {
		g.Go(func() error {
			start := time.Now()
			apply, err := c.runSection(gctx, s)
			elapsed := float64(time.Since(start).Microseconds()) / 1000

			mu.Lock()
			defer mu.Unlock()
			info.Durations[s.name] = elapsed
			if err != nil {
				info.Omitted = append(info.Omitted, s.name)
				c.log.WarnContext(ctx, "diagnostic collector failed; section omitted", "section", s.name, "error", err)
				if c.metrics != nil {
					c.metrics.CollectorFailures.WithLabelValues(s.name).Inc()
				}
				return nil
			}
			apply(&info)
			return nil
		})
	}
	// Collectors never return errors; failures are recorded above.
	_ = g.Wait()

	span.SetAttributes(attribute.Int("diagnostics.omitted", len(info.Omitted)))
	return info
}

// runSection runs s with its own deadline, converting panics to errors.
func (c *Collector) runSection(ctx context.Context, s section) (func(*DiagnosticInfo), error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type result struct {
		apply func(*DiagnosticInfo)
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		apply, err := s.run(ctx)
		done <- result{apply: apply, err: err}
	}()

	select {
	case r := <-done:
		return r.apply, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("collector %s: %w", s.name, ctx.Err())
	}
}

func (c *Collector) collectErrors(ctx context.Context) (func(*DiagnosticInfo), error) {
	now := c.now()
	d := &ErrorDigest{
		Stored:   c.source.Len(),
		LastHour: c.source.CountSince(now.Add(-time.Hour)),
		LastDay:  c.source.CountSince(now.Add(-24 * time.Hour)),
		Recent:   c.source.RecentErrors(recentErrorCount),
	}
	return func(info *DiagnosticInfo) { info.Errors = d }, nil
}
