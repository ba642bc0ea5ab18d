// Package errtel provides in-process error telemetry: deduplicated capture,
// bounded time-windowed storage, failure classification, and pattern and
// trend analysis.
//
// # Core Components
//
//   - ErrorRecord: one captured failure with severity, category, component, and context
//   - Engine: owns the store and pattern map and runs the ingestion pipeline
//   - Store: hash-keyed, time-ordered record lists with per-hash and global caps
//   - PatternAnalyzer: per-signature occurrence counters and affected components
//   - Classify: maps a failure to category, severity, and retry guidance
//   - Scrubber: redacts secrets and PII before a record is hashed or stored
//   - Sink: optional downstream destination (stderr, multi, async, noop)
//
// # Quick Start
//
//	engine := errtel.New(
//	    errtel.WithDefaultScrubbing(),
//	    errtel.WithMetrics(errtel.NewMetrics(prometheus.DefaultRegisterer)),
//	)
//	ctx = errtel.WithComponent(ctx, "billing")
//	if err := charge(ctx); err != nil {
//	    engine.ReportException(ctx, err)
//	}
//	top := engine.FrequentErrors(nil, nil, 10)
//
// # Dedup Keys
//
// ErrorHash covers message, failure type, component, and category. Patterns
// group by the same digest without the component, so one failure reported
// from several components forms a single pattern whose AffectedComponents
// lists each of them.
//
// # Retention
//
// Engine.Cleanup runs one retention sweep. Hosts schedule it (see the service
// package) at the configured cleanup interval. Pattern occurrence counts are
// lifetime counters; statistics are computed from retained records only.
package errtel
