// retention.go implements the retention sweep over the bounded store.

package errtel

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"
)

// SweepResult summarizes one retention sweep.
type SweepResult struct {
	StartedAt       time.Time     `json:"startedAt"`
	Duration        time.Duration `json:"duration"`
	Cutoff          time.Time     `json:"cutoff"`
	Expired         int           `json:"expired"`
	CapTrimmed      int           `json:"capTrimmed"`
	GlobalTrimmed   int           `json:"globalTrimmed"`
	HashesDropped   int           `json:"hashesDropped"`
	RecordsRetained int           `json:"recordsRetained"`
	Err             error         `json:"-"`
}

// Removed returns the total number of records removed by the sweep.
func (r SweepResult) Removed() int {
	return r.Expired + r.CapTrimmed + r.GlobalTrimmed
}

// Sweep removes records with timestamps before cutoff, re-applies the
// per-hash cap, drops empty hash entries, and finally trims the globally
// oldest records until the store is within its global cap.
// Each list is processed under its own lock.
func (s *Store) Sweep(cutoff time.Time) (evicted []Eviction, dropped int) {
	s.lists.Range(func(_, v any) bool {
		l := v.(*recordList)
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.dead {
			return true
		}

		// Records are ascending by time, so expired ones form a prefix.
		n := sort.Search(len(l.records), func(i int) bool { return !l.records[i].Timestamp.Before(cutoff) })
		for _, r := range l.records[:n] {
			evicted = append(evicted, Eviction{Record: r, Pattern: l.pattern, Reason: EvictRetention})
		}
		if s.maxPerHash > 0 && len(l.records)-n > s.maxPerHash {
			over := len(l.records) - n - s.maxPerHash
			for _, r := range l.records[n : n+over] {
				evicted = append(evicted, Eviction{Record: r, Pattern: l.pattern, Reason: EvictPerHashCap})
			}
			n += over
		}
		if n > 0 {
			l.records = slices.Delete(l.records, 0, n)
			s.total.Add(-int64(n))
		}
		if len(l.records) == 0 {
			s.retire(l)
			dropped++
		}
		return true
	})

	if s.maxTotal > 0 && s.total.Load() > int64(s.maxTotal) {
		evicted = append(evicted, s.enforceGlobalCap()...)
	}
	return evicted, dropped
}

// Cleanup runs one retention sweep. It never fails the caller: a panic during
// the sweep is recovered, logged, counted, and reported in the result, and the
// next scheduled sweep retries.
func (e *Engine) Cleanup(ctx context.Context) (result SweepResult) {
	result.StartedAt = e.cfg.now()
	result.Cutoff = result.StartedAt.Add(-e.cfg.retentionPeriod)

	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("retention sweep panicked: %v", r)
			e.metrics.SweepFailures.Inc()
			e.log.ErrorContext(ctx, "retention sweep failed", "error", result.Err)
		}
		result.Duration = e.cfg.now().Sub(result.StartedAt)
		result.RecordsRetained = e.store.Len()
		e.metrics.SweepDuration.Observe(result.Duration.Seconds())
		e.updateGauges()
	}()

	evicted, dropped := e.store.Sweep(result.Cutoff)
	result.HashesDropped = dropped
	for _, ev := range evicted {
		switch ev.Reason {
		case EvictRetention:
			result.Expired++
		case EvictPerHashCap:
			result.CapTrimmed++
		case EvictGlobalCap:
			result.GlobalTrimmed++
		}
	}
	e.release(evicted)

	e.log.DebugContext(ctx, "retention sweep complete",
		"expired", result.Expired,
		"cap_trimmed", result.CapTrimmed,
		"global_trimmed", result.GlobalTrimmed,
		"hashes_dropped", result.HashesDropped,
	)
	return result
}
