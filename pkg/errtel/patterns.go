// patterns.go tracks per-signature occurrence counters and computes trends.

package errtel

import (
	"slices"
	"sort"
	"sync"
	"time"
)

// Trend is the direction of change in occurrence frequency.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
	TrendUnknown    Trend = "unknown"
)

// Trend thresholds: the second half must beat the first by 20% either way.
const (
	trendRiseFactor = 1.2
	trendFallFactor = 0.8
)

// TrendFromCounts compares occurrence counts of the first and second half of
// a timeline.
func TrendFromCounts(first, second int) Trend {
	f, s := float64(first), float64(second)
	switch {
	case s > f*trendRiseFactor:
		return TrendIncreasing
	case s < f*trendFallFactor:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// TrendOf computes the trend of a set of occurrence times. The span from the
// earliest to the latest time is split at its midpoint; times strictly before
// the midpoint count toward the first half. Fewer than two times yield
// TrendUnknown, and times that all coincide yield TrendStable.
func TrendOf(times []time.Time) Trend {
	if len(times) < 2 {
		return TrendUnknown
	}
	earliest, latest := times[0], times[0]
	for _, ts := range times[1:] {
		if ts.Before(earliest) {
			earliest = ts
		}
		if ts.After(latest) {
			latest = ts
		}
	}
	span := latest.Sub(earliest)
	if span <= 0 {
		return TrendStable
	}
	mid := earliest.Add(span / 2)
	first := 0
	for _, ts := range times {
		if ts.Before(mid) {
			first++
		}
	}
	return TrendFromCounts(first, len(times)-first)
}

type patternEntry struct {
	mu         sync.Mutex
	pattern    ErrorPattern
	components map[string]struct{}
	dead       bool
}

// PatternAnalyzer maintains one ErrorPattern per signature. Every update is a
// read-modify-write under that signature's own lock.
type PatternAnalyzer struct {
	entries sync.Map // string -> *patternEntry
}

// NewPatternAnalyzer creates an empty analyzer.
func NewPatternAnalyzer() *PatternAnalyzer {
	return &PatternAnalyzer{}
}

// Upsert counts one occurrence of the pattern with the given key, creating
// the entry on first sight.
func (a *PatternAnalyzer) Upsert(key string, category Category, message, component string, ts time.Time) {
	for {
		v, ok := a.entries.Load(key)
		if !ok {
			v, _ = a.entries.LoadOrStore(key, &patternEntry{components: make(map[string]struct{})})
		}
		e := v.(*patternEntry)
		e.mu.Lock()
		if e.dead {
			e.mu.Unlock()
			continue
		}
		p := &e.pattern
		if p.Occurrences == 0 {
			p.Pattern = key
			p.Category = category
			p.Message = message
			p.FirstSeen = ts
			p.LastSeen = ts
		}
		p.Occurrences++
		p.Retained++
		if ts.Before(p.FirstSeen) {
			p.FirstSeen = ts
		}
		if ts.After(p.LastSeen) {
			p.LastSeen = ts
		}
		if component != "" {
			if _, seen := e.components[component]; !seen {
				e.components[component] = struct{}{}
				p.AffectedComponents = append(p.AffectedComponents, component)
			}
		}
		e.mu.Unlock()
		return
	}
}

// Release records that n records of the pattern left the store. The entry is
// removed once no stored record backs it.
func (a *PatternAnalyzer) Release(key string, n int) {
	v, ok := a.entries.Load(key)
	if !ok {
		return
	}
	e := v.(*patternEntry)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		return
	}
	e.pattern.Retained -= int64(n)
	if e.pattern.Retained <= 0 {
		e.dead = true
		a.entries.CompareAndDelete(key, e)
	}
}

// Get returns a copy of the pattern with the given key.
func (a *PatternAnalyzer) Get(key string) (ErrorPattern, bool) {
	v, ok := a.entries.Load(key)
	if !ok {
		return ErrorPattern{}, false
	}
	e := v.(*patternEntry)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		return ErrorPattern{}, false
	}
	return e.copy(), true
}

// All returns copies of every tracked pattern, most occurrences first.
func (a *PatternAnalyzer) All() []ErrorPattern {
	var out []ErrorPattern
	a.entries.Range(func(_, v any) bool {
		e := v.(*patternEntry)
		e.mu.Lock()
		if !e.dead {
			out = append(out, e.copy())
		}
		e.mu.Unlock()
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Occurrences != out[j].Occurrences {
			return out[i].Occurrences > out[j].Occurrences
		}
		return out[i].Pattern < out[j].Pattern
	})
	return out
}

// Len returns the number of tracked patterns.
func (a *PatternAnalyzer) Len() int {
	n := 0
	a.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// copy clones the pattern so callers never share the components slice.
// Caller holds e.mu.
func (e *patternEntry) copy() ErrorPattern {
	p := e.pattern
	p.AffectedComponents = slices.Clone(p.AffectedComponents)
	return p
}
