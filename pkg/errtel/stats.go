// stats.go aggregates stored records into statistics, frequency rankings, and
// pattern analyses.

package errtel

import (
	"fmt"
	"slices"
	"sort"
	"time"
)

// Query defaults.
const (
	DefaultQueryLimit    = 100
	DefaultFrequentLimit = 10
	DefaultTopPatterns   = 10
)

// Recommendation thresholds.
const (
	highRatePerHour     = 10.0
	categoryShareLimit  = 0.30
	componentShareLimit = 0.50
)

// Query filters stored records. Zero-valued fields do not filter.
type Query struct {
	Start     *time.Time
	End       *time.Time
	Severity  *Severity
	Category  Category
	Component string
	ErrorHash string
	Limit     int
}

func (q Query) match(r *ErrorRecord) bool {
	if q.Start != nil && r.Timestamp.Before(*q.Start) {
		return false
	}
	if q.End != nil && r.Timestamp.After(*q.End) {
		return false
	}
	if q.Severity != nil && r.Severity != *q.Severity {
		return false
	}
	if q.Category != "" && r.Category != q.Category {
		return false
	}
	if q.Component != "" && r.Component != q.Component {
		return false
	}
	if q.ErrorHash != "" && r.ErrorHash != q.ErrorHash {
		return false
	}
	return true
}

// Records returns stored records matching q, newest first, at most q.Limit
// (DefaultQueryLimit when unset).
func (e *Engine) Records(q Query) []ErrorRecord {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	out := e.store.Snapshot(q.match)
	sortNewestFirst(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// RecentErrors returns the n most recent records.
func (e *Engine) RecentErrors(n int) []ErrorRecord {
	return e.Records(Query{Limit: n})
}

// CountSince returns how many stored records are at or after t.
func (e *Engine) CountSince(t time.Time) int {
	n := 0
	e.store.Snapshot(func(r *ErrorRecord) bool {
		if !r.Timestamp.Before(t) {
			n++
		}
		return false
	})
	return n
}

func sortNewestFirst(records []ErrorRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
}

// window resolves optional bounds against the stored records.
func (e *Engine) window(start, end *time.Time) (time.Time, time.Time) {
	var s, en time.Time
	if start == nil || end == nil {
		earliest, latest, _ := e.store.Bounds()
		s, en = earliest, latest
	}
	if start != nil {
		s = *start
	}
	if end != nil {
		en = *end
	}
	return s, en
}

func (e *Engine) windowRecords(start, end time.Time) []ErrorRecord {
	return e.store.Snapshot(func(r *ErrorRecord) bool {
		return !r.Timestamp.Before(start) && !r.Timestamp.After(end)
	})
}

// PatternSummary is a pattern's activity within a statistics window.
type PatternSummary struct {
	Pattern             string    `json:"pattern"`
	Message             string    `json:"message"`
	Category            Category  `json:"category"`
	Occurrences         int       `json:"occurrences"`
	LifetimeOccurrences int64     `json:"lifetimeOccurrences"`
	FirstSeen           time.Time `json:"firstSeen"`
	LastSeen            time.Time `json:"lastSeen"`
}

// ErrorStatistics is a read-only summary of the records in a window.
type ErrorStatistics struct {
	StartTime        time.Time        `json:"startTime"`
	EndTime          time.Time        `json:"endTime"`
	TotalErrors      int              `json:"totalErrors"`
	ErrorRatePerHour float64          `json:"errorRatePerHour"`
	BySeverity       map[Severity]int `json:"bySeverity"`
	ByCategory       map[Category]int `json:"byCategory"`
	ByComponent      map[string]int   `json:"byComponent"`
	TopPatterns      []PatternSummary `json:"topPatterns"`
	Recommendations  []string         `json:"recommendations"`
	UnresolvedErrors int              `json:"unresolvedErrors"`
	CriticalErrors   int              `json:"criticalErrors"`
}

// categoryAdvice is the recommendation emitted when a category dominates.
var categoryAdvice = map[Category]string{
	CategoryValidation:      "Validation errors are frequent: tighten input validation at the call sites",
	CategorySecurity:        "Security errors are frequent: review credentials and access policies",
	CategoryNetwork:         "Network errors are frequent: check connectivity, endpoints, and timeouts",
	CategorySystem:          "System errors are frequent: check memory, disk, and host resource limits",
	CategoryConfiguration:   "Configuration errors are frequent: review configuration settings",
	CategoryDatabase:        "Database errors are frequent: check database health and slow queries",
	CategoryPerformance:     "Performance errors are frequent: profile the hot paths",
	CategoryApplication:     "Application errors are frequent: review recent code changes",
	CategoryExternalService: "External service errors are frequent: check upstream status and quotas",
}

// Statistics summarizes stored records between start and end, inclusive.
// Nil bounds default to the earliest and latest stored records.
func (e *Engine) Statistics(start, end *time.Time) ErrorStatistics {
	s, en := e.window(start, end)
	return e.statistics(s, en, e.windowRecords(s, en))
}

func (e *Engine) statistics(start, end time.Time, records []ErrorRecord) ErrorStatistics {
	st := ErrorStatistics{
		StartTime:   start,
		EndTime:     end,
		TotalErrors: len(records),
		BySeverity:  make(map[Severity]int),
		ByCategory:  make(map[Category]int),
		ByComponent: make(map[string]int),
	}
	if hours := end.Sub(start).Hours(); hours > 0 {
		st.ErrorRatePerHour = float64(len(records)) / hours
	}

	for i := range records {
		r := &records[i]
		st.BySeverity[r.Severity]++
		st.ByCategory[r.Category]++
		if r.Component != "" {
			st.ByComponent[r.Component]++
		}
		if !r.IsResolved {
			st.UnresolvedErrors++
		}
		if r.Severity == SeverityCritical {
			st.CriticalErrors++
		}
	}

	groups := groupByPattern(records)
	st.TopPatterns = make([]PatternSummary, 0, min(len(groups), DefaultTopPatterns))
	for _, g := range groups {
		if len(st.TopPatterns) == DefaultTopPatterns {
			break
		}
		ps := PatternSummary{
			Pattern:     g.key,
			Message:     g.records[len(g.records)-1].Message,
			Category:    g.records[0].Category,
			Occurrences: len(g.records),
			FirstSeen:   g.records[0].Timestamp,
			LastSeen:    g.records[len(g.records)-1].Timestamp,
		}
		if p, ok := e.patterns.Get(g.key); ok {
			ps.LifetimeOccurrences = p.Occurrences
		}
		st.TopPatterns = append(st.TopPatterns, ps)
	}

	st.Recommendations = recommendations(st)
	return st
}

func recommendations(st ErrorStatistics) []string {
	var recs []string
	if st.ErrorRatePerHour > highRatePerHour {
		recs = append(recs, fmt.Sprintf("High error rate (%.1f/hour): investigate root causes of the most frequent errors", st.ErrorRatePerHour))
	}
	if st.TotalErrors > 0 {
		total := float64(st.TotalErrors)
		for _, c := range Categories {
			if float64(st.ByCategory[c])/total > categoryShareLimit {
				recs = append(recs, categoryAdvice[c])
			}
		}
		components := make([]string, 0, len(st.ByComponent))
		for c := range st.ByComponent {
			components = append(components, c)
		}
		sort.Strings(components)
		for _, c := range components {
			share := float64(st.ByComponent[c]) / total
			if share > componentShareLimit {
				recs = append(recs, fmt.Sprintf("Component %q accounts for %.0f%% of errors: review its recent changes", c, share*100))
			}
		}
	}
	if st.CriticalErrors > 0 {
		recs = append(recs, fmt.Sprintf("%d critical errors require immediate attention", st.CriticalErrors))
	}
	if len(recs) == 0 {
		recs = append(recs, "Error levels are within normal thresholds")
	}
	return recs
}

type patternGroup struct {
	key     string
	records []ErrorRecord // ascending by time
}

// groupByPattern groups records by pattern key, ranked by count descending,
// then most recent activity, then key.
func groupByPattern(records []ErrorRecord) []patternGroup {
	index := make(map[string]int)
	var groups []patternGroup
	for _, r := range records {
		key := r.PatternKey()
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, patternGroup{key: key})
		}
		groups[i].records = append(groups[i].records, r)
	}
	for i := range groups {
		sort.SliceStable(groups[i].records, func(a, b int) bool {
			return groups[i].records[a].Timestamp.Before(groups[i].records[b].Timestamp)
		})
	}
	sort.Slice(groups, func(i, j int) bool {
		gi, gj := groups[i], groups[j]
		if len(gi.records) != len(gj.records) {
			return len(gi.records) > len(gj.records)
		}
		li, lj := gi.records[len(gi.records)-1].Timestamp, gj.records[len(gj.records)-1].Timestamp
		if !li.Equal(lj) {
			return li.After(lj)
		}
		return gi.key < gj.key
	})
	return groups
}

// FrequentErrorSummary describes a recurring error pattern.
type FrequentErrorSummary struct {
	Pattern             string    `json:"pattern"`
	Message             string    `json:"message"`
	Category            Category  `json:"category"`
	Severity            Severity  `json:"severity"`
	Occurrences         int       `json:"occurrences"`
	LifetimeOccurrences int64     `json:"lifetimeOccurrences"`
	FirstSeen           time.Time `json:"firstSeen"`
	LastSeen            time.Time `json:"lastSeen"`
	AffectedComponents  []string  `json:"affectedComponents"`
	ErrorHashes         []string  `json:"errorHashes"`
	Trend               Trend     `json:"trend"`
	IsResolved          bool      `json:"isResolved"`
}

func (e *Engine) summarize(g patternGroup) FrequentErrorSummary {
	first, last := g.records[0], g.records[len(g.records)-1]
	sum := FrequentErrorSummary{
		Pattern:     g.key,
		Message:     last.Message,
		Category:    first.Category,
		Severity:    first.Severity,
		Occurrences: len(g.records),
		FirstSeen:   first.Timestamp,
		LastSeen:    last.Timestamp,
		IsResolved:  true,
	}
	times := make([]time.Time, 0, len(g.records))
	for _, r := range g.records {
		times = append(times, r.Timestamp)
		sum.Severity = max(sum.Severity, r.Severity)
		if !r.IsResolved {
			sum.IsResolved = false
		}
		if r.Component != "" && !slices.Contains(sum.AffectedComponents, r.Component) {
			sum.AffectedComponents = append(sum.AffectedComponents, r.Component)
		}
		if !slices.Contains(sum.ErrorHashes, r.ErrorHash) {
			sum.ErrorHashes = append(sum.ErrorHashes, r.ErrorHash)
		}
	}
	// The split point is the pattern's own midpoint, not the query window's.
	sum.Trend = TrendOf(times)
	if p, ok := e.patterns.Get(g.key); ok {
		sum.LifetimeOccurrences = p.Occurrences
	}
	return sum
}

// FrequentErrors returns patterns seen more than once between start and end,
// most frequent first. A non-positive limit means DefaultFrequentLimit.
func (e *Engine) FrequentErrors(start, end *time.Time, limit int) []FrequentErrorSummary {
	if limit <= 0 {
		limit = DefaultFrequentLimit
	}
	s, en := e.window(start, end)
	var out []FrequentErrorSummary
	for _, g := range groupByPattern(e.windowRecords(s, en)) {
		if len(g.records) < 2 {
			// Groups are ranked by count, so no later group qualifies.
			break
		}
		out = append(out, e.summarize(g))
		if len(out) == limit {
			break
		}
	}
	return out
}

// RiskLevel grades a pattern analysis.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskAssessment scores the overall error situation from 0 to 100.
type RiskAssessment struct {
	Level   RiskLevel `json:"level"`
	Score   int       `json:"score"`
	Factors []string  `json:"factors"`
}

// PatternAnalysis is the result of AnalyzePatterns.
type PatternAnalysis struct {
	StartTime       time.Time              `json:"startTime"`
	EndTime         time.Time              `json:"endTime"`
	Patterns        []FrequentErrorSummary `json:"patterns"`
	KeyInsights     []string               `json:"keyInsights"`
	Recommendations []string               `json:"recommendations"`
	RiskAssessment  RiskAssessment         `json:"riskAssessment"`
}

// AnalyzePatterns summarizes every pattern active between start and end and
// derives insights, recommendations, and a risk assessment.
func (e *Engine) AnalyzePatterns(start, end *time.Time) PatternAnalysis {
	s, en := e.window(start, end)
	records := e.windowRecords(s, en)
	st := e.statistics(s, en, records)

	pa := PatternAnalysis{StartTime: s, EndTime: en}
	for _, g := range groupByPattern(records) {
		pa.Patterns = append(pa.Patterns, e.summarize(g))
	}

	if len(records) == 0 {
		pa.KeyInsights = []string{"No errors recorded in the selected window"}
		pa.Recommendations = st.Recommendations
		pa.RiskAssessment = RiskAssessment{Level: RiskLow, Factors: []string{}}
		return pa
	}

	var increasing []FrequentErrorSummary
	for _, p := range pa.Patterns {
		if p.Trend == TrendIncreasing {
			increasing = append(increasing, p)
		}
	}

	top := pa.Patterns[0]
	pa.KeyInsights = append(pa.KeyInsights,
		fmt.Sprintf("%d errors across %d distinct patterns", len(records), len(pa.Patterns)),
		fmt.Sprintf("Most frequent error (%d occurrences): %s", top.Occurrences, top.Message),
	)
	if len(increasing) > 0 {
		pa.KeyInsights = append(pa.KeyInsights, fmt.Sprintf("%d patterns are trending upward", len(increasing)))
	}
	if c, n := dominant(st.ByComponent); n > 0 {
		pa.KeyInsights = append(pa.KeyInsights, fmt.Sprintf("Component %q reported the most errors (%d)", c, n))
	}
	if st.CriticalErrors > 0 {
		pa.KeyInsights = append(pa.KeyInsights, fmt.Sprintf("%d critical errors in the window", st.CriticalErrors))
	}

	pa.Recommendations = slices.Clone(st.Recommendations)
	for _, p := range increasing {
		pa.Recommendations = append(pa.Recommendations, fmt.Sprintf("Prioritize the rising pattern %s: %s", p.Pattern, p.Message))
	}

	pa.RiskAssessment = assessRisk(st, len(increasing))
	return pa
}

func dominant(counts map[string]int) (string, int) {
	var best string
	n := 0
	for k, v := range counts {
		if v > n || (v == n && k < best) {
			best, n = k, v
		}
	}
	return best, n
}

func assessRisk(st ErrorStatistics, increasing int) RiskAssessment {
	ra := RiskAssessment{Factors: []string{}}
	add := func(points int, factor string) {
		ra.Score += points
		ra.Factors = append(ra.Factors, factor)
	}
	if st.CriticalErrors > 0 {
		add(30, fmt.Sprintf("%d critical errors", st.CriticalErrors))
	}
	if st.ErrorRatePerHour > highRatePerHour {
		add(20, fmt.Sprintf("error rate %.1f/hour exceeds %.0f/hour", st.ErrorRatePerHour, highRatePerHour))
	}
	if increasing > 0 {
		add(min(10*increasing, 30), fmt.Sprintf("%d patterns trending upward", increasing))
	}
	if n := st.ByCategory[CategorySecurity]; n > 0 {
		add(15, fmt.Sprintf("%d security errors", n))
	}
	if st.TotalErrors > 0 && float64(st.UnresolvedErrors)/float64(st.TotalErrors) > 0.5 {
		add(5, fmt.Sprintf("%d of %d errors unresolved", st.UnresolvedErrors, st.TotalErrors))
	}
	ra.Score = min(ra.Score, 100)
	switch {
	case ra.Score >= 50:
		ra.Level = RiskHigh
	case ra.Score >= 20:
		ra.Level = RiskMedium
	default:
		ra.Level = RiskLow
	}
	return ra
}
