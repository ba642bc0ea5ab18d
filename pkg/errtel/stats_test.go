package errtel

import (
	"context"
	"slices"
	"strings"
	"testing"
	"time"
)

func reportAt(t *testing.T, e *Engine, ts time.Time, rec ErrorRecord) ErrorRecord {
	t.Helper()
	if rec.Message == "" {
		rec.Message = "boom"
	}
	if rec.Category == "" {
		rec.Category = CategoryApplication
	}
	rec.Timestamp = ts
	stored, err := e.Report(context.Background(), rec)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	return stored
}

func TestStatistics_RatePerHour(t *testing.T) {
	e, _ := newTestEngine(t)
	start, end := t0, t0.Add(24*time.Hour)
	for i := range 120 {
		reportAt(t, e, start.Add(time.Duration(i)*12*time.Minute), ErrorRecord{})
	}

	st := e.Statistics(&start, &end)

	if st.TotalErrors != 120 {
		t.Errorf("TotalErrors = %d, want 120", st.TotalErrors)
	}
	if st.ErrorRatePerHour != 5.0 {
		t.Errorf("ErrorRatePerHour = %v, want 5.0", st.ErrorRatePerHour)
	}
}

func TestStatistics_ZeroWindow(t *testing.T) {
	e, _ := newTestEngine(t)
	reportAt(t, e, t0, ErrorRecord{})
	reportAt(t, e, t0.Add(time.Minute), ErrorRecord{})

	at := t0
	st := e.Statistics(&at, &at)

	if st.ErrorRatePerHour != 0 {
		t.Errorf("ErrorRatePerHour = %v, want 0 for a zero-length window", st.ErrorRatePerHour)
	}
	if st.TotalErrors != 1 {
		t.Errorf("TotalErrors = %d, want 1 (bounds are inclusive)", st.TotalErrors)
	}
}

func TestStatistics_DefaultWindowAndBreakdowns(t *testing.T) {
	e, _ := newTestEngine(t)
	reportAt(t, e, t0, ErrorRecord{Component: "api", Severity: SeverityCritical})
	reportAt(t, e, t0.Add(time.Hour), ErrorRecord{Component: "api", Category: CategoryDatabase, Severity: SeverityWarning})
	last := reportAt(t, e, t0.Add(2*time.Hour), ErrorRecord{Component: "worker", Severity: SeverityError})
	if err := e.ResolveError(last.ID); err != nil {
		t.Fatal(err)
	}

	st := e.Statistics(nil, nil)

	if !st.StartTime.Equal(t0) || !st.EndTime.Equal(t0.Add(2*time.Hour)) {
		t.Errorf("window = %v..%v, want stored bounds", st.StartTime, st.EndTime)
	}
	if st.ErrorRatePerHour != 1.5 {
		t.Errorf("ErrorRatePerHour = %v, want 1.5", st.ErrorRatePerHour)
	}
	if st.BySeverity[SeverityCritical] != 1 || st.BySeverity[SeverityError] != 1 || st.BySeverity[SeverityWarning] != 1 {
		t.Errorf("BySeverity = %v", st.BySeverity)
	}
	if st.ByCategory[CategoryDatabase] != 1 || st.ByCategory[CategoryApplication] != 2 {
		t.Errorf("ByCategory = %v", st.ByCategory)
	}
	if st.ByComponent["api"] != 2 || st.ByComponent["worker"] != 1 {
		t.Errorf("ByComponent = %v", st.ByComponent)
	}
	if st.UnresolvedErrors != 2 || st.CriticalErrors != 1 {
		t.Errorf("Unresolved/Critical = %d/%d, want 2/1", st.UnresolvedErrors, st.CriticalErrors)
	}
	// The application records share a signature across components.
	if len(st.TopPatterns) != 2 || st.TopPatterns[0].Occurrences != 2 {
		t.Errorf("TopPatterns = %+v, want 2 patterns led by the shared one", st.TopPatterns)
	}
}

func TestStatistics_Recommendations(t *testing.T) {
	t.Run("quiet", func(t *testing.T) {
		e, _ := newTestEngine(t)
		st := e.Statistics(nil, nil)
		if !slices.Equal(st.Recommendations, []string{"Error levels are within normal thresholds"}) {
			t.Errorf("Recommendations = %v", st.Recommendations)
		}
	})

	t.Run("noisy", func(t *testing.T) {
		e, _ := newTestEngine(t)
		start, end := t0, t0.Add(time.Hour)
		for i := range 30 {
			sev := SeverityError
			if i < 2 {
				sev = SeverityCritical
			}
			reportAt(t, e, start.Add(time.Duration(i)*time.Minute), ErrorRecord{Category: CategoryNetwork, Component: "gateway", Severity: sev})
		}

		st := e.Statistics(&start, &end)
		joined := strings.Join(st.Recommendations, "\n")
		for _, want := range []string{"High error rate (30.0/hour)", categoryAdvice[CategoryNetwork], `Component "gateway"`, "2 critical errors"} {
			if !strings.Contains(joined, want) {
				t.Errorf("Recommendations missing %q:\n%s", want, joined)
			}
		}
	})
}

func TestRecords_Query(t *testing.T) {
	e, _ := newTestEngine(t)
	for i := range 150 {
		reportAt(t, e, t0.Add(time.Duration(i)*time.Second), ErrorRecord{
			Component: []string{"a", "b"}[i%2],
			Severity:  Severities[i%4],
		})
	}

	all := e.Records(Query{})
	if len(all) != DefaultQueryLimit {
		t.Errorf("default limit returned %d, want %d", len(all), DefaultQueryLimit)
	}
	if !all[0].Timestamp.After(all[1].Timestamp) {
		t.Error("records should be newest first")
	}

	crit := SeverityCritical
	got := e.Records(Query{Severity: &crit, Component: "b", Limit: 1000})
	for _, r := range got {
		if r.Severity != SeverityCritical || r.Component != "b" {
			t.Errorf("filter leaked %v/%s", r.Severity, r.Component)
		}
	}
	if len(got) != 37 {
		t.Errorf("critical records from b = %d, want 37", len(got))
	}

	from, to := t0.Add(10*time.Second), t0.Add(19*time.Second)
	if n := len(e.Records(Query{Start: &from, End: &to})); n != 10 {
		t.Errorf("time window returned %d, want 10", n)
	}

	hash := all[0].ErrorHash
	for _, r := range e.Records(Query{ErrorHash: hash, Limit: 1000}) {
		if r.ErrorHash != hash {
			t.Errorf("hash filter leaked %s", r.ErrorHash)
		}
	}

	if n := len(e.RecentErrors(5)); n != 5 {
		t.Errorf("RecentErrors(5) = %d", n)
	}
	if n := e.CountSince(t0.Add(140 * time.Second)); n != 10 {
		t.Errorf("CountSince = %d, want 10", n)
	}
}

func TestFrequentErrors(t *testing.T) {
	e, _ := newTestEngine(t)
	for i := range 3 {
		sev := SeverityWarning
		if i == 1 {
			sev = SeverityCritical
		}
		reportAt(t, e, t0.Add(time.Duration(i)*time.Minute), ErrorRecord{Message: "repeat", Component: "api", Severity: sev})
	}
	for i := range 2 {
		reportAt(t, e, t0.Add(time.Duration(i)*time.Minute), ErrorRecord{Message: "pair"})
	}
	reportAt(t, e, t0, ErrorRecord{Message: "once"})

	got := e.FrequentErrors(nil, nil, 0)

	if len(got) != 2 {
		t.Fatalf("FrequentErrors = %d entries, want 2 (singletons excluded)", len(got))
	}
	top := got[0]
	if top.Message != "repeat" || top.Occurrences != 3 {
		t.Errorf("top = %q x%d, want repeat x3", top.Message, top.Occurrences)
	}
	if top.Severity != SeverityCritical {
		t.Errorf("Severity = %v, want the highest seen", top.Severity)
	}
	if top.IsResolved {
		t.Error("IsResolved should be false while any record is unresolved")
	}
	if !top.FirstSeen.Equal(t0) || !top.LastSeen.Equal(t0.Add(2*time.Minute)) {
		t.Errorf("FirstSeen/LastSeen = %v/%v", top.FirstSeen, top.LastSeen)
	}

	if limited := e.FrequentErrors(nil, nil, 1); len(limited) != 1 {
		t.Errorf("limit 1 returned %d", len(limited))
	}

	if _, err := e.ResolvePattern(top.Pattern); err != nil {
		t.Fatal(err)
	}
	if again := e.FrequentErrors(nil, nil, 1); !again[0].IsResolved {
		t.Error("IsResolved should be true once every record is resolved")
	}
}

func TestAnalyzePatterns_Empty(t *testing.T) {
	e, _ := newTestEngine(t)

	pa := e.AnalyzePatterns(nil, nil)

	if len(pa.Patterns) != 0 {
		t.Errorf("Patterns = %d, want 0", len(pa.Patterns))
	}
	if len(pa.KeyInsights) != 1 || !strings.Contains(pa.KeyInsights[0], "No errors") {
		t.Errorf("KeyInsights = %v", pa.KeyInsights)
	}
	if pa.RiskAssessment.Level != RiskLow || pa.RiskAssessment.Score != 0 {
		t.Errorf("RiskAssessment = %+v, want low/0", pa.RiskAssessment)
	}
}

func TestAnalyzePatterns_HighRisk(t *testing.T) {
	e, _ := newTestEngine(t)
	start, end := t0, t0.Add(time.Hour)
	rec := ErrorRecord{Message: "token rejected", Category: CategorySecurity, Severity: SeverityCritical, Component: "auth"}
	reportAt(t, e, t0.Add(time.Minute), rec)
	for i := range 5 {
		reportAt(t, e, t0.Add(50*time.Minute+time.Duration(i)*time.Minute), rec)
	}

	pa := e.AnalyzePatterns(&start, &end)

	if len(pa.Patterns) != 1 || pa.Patterns[0].Trend != TrendIncreasing {
		t.Fatalf("Patterns = %+v, want one increasing pattern", pa.Patterns)
	}
	// critical 30 + rising 10 + security 15 + unresolved 5
	if pa.RiskAssessment.Score != 60 || pa.RiskAssessment.Level != RiskHigh {
		t.Errorf("RiskAssessment = %+v, want high/60", pa.RiskAssessment)
	}
	if len(pa.RiskAssessment.Factors) != 4 {
		t.Errorf("Factors = %v", pa.RiskAssessment.Factors)
	}
	joined := strings.Join(pa.KeyInsights, "\n")
	if !strings.Contains(joined, "trending upward") || !strings.Contains(joined, `Component "auth"`) {
		t.Errorf("KeyInsights = %v", pa.KeyInsights)
	}
	if !strings.Contains(strings.Join(pa.Recommendations, "\n"), "Prioritize the rising pattern") {
		t.Errorf("Recommendations = %v", pa.Recommendations)
	}
}

func TestAssessRisk_Levels(t *testing.T) {
	tests := []struct {
		name string
		st   ErrorStatistics
		inc  int
		want RiskLevel
	}{
		{"quiet", ErrorStatistics{TotalErrors: 4, UnresolvedErrors: 1}, 0, RiskLow},
		{"rate only", ErrorStatistics{TotalErrors: 40, ErrorRatePerHour: 40}, 0, RiskMedium},
		{"rising capped", ErrorStatistics{TotalErrors: 10}, 7, RiskMedium},
		{"everything", ErrorStatistics{TotalErrors: 10, UnresolvedErrors: 10, CriticalErrors: 1, ErrorRatePerHour: 20, ByCategory: map[Category]int{CategorySecurity: 1}}, 5, RiskHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ra := assessRisk(tt.st, tt.inc)
			if ra.Level != tt.want {
				t.Errorf("Level = %q (score %d), want %q", ra.Level, ra.Score, tt.want)
			}
			if ra.Score > 100 {
				t.Errorf("Score %d exceeds 100", ra.Score)
			}
		})
	}
}

func TestFrequentErrors_TrendSplitsPatternSpan(t *testing.T) {
	e, _ := newTestEngine(t)
	for _, offset := range []time.Duration{20 * time.Hour, 20*time.Hour + 10*time.Minute, 20*time.Hour + 20*time.Minute, 20*time.Hour + 30*time.Minute} {
		reportAt(t, e, t0.Add(offset), ErrorRecord{Severity: SeverityError})
	}
	start, end := t0, t0.Add(24*time.Hour)

	got := e.FrequentErrors(&start, &end, 0)

	if len(got) != 1 {
		t.Fatalf("FrequentErrors = %d summaries, want 1", len(got))
	}
	// Split at 20h15m: two before, two after. Splitting the 24h window
	// instead would put all four in the second half.
	if got[0].Trend != TrendStable {
		t.Errorf("Trend = %q, want %q", got[0].Trend, TrendStable)
	}
}
