package errtel

import (
	"slices"
	"sync"
	"testing"
	"time"
)

func TestPatternAnalyzer_Upsert(t *testing.T) {
	a := NewPatternAnalyzer()
	a.Upsert("p1", CategoryNetwork, "timeout", "api", t0.Add(time.Minute))
	a.Upsert("p1", CategoryNetwork, "timeout", "worker", t0)
	a.Upsert("p1", CategoryNetwork, "timeout", "api", t0.Add(2*time.Minute))

	p, ok := a.Get("p1")
	if !ok {
		t.Fatal("pattern p1 not found")
	}
	if p.Occurrences != 3 || p.Retained != 3 {
		t.Errorf("Occurrences/Retained = %d/%d, want 3/3", p.Occurrences, p.Retained)
	}
	if !p.FirstSeen.Equal(t0) || !p.LastSeen.Equal(t0.Add(2*time.Minute)) {
		t.Errorf("FirstSeen/LastSeen = %v/%v", p.FirstSeen, p.LastSeen)
	}
	if !slices.Equal(p.AffectedComponents, []string{"api", "worker"}) {
		t.Errorf("AffectedComponents = %v, want [api worker]", p.AffectedComponents)
	}

	p.AffectedComponents[0] = "mutated"
	if again, _ := a.Get("p1"); again.AffectedComponents[0] != "api" {
		t.Error("Get should return an independent copy")
	}
}

func TestPatternAnalyzer_OccurrencesSurviveRelease(t *testing.T) {
	a := NewPatternAnalyzer()
	for range 4 {
		a.Upsert("p", CategoryApplication, "m", "", t0)
	}

	a.Release("p", 3)
	p, ok := a.Get("p")
	if !ok {
		t.Fatal("pattern removed while a record still backs it")
	}
	if p.Occurrences != 4 || p.Retained != 1 {
		t.Errorf("Occurrences/Retained = %d/%d, want 4/1", p.Occurrences, p.Retained)
	}

	a.Release("p", 1)
	if _, ok := a.Get("p"); ok {
		t.Error("pattern should be removed once nothing is retained")
	}
	if a.Len() != 0 {
		t.Errorf("Len = %d, want 0", a.Len())
	}

	a.Release("missing", 1)
}

func TestPatternAnalyzer_ConcurrentUpsertMonotonic(t *testing.T) {
	a := NewPatternAnalyzer()
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				a.Upsert("hot", CategorySystem, "disk full", "", t0)
			}
		}()
	}
	wg.Wait()

	if p, _ := a.Get("hot"); p.Occurrences != 1000 {
		t.Errorf("Occurrences = %d, want 1000", p.Occurrences)
	}
}

func TestPatternAnalyzer_AllOrdering(t *testing.T) {
	a := NewPatternAnalyzer()
	a.Upsert("b", CategoryApplication, "b", "", t0)
	for range 3 {
		a.Upsert("a", CategoryApplication, "a", "", t0)
	}
	a.Upsert("c", CategoryApplication, "c", "", t0)

	var keys []string
	for _, p := range a.All() {
		keys = append(keys, p.Pattern)
	}
	if !slices.Equal(keys, []string{"a", "b", "c"}) {
		t.Errorf("All() order = %v, want [a b c]", keys)
	}
}

func spread(n int, from time.Time, span time.Duration) []time.Time {
	out := make([]time.Time, n)
	for i := range n {
		if n > 1 {
			out[i] = from.Add(span * time.Duration(i) / time.Duration(n-1))
		} else {
			out[i] = from
		}
	}
	return out
}

func TestTrendOf(t *testing.T) {
	// First half occupies [t0, t0+10m], second half [t0+50m, t0+60m].
	halves := func(first, second int) []time.Time {
		return append(spread(first, t0, 10*time.Minute), spread(second, t0.Add(50*time.Minute), 10*time.Minute)...)
	}

	tests := []struct {
		name  string
		times []time.Time
		want  Trend
	}{
		{"rising", halves(2, 5), TrendIncreasing},
		{"flat", halves(5, 5), TrendStable},
		{"falling", halves(5, 2), TrendDecreasing},
		{"single", []time.Time{t0}, TrendUnknown},
		{"none", nil, TrendUnknown},
		{"simultaneous", []time.Time{t0, t0, t0}, TrendStable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TrendOf(tt.times); got != tt.want {
				t.Errorf("TrendOf = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTrendFromCounts(t *testing.T) {
	tests := []struct {
		first, second int
		want          Trend
	}{
		{2, 5, TrendIncreasing},
		{5, 5, TrendStable},
		{5, 2, TrendDecreasing},
		{10, 12, TrendStable},
		{10, 13, TrendIncreasing},
		{10, 8, TrendStable},
		{10, 7, TrendDecreasing},
		{0, 0, TrendStable},
		{0, 1, TrendIncreasing},
	}
	for _, tt := range tests {
		if got := TrendFromCounts(tt.first, tt.second); got != tt.want {
			t.Errorf("TrendFromCounts(%d, %d) = %q, want %q", tt.first, tt.second, got, tt.want)
		}
	}
}
