// render.go formats results for the terminal.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/strongdm/errtel/pkg/errtel"
	"github.com/strongdm/errtel/pkg/errtel/diagnostics"
)

var (
	colorPrimary = lipgloss.Color("#20B9B4")
	colorMuted   = lipgloss.Color("#2C4A54")
	colorWarning = lipgloss.Color("#F4D03F")
	colorError   = lipgloss.Color("#E74C3C")

	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	labelStyle   = lipgloss.NewStyle().Foreground(colorMuted)

	severityStyles = map[errtel.Severity]lipgloss.Style{
		errtel.SeverityInfo:     lipgloss.NewStyle().Foreground(colorMuted),
		errtel.SeverityWarning:  lipgloss.NewStyle().Foreground(colorWarning),
		errtel.SeverityError:    lipgloss.NewStyle().Foreground(colorError),
		errtel.SeverityCritical: lipgloss.NewStyle().Bold(true).Foreground(colorError),
	}

	riskStyles = map[errtel.RiskLevel]lipgloss.Style{
		errtel.RiskLow:    lipgloss.NewStyle().Foreground(colorPrimary),
		errtel.RiskMedium: lipgloss.NewStyle().Foreground(colorWarning),
		errtel.RiskHigh:   lipgloss.NewStyle().Bold(true).Foreground(colorError),
	}
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func heading(w io.Writer, title string) {
	fmt.Fprintln(w, headingStyle.Render(title))
}

func field(w io.Writer, label string, value any) {
	fmt.Fprintf(w, "  %s %v\n", labelStyle.Render(label+":"), value)
}

func renderReplay(w io.Writer, s replaySummary) {
	heading(w, "Replay")
	field(w, "Lines", humanize.Comma(int64(s.Lines)))
	field(w, "Accepted", humanize.Comma(int64(s.Accepted)))
	field(w, "Rejected", humanize.Comma(int64(s.Rejected)))
	field(w, "Stored", humanize.Comma(int64(s.Stored)))
	field(w, "Patterns", humanize.Comma(int64(s.Patterns)))
}

func renderStats(w io.Writer, st errtel.ErrorStatistics) {
	heading(w, "Error statistics")
	field(w, "Window", formatWindow(st.StartTime, st.EndTime))
	field(w, "Total", humanize.Comma(int64(st.TotalErrors)))
	field(w, "Rate", humanize.FormatFloat("#,###.##", st.ErrorRatePerHour)+"/h")
	field(w, "Critical", humanize.Comma(int64(st.CriticalErrors)))
	field(w, "Unresolved", humanize.Comma(int64(st.UnresolvedErrors)))

	if len(st.BySeverity) > 0 {
		fmt.Fprintln(w)
		heading(w, "By severity")
		for i := len(errtel.Severities) - 1; i >= 0; i-- {
			sev := errtel.Severities[i]
			if n := st.BySeverity[sev]; n > 0 {
				fmt.Fprintf(w, "  %-10s %s\n", severityStyles[sev].Render(sev.String()), humanize.Comma(int64(n)))
			}
		}
	}
	if len(st.ByCategory) > 0 {
		fmt.Fprintln(w)
		heading(w, "By category")
		for _, c := range errtel.Categories {
			if n := st.ByCategory[c]; n > 0 {
				fmt.Fprintf(w, "  %-18s %s\n", c, humanize.Comma(int64(n)))
			}
		}
	}
	if len(st.ByComponent) > 0 {
		fmt.Fprintln(w)
		heading(w, "By component")
		for _, name := range sortedKeys(st.ByComponent) {
			fmt.Fprintf(w, "  %-18s %s\n", name, humanize.Comma(int64(st.ByComponent[name])))
		}
	}
	if len(st.TopPatterns) > 0 {
		fmt.Fprintln(w)
		heading(w, "Top patterns")
		for _, p := range st.TopPatterns {
			fmt.Fprintf(w, "  %6s  %s %s\n", humanize.Comma(int64(p.Occurrences)), truncate(p.Message, 72), labelStyle.Render("["+string(p.Category)+"]"))
		}
	}
	renderList(w, "Recommendations", st.Recommendations)
}

func renderFrequent(w io.Writer, summaries []errtel.FrequentErrorSummary) {
	heading(w, "Frequent errors")
	if len(summaries) == 0 {
		fmt.Fprintln(w, labelStyle.Render("  none"))
		return
	}
	for i, s := range summaries {
		status := ""
		if s.IsResolved {
			status = labelStyle.Render(" (resolved)")
		}
		fmt.Fprintf(w, "%2d. %s %s%s\n", i+1, severityStyles[s.Severity].Render(s.Severity.String()), truncate(s.Message, 72), status)
		field(w, "  Occurrences", fmt.Sprintf("%s (lifetime %s)", humanize.Comma(int64(s.Occurrences)), humanize.Comma(s.LifetimeOccurrences)))
		field(w, "  Trend", s.Trend)
		field(w, "  Last seen", humanize.Time(s.LastSeen))
		if len(s.AffectedComponents) > 0 {
			field(w, "  Components", strings.Join(s.AffectedComponents, ", "))
		}
	}
}

func renderAnalysis(w io.Writer, a errtel.PatternAnalysis) {
	heading(w, "Pattern analysis")
	field(w, "Window", formatWindow(a.StartTime, a.EndTime))
	field(w, "Patterns", humanize.Comma(int64(len(a.Patterns))))
	risk := a.RiskAssessment
	field(w, "Risk", fmt.Sprintf("%s (score %d)", riskStyles[risk.Level].Render(string(risk.Level)), risk.Score))
	renderList(w, "Risk factors", risk.Factors)
	renderList(w, "Key insights", a.KeyInsights)
	renderList(w, "Recommendations", a.Recommendations)
}

func renderDiagnostics(w io.Writer, d diagnostics.DiagnosticInfo) {
	heading(w, "Diagnostics")
	field(w, "Collected", d.CollectedAt.Format(time.RFC3339))
	if app := d.Application; app != nil {
		field(w, "Uptime", app.Uptime)
		if app.Version != "" {
			field(w, "Version", app.Version)
		}
	}
	if sys := d.System; sys != nil {
		field(w, "Host", sys.HostName)
		field(w, "OS", sys.OSVersion)
		field(w, "Runtime", sys.RuntimeVersion)
		field(w, "CPUs", sys.NumCPU)
	}
	if p := d.Performance; p != nil {
		field(w, "Goroutines", humanize.Comma(int64(p.Goroutines)))
		field(w, "Heap", p.HeapAllocHuman)
		field(w, "GC runs", humanize.Comma(int64(p.NumGC)))
	}
	if n := d.Network; n != nil {
		field(w, "Interfaces", len(n.Interfaces))
	}
	if e := d.Errors; e != nil {
		field(w, "Stored errors", humanize.Comma(int64(e.Stored)))
		field(w, "Last hour", humanize.Comma(int64(e.LastHour)))
		field(w, "Last day", humanize.Comma(int64(e.LastDay)))
	}
	if len(d.Omitted) > 0 {
		field(w, "Omitted", strings.Join(d.Omitted, ", "))
	}
}

func renderList(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintln(w)
	heading(w, title)
	for _, it := range items {
		fmt.Fprintf(w, "  - %s\n", it)
	}
}

func formatWindow(start, end time.Time) string {
	if start.IsZero() && end.IsZero() {
		return "empty"
	}
	return fmt.Sprintf("%s to %s (%s)", start.Format(time.RFC3339), end.Format(time.RFC3339), end.Sub(start).Round(time.Second))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
