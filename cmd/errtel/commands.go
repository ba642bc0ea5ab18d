// commands.go defines the subcommands.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strongdm/errtel/pkg/errtel"
	"github.com/strongdm/errtel/pkg/errtel/export"
)

func newReplayCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Ingest the input and summarize what was stored",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(cmd *cobra.Command, s *session) error {
			sum := replaySummary{
				replayResult: s.replay,
				Stored:       s.svc.Engine().Len(),
				Patterns:     len(s.svc.Engine().Patterns()),
			}
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), sum)
			}
			renderReplay(cmd.OutOrStdout(), sum)
			return nil
		}),
	}
}

type replaySummary struct {
	replayResult
	Stored   int `json:"stored"`
	Patterns int `json:"patterns"`
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print error statistics for the window",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(cmd *cobra.Command, s *session) error {
			stats := s.svc.GetErrorStatistics(cmd.Context(), s.start, s.end)
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), stats)
			}
			renderStats(cmd.OutOrStdout(), stats)
			return nil
		}),
	}
}

func newFrequentCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "frequent",
		Short: "List the most frequent error patterns",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(cmd *cobra.Command, s *session) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}
			summaries := s.svc.GetFrequentErrors(cmd.Context(), s.start, s.end, limit)
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), summaries)
			}
			renderFrequent(cmd.OutOrStdout(), summaries)
			return nil
		}),
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", errtel.DefaultFrequentLimit, "maximum number of patterns")
	return cmd
}

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Analyze error patterns and assess risk",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(cmd *cobra.Command, s *session) error {
			analysis := s.svc.AnalyzeErrorPatterns(cmd.Context(), s.start, s.end)
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), analysis)
			}
			renderAnalysis(cmd.OutOrStdout(), analysis)
			return nil
		}),
	}
}

func newDiagnosticsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "diagnostics",
		Short: "Collect a diagnostic snapshot of this process",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(cmd *cobra.Command, s *session) error {
			info := s.svc.CollectDiagnosticInfo(cmd.Context())
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), info)
			}
			renderDiagnostics(cmd.OutOrStdout(), info)
			return nil
		}),
	}
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write stored records to a JSON, CSV, or XML file",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(cmd *cobra.Command, s *session) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			if err := s.svc.ExportErrorReports(cmd.Context(), out, f, s.start, s.end); err != nil {
				return err
			}
			s.log.InfoContext(cmd.Context(), "export written", "path", out, "format", f)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&format, "format", "f", string(export.FormatJSON), "output format: json, csv, or xml")
	cmd.Flags().StringVarP(&out, "out", "o", "", "destination file")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
