// root.go defines the root command, its shared flags, and the per-invocation
// session every subcommand runs against.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/strongdm/errtel/pkg/errtel/config"
	"github.com/strongdm/errtel/pkg/errtel/service"
)

type rootOptions struct {
	configPath string
	envFile    string
	logFormat  string
	logLevel   string
	input      string
	start      string
	end        string
	jsonOut    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "errtel",
		Short: "Replay failure reports and inspect error telemetry",
		Long: `errtel feeds a JSON-lines file of failure reports through the in-memory
error telemetry engine (deduplication, classification, retention caps) and
reports on the result.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadDotEnv(opts.envFile)
		},
	}

	f := cmd.PersistentFlags()
	f.StringVarP(&opts.configPath, "config", "c", "", "config file (.yaml, .yml, or .toml)")
	f.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before ERRTEL_* overrides")
	f.StringVar(&opts.logFormat, "log-format", "", "log format: text or json (default: text on a terminal, json otherwise)")
	f.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, or error")
	f.StringVarP(&opts.input, "input", "i", "-", "JSON-lines file of failure reports (- reads stdin)")
	f.StringVar(&opts.start, "start", "", "window start, RFC 3339 (default: earliest stored record)")
	f.StringVar(&opts.end, "end", "", "window end, RFC 3339 (default: latest stored record)")
	f.BoolVar(&opts.jsonOut, "json", false, "print results as JSON")

	cmd.AddCommand(
		newReplayCmd(opts),
		newStatsCmd(opts),
		newFrequentCmd(opts),
		newAnalyzeCmd(opts),
		newDiagnosticsCmd(opts),
		newExportCmd(opts),
	)
	return cmd
}

// loadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// newLogger builds the slog handler named by format. An empty format picks
// text when w is a terminal and JSON otherwise.
func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}
	if format == "" {
		format = "json"
		if isTerminal(w) {
			format = "text"
		}
	}
	hopts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(w, hopts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	default:
		return nil, fmt.Errorf("--log-format: unknown format %q", format)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// session is one invocation's service with the input already replayed.
type session struct {
	svc    *service.Service
	log    *slog.Logger
	start  *time.Time
	end    *time.Time
	replay replayResult
}

// run wraps a subcommand body: it opens a session, runs fn, and stops the
// service afterwards.
func (o *rootOptions) run(fn func(cmd *cobra.Command, s *session) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		s, err := o.open(cmd)
		if err != nil {
			return err
		}
		defer func() {
			if stopErr := s.svc.Stop(context.WithoutCancel(cmd.Context())); stopErr != nil {
				err = errors.Join(err, stopErr)
			}
		}()
		return fn(cmd, s)
	}
}

func (o *rootOptions) open(cmd *cobra.Command) (*session, error) {
	ctx := cmd.Context()
	logger, err := newLogger(cmd.ErrOrStderr(), o.logFormat, o.logLevel)
	if err != nil {
		return nil, err
	}

	cfg := config.Default()
	if o.configPath != "" {
		if cfg, err = config.Load(o.configPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	start, err := parseTime("--start", o.start)
	if err != nil {
		return nil, err
	}
	end, err := parseTime("--end", o.end)
	if err != nil {
		return nil, err
	}

	svc, err := service.New(service.WithConfig(cfg), service.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	in, closeIn, err := openInput(cmd.InOrStdin(), o.input)
	if err != nil {
		_ = svc.Stop(ctx)
		return nil, err
	}
	defer closeIn()

	res, err := replay(ctx, svc, in, logger)
	if err != nil {
		_ = svc.Stop(ctx)
		return nil, fmt.Errorf("replay %s: %w", o.input, err)
	}
	logger.DebugContext(ctx, "replay complete", "lines", res.Lines, "accepted", res.Accepted, "rejected", res.Rejected)

	return &session{svc: svc, log: logger, start: start, end: end, replay: res}, nil
}

func openInput(stdin io.Reader, path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func parseTime(flag, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", flag, err)
	}
	return &t, nil
}
