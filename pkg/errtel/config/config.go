// Package config loads engine configuration from YAML or TOML files and
// ERRTEL_* environment variables, validates it, and converts it to engine,
// diagnostics, and sink options.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/strongdm/errtel/pkg/errtel"
	"github.com/strongdm/errtel/pkg/errtel/diagnostics"
	"github.com/strongdm/errtel/pkg/errtel/sinks/async"
	"github.com/strongdm/errtel/pkg/errtel/sinks/noop"
	"github.com/strongdm/errtel/pkg/errtel/sinks/stderr"
)

// Duration is a time.Duration written as a Go duration string ("6h").
type Duration time.Duration

// UnmarshalText parses a duration string. TOML and environment values use it.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText renders the duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalYAML parses a duration string node.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// MarshalYAML renders the duration string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the full engine configuration.
type Config struct {
	AppVersion  string            `yaml:"app_version" toml:"app_version"`
	Store       StoreConfig       `yaml:"store" toml:"store"`
	Scrubbing   ScrubbingConfig   `yaml:"scrubbing" toml:"scrubbing"`
	Sink        SinkConfig        `yaml:"sink" toml:"sink"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics" toml:"diagnostics"`
}

// StoreConfig bounds the in-memory store.
type StoreConfig struct {
	MaxPerHash      int      `yaml:"max_per_hash" toml:"max_per_hash" validate:"gte=1"`
	MaxTotal        int      `yaml:"max_total" toml:"max_total" validate:"gte=1"`
	RetentionPeriod Duration `yaml:"retention_period" toml:"retention_period" validate:"gt=0"`
	CleanupInterval Duration `yaml:"cleanup_interval" toml:"cleanup_interval" validate:"gt=0"`
}

// ScrubbingConfig controls ingestion-time redaction.
type ScrubbingConfig struct {
	Enabled        bool     `yaml:"enabled" toml:"enabled"`
	SensitiveTerms []string `yaml:"sensitive_terms" toml:"sensitive_terms" validate:"dive,required"`
}

// SinkConfig selects the downstream sink.
type SinkConfig struct {
	Type      string `yaml:"type" toml:"type" validate:"oneof=noop stderr"`
	Verbose   bool   `yaml:"verbose" toml:"verbose"`
	Async     bool   `yaml:"async" toml:"async"`
	QueueSize int    `yaml:"queue_size" toml:"queue_size" validate:"gte=0"`
}

// DiagnosticsConfig configures snapshot collection.
type DiagnosticsConfig struct {
	SensitiveTerms   []string `yaml:"sensitive_terms" toml:"sensitive_terms" validate:"dive,required"`
	ProbeTargets     []string `yaml:"probe_targets" toml:"probe_targets" validate:"dive,hostname_port"`
	CollectorTimeout Duration `yaml:"collector_timeout" toml:"collector_timeout" validate:"gt=0"`
}

// Default returns the configuration matching the engine defaults.
func Default() Config {
	return Config{
		Store: StoreConfig{
			MaxPerHash:      errtel.DefaultMaxPerHash,
			MaxTotal:        errtel.DefaultMaxTotal,
			RetentionPeriod: Duration(errtel.DefaultRetentionPeriod),
			CleanupInterval: Duration(errtel.DefaultCleanupInterval),
		},
		Scrubbing: ScrubbingConfig{
			Enabled:        true,
			SensitiveTerms: errtel.DefaultScrubberConfig().SensitiveTerms,
		},
		Sink: SinkConfig{Type: "noop", QueueSize: 1000},
		Diagnostics: DiagnosticsConfig{
			SensitiveTerms:   errtel.DefaultSensitiveTerms,
			CollectorTimeout: Duration(diagnostics.DefaultCollectorTimeout),
		},
	}
}

// Load reads path over the defaults. The format is chosen by extension:
// .yaml/.yml or .toml.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse yaml config %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return cfg, fmt.Errorf("parse toml config %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("config %s: unsupported extension %q", path, ext)
	}
	return cfg, nil
}

// Environment variable names read by ApplyEnv.
const (
	EnvAppVersion       = "ERRTEL_APP_VERSION"
	EnvMaxPerHash       = "ERRTEL_MAX_PER_HASH"
	EnvMaxTotal         = "ERRTEL_MAX_TOTAL"
	EnvRetentionPeriod  = "ERRTEL_RETENTION_PERIOD"
	EnvCleanupInterval  = "ERRTEL_CLEANUP_INTERVAL"
	EnvScrubbing        = "ERRTEL_SCRUBBING"
	EnvSensitiveTerms   = "ERRTEL_SENSITIVE_TERMS"
	EnvSink             = "ERRTEL_SINK"
	EnvSinkAsync        = "ERRTEL_SINK_ASYNC"
	EnvProbeTargets     = "ERRTEL_PROBE_TARGETS"
	EnvCollectorTimeout = "ERRTEL_COLLECTOR_TIMEOUT"
)

// ApplyEnv overlays ERRTEL_* variables from the process environment.
func (c *Config) ApplyEnv() error {
	return c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	list := func(name string, dst *[]string) {
		if v, ok := lookup(name); ok {
			*dst = splitList(v)
		}
	}
	integer := func(name string, dst *int) error {
		v, ok := lookup(name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = n
		return nil
	}
	boolean := func(name string, dst *bool) error {
		v, ok := lookup(name)
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = b
		return nil
	}
	duration := func(name string, dst *Duration) error {
		v, ok := lookup(name)
		if !ok {
			return nil
		}
		if err := dst.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}

	str(EnvAppVersion, &c.AppVersion)
	str(EnvSink, &c.Sink.Type)
	list(EnvSensitiveTerms, &c.Scrubbing.SensitiveTerms)
	list(EnvProbeTargets, &c.Diagnostics.ProbeTargets)
	for _, err := range []error{
		integer(EnvMaxPerHash, &c.Store.MaxPerHash),
		integer(EnvMaxTotal, &c.Store.MaxTotal),
		duration(EnvRetentionPeriod, &c.Store.RetentionPeriod),
		duration(EnvCleanupInterval, &c.Store.CleanupInterval),
		duration(EnvCollectorTimeout, &c.Diagnostics.CollectorTimeout),
		boolean(EnvScrubbing, &c.Scrubbing.Enabled),
		boolean(EnvSinkAsync, &c.Sink.Async),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field constraint.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// EngineOptions converts the configuration to engine options. The sink is
// not included; build it with NewSink so the caller owns its lifecycle.
func (c Config) EngineOptions() []errtel.Option {
	opts := []errtel.Option{
		errtel.WithMaxPerHash(c.Store.MaxPerHash),
		errtel.WithMaxTotal(c.Store.MaxTotal),
		errtel.WithRetentionPeriod(time.Duration(c.Store.RetentionPeriod)),
		errtel.WithCleanupInterval(time.Duration(c.Store.CleanupInterval)),
		errtel.WithAppVersion(c.AppVersion),
	}
	if c.Scrubbing.Enabled {
		sc := errtel.DefaultScrubberConfig()
		if len(c.Scrubbing.SensitiveTerms) > 0 {
			sc.SensitiveTerms = c.Scrubbing.SensitiveTerms
		}
		opts = append(opts, errtel.WithScrubber(sc))
	}
	return opts
}

// DiagnosticsOptions converts the configuration to collector options.
func (c Config) DiagnosticsOptions() []diagnostics.CollectorOption {
	return []diagnostics.CollectorOption{
		diagnostics.WithSensitiveTerms(c.Diagnostics.SensitiveTerms...),
		diagnostics.WithProbeTargets(c.Diagnostics.ProbeTargets...),
		diagnostics.WithCollectorTimeout(time.Duration(c.Diagnostics.CollectorTimeout)),
		diagnostics.WithVersion(c.AppVersion),
	}
}

// NewSink builds the configured sink.
func (c Config) NewSink() errtel.Sink {
	var sink errtel.Sink
	switch c.Sink.Type {
	case "stderr":
		var opts []stderr.StderrSinkOption
		if c.Sink.Verbose {
			opts = append(opts, stderr.WithVerbose())
		}
		sink = stderr.NewStderrSink(opts...)
	default:
		return noop.NewNoopSink()
	}
	if c.Sink.Async {
		sink = async.NewAsyncSink(sink, async.WithQueueSize(c.Sink.QueueSize))
	}
	return sink
}
