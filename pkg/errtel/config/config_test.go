package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongdm/errtel/pkg/errtel"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1000, cfg.Store.MaxPerHash)
	assert.Equal(t, 50000, cfg.Store.MaxTotal)
	assert.Equal(t, 30*24*time.Hour, time.Duration(cfg.Store.RetentionPeriod))
	assert.Equal(t, 6*time.Hour, time.Duration(cfg.Store.CleanupInterval))
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "errtel.yaml", `
app_version: 2.0.1
store:
  max_per_hash: 50
  retention_period: 72h
sink:
  type: stderr
  verbose: true
diagnostics:
  probe_targets: ["localhost:5432"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "2.0.1", cfg.AppVersion)
	assert.Equal(t, 50, cfg.Store.MaxPerHash)
	assert.Equal(t, 50000, cfg.Store.MaxTotal, "unset fields keep defaults")
	assert.Equal(t, 72*time.Hour, time.Duration(cfg.Store.RetentionPeriod))
	assert.Equal(t, "stderr", cfg.Sink.Type)
	assert.True(t, cfg.Sink.Verbose)
	assert.Equal(t, []string{"localhost:5432"}, cfg.Diagnostics.ProbeTargets)
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "errtel.toml", `
app_version = "3.1.0"

[store]
max_total = 200
cleanup_interval = "30m"

[scrubbing]
enabled = false
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "3.1.0", cfg.AppVersion)
	assert.Equal(t, 200, cfg.Store.MaxTotal)
	assert.Equal(t, 30*time.Minute, time.Duration(cfg.Store.CleanupInterval))
	assert.False(t, cfg.Scrubbing.Enabled)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "errtel.json", `{}`))
	assert.ErrorContains(t, err, "unsupported extension")

	_, err = Load(writeFile(t, "bad.yaml", "store:\n  retention_period: forever\n"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvMaxPerHash:      "7",
		EnvRetentionPeriod: "1s",
		EnvSensitiveTerms:  "dsn, cookie ,",
		EnvSink:            "stderr",
		EnvSinkAsync:       "true",
		EnvScrubbing:       "false",
	}
	cfg := Default()
	require.NoError(t, cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))

	assert.Equal(t, 7, cfg.Store.MaxPerHash)
	assert.Equal(t, time.Second, time.Duration(cfg.Store.RetentionPeriod))
	assert.Equal(t, []string{"dsn", "cookie"}, cfg.Scrubbing.SensitiveTerms)
	assert.Equal(t, "stderr", cfg.Sink.Type)
	assert.True(t, cfg.Sink.Async)
	assert.False(t, cfg.Scrubbing.Enabled)
}

func TestApplyEnv_FromProcessEnvironment(t *testing.T) {
	t.Setenv(EnvMaxTotal, "123")
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, 123, cfg.Store.MaxTotal)
}

func TestApplyEnv_RejectsMalformedValues(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(func(k string) (string, bool) {
		if k == EnvMaxTotal {
			return "lots", true
		}
		return "", false
	})
	assert.ErrorContains(t, err, EnvMaxTotal)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"zero per-hash cap": func(c *Config) { c.Store.MaxPerHash = 0 },
		"zero total cap":    func(c *Config) { c.Store.MaxTotal = 0 },
		"zero retention":    func(c *Config) { c.Store.RetentionPeriod = 0 },
		"unknown sink":      func(c *Config) { c.Sink.Type = "kafka" },
		"bad probe target":  func(c *Config) { c.Diagnostics.ProbeTargets = []string{"no-port"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_TotalCapBelowPerHashCap(t *testing.T) {
	cfg := Default()
	cfg.Store.MaxTotal = cfg.Store.MaxPerHash - 1

	assert.NoError(t, cfg.Validate())
}

func TestEngineOptions_ApplyToEngine(t *testing.T) {
	cfg := Default()
	cfg.Store.RetentionPeriod = Duration(time.Hour)
	cfg.Store.CleanupInterval = Duration(time.Minute)

	engine := errtel.New(cfg.EngineOptions()...)

	assert.Equal(t, time.Hour, engine.RetentionPeriod())
	assert.Equal(t, time.Minute, engine.CleanupInterval())
}
