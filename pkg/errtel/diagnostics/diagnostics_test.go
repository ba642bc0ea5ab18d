package diagnostics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongdm/errtel/pkg/errtel"
)

func TestCollect_RedactsSensitiveEnvironment(t *testing.T) {
	t.Setenv("API_SECRET_TOKEN", "hunter2-value")
	t.Setenv("ERRTEL_PLAIN_SETTING", "visible")

	info := NewCollector(nil).Collect(context.Background())

	require.NotNil(t, info.Environment)
	assert.Equal(t, errtel.RedactionMarker, info.Environment["API_SECRET_TOKEN"])
	assert.Equal(t, "visible", info.Environment["ERRTEL_PLAIN_SETTING"])

	raw, err := json.Marshal(info)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "hunter2-value")
}

func TestRedactEnvironment_CustomTerms(t *testing.T) {
	env := RedactEnvironment([]string{"DB_DSN=postgres://u:p@h/db", "PASSWORD=x", "EMPTY=", "=bogus"}, []string{"dsn"})

	assert.Equal(t, errtel.RedactionMarker, env["DB_DSN"])
	assert.Equal(t, "x", env["PASSWORD"], "only configured terms redact")
	assert.Equal(t, "", env["EMPTY"])
	assert.NotContains(t, env, "")
}

func TestCollect_AllSectionsPresent(t *testing.T) {
	engine := errtel.New()
	_, err := engine.ReportMessage(context.Background(), "digest me")
	require.NoError(t, err)

	info := NewCollector(engine, WithVersion("1.2.3")).Collect(context.Background())

	assert.Empty(t, info.Omitted)
	require.NotNil(t, info.Application)
	assert.Equal(t, "1.2.3", info.Application.Version)
	assert.NotEmpty(t, info.Application.Args)
	require.NotNil(t, info.System)
	assert.NotEmpty(t, info.System.RuntimeVersion)
	require.NotNil(t, info.Performance)
	assert.Positive(t, info.Performance.Goroutines)
	assert.NotEmpty(t, info.Performance.HeapAllocHuman)
	assert.NotEmpty(t, info.Components)
	require.NotNil(t, info.Network)
	require.NotNil(t, info.Errors)
	assert.Equal(t, 1, info.Errors.Stored)
	assert.Equal(t, 1, info.Errors.LastHour)
	assert.Equal(t, 1, info.Errors.LastDay)
	require.Len(t, info.Errors.Recent, 1)
	assert.Equal(t, "digest me", info.Errors.Recent[0].Message)
}

func TestCollect_ErrorDigestWindows(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	engine := errtel.New(errtel.WithClock(func() time.Time { return now }))
	ctx := context.Background()
	for i, age := range []time.Duration{10 * time.Minute, 2 * time.Hour, 30 * time.Hour, time.Minute, 5 * time.Minute, 20 * time.Minute} {
		_, err := engine.Report(ctx, errtel.ErrorRecord{
			Message:   "m",
			Severity:  errtel.SeverityError,
			Category:  errtel.CategoryApplication,
			Component: string(rune('a' + i)),
			Timestamp: now.Add(-age),
		})
		require.NoError(t, err)
	}

	info := NewCollector(engine, WithClock(func() time.Time { return now })).Collect(ctx)

	require.NotNil(t, info.Errors)
	assert.Equal(t, 6, info.Errors.Stored)
	assert.Equal(t, 4, info.Errors.LastHour)
	assert.Equal(t, 5, info.Errors.LastDay)
	require.Len(t, info.Errors.Recent, 5)
	assert.Equal(t, now.Add(-time.Minute), info.Errors.Recent[0].Timestamp)
}

func TestCollect_FailingSectionIsOmitted(t *testing.T) {
	var logs bytes.Buffer
	metrics := errtel.NewMetrics(nil)
	c := NewCollector(nil,
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
		WithMetrics(metrics),
	)
	c.sections = append(c.sections,
		section{"broken", func(context.Context) (func(*DiagnosticInfo), error) {
			return nil, errors.New("disk on fire")
		}},
		section{"panicky", func(context.Context) (func(*DiagnosticInfo), error) {
			panic("collector bug")
		}},
	)

	info := c.Collect(context.Background())

	assert.ElementsMatch(t, []string{"broken", "panicky"}, info.Omitted)
	assert.NotNil(t, info.Application, "other sections must survive")
	assert.NotNil(t, info.Performance)
	assert.Contains(t, logs.String(), "disk on fire")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CollectorFailures.WithLabelValues("broken")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CollectorFailures.WithLabelValues("panicky")))
}

func TestCollect_SlowSectionIsTimeBounded(t *testing.T) {
	c := NewCollector(nil, WithCollectorTimeout(50*time.Millisecond))
	release := make(chan struct{})
	defer close(release)
	c.sections = append(c.sections, section{"slow", func(ctx context.Context) (func(*DiagnosticInfo), error) {
		<-release
		return func(*DiagnosticInfo) {}, nil
	}})

	start := time.Now()
	info := c.Collect(context.Background())

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Contains(t, info.Omitted, "slow")
	assert.NotNil(t, info.Application)
}

func TestCollect_ProbesTargets(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	info := NewCollector(nil, WithProbeTargets(ln.Addr().String())).Collect(context.Background())

	require.NotNil(t, info.Network)
	require.Len(t, info.Network.Probes, 1)
	assert.True(t, info.Network.Probes[0].Reachable, info.Network.Probes[0].Error)
}
