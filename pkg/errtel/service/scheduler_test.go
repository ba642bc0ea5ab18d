package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongdm/errtel/pkg/errtel"
)

type countingSweeper struct {
	runs  atomic.Int32
	panic bool
}

func (s *countingSweeper) Cleanup(ctx context.Context) errtel.SweepResult {
	n := s.runs.Add(1)
	if s.panic {
		panic("sweep exploded")
	}
	return errtel.SweepResult{Expired: int(n)}
}

func TestRetentionScheduler_RunsOnInterval(t *testing.T) {
	sweeper := &countingSweeper{}
	s := NewRetentionScheduler(sweeper, time.Second, nil)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	t.Cleanup(func() { _ = s.Stop(ctx) })

	assert.Eventually(t, func() bool { return sweeper.runs.Load() >= 2 }, 5*time.Second, 50*time.Millisecond)
	assert.Positive(t, s.LastRun().Expired)

	require.NoError(t, s.Stop(ctx))
	after := sweeper.runs.Load()
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, after, sweeper.runs.Load(), "no sweeps after Stop")
}

func TestRetentionScheduler_SurvivesPanickingSweep(t *testing.T) {
	sweeper := &countingSweeper{panic: true}
	s := NewRetentionScheduler(sweeper, time.Second, nil)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	t.Cleanup(func() { _ = s.Stop(ctx) })

	assert.Eventually(t, func() bool { return sweeper.runs.Load() >= 2 }, 5*time.Second, 50*time.Millisecond)
	assert.True(t, s.Running())
}

func TestRetentionScheduler_StartTwice(t *testing.T) {
	s := NewRetentionScheduler(&countingSweeper{}, time.Hour, nil)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	assert.ErrorIs(t, s.Start(ctx), ErrSchedulerRunning)
	require.NoError(t, s.Stop(ctx))

	// A stopped scheduler can be restarted, and stopping twice is harmless.
	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx))
	assert.True(t, s.Next().IsZero())
}

func TestRetentionScheduler_SweepsEngine(t *testing.T) {
	clock := newFakeClock()
	engine := errtel.New(errtel.WithClock(clock.Now), errtel.WithRetentionPeriod(time.Second))
	_, err := engine.ReportMessage(context.Background(), "short lived")
	require.NoError(t, err)
	clock.Advance(2 * time.Second)

	s := NewRetentionScheduler(engine, time.Second, nil)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	assert.Eventually(t, func() bool { return engine.Len() == 0 }, 5*time.Second, 50*time.Millisecond)
}
