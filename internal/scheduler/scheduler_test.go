package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeperRunsImmediatelyAndOnTicks(t *testing.T) {
	runs := NewMemoryRunStore()
	s := New(runs)

	var calls atomic.Int32
	s.Register("missiles", 20*time.Millisecond, func(ctx context.Context) (int, int, error) {
		calls.Add(1)
		return 2, 0, nil
	})

	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)

	last, err := runs.LastRun(context.Background(), "missiles")
	require.NoError(t, err)
	assert.Equal(t, 2, last.Processed)
	assert.Zero(t, last.Failed)
	assert.Empty(t, last.Error)
}

func TestSweeperRecordsErrors(t *testing.T) {
	runs := NewMemoryRunStore()
	s := New(runs)

	s.Register("votes", time.Hour, func(ctx context.Context) (int, int, error) {
		return 0, 0, errors.New("store unreachable")
	})
	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool {
		last, err := runs.LastRun(context.Background(), "votes")
		return err == nil && last.Error == "store unreachable"
	}, time.Second, 5*time.Millisecond)
}

func TestSweeperRecoversFromPanic(t *testing.T) {
	runs := NewMemoryRunStore()
	s := New(runs)

	var calls atomic.Int32
	s.Register("missions", 20*time.Millisecond, func(ctx context.Context) (int, int, error) {
		calls.Add(1)
		panic("boom")
	})
	s.Start(context.Background())
	defer s.Stop()

	// The loop survives the panic and keeps ticking.
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	last, err := runs.LastRun(context.Background(), "missions")
	require.NoError(t, err)
	assert.Contains(t, last.Error, "boom")
}

func TestStopWaitsForSweepers(t *testing.T) {
	runs := NewMemoryRunStore()
	s := New(runs)

	s.Register("battery_cooldowns", 10*time.Millisecond, func(ctx context.Context) (int, int, error) {
		return 0, 0, nil
	})
	s.Start(context.Background())
	s.Stop()

	// After Stop returns, no further runs are recorded.
	before, err := runs.LastRun(context.Background(), "battery_cooldowns")
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	after, err := runs.LastRun(context.Background(), "battery_cooldowns")
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)
}

func TestLastRunUnknownFamily(t *testing.T) {
	runs := NewMemoryRunStore()
	_, err := runs.LastRun(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrNoRuns)
}

func TestFamilies(t *testing.T) {
	s := New(NewMemoryRunStore())
	s.Register("missiles", time.Minute, nil)
	s.Register("votes", time.Minute, nil)
	assert.Equal(t, []string{"missiles", "votes"}, s.Families())
}
