package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// mockRunner counts rescan invocations and optionally fails them
type mockRunner struct {
	calls     atomic.Int64
	shouldErr atomic.Bool
}

func (m *mockRunner) Rescan(ctx context.Context) error {
	m.calls.Add(1)
	if m.shouldErr.Load() {
		return errors.New("rescan failed")
	}
	return nil
}

func TestNewIntervalScheduler(t *testing.T) {
	runner := &mockRunner{}

	s, err := NewIntervalScheduler(time.Second, runner)
	require.NoError(t, err)
	require.NotNil(t, s)

	_, err = NewIntervalScheduler(0, runner)
	require.Error(t, err, "zero interval must be rejected")

	_, err = NewIntervalScheduler(time.Second, nil)
	require.Error(t, err, "nil runner must be rejected")
}

// TestIntervalSchedulerRuns tests that rescans fire on the interval
func TestIntervalSchedulerRuns(t *testing.T) {
	runner := &mockRunner{}
	s, err := NewIntervalScheduler(20*time.Millisecond, runner)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool {
		return runner.calls.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond, "expected at least 2 rescans")

	status := s.Status()
	require.True(t, status.Running)
	require.GreaterOrEqual(t, status.SuccessfulRuns, 2)
	require.Empty(t, status.LastError)
}

// TestIntervalSchedulerCountsFailures tests failure accounting
func TestIntervalSchedulerCountsFailures(t *testing.T) {
	runner := &mockRunner{}
	runner.shouldErr.Store(true)

	s, err := NewIntervalScheduler(20*time.Millisecond, runner)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool {
		return s.Status().FailedRuns >= 1
	}, 2*time.Second, 5*time.Millisecond)

	require.Equal(t, "rescan failed", s.Status().LastError)
}

// TestIntervalSchedulerStop tests idempotent stop and no-restart
func TestIntervalSchedulerStop(t *testing.T) {
	runner := &mockRunner{}
	s, err := NewIntervalScheduler(10*time.Millisecond, runner)
	require.NoError(t, err)

	require.Error(t, s.Stop(), "stopping before start must fail")

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
	require.False(t, s.Status().Running)

	require.Error(t, s.Start(context.Background()), "restart after stop must fail")
}

// TestIntervalSchedulerContextCancel tests that context cancellation
// terminates the loop
func TestIntervalSchedulerContextCancel(t *testing.T) {
	runner := &mockRunner{}
	s, err := NewIntervalScheduler(10*time.Millisecond, runner)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()

	require.Eventually(t, func() bool {
		return !s.Status().Running
	}, 2*time.Second, 5*time.Millisecond)
}
