package safety

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestWatchdogConfirmDisarms(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var rolledBack atomic.Bool
	w := NewWatchdog(clock, 300*time.Second, 1800*time.Second, func() error {
		rolledBack.Store(true)
		return nil
	}, nil)

	require.NoError(t, w.Arm())
	require.NoError(t, w.Confirm())

	clock.Advance(400 * time.Second)
	require.False(t, rolledBack.Load())
	require.Equal(t, "confirmed", w.State())
}

func TestWatchdogExpiresAndRollsBack(t *testing.T) {
	clock := clockwork.NewFakeClock()
	done := make(chan error, 1)
	w := NewWatchdog(clock, 10*time.Second, 100*time.Second, func() error {
		return nil
	}, func(err error) { done <- err })

	require.NoError(t, w.Arm())
	clock.Advance(11 * time.Second)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watchdog did not fire")
	}
	require.Equal(t, "expired", w.State())
}

func TestWatchdogCancelRollsBackImmediately(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var rolledBack atomic.Bool
	w := NewWatchdog(clock, 300*time.Second, 1800*time.Second, func() error {
		rolledBack.Store(true)
		return nil
	}, nil)

	require.NoError(t, w.Arm())
	require.NoError(t, w.Cancel())
	require.True(t, rolledBack.Load())
	require.Equal(t, "cancelled", w.State())
}

func TestWatchdogExtendRespectsCap(t *testing.T) {
	clock := clockwork.NewFakeClock()
	w := NewWatchdog(clock, 300*time.Second, 600*time.Second, func() error { return nil }, nil)
	require.NoError(t, w.Arm())

	require.NoError(t, w.Extend(200*time.Second)) // total 500, under 600 cap
	err := w.Extend(200 * time.Second)             // total would be 700
	require.ErrorIs(t, err, ErrWatchdogExtendCap)
}

func TestWatchdogConfirmWithoutArmFails(t *testing.T) {
	clock := clockwork.NewFakeClock()
	w := NewWatchdog(clock, time.Second, time.Second, func() error { return nil }, nil)
	require.ErrorIs(t, w.Confirm(), ErrWatchdogNotArmed)
}

