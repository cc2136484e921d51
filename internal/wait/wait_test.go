// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wait_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aibor/otter/internal/wait"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func flagProbe(flag *atomic.Bool) wait.Probe[bool] {
	return func(context.Context) (bool, error) {
		return flag.Load(), nil
	}
}

func isTrue(b bool) bool { return b }

func TestFor(t *testing.T) {
	tests := []struct {
		name          string
		appearsAfter  time.Duration
		timeout       time.Duration
		pollInterval  time.Duration
		expectedOK    bool
		expectedTime  time.Duration
		expectedPolls int
		expectedSleep []time.Duration
	}{
		{
			name:          "immediately satisfied",
			appearsAfter:  0,
			timeout:       10 * time.Second,
			pollInterval:  time.Second,
			expectedOK:    true,
			expectedTime:  0,
			expectedPolls: 1,
		},
		{
			name:          "satisfied after three seconds",
			appearsAfter:  3 * time.Second,
			timeout:       10 * time.Second,
			pollInterval:  time.Second,
			expectedOK:    true,
			expectedTime:  3 * time.Second,
			expectedPolls: 4,
			expectedSleep: []time.Duration{time.Second, time.Second, time.Second},
		},
		{
			name:          "never satisfied",
			appearsAfter:  -1,
			timeout:       5 * time.Second,
			pollInterval:  time.Second,
			expectedOK:    false,
			expectedTime:  5 * time.Second,
			expectedPolls: 6,
			expectedSleep: []time.Duration{
				time.Second, time.Second, time.Second, time.Second, time.Second,
			},
		},
		{
			name:          "last sleep clipped to deadline",
			appearsAfter:  -1,
			timeout:       2500 * time.Millisecond,
			pollInterval:  time.Second,
			expectedOK:    false,
			expectedTime:  2500 * time.Millisecond,
			expectedPolls: 4,
			expectedSleep: []time.Duration{
				time.Second, time.Second, 500 * time.Millisecond,
			},
		},
		{
			name:          "no timeout waits until satisfied",
			appearsAfter:  100 * time.Second,
			timeout:       0,
			pollInterval:  time.Second,
			expectedOK:    true,
			expectedTime:  100 * time.Second,
			expectedPolls: 101,
		},
		{
			name:          "negative timeout waits until satisfied",
			appearsAfter:  7 * time.Second,
			timeout:       -time.Second,
			pollInterval:  time.Second,
			expectedOK:    true,
			expectedTime:  7 * time.Second,
			expectedPolls: 8,
		},
		{
			name:          "poll interval clamped",
			appearsAfter:  20 * time.Millisecond,
			timeout:       time.Second,
			pollInterval:  time.Nanosecond,
			expectedOK:    true,
			expectedTime:  20 * time.Millisecond,
			expectedPolls: 3,
			expectedSleep: []time.Duration{
				wait.MinPollInterval, wait.MinPollInterval,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := wait.NewFakeClock(epoch)

			var flag atomic.Bool

			switch {
			case tt.appearsAfter == 0:
				flag.Store(true)
			case tt.appearsAfter > 0:
				clock.At(tt.appearsAfter, func() { flag.Store(true) })
			}

			outcome := wait.For(t.Context(), flagProbe(&flag), isTrue,
				wait.WithTimeout(tt.timeout),
				wait.WithPollInterval(tt.pollInterval),
				wait.WithClock(clock),
			)

			assert.Equal(t, tt.expectedOK, outcome.OK, "ok")
			assert.Equal(t, tt.expectedTime, outcome.Elapsed, "elapsed")
			assert.Equal(t, tt.expectedPolls, outcome.Polls, "polls")
			require.NoError(t, outcome.Err)

			if tt.expectedSleep != nil {
				assert.Equal(t, tt.expectedSleep, clock.Sleeps())
			}
		})
	}
}

func TestForProbeErrors(t *testing.T) {
	t.Run("ignored by default", func(t *testing.T) {
		clock := wait.NewFakeClock(epoch)
		calls := 0

		probe := func(context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", assert.AnError
			}

			return "login:", nil
		}

		outcome := wait.For(t.Context(), probe,
			func(s string) bool { return s == "login:" },
			wait.WithTimeout(10*time.Second),
			wait.WithClock(clock),
		)

		assert.True(t, outcome.OK)
		assert.Equal(t, 2*time.Second, outcome.Elapsed)
		assert.NoError(t, outcome.Err)
	})

	t.Run("ignored errors never satisfy", func(t *testing.T) {
		clock := wait.NewFakeClock(epoch)
		probe := func(context.Context) (bool, error) {
			return true, assert.AnError
		}

		outcome := wait.For(t.Context(), probe, isTrue,
			wait.WithTimeout(3*time.Second),
			wait.WithClock(clock),
		)

		assert.False(t, outcome.OK)
		assert.Equal(t, 3*time.Second, outcome.Elapsed)
		assert.NoError(t, outcome.Err)
	})

	t.Run("fail fast", func(t *testing.T) {
		clock := wait.NewFakeClock(epoch)
		probe := func(context.Context) (bool, error) {
			return false, assert.AnError
		}

		outcome := wait.For(t.Context(), probe, isTrue,
			wait.WithTimeout(3*time.Second),
			wait.WithFailFast(),
			wait.WithClock(clock),
		)

		assert.False(t, outcome.OK)
		assert.Equal(t, 1, outcome.Polls)
		assert.Equal(t, time.Duration(0), outcome.Elapsed)
		require.ErrorIs(t, outcome.Err, assert.AnError)
	})
}

func TestForContextCancel(t *testing.T) {
	clock := wait.NewFakeClock(epoch)
	ctx, cancel := context.WithCancel(t.Context())

	defer cancel()

	clock.At(4*time.Second, cancel)

	var flag atomic.Bool

	outcome := wait.For(ctx, flagProbe(&flag), isTrue,
		wait.WithClock(clock),
	)

	assert.False(t, outcome.OK)
	require.ErrorIs(t, outcome.Err, context.Canceled)
	assert.Equal(t, 4*time.Second, outcome.Elapsed)
}

func TestForRealClock(t *testing.T) {
	var flag atomic.Bool

	timeout := 50 * time.Millisecond
	pollInterval := 10 * time.Millisecond

	outcome := wait.For(t.Context(), flagProbe(&flag), isTrue,
		wait.WithTimeout(timeout),
		wait.WithPollInterval(pollInterval),
	)

	assert.False(t, outcome.OK)
	assert.GreaterOrEqual(t, outcome.Elapsed, timeout)
	assert.Less(t, outcome.Elapsed, timeout+pollInterval+time.Second)
}

func TestOutcomeCheck(t *testing.T) {
	tests := []struct {
		name     string
		outcome  wait.Outcome
		expected error
	}{
		{
			name:    "ok",
			outcome: wait.Outcome{OK: true},
		},
		{
			name:     "timeout",
			outcome:  wait.Outcome{Elapsed: time.Second},
			expected: wait.ErrTimeout,
		},
		{
			name:     "probe error",
			outcome:  wait.Outcome{Err: assert.AnError},
			expected: assert.AnError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.outcome.Check("prompt")
			if tt.expected == nil {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, tt.expected)
			assert.Contains(t, err.Error(), "prompt")
			assert.False(t, errors.Is(err, context.Canceled))
		})
	}
}
