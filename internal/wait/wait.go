// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wait

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrTimeout is returned by [Outcome.Check] if the predicate did not hold
// before the deadline.
var ErrTimeout = errors.New("wait timed out")

// Probe observes the current value of something.
type Probe[T any] func(ctx context.Context) (T, error)

// Outcome is the result of a [For] call.
type Outcome struct {
	// OK is true if the predicate held on an observed value.
	OK bool

	// Elapsed is the time from the start of the wait until the successful
	// observation or the end of the wait.
	Elapsed time.Duration

	// Polls is the number of times the probe was evaluated.
	Polls int

	// Err is the probe error that ended a fail fast wait, or the context
	// error if the wait was cancelled. It is nil on plain timeouts.
	Err error
}

// Check returns nil if the wait succeeded. Otherwise it returns [Outcome.Err]
// or [ErrTimeout], prefixed with the given description.
func (o Outcome) Check(desc string) error {
	switch {
	case o.OK:
		return nil
	case o.Err != nil:
		return fmt.Errorf("%s: %w", desc, o.Err)
	default:
		return fmt.Errorf("%s: %w after %s", desc, ErrTimeout, o.Elapsed)
	}
}

// For evaluates probe until satisfies returns true for the observed value or
// the timeout expires.
//
// A failing probe counts as an absent observation: the predicate is not
// evaluated and polling continues, unless [WithFailFast] is given. The
// deadline is checked after each evaluation, so an instant probe is
// evaluated once more exactly at the deadline. The elapsed time of a timed
// out wait is in the range [timeout, timeout+pollInterval].
func For[T any](
	ctx context.Context,
	probe Probe[T],
	satisfies func(T) bool,
	opts ...Option,
) Outcome {
	o := newOptions(opts)

	start := o.clock.Now()
	deadline := start.Add(o.timeout)

	var outcome Outcome

	for {
		outcome.Polls++

		value, err := probe(ctx)

		switch {
		case err == nil:
			if satisfies(value) {
				outcome.OK = true
				outcome.Elapsed = o.clock.Now().Sub(start)

				return outcome
			}
		case o.failFast:
			outcome.Err = err
			outcome.Elapsed = o.clock.Now().Sub(start)

			return outcome
		default:
			o.logger.Debug("Probe failed",
				slog.String("waiting_for", o.description),
				slog.Int("poll", outcome.Polls),
				slog.Any("error", err),
			)
		}

		now := o.clock.Now()
		outcome.Elapsed = now.Sub(start)

		delay := o.pollInterval

		if o.timeout > 0 {
			remaining := deadline.Sub(now)
			if remaining <= 0 {
				o.logger.Debug("Wait timed out",
					slog.String("waiting_for", o.description),
					slog.Duration("elapsed", outcome.Elapsed),
					slog.Int("polls", outcome.Polls),
				)

				return outcome
			}

			delay = min(delay, remaining)
		}

		err = o.clock.Sleep(ctx, delay)
		if err != nil {
			outcome.Err = err
			outcome.Elapsed = o.clock.Now().Sub(start)

			return outcome
		}
	}
}
