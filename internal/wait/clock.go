// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wait

import (
	"context"
	"sync"
	"time"
)

// Clock is the time source used by [For].
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep blocks for the given duration or until the context is done. It
	// returns the context error in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// RealClock is the [Clock] backed by the [time] package.
var RealClock Clock = realClock{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// FakeClock is a [Clock] that never blocks. Sleep advances the clock by the
// requested duration immediately. Hooks registered with [FakeClock.At] run
// once the clock reaches their point in time, which lets tests make an
// observation appear after a given elapsed time.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
	hooks  []fakeHook
}

type fakeHook struct {
	at time.Time
	fn func()
}

// NewFakeClock returns a [FakeClock] starting at the given time.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now implements [Clock].
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

// Sleep implements [Clock].
func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	err := ctx.Err()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()

	c.Advance(d)

	return nil
}

// Advance moves the clock forward and runs all hooks that are due.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)

	var due []func()

	pending := c.hooks[:0]

	for _, hook := range c.hooks {
		if hook.at.After(c.now) {
			pending = append(pending, hook)
			continue
		}

		due = append(due, hook.fn)
	}

	c.hooks = pending
	c.mu.Unlock()

	for _, fn := range due {
		fn()
	}
}

// At registers fn to run once the clock has advanced by at least offset from
// its current time.
func (c *FakeClock) At(offset time.Duration, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hooks = append(c.hooks, fakeHook{at: c.now.Add(offset), fn: fn})
}

// Sleeps returns the durations of all Sleep calls so far.
func (c *FakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]time.Duration(nil), c.sleeps...)
}
