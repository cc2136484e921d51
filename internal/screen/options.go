// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package screen

import (
	"log/slog"
	"time"

	"github.com/aibor/otter/internal/wait"
)

// Option configures a [Channel].
type Option func(*Channel)

// WithLogger sets the logger capture failures are reported to.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Channel) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock sets the time source used by waits and [Channel.Settle].
func WithClock(clock wait.Clock) Option {
	return func(c *Channel) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithDefaultTimeout sets the timeout of waits that do not specify one.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Channel) {
		c.timeout = d
	}
}

// WithDefaultPollInterval sets the poll interval of waits that do not
// specify one.
func WithDefaultPollInterval(d time.Duration) Option {
	return func(c *Channel) {
		c.pollInterval = d
	}
}

// WaitOption configures a single [Channel.WaitFor] call.
type WaitOption func(*waitOptions)

type waitOptions struct {
	timeout      time.Duration
	pollInterval time.Duration
}

// Timeout overrides the timeout for a single wait. Zero or less waits
// indefinitely.
func Timeout(d time.Duration) WaitOption {
	return func(o *waitOptions) {
		o.timeout = d
	}
}

// PollInterval overrides the poll interval for a single wait.
func PollInterval(d time.Duration) WaitOption {
	return func(o *waitOptions) {
		o.pollInterval = d
	}
}
