// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wait

import (
	"log/slog"
	"time"
)

const (
	// DefaultPollInterval is used if no poll interval is given.
	DefaultPollInterval = time.Second

	// MinPollInterval is the lower bound poll intervals are clamped to.
	MinPollInterval = 10 * time.Millisecond
)

// Option configures a single [For] call.
type Option func(*options)

type options struct {
	timeout      time.Duration
	pollInterval time.Duration
	failFast     bool
	clock        Clock
	logger       *slog.Logger
	description  string
}

func newOptions(opts []Option) options {
	o := options{
		pollInterval: DefaultPollInterval,
		clock:        RealClock,
		logger:       slog.New(slog.DiscardHandler),
		description:  "condition",
	}

	for _, opt := range opts {
		opt(&o)
	}

	if o.pollInterval < MinPollInterval {
		o.pollInterval = MinPollInterval
	}

	return o
}

// WithTimeout sets the time after which the wait fails. A value of zero or
// less waits until the predicate holds or the context is done.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithPollInterval sets the pause between two probes. Values under
// [MinPollInterval] are clamped.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		o.pollInterval = d
	}
}

// WithFailFast makes the wait return on the first probe error instead of
// treating it as an absent observation.
func WithFailFast() Option {
	return func(o *options) {
		o.failFast = true
	}
}

// WithClock sets the time source.
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger sets the logger probe failures are reported to.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithDescription names what is waited for in log messages.
func WithDescription(desc string) Option {
	return func(o *options) {
		o.description = desc
	}
}
