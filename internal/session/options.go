// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"context"
	"log/slog"

	"github.com/aibor/otter/internal/console"
	"github.com/aibor/otter/internal/machine"
	"github.com/aibor/otter/internal/screen"
	"github.com/aibor/otter/internal/tunnel"
	"github.com/aibor/otter/internal/wait"
)

// ConsoleDialer opens the console transport at an endpoint.
type ConsoleDialer func(ctx context.Context, endpoint machine.Endpoint) (console.Transport, error)

// DisplayDialer connects a display client to an endpoint.
type DisplayDialer func(ctx context.Context, endpoint machine.Endpoint) (screen.Display, error)

// Tunnels forwards websocket ticket URLs to local TCP ports. It is
// implemented by [tunnel.Manager].
type Tunnels interface {
	Start(ctx context.Context, target, bindAddress string, verifyTLS bool) (tunnel.Handle, error)
	Stop(ports ...int) error
}

var _ Tunnels = (*tunnel.Manager)(nil)

// Option configures a [Session].
type Option func(*Session)

// WithLogger sets the logger of the session and its channels.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the time source of waits and input pacing.
func WithClock(clock wait.Clock) Option {
	return func(s *Session) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithConsoleDialer replaces the default console dialer, which uses
// [serial.Connect].
func WithConsoleDialer(dialer ConsoleDialer) Option {
	return func(s *Session) {
		s.dialConsole = dialer
	}
}

// WithDisplayDialer replaces the default display dialer, which uses
// [rfb.Dial].
func WithDisplayDialer(dialer DisplayDialer) Option {
	return func(s *Session) {
		s.dialDisplay = dialer
	}
}

// WithTunnels sets the tunnel manager used for ticket display endpoints. The
// session stops all its tunnels on exit.
func WithTunnels(tunnels Tunnels) Option {
	return func(s *Session) {
		s.tunnels = tunnels
	}
}

// WithRecognizer sets the text recognizer of the screen channel.
func WithRecognizer(ocr screen.Recognizer) Option {
	return func(s *Session) {
		s.ocr = ocr
	}
}
