// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned for any operation on a closed session.
	ErrClosed = errors.New("session closed")

	// ErrInvalidState is returned for operations not allowed in the current
	// state.
	ErrInvalidState = errors.New("invalid session state")

	// ErrInvalidConfig is returned by [New] for unusable configuration.
	ErrInvalidConfig = errors.New("invalid session config")

	// ErrNoTunnels is returned if the display needs a tunnel but the session
	// has no tunnel manager.
	ErrNoTunnels = errors.New("no tunnel manager")

	// ErrLoginFailed is returned if a login step did not see the expected
	// text.
	ErrLoginFailed = errors.New("login failed")

	// ErrSendFailed is returned if input could not be sent to a target.
	ErrSendFailed = errors.New("send failed")
)

// Channel names used in [ChannelAttachError].
const (
	ChannelConsole = "console"
	ChannelScreen  = "screen"
)

// ChannelAttachError is returned if a console or screen channel could not be
// attached.
type ChannelAttachError struct {
	Channel string
	Err     error
}

// Error implements the [error] interface.
func (e *ChannelAttachError) Error() string {
	return "attach " + e.Channel + ": " + e.Err.Error()
}

// Is implements the [errors.Is] interface.
func (*ChannelAttachError) Is(other error) bool {
	_, ok := other.(*ChannelAttachError)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *ChannelAttachError) Unwrap() error {
	return e.Err
}

// PersistenceError is returned if a file in the output directory could not
// be written.
type PersistenceError struct {
	Path string
	Err  error
}

// Error implements the [error] interface.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Path, e.Err)
}

// Is implements the [errors.Is] interface.
func (*PersistenceError) Is(other error) bool {
	_, ok := other.(*PersistenceError)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}
