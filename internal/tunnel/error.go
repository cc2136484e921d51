// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tunnel

import (
	"errors"
	"fmt"
)

var (
	// ErrExecutableNotFound is returned if websocat is missing.
	ErrExecutableNotFound = errors.New("tunnel executable not found")

	// ErrExited is returned if a tunnel process exited before it was ready.
	ErrExited = errors.New("tunnel process exited")

	// ErrNotReady is returned if a tunnel did not listen in time.
	ErrNotReady = errors.New("tunnel not listening")
)

// ProcessError wraps errors of a single tunnel process.
type ProcessError struct {
	Port int
	Op   string
	Err  error
}

// Error implements the [error] interface.
func (e *ProcessError) Error() string {
	return fmt.Sprintf("tunnel %d %s: %v", e.Port, e.Op, e.Err)
}

// Is implements the [errors.Is] interface.
func (*ProcessError) Is(other error) bool {
	_, ok := other.(*ProcessError)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *ProcessError) Unwrap() error {
	return e.Err
}
