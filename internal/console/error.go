// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package console

import (
	"errors"
	"fmt"
)

var (
	// ErrDetached is returned for operations on a channel without transport.
	ErrDetached = errors.New("console not attached")

	// ErrAttached is returned by [Channel.Attach] if a transport is set
	// already.
	ErrAttached = errors.New("console already attached")
)

// TransportError wraps errors of the underlying [Transport].
type TransportError struct {
	Op  string
	Err error
}

// Error implements the [error] interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("console %s: %v", e.Op, e.Err)
}

// Is implements the [errors.Is] interface.
func (*TransportError) Is(other error) bool {
	_, ok := other.(*TransportError)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *TransportError) Unwrap() error {
	return e.Err
}
