// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rfb

import (
	"errors"
	"fmt"
)

var (
	// ErrVersionNotSupported is returned for servers older than 3.3.
	ErrVersionNotSupported = errors.New("protocol version not supported")

	// ErrSecurityNotSupported is returned if the server does not offer the
	// "None" security type.
	ErrSecurityNotSupported = errors.New("security type not supported")

	// ErrEncodingNotSupported is returned if the server sends rectangles in
	// an encoding that was not requested.
	ErrEncodingNotSupported = errors.New("encoding not supported")

	// ErrUnknownKey is returned for key names without keysym.
	ErrUnknownKey = errors.New("unknown key")
)

// ProtocolError indicates the server sent something unexpected. The
// connection is unusable afterwards.
type ProtocolError struct {
	Op  string
	Err error
}

// Error implements the [error] interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("rfb %s: %v", e.Op, e.Err)
}

// Is implements the [errors.Is] interface.
func (*ProtocolError) Is(other error) bool {
	_, ok := other.(*ProtocolError)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// AuthError is returned if the server refused the connection.
type AuthError struct {
	Reason string
}

// Error implements the [error] interface.
func (e *AuthError) Error() string {
	return "rfb connection refused: " + e.Reason
}

// Is implements the [errors.Is] interface.
func (*AuthError) Is(other error) bool {
	_, ok := other.(*AuthError)
	return ok
}
