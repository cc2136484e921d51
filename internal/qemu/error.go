// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"errors"
	"fmt"
)

var (
	// ErrArgumentCollision is returned if two [Argument]s are considered equal.
	ErrArgumentCollision = errors.New("colliding args")

	// ErrExited is returned if the QEMU process exited while it was expected
	// to run.
	ErrExited = errors.New("qemu process exited")

	// ErrMachineRunning is returned for operations that need a stopped
	// machine.
	ErrMachineRunning = errors.New("machine is running")
)

// ArgumentError indicates an issue with an input argument.
type ArgumentError struct {
	msg string
}

// Error implements the [error] interface.
func (e *ArgumentError) Error() string {
	return "argument error: " + e.msg
}

// Is implements the [errors.Is] interface.
func (*ArgumentError) Is(other error) bool {
	_, ok := other.(*ArgumentError)
	return ok
}

// CommandError wraps errors of the QEMU process itself.
type CommandError struct {
	Op  string
	Err error
}

// Error implements the [error] interface.
func (e *CommandError) Error() string {
	return "qemu " + e.Op + ": " + e.Err.Error()
}

// Is implements the [errors.Is] interface.
func (*CommandError) Is(other error) bool {
	_, ok := other.(*CommandError)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// QMPError is an error response of the QEMU monitor.
type QMPError struct {
	Command string
	Class   string
	Desc    string
}

// Error implements the [error] interface.
func (e *QMPError) Error() string {
	return fmt.Sprintf("qmp %s: %s: %s", e.Command, e.Class, e.Desc)
}

// Is implements the [errors.Is] interface.
func (*QMPError) Is(other error) bool {
	_, ok := other.(*QMPError)
	return ok
}
