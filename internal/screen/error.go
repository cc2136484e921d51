// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package screen

import (
	"errors"
)

var (
	// ErrNoFrame is returned by a [Display] that has no frame data
	// available.
	ErrNoFrame = errors.New("no frame data")

	// ErrDetached is returned for operations on a channel without display.
	ErrDetached = errors.New("screen not attached")

	// ErrAttached is returned by [Channel.Attach] if a display is set
	// already.
	ErrAttached = errors.New("screen already attached")

	// ErrEmptyRegion is returned if a region does not overlap the frame or
	// has no positive size.
	ErrEmptyRegion = errors.New("region outside of frame")

	// ErrEmptyFrame is returned if text is requested for the empty frame.
	ErrEmptyFrame = errors.New("empty frame")
)

// CaptureError wraps any error that prevented a frame from being stored.
type CaptureError struct {
	Err error
}

// Error implements the [error] interface.
func (e *CaptureError) Error() string {
	return "screen capture: " + e.Err.Error()
}

// Is implements the [errors.Is] interface.
func (*CaptureError) Is(other error) bool {
	_, ok := other.(*CaptureError)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *CaptureError) Unwrap() error {
	return e.Err
}
