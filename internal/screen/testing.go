// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package screen

import (
	"context"
	"image"
	"image/color"
	"sync"
)

// SolidImage returns an image of the given size filled with a single color.
func SolidImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.Set(x, y, c)
		}
	}

	return img
}

// FakeDisplay is an in-memory [Display].
type FakeDisplay struct {
	mu       sync.Mutex
	image    image.Image
	err      error
	keys     []string
	closed   bool
	CloseErr error
}

// NewFakeDisplay returns a [FakeDisplay] showing img.
func NewFakeDisplay(img image.Image) *FakeDisplay {
	return &FakeDisplay{image: img}
}

// Show replaces the displayed image.
func (d *FakeDisplay) Show(img image.Image) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.image = img
}

// Fail makes all following captures and key presses return err. Nil
// resets it.
func (d *FakeDisplay) Fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.err = err
}

// Keys returns all keys pressed so far.
func (d *FakeDisplay) Keys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]string(nil), d.keys...)
}

// Closed returns true once Close was called.
func (d *FakeDisplay) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.closed
}

// Capture implements [Display].
func (d *FakeDisplay) Capture(context.Context) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.err != nil {
		return nil, d.err
	}

	if d.image == nil {
		return nil, ErrNoFrame
	}

	return d.image, nil
}

// KeyPress implements [Display].
func (d *FakeDisplay) KeyPress(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.err != nil {
		return d.err
	}

	d.keys = append(d.keys, key)

	return nil
}

// Close implements [Display].
func (d *FakeDisplay) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true

	return d.CloseErr
}

// FakeRecognizer is a [Recognizer] returning preset tokens.
type FakeRecognizer struct {
	mu     sync.Mutex
	tokens []string
	err    error
	paths  []string
}

// Recognize sets the tokens returned from now on.
func (r *FakeRecognizer) Recognize(tokens ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tokens = tokens
	r.err = nil
}

// Fail makes recognition fail with err from now on.
func (r *FakeRecognizer) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.err = err
}

// Paths returns the paths of all images passed so far.
func (r *FakeRecognizer) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.paths...)
}

// RecognizeText implements [Recognizer].
func (r *FakeRecognizer) RecognizeText(_ context.Context, path string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.paths = append(r.paths, path)

	if r.err != nil {
		return nil, r.err
	}

	return append([]string(nil), r.tokens...), nil
}
