// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package screen

import (
	"fmt"
	"image"
	"image/draw"
	"strconv"
)

// Region is a rectangle in screen coordinates. The zero value covers the
// whole frame.
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
}

// FullFrame is the [Region] covering the whole frame.
var FullFrame = Region{}

// IsFull returns true if the region covers the whole frame.
func (r Region) IsFull() bool {
	return r == FullFrame
}

// String implements [fmt.Stringer].
func (r Region) String() string {
	if r.IsFull() {
		return "full"
	}

	return fmt.Sprintf("%dx%d+%d+%d", r.Width, r.Height, r.X, r.Y)
}

// crop returns the part of img covered by the region. The region is clamped
// to the image bounds. Width and height must be positive.
func (r Region) crop(img image.Image) (image.Image, error) {
	if r.IsFull() {
		return img, nil
	}

	if r.Width <= 0 || r.Height <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyRegion, r)
	}

	rect := image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height).
		Add(img.Bounds().Min).
		Intersect(img.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("%w: %s", ErrEmptyRegion, r)
	}

	if sub, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	}); ok {
		return sub.SubImage(rect), nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)

	return dst, nil
}

// Frame is a stored capture.
type Frame struct {
	// Index is the capture number. It is -1 for the empty frame.
	Index int

	// Path of the PNG file.
	Path string

	// Region that was captured.
	Region Region
}

// EmptyFrame is returned if a capture failed.
var EmptyFrame = Frame{Index: -1}

// IsEmpty returns true for the [EmptyFrame].
func (f Frame) IsEmpty() bool {
	return f.Index < 0
}

func frameName(index int) string {
	return strconv.Itoa(index) + ".png"
}
