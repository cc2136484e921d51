// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rfb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	securityInvalid uint8 = 0
	securityNone    uint8 = 1
)

// Client to server message types.
const (
	msgSetPixelFormat           uint8 = 0
	msgSetEncodings             uint8 = 2
	msgFramebufferUpdateRequest uint8 = 3
	msgKeyEvent                 uint8 = 4
)

// Server to client message types.
const (
	msgFramebufferUpdate   uint8 = 0
	msgSetColourMapEntries uint8 = 1
	msgBell                uint8 = 2
	msgServerCutText       uint8 = 3
)

const (
	encodingRaw         int32 = 0
	encodingDesktopSize int32 = -223
)

const bytesPerPixel = 4

// maxStringLength bounds reason and name strings sent by the server.
const maxStringLength = 1 << 16

type pixelFormat struct {
	BitsPerPixel uint8
	Depth        uint8
	BigEndian    uint8
	TrueColour   uint8
	RedMax       uint16
	GreenMax     uint16
	BlueMax      uint16
	RedShift     uint8
	GreenShift   uint8
	BlueShift    uint8
	_            [3]byte
}

// clientPixelFormat is requested from every server. Pixels arrive as
// little-endian 32 bit values, so each pixel is the byte sequence B, G, R, X.
var clientPixelFormat = pixelFormat{
	BitsPerPixel: 32,
	Depth:        24,
	BigEndian:    0,
	TrueColour:   1,
	RedMax:       255,
	GreenMax:     255,
	BlueMax:      255,
	RedShift:     16,
	GreenShift:   8,
	BlueShift:    0,
}

type serverInit struct {
	Width      uint16
	Height     uint16
	Format     pixelFormat
	NameLength uint32
}

type setPixelFormat struct {
	Type   uint8
	_      [3]byte
	Format pixelFormat
}

type setEncodings struct {
	Type  uint8
	_     uint8
	Count uint16
}

type framebufferUpdateRequest struct {
	Type        uint8
	Incremental uint8
	X           uint16
	Y           uint16
	Width       uint16
	Height      uint16
}

type keyEvent struct {
	Type uint8
	Down uint8
	_    [2]byte
	Key  uint32
}

type rectangleHeader struct {
	X        uint16
	Y        uint16
	Width    uint16
	Height   uint16
	Encoding int32
}

func encode(data ...any) ([]byte, error) {
	var buf bytes.Buffer

	for _, d := range data {
		err := binary.Write(&buf, binary.BigEndian, d)
		if err != nil {
			return nil, fmt.Errorf("encode: %w", err)
		}
	}

	return buf.Bytes(), nil
}

func decode(r io.Reader, data any) error {
	return binary.Read(r, binary.BigEndian, data) //nolint:wrapcheck
}

// readString reads a string prefixed with its uint32 length.
func readString(r io.Reader) (string, error) {
	var length uint32

	err := decode(r, &length)
	if err != nil {
		return "", err
	}

	if length > maxStringLength {
		return "", fmt.Errorf("string too long: %d", length)
	}

	buf := make([]byte, length)

	_, err = io.ReadFull(r, buf)
	if err != nil {
		return "", fmt.Errorf("read string: %w", err)
	}

	return string(buf), nil
}
