// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rfb

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// X11 keysyms of named keys.
var namedKeys = map[string]uint32{
	"backspace": 0xff08,
	"tab":       0xff09,
	"enter":     0xff0d,
	"return":    0xff0d,
	"esc":       0xff1b,
	"escape":    0xff1b,
	"home":      0xff50,
	"left":      0xff51,
	"up":        0xff52,
	"right":     0xff53,
	"down":      0xff54,
	"pageup":    0xff55,
	"pagedown":  0xff56,
	"end":       0xff57,
	"insert":    0xff63,
	"shift":     0xffe1,
	"ctrl":      0xffe3,
	"control":   0xffe3,
	"alt":       0xffe9,
	"super":     0xffeb,
	"meta":      0xffeb,
	"win":       0xffeb,
	"delete":    0xffff,
	"del":       0xffff,
	"space":     0x0020,
	"minus":     0x002d,
}

const (
	keysymF1      = 0xffbe
	maxFunctionFn = 12
	unicodeOffset = 0x01000000
)

// Keysyms returns the keysyms of the given key.
//
// A key is either a single character or a name like "enter", "f5" or
// "ctrl". Names are case insensitive. Combinations are joined by "-", like
// "ctrl-alt-del". The keysyms are returned in press order: modifiers first,
// the main key last.
func Keysyms(key string) ([]uint32, error) {
	if utf8.RuneCountInString(key) == 1 {
		r, _ := utf8.DecodeRuneInString(key)
		return []uint32{runeKeysym(r)}, nil
	}

	parts := strings.Split(key, "-")
	syms := make([]uint32, 0, len(parts))

	for _, part := range parts {
		sym, err := singleKeysym(part)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", err, key)
		}

		syms = append(syms, sym)
	}

	return syms, nil
}

func singleKeysym(name string) (uint32, error) {
	if utf8.RuneCountInString(name) == 1 {
		r, _ := utf8.DecodeRuneInString(name)
		return runeKeysym(r), nil
	}

	lower := strings.ToLower(name)

	if sym, ok := namedKeys[lower]; ok {
		return sym, nil
	}

	if num, ok := strings.CutPrefix(lower, "f"); ok {
		n, err := strconv.Atoi(num)
		if err == nil && n >= 1 && n <= maxFunctionFn {
			return keysymF1 + uint32(n) - 1, nil //nolint:gosec
		}
	}

	return 0, ErrUnknownKey
}

// runeKeysym maps characters to keysyms. Latin-1 characters are their own
// keysym, everything else uses the Unicode keysym range.
func runeKeysym(r rune) uint32 {
	switch r {
	case '\n', '\r':
		return namedKeys["enter"]
	case '\t':
		return namedKeys["tab"]
	case '\b':
		return namedKeys["backspace"]
	}

	if r < 0x100 {
		return uint32(r)
	}

	return unicodeOffset | uint32(r)
}
