// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rfb_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aibor/otter/internal/rfb"
)

func TestKeysyms(t *testing.T) {
	tests := []struct {
		key      string
		expected []uint32
		err      error
	}{
		{key: "a", expected: []uint32{0x61}},
		{key: "A", expected: []uint32{0x41}},
		{key: "-", expected: []uint32{0x2d}},
		{key: "ä", expected: []uint32{0xe4}},
		{key: "€", expected: []uint32{0x010020ac}},
		{key: "\n", expected: []uint32{0xff0d}},
		{key: "enter", expected: []uint32{0xff0d}},
		{key: "Return", expected: []uint32{0xff0d}},
		{key: "tab", expected: []uint32{0xff09}},
		{key: "esc", expected: []uint32{0xff1b}},
		{key: "f1", expected: []uint32{0xffbe}},
		{key: "F12", expected: []uint32{0xffc9}},
		{key: "ctrl-alt-del", expected: []uint32{0xffe3, 0xffe9, 0xffff}},
		{key: "ctrl-c", expected: []uint32{0xffe3, 0x63}},
		{key: "shift-tab", expected: []uint32{0xffe1, 0xff09}},
		{key: "f13", err: rfb.ErrUnknownKey},
		{key: "hyper", err: rfb.ErrUnknownKey},
		{key: "ctrl-nope", err: rfb.ErrUnknownKey},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			actual, err := rfb.Keysyms(tt.key)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, actual)
		})
	}
}
