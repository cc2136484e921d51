// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tunnel

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTable = `  sl  local_address rem_address   st tx_queue rx_queue tr tm->when retrnsmt   uid  timeout inode
   0: 0100007F:1F90 00000000:0000 0A 00000000:00000000 00:00000000 00000000  1000        0 1 1 0000000000000000 100 0 0 10 0
   1: 0100007F:A3C2 0100007F:1F90 01 00000000:00000000 00:00000000 00000000  1000        0 2 1 0000000000000000 20 4 30 10 -1
`

func TestScanListening(t *testing.T) {
	tests := []struct {
		name     string
		port     int
		expected bool
	}{
		{name: "listening", port: 8080, expected: true},
		{name: "established only", port: 41922, expected: false},
		{name: "absent", port: 5900, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual, err := scanListening(strings.NewReader(sampleTable), tt.port)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, actual)
		})
	}
}

func TestListening(t *testing.T) {
	t.Run("tcp6 only", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "tcp6"), []byte(sampleTable), 0o600))

		ok, err := listening(dir, 8080)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.False(t, procNetAvailable(dir))
	})

	t.Run("no tables", func(t *testing.T) {
		_, err := listening(t.TempDir(), 8080)
		require.ErrorIs(t, err, fs.ErrNotExist)
	})
}

func TestManagerArgs(t *testing.T) {
	tests := []struct {
		name      string
		protocol  string
		verifyTLS bool
		expected  []string
	}{
		{
			name:      "verify",
			protocol:  DefaultProtocol,
			verifyTLS: true,
			expected: []string{
				"-b", "tcp-listen:127.0.0.1:5901", "wss://esx/ticket/abc",
				"--protocol", "binary, vmware-vvc",
			},
		},
		{
			name:     "insecure",
			protocol: DefaultProtocol,
			expected: []string{
				"-b", "tcp-listen:127.0.0.1:5901", "wss://esx/ticket/abc", "-k",
				"--protocol", "binary, vmware-vvc",
			},
		},
		{
			name:      "no protocol",
			verifyTLS: true,
			expected: []string{
				"-b", "tcp-listen:127.0.0.1:5901", "wss://esx/ticket/abc",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Manager{protocol: tt.protocol}
			actual := m.args("wss://esx/ticket/abc", "127.0.0.1", 5901, tt.verifyTLS)
			assert.Equal(t, tt.expected, actual)
		})
	}
}

func TestManagerArgsIPv6(t *testing.T) {
	m := &Manager{}
	actual := m.args("wss://esx/ticket/abc", "::1", 5901, true)
	assert.Equal(t, "tcp-listen:[::1]:5901", actual[1])
}
