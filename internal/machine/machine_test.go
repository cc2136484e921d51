// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package machine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aibor/otter/internal/machine"
)

func TestTCPEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		port     int
		expected string
	}{
		{
			name:     "ipv4",
			host:     "127.0.0.1",
			port:     40000,
			expected: "tcp:127.0.0.1:40000",
		},
		{
			name:     "ipv6",
			host:     "::1",
			port:     5900,
			expected: "tcp:[::1]:5900",
		},
		{
			name:     "hostname",
			host:     "localhost",
			port:     5901,
			expected: "tcp:localhost:5901",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			endpoint := machine.TCPEndpoint(tt.host, tt.port)

			assert.Equal(t, tt.expected, endpoint.String())
			assert.False(t, endpoint.IsTicket())
		})
	}
}
