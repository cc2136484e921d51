// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package serial

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Conn is a socket console connection. Each read is bounded by the read
// timeout and returns [os.ErrDeadlineExceeded] if no data arrived.
type Conn struct {
	net.Conn

	readTimeout time.Duration
}

// Dial connects to a console socket.
func Dial(ctx context.Context, network, address string, cfg Config) (*Conn, error) {
	cfg = cfg.withDefaults()

	var dialer net.Dialer

	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("dial console: %w", err)
	}

	return &Conn{Conn: conn, readTimeout: cfg.ReadTimeout}, nil
}

// Read implements [io.Reader].
func (c *Conn) Read(p []byte) (int, error) {
	err := c.SetReadDeadline(time.Now().Add(c.readTimeout))
	if err != nil {
		return 0, fmt.Errorf("set read deadline: %w", err)
	}

	return c.Conn.Read(p) //nolint:wrapcheck
}
