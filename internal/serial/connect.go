// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package serial

import (
	"context"
	"fmt"
	"io"
)

// NetworkTTY is the endpoint network of terminal devices.
const NetworkTTY = "tty"

// Connect opens the console transport at the given endpoint. The network is
// either [NetworkTTY] for device paths or any stream network supported by
// [net.Dial].
func Connect(
	ctx context.Context,
	network, address string,
	cfg Config,
) (io.ReadWriteCloser, error) {
	switch network {
	case NetworkTTY:
		port, err := Open(address, cfg)
		if err != nil {
			return nil, err
		}

		return port, nil
	case "unix", "tcp", "tcp4", "tcp6":
		conn, err := Dial(ctx, network, address, cfg)
		if err != nil {
			return nil, err
		}

		return conn, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrNetworkNotSupported, network)
	}
}
