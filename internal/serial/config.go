// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package serial

import (
	"errors"
	"time"
)

const (
	// DefaultBaudRate is the line speed used if none is configured.
	DefaultBaudRate = 115200

	// DefaultReadTimeout is the read idle timeout used if none is configured.
	DefaultReadTimeout = time.Second
)

var (
	// ErrBaudRateNotSupported is returned for line speeds without termios
	// constant.
	ErrBaudRateNotSupported = errors.New("baud rate not supported")

	// ErrNetworkNotSupported is returned by [Connect] for unknown endpoint
	// networks.
	ErrNetworkNotSupported = errors.New("network not supported")
)

// Config defines line parameters.
type Config struct {
	// BaudRate of a terminal device. Ignored for sockets.
	BaudRate int `mapstructure:"baud_rate"`

	// ReadTimeout after which a read without data returns.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

func (c Config) withDefaults() Config {
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}

	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}

	return c
}
