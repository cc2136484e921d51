// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package serial

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

var baudRates = map[int]uint32{
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
}

// Port is an open terminal device in raw mode.
type Port struct {
	*os.File
}

// Open opens the terminal device at path in raw mode.
//
// The device is configured for 8N1 at the given baud rate without flow
// control. Reads return after [Config.ReadTimeout] without data with
// [io.EOF].
func Open(path string, cfg Config) (*Port, error) {
	cfg = cfg.withDefaults()

	speed, ok := baudRates[cfg.BaudRate]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrBaudRateNotSupported, cfg.BaudRate)
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}

	err = configure(fd, speed, cfg.ReadTimeout)
	if err != nil {
		_ = unix.Close(fd)
		return nil, &os.PathError{Op: "configure", Path: path, Err: err}
	}

	return &Port{os.NewFile(uintptr(fd), path)}, nil
}

func configure(fd int, speed uint32, readTimeout time.Duration) error {
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("get termios: %w", err)
	}

	termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF
	termios.Oflag &^= unix.OPOST
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG |
		unix.IEXTEN
	termios.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CBAUD |
		unix.CRTSCTS
	termios.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | speed
	termios.Ispeed = speed
	termios.Ospeed = speed

	// VTIME is given in tenths of a second and limited to a byte.
	deciseconds := min(max(readTimeout/(100*time.Millisecond), 1), 255)
	termios.Cc[unix.VMIN] = 0
	termios.Cc[unix.VTIME] = uint8(deciseconds)

	err = unix.IoctlSetTermios(fd, unix.TCSETS, termios)
	if err != nil {
		return fmt.Errorf("set termios: %w", err)
	}

	// Blocking mode is required for VTIME to take effect.
	err = unix.SetNonblock(fd, false)
	if err != nil {
		return fmt.Errorf("set blocking: %w", err)
	}

	return nil
}
