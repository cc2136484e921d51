// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"fmt"
	"time"

	"github.com/mitchellh/go-homedir"

	"github.com/aibor/otter/internal/serial"
	"github.com/aibor/otter/internal/wait"
)

// AttachPolicy decides what happens if a channel cannot be attached.
type AttachPolicy string

const (
	// AttachContinue logs the failure and continues with a detached
	// channel.
	AttachContinue AttachPolicy = "continue"

	// AttachFailFast makes [Session.Start] fail and tear the session down.
	AttachFailFast AttachPolicy = "fail-fast"
)

// Defaults for [Config].
const (
	DefaultSnapshot       = "kickstart"
	DefaultBindAddress    = "127.0.0.1"
	DefaultConsoleTimeout = 5 * time.Minute
	DefaultScreenTimeout  = 2 * time.Minute
)

// Config is the configuration of a [Session].
type Config struct {
	// OutputDir receives frames, the console log and the run manifest. A
	// leading "~" is expanded.
	OutputDir string `mapstructure:"output_dir"`

	// Snapshot is the baseline snapshot restored before power on.
	Snapshot string `mapstructure:"snapshot"`

	AttachPolicy AttachPolicy `mapstructure:"attach_policy"`

	// Default timeouts of console and screen waits. Zero or less waits
	// indefinitely.
	ConsoleTimeout time.Duration `mapstructure:"console_timeout"`
	ScreenTimeout  time.Duration `mapstructure:"screen_timeout"`

	// PollInterval is the default poll interval of all waits.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// BindAddress is the local address display tunnels listen on.
	BindAddress string `mapstructure:"-"`

	// VerifyTLS enables certificate verification of display tunnels.
	VerifyTLS bool `mapstructure:"-"`

	// Serial configures console transports.
	Serial serial.Config `mapstructure:"serial"`
}

// DefaultConfig returns a [Config] with all defaults set that writes to
// outputDir.
func DefaultConfig(outputDir string) Config {
	return Config{
		OutputDir:      outputDir,
		Snapshot:       DefaultSnapshot,
		AttachPolicy:   AttachContinue,
		ConsoleTimeout: DefaultConsoleTimeout,
		ScreenTimeout:  DefaultScreenTimeout,
		PollInterval:   wait.DefaultPollInterval,
		BindAddress:    DefaultBindAddress,
		VerifyTLS:      true,
		Serial: serial.Config{
			BaudRate:    serial.DefaultBaudRate,
			ReadTimeout: serial.DefaultReadTimeout,
		},
	}
}

// normalize fills unset fields with defaults and validates the result.
func (c *Config) normalize() error {
	if c.OutputDir == "" {
		return fmt.Errorf("%w: no output directory", ErrInvalidConfig)
	}

	dir, err := homedir.Expand(c.OutputDir)
	if err != nil {
		return fmt.Errorf("%w: output directory: %w", ErrInvalidConfig, err)
	}

	c.OutputDir = dir

	defaults := DefaultConfig(dir)

	if c.Snapshot == "" {
		c.Snapshot = defaults.Snapshot
	}

	if c.BindAddress == "" {
		c.BindAddress = defaults.BindAddress
	}

	if c.PollInterval == 0 {
		c.PollInterval = defaults.PollInterval
	}

	switch c.AttachPolicy {
	case "":
		c.AttachPolicy = AttachContinue
	case AttachContinue, AttachFailFast:
	default:
		return fmt.Errorf("%w: unknown attach policy %q", ErrInvalidConfig, c.AttachPolicy)
	}

	return nil
}
