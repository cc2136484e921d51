// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/aibor/otter/internal/ocr"
	"github.com/aibor/otter/internal/qemu"
	"github.com/aibor/otter/internal/serial"
	"github.com/aibor/otter/internal/session"
	"github.com/aibor/otter/internal/tunnel"
	"github.com/aibor/otter/internal/wait"
)

// EnvPrefix is the prefix of environment variables overriding config keys.
// The key "session.output_dir" is read from OTTER_SESSION_OUTPUT_DIR.
const EnvPrefix = "OTTER"

// DefaultPaths are the config files looked up if none is given. The first
// existing one is used.
var DefaultPaths = []string{
	"otter.yaml",
	"~/.otter/config.yaml",
}

// ErrConfigFile is returned if the config file can not be read or parsed.
var ErrConfigFile = errors.New("config file")

// Config is the complete configuration of an otter run.
type Config struct {
	Machine Machine             `mapstructure:"machine"`
	Session session.Config      `mapstructure:"session"`
	Tunnel  Tunnel              `mapstructure:"tunnel"`
	OCR     OCR                 `mapstructure:"ocr"`
	Login   session.Credentials `mapstructure:"login"`

	// File is the config file that was read. Empty if only defaults and
	// environment were used.
	File string `mapstructure:"-"`
}

// Machine configures the QEMU machine under test.
type Machine struct {
	Name         string        `mapstructure:"name"`
	Arch         string        `mapstructure:"arch"`
	Executable   string        `mapstructure:"executable"`
	Disk         string        `mapstructure:"disk"`
	DiskFormat   string        `mapstructure:"disk_format"`
	Type         string        `mapstructure:"machine"`
	CPU          string        `mapstructure:"cpu"`
	SMP          uint64        `mapstructure:"smp"`
	Memory       uint64        `mapstructure:"memory"`
	NoKVM        bool          `mapstructure:"nokvm"`
	RuntimeDir   string        `mapstructure:"runtime_dir"`
	StartTimeout time.Duration `mapstructure:"start_timeout"`
	GracePeriod  time.Duration `mapstructure:"grace_period"`
}

// CommandSpec returns the QEMU command parameters. The disk and runtime
// directory have a leading "~" expanded.
func (m Machine) CommandSpec() (qemu.CommandSpec, error) {
	disk, err := homedir.Expand(m.Disk)
	if err != nil {
		return qemu.CommandSpec{}, fmt.Errorf("expand disk path: %w", err)
	}

	runtimeDir, err := homedir.Expand(m.RuntimeDir)
	if err != nil {
		return qemu.CommandSpec{}, fmt.Errorf("expand runtime dir: %w", err)
	}

	return qemu.CommandSpec{
		Executable: m.Executable,
		Disk:       disk,
		DiskFormat: m.DiskFormat,
		Machine:    m.Type,
		CPU:        m.CPU,
		SMP:        m.SMP,
		Memory:     m.Memory,
		NoKVM:      m.NoKVM,
		RuntimeDir: runtimeDir,
	}, nil
}

// Tunnel configures display tunnels.
type Tunnel struct {
	Executable   string        `mapstructure:"executable"`
	BindAddress  string        `mapstructure:"bind_address"`
	VerifyTLS    bool          `mapstructure:"verify_tls"`
	GracePeriod  time.Duration `mapstructure:"grace_period"`
	ReadyTimeout time.Duration `mapstructure:"ready_timeout"`
}

// OCR configures text recognition.
type OCR struct {
	Executable string `mapstructure:"executable"`
	Language   string `mapstructure:"language"`
}

// Bindings map config keys to command line flags. A flag overrides its key
// only if it was set.
type Bindings map[string]*pflag.Flag

// Load reads the configuration. An explicitly given file must exist. If file
// is empty, the first existing of [DefaultPaths] is read.
//
// Precedence from high to low: set flags, environment variables with
// [EnvPrefix], config file, defaults.
func Load(file string, flags Bindings) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	for key, flag := range flags {
		if err := v.BindPFlag(key, flag); err != nil {
			return Config{}, fmt.Errorf("bind flag %s: %w", key, err)
		}
	}

	path, err := findFile(file)
	if err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("%w: %s: %w", ErrConfigFile, path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: decode: %w", ErrConfigFile, err)
	}

	cfg.File = path
	cfg.Session.BindAddress = cfg.Tunnel.BindAddress
	cfg.Session.VerifyTLS = cfg.Tunnel.VerifyTLS

	return cfg, nil
}

func findFile(file string) (string, error) {
	if file != "" {
		path, err := homedir.Expand(file)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrConfigFile, err)
		}

		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("%w: %w", ErrConfigFile, err)
		}

		return path, nil
	}

	for _, candidate := range DefaultPaths {
		path, err := homedir.Expand(candidate)
		if err != nil {
			continue
		}

		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("machine.name", "otter")
	v.SetDefault("machine.arch", "")
	v.SetDefault("machine.executable", "")
	v.SetDefault("machine.disk", "")
	v.SetDefault("machine.disk_format", qemu.DiskFormatQCOW2)
	v.SetDefault("machine.machine", "")
	v.SetDefault("machine.cpu", "max")
	v.SetDefault("machine.smp", 2)
	v.SetDefault("machine.memory", 4096)
	v.SetDefault("machine.nokvm", false)
	v.SetDefault("machine.runtime_dir", "")
	v.SetDefault("machine.start_timeout", qemu.DefaultStartTimeout)
	v.SetDefault("machine.grace_period", qemu.DefaultGracePeriod)

	v.SetDefault("session.output_dir", "otter-output")
	v.SetDefault("session.snapshot", session.DefaultSnapshot)
	v.SetDefault("session.attach_policy", string(session.AttachContinue))
	v.SetDefault("session.console_timeout", session.DefaultConsoleTimeout)
	v.SetDefault("session.screen_timeout", session.DefaultScreenTimeout)
	v.SetDefault("session.poll_interval", wait.DefaultPollInterval)
	v.SetDefault("session.serial.baud_rate", serial.DefaultBaudRate)
	v.SetDefault("session.serial.read_timeout", serial.DefaultReadTimeout)

	v.SetDefault("tunnel.executable", tunnel.DefaultExecutable)
	v.SetDefault("tunnel.bind_address", session.DefaultBindAddress)
	v.SetDefault("tunnel.verify_tls", true)
	v.SetDefault("tunnel.grace_period", tunnel.DefaultGracePeriod)
	v.SetDefault("tunnel.ready_timeout", tunnel.DefaultReadyTimeout)

	v.SetDefault("ocr.executable", ocr.DefaultExecutable)
	v.SetDefault("ocr.language", "eng")

	v.SetDefault("login.username", "user")
	v.SetDefault("login.password", "")
}
