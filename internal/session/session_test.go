// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session_test

import (
	"context"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aibor/otter/internal/console"
	"github.com/aibor/otter/internal/machine"
	"github.com/aibor/otter/internal/screen"
	"github.com/aibor/otter/internal/session"
	"github.com/aibor/otter/internal/tunnel"
	"github.com/aibor/otter/internal/wait"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	machine    *machine.Fake
	transport  *console.MemoryTransport
	display    *screen.FakeDisplay
	recognizer *screen.FakeRecognizer
	clock      *wait.FakeClock
	dir        string

	mu               sync.Mutex
	consoleEndpoints []machine.Endpoint
	displayEndpoints []machine.Endpoint
	consoleErr       error
	displayErr       error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	return &fixture{
		machine: &machine.Fake{
			MachineName: "qubes-1",
			Console:     machine.Endpoint{Network: "unix", Address: "/run/serial.sock"},
			Display:     machine.Endpoint{Network: "unix", Address: "/run/vnc.sock"},
		},
		transport:  &console.MemoryTransport{},
		display:    screen.NewFakeDisplay(screen.SolidImage(32, 32, color.Black)),
		recognizer: &screen.FakeRecognizer{},
		clock:      wait.NewFakeClock(epoch),
		dir:        filepath.Join(t.TempDir(), "out", "run"),
	}
}

func (f *fixture) config() session.Config {
	cfg := session.DefaultConfig(f.dir)
	cfg.ConsoleTimeout = 10 * time.Second
	cfg.ScreenTimeout = 5 * time.Second

	return cfg
}

func (f *fixture) options(opts ...session.Option) []session.Option {
	return append([]session.Option{
		session.WithClock(f.clock),
		session.WithRecognizer(f.recognizer),
		session.WithConsoleDialer(func(_ context.Context, ep machine.Endpoint) (console.Transport, error) {
			f.mu.Lock()
			defer f.mu.Unlock()

			f.consoleEndpoints = append(f.consoleEndpoints, ep)
			if f.consoleErr != nil {
				return nil, f.consoleErr
			}

			return f.transport, nil
		}),
		session.WithDisplayDialer(func(_ context.Context, ep machine.Endpoint) (screen.Display, error) {
			f.mu.Lock()
			defer f.mu.Unlock()

			f.displayEndpoints = append(f.displayEndpoints, ep)
			if f.displayErr != nil {
				return nil, f.displayErr
			}

			return f.display, nil
		}),
	}, opts...)
}

func (f *fixture) newSession(t *testing.T, cfg session.Config, opts ...session.Option) *session.Session {
	t.Helper()

	s, err := session.New(f.machine, cfg, f.options(opts...)...)
	require.NoError(t, err)

	return s
}

func (f *fixture) start(t *testing.T, opts ...session.Option) *session.Session {
	t.Helper()

	s := f.newSession(t, f.config(), opts...)
	require.NoError(t, s.Start(t.Context()))

	return s
}

type fakeTunnels struct {
	started []string
	stops   int
	err     error
}

func (f *fakeTunnels) Start(_ context.Context, target, bind string, _ bool) (tunnel.Handle, error) {
	if f.err != nil {
		return tunnel.Handle{}, f.err
	}

	f.started = append(f.started, target)

	return tunnel.Handle{Port: 40000, BindAddress: bind, Target: target, PID: 1}, nil
}

func (f *fakeTunnels) Stop(...int) error {
	f.stops++
	return nil
}

func TestNew(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t, f.config())

	assert.DirExists(t, f.dir)
	assert.Equal(t, f.dir, s.OutputDir())
	assert.Len(t, s.ID(), 8)
	assert.Equal(t, session.StateCreated, s.State())
	assert.False(t, s.Console().Attached())
	assert.False(t, s.Screen().Attached())
	assert.Empty(t, f.machine.Calls())
}

func TestNewInvalid(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	tests := []struct {
		name string
		cfg  session.Config
		err  error
	}{
		{
			name: "no output dir",
			cfg:  session.DefaultConfig(""),
			err:  session.ErrInvalidConfig,
		},
		{
			name: "unknown attach policy",
			cfg: session.Config{
				OutputDir:    t.TempDir(),
				AttachPolicy: "sometimes",
			},
			err: session.ErrInvalidConfig,
		},
		{
			name: "output dir not creatable",
			cfg:  session.DefaultConfig(filepath.Join(file, "out")),
			err:  &session.PersistenceError{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := session.New(&machine.Fake{}, tt.cfg)
			require.ErrorIs(t, err, tt.err)
		})
	}
}

func TestStart(t *testing.T) {
	f := newFixture(t)
	s := f.start(t)

	assert.Equal(t, session.StateReady, s.State())
	assert.Equal(t, []string{
		"revert kickstart",
		"power on",
		"console endpoint",
		"display endpoint",
	}, f.machine.Calls())
	assert.True(t, s.Console().Attached())
	assert.True(t, s.Screen().Attached())
	assert.Empty(t, s.AttachErrors())
	assert.Equal(t, []machine.Endpoint{f.machine.Console}, f.consoleEndpoints)
	assert.Equal(t, []machine.Endpoint{f.machine.Display}, f.displayEndpoints)

	err := s.Start(t.Context())
	require.ErrorIs(t, err, session.ErrInvalidState)

	require.NoError(t, s.Exit(t.Context()))
}

func TestStartProvisioningFailure(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*machine.Fake)
		calls []string
	}{
		{
			name:  "revert",
			setup: func(m *machine.Fake) { m.RevertErr = assert.AnError },
			calls: []string{"revert kickstart", "power off"},
		},
		{
			name:  "power on",
			setup: func(m *machine.Fake) { m.PowerOnErr = assert.AnError },
			calls: []string{"revert kickstart", "power on", "power off"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f.machine)

			s := f.newSession(t, f.config())

			err := s.Start(t.Context())
			require.ErrorIs(t, err, assert.AnError)
			assert.Equal(t, session.StateProvisioning, s.State())

			require.NoError(t, s.Exit(t.Context()))
			assert.Equal(t, tt.calls, f.machine.Calls())
		})
	}
}

func TestStartAttachPolicy(t *testing.T) {
	tests := []struct {
		name    string
		policy  session.AttachPolicy
		setup   func(*fixture)
		channel string
	}{
		{
			name:    "console endpoint",
			setup:   func(f *fixture) { f.machine.ConsoleErr = machine.ErrNotRunning },
			channel: session.ChannelConsole,
		},
		{
			name:    "console dial",
			setup:   func(f *fixture) { f.consoleErr = assert.AnError },
			channel: session.ChannelConsole,
		},
		{
			name:    "display dial",
			setup:   func(f *fixture) { f.displayErr = assert.AnError },
			channel: session.ChannelScreen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name+" continue", func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)

			s := f.start(t)
			assert.Equal(t, session.StateReady, s.State())

			attachErrs := s.AttachErrors()
			require.Len(t, attachErrs, 1)

			var attachErr *session.ChannelAttachError
			require.ErrorAs(t, attachErrs[0], &attachErr)
			assert.Equal(t, tt.channel, attachErr.Channel)

			attached := map[string]bool{
				session.ChannelConsole: s.Console().Attached(),
				session.ChannelScreen:  s.Screen().Attached(),
			}
			for channel, ok := range attached {
				assert.Equal(t, channel != tt.channel, ok, channel)
			}

			require.NoError(t, s.Exit(t.Context()))
		})

		t.Run(tt.name+" fail-fast", func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)

			cfg := f.config()
			cfg.AttachPolicy = session.AttachFailFast

			s := f.newSession(t, cfg)

			err := s.Start(t.Context())
			require.ErrorIs(t, err, &session.ChannelAttachError{})
			assert.Equal(t, session.StateClosed, s.State())
			assert.Contains(t, f.machine.Calls(), "power off")
			assert.False(t, f.machine.Running())
			assert.FileExists(t, filepath.Join(f.dir, session.ConsoleLogName))

			require.ErrorIs(t, s.Exit(t.Context()), session.ErrClosed)
		})
	}
}

func TestStartTicketDisplay(t *testing.T) {
	ticket := machine.Endpoint{
		Network: machine.NetworkTicket,
		Address: "wss://esx.example/ticket/0123",
	}

	t.Run("tunnel", func(t *testing.T) {
		f := newFixture(t)
		f.machine.Display = ticket
		tunnels := &fakeTunnels{}

		s := f.start(t, session.WithTunnels(tunnels))

		assert.Empty(t, s.AttachErrors())
		assert.Equal(t, []string{ticket.Address}, tunnels.started)
		assert.Equal(t, []machine.Endpoint{
			{Network: "tcp", Address: "127.0.0.1:40000"},
		}, f.displayEndpoints)

		require.NoError(t, s.Exit(t.Context()))
		assert.Equal(t, 1, tunnels.stops)

		manifest, err := session.ReadManifest(filepath.Join(f.dir, session.ManifestName))
		require.NoError(t, err)
		assert.Equal(t, []int{40000}, manifest.TunnelPorts)
	})

	t.Run("no tunnels", func(t *testing.T) {
		f := newFixture(t)
		f.machine.Display = ticket

		s := f.start(t)

		attachErrs := s.AttachErrors()
		require.Len(t, attachErrs, 1)
		require.ErrorIs(t, attachErrs[0], session.ErrNoTunnels)
		assert.Empty(t, f.displayEndpoints)

		require.NoError(t, s.Exit(t.Context()))
	})

	t.Run("tunnel failure", func(t *testing.T) {
		f := newFixture(t)
		f.machine.Display = ticket

		s := f.start(t, session.WithTunnels(&fakeTunnels{err: tunnel.ErrExited}))

		attachErrs := s.AttachErrors()
		require.Len(t, attachErrs, 1)
		require.ErrorIs(t, attachErrs[0], tunnel.ErrExited)
		assert.False(t, s.Screen().Attached())

		require.NoError(t, s.Exit(t.Context()))
	})
}

func TestExit(t *testing.T) {
	f := newFixture(t)
	s := f.start(t)

	f.transport.Feed("root@host\n")
	s.Console().Read()

	_, err := s.Screen().Capture(t.Context(), screen.FullFrame)
	require.NoError(t, err)

	require.NoError(t, s.Exit(t.Context()))

	assert.Equal(t, session.StateClosed, s.State())
	assert.True(t, f.display.Closed())
	assert.True(t, f.transport.Closed())
	assert.False(t, f.machine.Running())

	log, err := os.ReadFile(filepath.Join(f.dir, session.ConsoleLogName))
	require.NoError(t, err)
	assert.Equal(t, []byte("root@host\n"), log)

	manifest, err := session.ReadManifest(filepath.Join(f.dir, session.ManifestName))
	require.NoError(t, err)
	assert.True(t, epoch.Equal(manifest.Started), "started")
	assert.True(t, epoch.Equal(manifest.Stopped), "stopped")

	manifest.Started, manifest.Stopped = time.Time{}, time.Time{}
	assert.Equal(t, session.Manifest{
		ID:           s.ID(),
		Machine:      "qubes-1",
		Snapshot:     "kickstart",
		State:        "ready",
		Frames:       1,
		ConsoleBytes: 10,
	}, manifest)

	require.ErrorIs(t, s.Exit(t.Context()), session.ErrClosed)
	require.ErrorIs(t, s.Start(t.Context()), session.ErrClosed)
	require.ErrorIs(t, s.Login(t.Context(), s.ConsoleTarget()), session.ErrClosed)
}

func TestExitWithoutStart(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t, f.config())

	require.NoError(t, s.Exit(t.Context()))
	assert.Empty(t, f.machine.Calls())
	assert.FileExists(t, filepath.Join(f.dir, session.ConsoleLogName))
}

func TestExitContinuesAfterFailures(t *testing.T) {
	f := newFixture(t)
	f.display.CloseErr = assert.AnError
	f.transport.CloseErr = os.ErrClosed
	f.machine.PowerOffErr = os.ErrDeadlineExceeded

	s := f.start(t)

	f.transport.Feed("still persisted")
	s.Console().Read()

	err := s.Exit(t.Context())
	require.ErrorIs(t, err, assert.AnError)
	require.ErrorIs(t, err, os.ErrClosed)
	require.ErrorIs(t, err, os.ErrDeadlineExceeded)
	assert.Equal(t, session.StateClosed, s.State())

	log, readErr := os.ReadFile(filepath.Join(f.dir, session.ConsoleLogName))
	require.NoError(t, readErr)
	assert.Equal(t, "still persisted", string(log))

	manifest, readErr := session.ReadManifest(filepath.Join(f.dir, session.ManifestName))
	require.NoError(t, readErr)
	assert.Len(t, manifest.TeardownErrors, 3)
}

func TestExitPersistenceError(t *testing.T) {
	f := newFixture(t)
	s := f.start(t)

	require.NoError(t, os.RemoveAll(f.dir))
	require.NoError(t, os.WriteFile(f.dir, nil, 0o600))

	err := s.Exit(t.Context())
	require.ErrorIs(t, err, &session.PersistenceError{})
	assert.Equal(t, session.StateClosed, s.State())
	assert.False(t, f.machine.Running())
}
