// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aibor/otter/internal/console"
	"github.com/aibor/otter/internal/machine"
	"github.com/aibor/otter/internal/rfb"
	"github.com/aibor/otter/internal/screen"
	"github.com/aibor/otter/internal/serial"
	"github.com/aibor/otter/internal/wait"
)

// Names of the files written to the output directory on exit.
const (
	ConsoleLogName = "serial.log"
	ManifestName   = "session.yaml"
)

// Session is a single test run against a machine.
type Session struct {
	id          string
	machine     machine.Machine
	cfg         Config
	logger      *slog.Logger
	clock       wait.Clock
	dialConsole ConsoleDialer
	dialDisplay DisplayDialer
	tunnels     Tunnels
	ocr         screen.Recognizer
	console     *console.Channel
	screen      *screen.Channel

	mu          sync.Mutex
	state       State
	attachErrs  []error
	tunnelPorts []int
	started     time.Time
	stopped     time.Time
}

// New creates a session for the machine. The output directory is created if
// it does not exist. Failing to do so is fatal.
func New(m machine.Machine, cfg Config, opts ...Option) (*Session, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	s := &Session{
		id:      newID(),
		machine: m,
		cfg:     cfg,
		logger:  slog.New(slog.DiscardHandler),
		clock:   wait.RealClock,
		state:   StateCreated,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.dialConsole == nil {
		s.dialConsole = s.dialSerial
	}

	if s.dialDisplay == nil {
		s.dialDisplay = s.dialRFB
	}

	s.logger = s.logger.With(slog.String("session", s.id))

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, &PersistenceError{Path: cfg.OutputDir, Err: err}
	}

	s.console = console.Detached(
		console.WithLogger(s.logger),
		console.WithClock(s.clock),
		console.WithDefaultTimeout(cfg.ConsoleTimeout),
		console.WithDefaultPollInterval(cfg.PollInterval),
	)

	s.screen = screen.Detached(s.ocr, cfg.OutputDir,
		screen.WithLogger(s.logger),
		screen.WithClock(s.clock),
		screen.WithDefaultTimeout(cfg.ScreenTimeout),
		screen.WithDefaultPollInterval(cfg.PollInterval),
	)

	return s, nil
}

func newID() string {
	id, _, _ := strings.Cut(uuid.NewString(), "-")
	return id
}

func (s *Session) dialSerial(ctx context.Context, endpoint machine.Endpoint) (console.Transport, error) {
	return serial.Connect(ctx, endpoint.Network, endpoint.Address, s.cfg.Serial) //nolint:wrapcheck
}

func (s *Session) dialRFB(ctx context.Context, endpoint machine.Endpoint) (screen.Display, error) {
	client, err := rfb.Dial(ctx, endpoint.Network, endpoint.Address, rfb.WithLogger(s.logger))
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	return client, nil
}

// ID returns the random session identifier.
func (s *Session) ID() string {
	return s.id
}

// OutputDir returns the directory frames and logs are written to.
func (s *Session) OutputDir() string {
	return s.cfg.OutputDir
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Debug("Session state", slog.String("from", s.state.String()), slog.String("to", state.String()))
	s.state = state
}

// transition moves from one of the given states to the next one.
func (s *Session) transition(next State, from ...State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return ErrClosed
	}

	for _, state := range from {
		if s.state == state {
			s.logger.Debug("Session state", slog.String("from", s.state.String()), slog.String("to", next.String()))
			s.state = next

			return nil
		}
	}

	return fmt.Errorf("%w: %s, cannot go %s", ErrInvalidState, s.state, next)
}

// Console returns the console channel. It is detached until attached by
// [Session.Start].
func (s *Session) Console() *console.Channel {
	return s.console
}

// Screen returns the screen channel. It is detached until attached by
// [Session.Start].
func (s *Session) Screen() *screen.Channel {
	return s.screen
}

// AttachErrors returns the [ChannelAttachError]s of [Session.Start].
func (s *Session) AttachErrors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]error(nil), s.attachErrs...)
}

// Start provisions the machine and attaches the channels.
//
// Failing platform operations are returned as is. The session must be exited
// regardless. Channel attach failures are handled according to the
// configured [AttachPolicy]. With [AttachFailFast] the session is exited
// before the error is returned.
func (s *Session) Start(ctx context.Context) error {
	if err := s.transition(StateProvisioning, StateCreated); err != nil {
		return err
	}

	s.mu.Lock()
	s.started = s.clock.Now()
	s.mu.Unlock()

	if err := s.provision(ctx); err != nil {
		return err
	}

	s.setState(StateConnecting)

	attachErrs := s.attach(ctx)

	s.mu.Lock()
	s.attachErrs = append(s.attachErrs, attachErrs...)
	s.mu.Unlock()

	if len(attachErrs) > 0 && s.cfg.AttachPolicy == AttachFailFast {
		err := errors.Join(attachErrs...)
		if exitErr := s.Exit(ctx); exitErr != nil {
			err = errors.Join(err, exitErr)
		}

		return err
	}

	s.setState(StateReady)

	s.logger.Info("Session ready",
		slog.Bool("console", s.console.Attached()),
		slog.Bool("screen", s.screen.Attached()),
	)

	return nil
}

func (s *Session) provision(ctx context.Context) error {
	s.logger.Info("Reverting to snapshot",
		slog.String("machine", s.machine.Name()),
		slog.String("snapshot", s.cfg.Snapshot),
	)

	if err := s.machine.RevertSnapshot(ctx, s.cfg.Snapshot); err != nil {
		return fmt.Errorf("revert snapshot %s: %w", s.cfg.Snapshot, err)
	}

	s.logger.Info("Powering on machine", slog.String("machine", s.machine.Name()))

	if err := s.machine.PowerOn(ctx); err != nil {
		return fmt.Errorf("power on: %w", err)
	}

	return nil
}

// attach attaches both channels and returns the failures.
func (s *Session) attach(ctx context.Context) []error {
	var errs []error

	if err := s.attachConsole(ctx); err != nil {
		errs = append(errs, &ChannelAttachError{Channel: ChannelConsole, Err: err})
	}

	if err := s.attachScreen(ctx); err != nil {
		errs = append(errs, &ChannelAttachError{Channel: ChannelScreen, Err: err})
	}

	for _, err := range errs {
		s.logger.Error("Channel attach failed", slog.Any("error", err))
	}

	return errs
}

func (s *Session) attachConsole(ctx context.Context) error {
	endpoint, err := s.machine.ConsoleEndpoint(ctx)
	if err != nil {
		return fmt.Errorf("endpoint: %w", err)
	}

	s.logger.Info("Connecting console", slog.String("endpoint", endpoint.String()))

	transport, err := s.dialConsole(ctx, endpoint)
	if err != nil {
		return fmt.Errorf("connect %s: %w", endpoint, err)
	}

	if err := s.console.Attach(transport); err != nil {
		_ = transport.Close()
		return err //nolint:wrapcheck
	}

	return nil
}

func (s *Session) attachScreen(ctx context.Context) error {
	endpoint, err := s.machine.DisplayEndpoint(ctx)
	if err != nil {
		return fmt.Errorf("endpoint: %w", err)
	}

	if endpoint.IsTicket() {
		endpoint, err = s.openTunnel(ctx, endpoint)
		if err != nil {
			return err
		}
	}

	s.logger.Info("Connecting display", slog.String("endpoint", endpoint.String()))

	display, err := s.dialDisplay(ctx, endpoint)
	if err != nil {
		return fmt.Errorf("connect %s: %w", endpoint, err)
	}

	if err := s.screen.Attach(display); err != nil {
		_ = display.Close()
		return err //nolint:wrapcheck
	}

	return nil
}

// openTunnel forwards a ticket endpoint to a local TCP endpoint.
func (s *Session) openTunnel(ctx context.Context, endpoint machine.Endpoint) (machine.Endpoint, error) {
	if s.tunnels == nil {
		return machine.Endpoint{}, ErrNoTunnels
	}

	verifyTLS := s.cfg.VerifyTLS || endpoint.VerifyTLS

	handle, err := s.tunnels.Start(ctx, endpoint.Address, s.cfg.BindAddress, verifyTLS)
	if err != nil {
		return machine.Endpoint{}, fmt.Errorf("tunnel: %w", err)
	}

	s.mu.Lock()
	s.tunnelPorts = append(s.tunnelPorts, handle.Port)
	s.mu.Unlock()

	return machine.TCPEndpoint(handle.BindAddress, handle.Port), nil
}

// Exit tears the session down: the screen is disconnected, the console is
// closed, tunnels are stopped, the machine is powered off and the console
// log and the run manifest are written to the output directory.
//
// All steps run even if earlier ones fail. Their errors are returned joined.
// Any later call returns [ErrClosed].
func (s *Session) Exit(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrClosed
	}

	reached := s.state
	s.mu.Unlock()

	s.logger.Info("Tearing down session", slog.String("state", reached.String()))

	var errs []error

	step := func(name string, fn func() error) {
		if err := fn(); err != nil {
			err = fmt.Errorf("%s: %w", name, err)
			s.logger.Error("Teardown step failed", slog.Any("error", err))
			errs = append(errs, err)
		}
	}

	step("disconnect screen", s.screen.Close)
	step("close console", s.console.Close)

	if s.tunnels != nil {
		step("stop tunnels", func() error { return s.tunnels.Stop() })
	}

	if reached != StateCreated {
		step("power off", func() error { return s.machine.PowerOff(ctx) })
	}

	step("flush console log", func() error {
		path := filepath.Join(s.cfg.OutputDir, ConsoleLogName)
		if err := s.console.Flush(path); err != nil {
			return &PersistenceError{Path: path, Err: err}
		}

		return nil
	})

	s.mu.Lock()
	s.stopped = s.clock.Now()
	s.mu.Unlock()

	step("write manifest", func() error {
		return s.writeManifest(reached, errs)
	})

	s.setState(StateClosed)

	return errors.Join(errs...)
}
