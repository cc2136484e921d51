// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aibor/otter/internal/machine"
	"github.com/aibor/otter/internal/wait"
)

// Defaults for [Machine] options.
const (
	DefaultStartTimeout = 30 * time.Second
	DefaultGracePeriod  = 10 * time.Second
)

const qmpPollInterval = 50 * time.Millisecond

// Option configures a [Machine].
type Option func(*Machine)

// WithLogger sets the logger. QEMU's stderr is forwarded to it. A nil logger
// is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithStartTimeout bounds how long [Machine.PowerOn] waits for the QMP
// socket.
func WithStartTimeout(d time.Duration) Option {
	return func(m *Machine) {
		m.startTimeout = d
	}
}

// WithGracePeriod sets how long [Machine.PowerOff] waits for QEMU to exit
// after the quit command before it is killed.
func WithGracePeriod(d time.Duration) Option {
	return func(m *Machine) {
		m.gracePeriod = d
	}
}

// process is a started QEMU process.
type process struct {
	cmd        *exec.Cmd
	spec       CommandSpec
	qmp        *QMP
	done       chan struct{}
	err        error
	ownsRunDir bool
}

func (p *process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Machine is a QEMU virtual machine. It implements [machine.Machine].
type Machine struct {
	name         string
	spec         CommandSpec
	logger       *slog.Logger
	startTimeout time.Duration
	gracePeriod  time.Duration

	mu       sync.Mutex
	proc     *process
	snapshot string
}

var _ machine.Machine = (*Machine)(nil)

// NewMachine creates a stopped [Machine] with the given name. The RuntimeDir
// of spec may be empty, then a temporary directory is used per run.
func NewMachine(name string, spec CommandSpec, opts ...Option) (*Machine, error) {
	m := &Machine{
		name:         name,
		spec:         spec,
		logger:       slog.New(slog.DiscardHandler),
		startTimeout: DefaultStartTimeout,
		gracePeriod:  DefaultGracePeriod,
		snapshot:     spec.Snapshot,
	}

	for _, opt := range opts {
		opt(m)
	}

	check := spec
	if check.RuntimeDir == "" {
		check.RuntimeDir = os.TempDir()
	}

	if err := check.Validate(); err != nil {
		return nil, err
	}

	path, err := exec.LookPath(spec.Executable)
	if err != nil {
		return nil, &CommandError{Op: "lookup", Err: err}
	}

	m.spec.Executable = path

	return m, nil
}

// Name implements [machine.Machine].
func (m *Machine) Name() string {
	return m.name
}

// Running returns true if the QEMU process is alive.
func (m *Machine) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.running()
}

func (m *Machine) running() bool {
	return m.proc != nil && !m.proc.exited()
}

// RevertSnapshot implements [machine.SnapshotControl]. A stopped machine is
// started from the snapshot on the next [Machine.PowerOn]. A running machine
// loads it immediately.
func (m *Machine) RevertSnapshot(ctx context.Context, name string) error {
	if name == "" {
		return &ArgumentError{"empty snapshot name"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running() {
		if m.spec.DiskFormat != DiskFormatQCOW2 {
			return &ArgumentError{m.spec.DiskFormat + " disk does not support snapshots"}
		}

		m.snapshot = name

		return nil
	}

	output, err := m.proc.qmp.HumanMonitorCommand(ctx, "loadvm "+name)
	if err != nil {
		return fmt.Errorf("load snapshot %s: %w", name, err)
	}

	// loadvm reports failures as output only.
	if output = strings.TrimSpace(output); output != "" {
		return &QMPError{Command: "loadvm", Class: "GenericError", Desc: output}
	}

	m.snapshot = name

	return nil
}

// PowerOn implements [machine.PowerControl]. It returns once QEMU accepts QMP
// commands and reports its run state.
func (m *Machine) PowerOn(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running() {
		return nil
	}

	if m.proc != nil {
		m.cleanup(m.proc)
		m.proc = nil
	}

	proc, err := m.start()
	if err != nil {
		return err
	}

	qmp, err := m.awaitQMP(ctx, proc)
	if err != nil {
		m.kill(proc)
		m.cleanup(proc)

		return err
	}

	proc.qmp = qmp

	status, err := qmp.Status(ctx)
	if err != nil {
		m.kill(proc)
		m.cleanup(proc)

		return &CommandError{Op: "power on", Err: fmt.Errorf("query status: %w", err)}
	}

	m.proc = proc

	m.logger.Info("Machine powered on",
		slog.String("machine", m.name),
		slog.String("snapshot", proc.spec.Snapshot),
		slog.String("qemu", qmp.Version().String()),
		slog.String("status", status),
	)

	return nil
}

func (m *Machine) start() (*process, error) {
	proc := &process{
		spec: m.spec,
		done: make(chan struct{}),
	}

	proc.spec.Snapshot = m.snapshot

	if proc.spec.RuntimeDir == "" {
		dir, err := os.MkdirTemp("", "otter-qemu-")
		if err != nil {
			return nil, &CommandError{Op: "create runtime dir", Err: err}
		}

		proc.spec.RuntimeDir = dir
		proc.ownsRunDir = true
	}

	if err := proc.spec.Validate(); err != nil {
		m.cleanup(proc)
		return nil, err
	}

	args, err := BuildArgumentStrings(proc.spec.arguments())
	if err != nil {
		m.cleanup(proc)
		return nil, err
	}

	proc.cmd = exec.Command(proc.spec.Executable, args...)

	stderr, err := proc.cmd.StderrPipe()
	if err != nil {
		m.cleanup(proc)
		return nil, &CommandError{Op: "stderr", Err: err}
	}

	m.logger.Debug("Starting QEMU", slog.String("command", proc.cmd.String()))

	if err := proc.cmd.Start(); err != nil {
		m.cleanup(proc)
		return nil, &CommandError{Op: "start", Err: err}
	}

	var group errgroup.Group

	group.Go(func() error {
		return m.forward(stderr)
	})

	go func() {
		forwardErr := group.Wait()
		waitErr := proc.cmd.Wait()
		proc.err = errors.Join(waitErr, forwardErr)
		close(proc.done)
	}()

	return proc, nil
}

// forward logs each line of r. Reads must be complete before the process is
// waited for.
func (m *Machine) forward(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		m.logger.Warn("QEMU", slog.String("machine", m.name), slog.String("stderr", scanner.Text()))
	}

	return scanner.Err()
}

func (m *Machine) awaitQMP(ctx context.Context, proc *process) (*QMP, error) {
	waitCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	go func() {
		select {
		case <-proc.done:
			cancel(ErrExited)
		case <-waitCtx.Done():
		}
	}()

	var qmp *QMP

	probe := func(ctx context.Context) (*QMP, error) {
		return DialQMP(ctx, proc.spec.QMPSocketPath(), m.logger)
	}

	outcome := wait.For(waitCtx, probe,
		func(q *QMP) bool {
			qmp = q
			return q != nil
		},
		wait.WithTimeout(m.startTimeout),
		wait.WithPollInterval(qmpPollInterval),
		wait.WithLogger(m.logger),
		wait.WithDescription("qmp socket"),
	)
	if outcome.OK {
		return qmp, nil
	}

	if errors.Is(context.Cause(waitCtx), ErrExited) {
		<-proc.done
		return nil, &CommandError{Op: "power on", Err: errors.Join(ErrExited, proc.err)}
	}

	return nil, &CommandError{Op: "power on", Err: outcome.Check("qmp socket")}
}

// PowerOff implements [machine.PowerControl]. QEMU is asked to quit and is
// killed if it does not exit within the grace period.
func (m *Machine) PowerOff(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	proc := m.proc
	if proc == nil {
		return nil
	}

	m.proc = nil

	if proc.exited() {
		m.cleanup(proc)
		return nil
	}

	var quitErr error
	if proc.qmp != nil {
		quitErr = proc.qmp.Quit(ctx)
	}

	timer := time.NewTimer(m.gracePeriod)
	defer timer.Stop()

	select {
	case <-proc.done:
	case <-timer.C:
		m.logger.Warn("QEMU did not quit, killing", slog.String("machine", m.name))
		m.kill(proc)
	case <-ctx.Done():
		m.kill(proc)
	}

	m.cleanup(proc)

	m.logger.Info("Machine powered off", slog.String("machine", m.name))

	if quitErr != nil {
		return fmt.Errorf("quit: %w", quitErr)
	}

	return nil
}

func (m *Machine) kill(proc *process) {
	if err := proc.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		m.logger.Warn("Kill QEMU", slog.Any("error", err))
	}

	<-proc.done
}

func (m *Machine) cleanup(proc *process) {
	if proc.qmp != nil {
		_ = proc.qmp.Close()
	}

	if proc.ownsRunDir {
		_ = os.RemoveAll(proc.spec.RuntimeDir)
	}
}

// ConsoleEndpoint implements [machine.ConsoleEndpointProvider].
func (m *Machine) ConsoleEndpoint(context.Context) (machine.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running() {
		return machine.Endpoint{}, machine.ErrNotRunning
	}

	return machine.Endpoint{
		Network: "unix",
		Address: m.proc.spec.SerialSocketPath(),
	}, nil
}

// DisplayEndpoint implements [machine.DisplayEndpointProvider].
func (m *Machine) DisplayEndpoint(context.Context) (machine.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running() {
		return machine.Endpoint{}, machine.ErrNotRunning
	}

	return machine.Endpoint{
		Network: "unix",
		Address: m.proc.spec.VNCSocketPath(),
	}, nil
}
