// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tunnel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/aibor/otter/internal/wait"
)

const (
	// DefaultExecutable is the websocat binary looked up in PATH.
	DefaultExecutable = "websocat"

	// DefaultProtocol is the websocket sub protocol of VMware webmks
	// tickets.
	DefaultProtocol = "binary, vmware-vvc"

	// DefaultGracePeriod is the time a process gets to exit after SIGTERM
	// before it is killed.
	DefaultGracePeriod = 3 * time.Second

	// DefaultReadyTimeout bounds the wait for a new process to listen.
	DefaultReadyTimeout = 5 * time.Second

	readyPollInterval = 50 * time.Millisecond
	defaultProcNetDir = "/proc/net"
)

// State of a tunnel process.
type State int

const (
	// StateRunning is the state of a process that did not exit yet.
	StateRunning State = iota
	// StateExited is the state of a process that exited.
	StateExited
)

// String implements [fmt.Stringer].
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// Handle describes a started tunnel.
type Handle struct {
	Port        int
	BindAddress string
	Target      string
	PID         int
}

// Address returns the local "host:port" the tunnel listens on.
func (h Handle) Address() string {
	return net.JoinHostPort(h.BindAddress, strconv.Itoa(h.Port))
}

type process struct {
	handle Handle
	cmd    *exec.Cmd
	done   chan struct{}
	err    error
}

func (p *process) state() State {
	select {
	case <-p.done:
		return StateExited
	default:
		return StateRunning
	}
}

// Option configures a [Manager].
type Option func(*Manager)

// WithExecutable sets the websocat binary name or path.
func WithExecutable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.executable = name
		}
	}
}

// WithProtocol sets the websocket sub protocol.
func WithProtocol(protocol string) Option {
	return func(m *Manager) {
		m.protocol = protocol
	}
}

// WithGracePeriod sets the time between SIGTERM and SIGKILL.
func WithGracePeriod(d time.Duration) Option {
	return func(m *Manager) {
		m.gracePeriod = d
	}
}

// WithReadyTimeout sets how long [Manager.Start] waits for the process to
// listen. Zero disables the readiness check.
func WithReadyTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.readyTimeout = d
	}
}

// WithLogger sets the logger process events and output are reported to.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// Manager starts and stops tunnel processes.
//
// It is safe for concurrent use.
type Manager struct {
	mu    sync.Mutex
	procs map[int]*process

	executable   string
	protocol     string
	gracePeriod  time.Duration
	readyTimeout time.Duration
	procNetDir   string
	logger       *slog.Logger
}

// New creates a [Manager]. It fails if the websocat binary can not be found.
func New(opts ...Option) (*Manager, error) {
	m := &Manager{
		procs:        make(map[int]*process),
		executable:   DefaultExecutable,
		protocol:     DefaultProtocol,
		gracePeriod:  DefaultGracePeriod,
		readyTimeout: DefaultReadyTimeout,
		procNetDir:   defaultProcNetDir,
		logger:       slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		opt(m)
	}

	path, err := exec.LookPath(m.executable)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutableNotFound, err)
	}

	m.executable = path

	return m, nil
}

func (m *Manager) args(target, bindAddress string, port int, verifyTLS bool) []string {
	listen := "tcp-listen:" + net.JoinHostPort(bindAddress, strconv.Itoa(port))

	args := []string{"-b", listen, target}
	if !verifyTLS {
		args = append(args, "-k")
	}

	if m.protocol != "" {
		args = append(args, "--protocol", m.protocol)
	}

	return args
}

// reservePort returns a currently free port on the bind address.
func reservePort(bindAddress string) (int, error) {
	listener, err := net.Listen("tcp", net.JoinHostPort(bindAddress, "0"))
	if err != nil {
		return 0, fmt.Errorf("reserve port: %w", err)
	}

	defer listener.Close()

	addr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		return 0, fmt.Errorf("reserve port: unexpected address %s", listener.Addr())
	}

	return addr.Port, nil
}

// Start starts a tunnel from a free port on bindAddress to the websocket at
// target. With verifyTLS false, the server certificate is not verified.
//
// Unless disabled, Start waits until the process listens. If it does not,
// the process is stopped and an error is returned.
func (m *Manager) Start(
	ctx context.Context,
	target string,
	bindAddress string,
	verifyTLS bool,
) (Handle, error) {
	port, err := reservePort(bindAddress)
	if err != nil {
		return Handle{}, err
	}

	logger := m.logger.With(slog.Int("port", port))

	//nolint:gosec
	cmd := exec.Command(m.executable, m.args(target, bindAddress, port, verifyTLS)...)
	cmd.Stdout = &logWriter{logger: logger, stream: "stdout"}
	cmd.Stderr = &logWriter{logger: logger, stream: "stderr"}

	err = cmd.Start()
	if err != nil {
		return Handle{}, &ProcessError{Port: port, Op: "start", Err: err}
	}

	proc := &process{
		handle: Handle{
			Port:        port,
			BindAddress: bindAddress,
			Target:      target,
			PID:         cmd.Process.Pid,
		},
		cmd:  cmd,
		done: make(chan struct{}),
	}

	go func() {
		proc.err = cmd.Wait()
		close(proc.done)

		logger.Debug("Tunnel process exited", slog.Any("status", proc.err))
	}()

	m.mu.Lock()
	m.procs[port] = proc
	m.mu.Unlock()

	logger.Info("Tunnel started",
		slog.String("address", proc.handle.Address()),
		slog.Int("pid", proc.handle.PID),
		slog.Bool("verify_tls", verifyTLS),
	)

	err = m.awaitReady(ctx, proc)
	if err != nil {
		stopErr := m.Stop(port)
		return Handle{}, errors.Join(err, stopErr)
	}

	return proc.handle, nil
}

type readiness int

const (
	pending readiness = iota
	ready
	exited
)

func (m *Manager) awaitReady(ctx context.Context, proc *process) error {
	if m.readyTimeout <= 0 || !procNetAvailable(m.procNetDir) {
		return nil
	}

	port := proc.handle.Port

	probe := func(context.Context) (readiness, error) {
		if proc.state() == StateExited {
			return exited, nil
		}

		ok, err := listening(m.procNetDir, port)
		if err != nil || !ok {
			return pending, err
		}

		return ready, nil
	}

	outcome := wait.For(ctx, probe,
		func(r readiness) bool { return r != pending },
		wait.WithTimeout(m.readyTimeout),
		wait.WithPollInterval(readyPollInterval),
		wait.WithLogger(m.logger),
		wait.WithDescription(fmt.Sprintf("tunnel port %d", port)),
	)

	switch {
	case outcome.Err != nil:
		return &ProcessError{Port: port, Op: "ready", Err: outcome.Err}
	case !outcome.OK:
		return &ProcessError{Port: port, Op: "ready", Err: ErrNotReady}
	case proc.state() == StateExited:
		return &ProcessError{
			Port: port,
			Op:   "ready",
			Err:  fmt.Errorf("%w: %w", ErrExited, proc.err),
		}
	default:
		return nil
	}
}

// Stop terminates the processes listening on the given ports, or all
// processes if no port is given. Unknown ports are ignored.
//
// Running processes receive SIGTERM and are killed if they do not exit
// within the grace period. They are removed from the registry once
// signalled. Processes that already exited are just removed. Calling Stop
// again for the same ports is a no-op.
func (m *Manager) Stop(ports ...int) error {
	m.mu.Lock()

	var selected []*process

	for port, proc := range m.procs {
		if len(ports) > 0 && !slices.Contains(ports, port) {
			continue
		}

		selected = append(selected, proc)
	}

	var errs []error

	for _, proc := range selected {
		err := m.terminate(proc)
		if err != nil {
			errs = append(errs, err)
		}

		delete(m.procs, proc.handle.Port)
	}

	m.mu.Unlock()

	errs = append(errs, m.reapAll(selected))

	return errors.Join(errs...)
}

// reapAll reaps the processes concurrently. Errors of all processes are
// returned joined.
func (m *Manager) reapAll(procs []*process) error {
	var (
		group errgroup.Group
		mu    sync.Mutex
		errs  []error
	)

	for _, proc := range procs {
		group.Go(func() error {
			err := m.reap(proc)
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}

			return nil
		})
	}

	_ = group.Wait()

	return errors.Join(errs...)
}

// terminate sends SIGTERM to a running process.
func (m *Manager) terminate(proc *process) error {
	if proc.state() == StateExited {
		return nil
	}

	err := unix.Kill(proc.handle.PID, unix.SIGTERM)
	if err != nil && !errors.Is(err, unix.ESRCH) {
		m.logger.Warn("Failed to terminate tunnel",
			slog.Int("port", proc.handle.Port),
			slog.Any("error", err),
		)

		return &ProcessError{Port: proc.handle.Port, Op: "terminate", Err: err}
	}

	return nil
}

// reap waits for the process to exit and kills it after the grace period.
func (m *Manager) reap(proc *process) error {
	timer := time.NewTimer(m.gracePeriod)
	defer timer.Stop()

	select {
	case <-proc.done:
		return nil
	case <-timer.C:
	}

	m.logger.Warn("Tunnel did not exit in time, killing it",
		slog.Int("port", proc.handle.Port),
		slog.Duration("grace_period", m.gracePeriod),
	)

	err := proc.cmd.Process.Kill()
	if err != nil && !errors.Is(err, unix.ESRCH) && !errors.Is(err, os.ErrProcessDone) {
		return &ProcessError{Port: proc.handle.Port, Op: "kill", Err: err}
	}

	<-proc.done

	return nil
}

// Len returns the number of tracked processes.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.procs)
}

// Ports returns the ports of all tracked processes in ascending order.
func (m *Manager) Ports() []int {
	m.mu.Lock()
	defer m.mu.Unlock()

	ports := make([]int, 0, len(m.procs))
	for port := range m.procs {
		ports = append(ports, port)
	}

	slices.Sort(ports)

	return ports
}

// Handles returns the handles of all tracked processes ordered by port.
func (m *Manager) Handles() []Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	handles := make([]Handle, 0, len(m.procs))
	for _, proc := range m.procs {
		handles = append(handles, proc.handle)
	}

	slices.SortFunc(handles, func(a, b Handle) int {
		return a.Port - b.Port
	})

	return handles
}

// Lookup returns the handle and state of the process on port.
func (m *Manager) Lookup(port int) (Handle, State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	proc, exists := m.procs[port]
	if !exists {
		return Handle{}, StateExited, false
	}

	return proc.handle, proc.state(), true
}

// logWriter forwards process output to the logger line by line.
type logWriter struct {
	logger *slog.Logger
	stream string
}

func (w *logWriter) Write(p []byte) (int, error) {
	for line := range strings.Lines(string(p)) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		w.logger.Debug("Tunnel output",
			slog.String("stream", w.stream),
			slog.String("line", line),
		)
	}

	return len(p), nil
}
