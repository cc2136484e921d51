// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

// DefaultQMPTimeout bounds a single QMP command if the context has no
// deadline.
const DefaultQMPTimeout = 10 * time.Second

// QMPVersion is the QEMU version announced in the QMP greeting.
type QMPVersion struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Micro int `json:"micro"`
}

// String implements [fmt.Stringer].
func (v QMPVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Micro)
}

type qmpGreeting struct {
	QMP *struct {
		Version struct {
			QEMU QMPVersion `json:"qemu"`
		} `json:"version"`
	} `json:"QMP"`
}

type qmpCommand struct {
	Execute   string `json:"execute"`
	Arguments any    `json:"arguments,omitempty"`
}

type qmpResponse struct {
	Return json.RawMessage `json:"return"`
	Error  *struct {
		Class string `json:"class"`
		Desc  string `json:"desc"`
	} `json:"error"`
	Event string `json:"event"`
}

// QMP is a client for the QEMU machine protocol. Commands are serialized.
// Asynchronous events received while waiting for a response are logged and
// dropped.
type QMP struct {
	mu      sync.Mutex
	conn    net.Conn
	dec     *json.Decoder
	enc     *json.Encoder
	version QMPVersion
	logger  *slog.Logger
}

// DialQMP connects to the QMP unix socket at path, reads the greeting and
// enters command mode.
func DialQMP(ctx context.Context, path string, logger *slog.Logger) (*QMP, error) {
	var dialer net.Dialer

	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial qmp: %w", err)
	}

	qmp, err := NewQMP(ctx, conn, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return qmp, nil
}

// NewQMP runs the QMP handshake on an established connection.
func NewQMP(ctx context.Context, conn net.Conn, logger *slog.Logger) (*QMP, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	qmp := &QMP{
		conn:   conn,
		dec:    json.NewDecoder(conn),
		enc:    json.NewEncoder(conn),
		logger: logger,
	}

	setDeadline(ctx, conn)

	var greeting qmpGreeting
	if err := qmp.dec.Decode(&greeting); err != nil {
		return nil, fmt.Errorf("read qmp greeting: %w", err)
	}

	if greeting.QMP == nil {
		return nil, &QMPError{
			Command: "greeting",
			Class:   "ProtocolError",
			Desc:    "no greeting received",
		}
	}

	qmp.version = greeting.QMP.Version.QEMU

	if err := qmp.Execute(ctx, "qmp_capabilities", nil, nil); err != nil {
		return nil, err
	}

	logger.Debug("QMP connected", slog.String("version", qmp.version.String()))

	return qmp, nil
}

// Version returns the QEMU version of the peer.
func (q *QMP) Version() QMPVersion {
	return q.version
}

// Execute runs the command with the given arguments. If result is not nil,
// the return value is decoded into it.
func (q *QMP) Execute(ctx context.Context, command string, args, result any) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	setDeadline(ctx, q.conn)

	err := q.enc.Encode(qmpCommand{Execute: command, Arguments: args})
	if err != nil {
		return fmt.Errorf("send qmp %s: %w", command, err)
	}

	for {
		var resp qmpResponse
		if err := q.dec.Decode(&resp); err != nil {
			return fmt.Errorf("receive qmp %s: %w", command, err)
		}

		switch {
		case resp.Event != "":
			q.logger.Debug("QMP event", slog.String("event", resp.Event))
			continue
		case resp.Error != nil:
			return &QMPError{
				Command: command,
				Class:   resp.Error.Class,
				Desc:    resp.Error.Desc,
			}
		case result == nil || resp.Return == nil:
			return nil
		}

		if err := json.Unmarshal(resp.Return, result); err != nil {
			return fmt.Errorf("decode qmp %s: %w", command, err)
		}

		return nil
	}
}

// HumanMonitorCommand runs a human monitor command line and returns its
// output.
func (q *QMP) HumanMonitorCommand(ctx context.Context, cmdline string) (string, error) {
	var output string

	args := map[string]string{"command-line": cmdline}

	err := q.Execute(ctx, "human-monitor-command", args, &output)
	if err != nil {
		return "", err
	}

	return output, nil
}

// Status returns the run state of the machine, like "running" or "paused".
func (q *QMP) Status(ctx context.Context) (string, error) {
	var status struct {
		Status string `json:"status"`
	}

	if err := q.Execute(ctx, "query-status", nil, &status); err != nil {
		return "", err
	}

	return status.Status, nil
}

// Quit asks QEMU to exit. QEMU may close the connection before it responds,
// which is not an error.
func (q *QMP) Quit(ctx context.Context) error {
	err := q.Execute(ctx, "quit", nil, nil)
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return nil
	}

	return err
}

// Close closes the connection.
func (q *QMP) Close() error {
	return q.conn.Close()
}

func setDeadline(ctx context.Context, conn net.Conn) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultQMPTimeout)
	}

	_ = conn.SetDeadline(deadline)
}
