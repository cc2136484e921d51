// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package console

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/aibor/otter/internal/wait"
)

// ChunkSize is the size of a single transport read. A read that returns less
// ends a drain.
const ChunkSize = 1024

// Transport is the byte stream of a console.
//
// Read must not block indefinitely. Implementations either return (0, nil),
// [io.EOF] or [os.ErrDeadlineExceeded] once no data arrived within their read
// timeout.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
}

// Channel is the text console of a machine.
//
// All methods are safe for concurrent use. Concurrent waits all drain the
// same transport and all see the same cumulative log.
type Channel struct {
	mu        sync.Mutex
	transport Transport
	log       []byte

	logger       *slog.Logger
	clock        wait.Clock
	timeout      time.Duration
	pollInterval time.Duration
}

// New creates a new [Channel] on the given transport. A nil transport
// creates a detached channel. See [Detached].
func New(transport Transport, opts ...Option) *Channel {
	c := &Channel{
		transport:    transport,
		logger:       slog.New(slog.DiscardHandler),
		clock:        wait.RealClock,
		pollInterval: wait.DefaultPollInterval,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Detached creates a [Channel] without transport. Writes fail, reads return
// nothing and waits time out. The log stays empty.
func Detached(opts ...Option) *Channel {
	return New(nil, opts...)
}

// Attached returns true if the channel has a transport.
func (c *Channel) Attached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.transport != nil
}

// Attach sets the transport of a detached channel. The log is kept.
func (c *Channel) Attach(transport Transport) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transport != nil {
		return ErrAttached
	}

	c.transport = transport

	return nil
}

// Write sends text to the console. It returns false if the transport is
// missing or the write failed. The error is logged.
func (c *Channel) Write(text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transport == nil {
		c.logger.Warn("Console write dropped", slog.Any("error", ErrDetached))
		return false
	}

	_, err := c.transport.Write([]byte(text))
	if err != nil {
		c.logger.Error("Console write failed",
			slog.Any("error", &TransportError{Op: "write", Err: err}))

		return false
	}

	return true
}

// Read drains all currently available bytes from the transport. Every byte is
// appended to the log. Only the bytes of this call are returned.
func (c *Channel) Read() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.drain()
}

func (c *Channel) drain() []byte {
	if c.transport == nil {
		return nil
	}

	var (
		out   []byte
		chunk = make([]byte, ChunkSize)
	)

	for {
		n, err := c.transport.Read(chunk)
		out = append(out, chunk[:n]...)

		if err != nil {
			if !isEndOfData(err) {
				c.logger.Error("Console read failed",
					slog.Any("error", &TransportError{Op: "read", Err: err}))
			}

			break
		}

		if n < ChunkSize {
			break
		}
	}

	c.log = append(c.log, out...)

	return out
}

func isEndOfData(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, os.ErrDeadlineExceeded)
}

// WaitFor polls the console until the log contains substr.
//
// The whole log is matched, including output read before the wait started.
// Use [Since] to restrict it.
func (c *Channel) WaitFor(
	ctx context.Context,
	substr string,
	opts ...WaitOption,
) wait.Outcome {
	o := waitOptions{
		timeout:      c.timeout,
		pollInterval: c.pollInterval,
	}

	for _, opt := range opts {
		opt(&o)
	}

	needle := []byte(substr)

	probe := func(context.Context) (bool, error) {
		c.mu.Lock()
		defer c.mu.Unlock()

		c.drain()

		since := min(o.since, len(c.log))

		return bytes.Contains(c.log[since:], needle), nil
	}

	outcome := wait.For(ctx, probe, func(found bool) bool { return found },
		wait.WithTimeout(o.timeout),
		wait.WithPollInterval(o.pollInterval),
		wait.WithClock(c.clock),
		wait.WithLogger(c.logger),
		wait.WithDescription(fmt.Sprintf("console %q", substr)),
	)

	c.logger.Debug("Console wait finished",
		slog.String("text", substr),
		slog.Bool("found", outcome.OK),
		slog.Duration("elapsed", outcome.Elapsed),
	)

	return outcome
}

// Settle pauses for the given duration. It is meant for pacing input the
// guest needs time to react to.
func (c *Channel) Settle(ctx context.Context, d time.Duration) error {
	return c.clock.Sleep(ctx, d)
}

// Log returns a copy of the cumulative log.
func (c *Channel) Log() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	return bytes.Clone(c.log)
}

// Mark returns the current log length for use with [Since].
func (c *Channel) Mark() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.log)
}

// Flush writes the log to the file at path.
func (c *Channel) Flush(path string) error {
	data := c.Log()

	err := os.WriteFile(path, data, 0o644) //nolint:gosec
	if err != nil {
		return fmt.Errorf("write console log: %w", err)
	}

	return nil
}

// Close closes the transport. The log stays available. Subsequent writes fail
// as on a detached channel.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transport == nil {
		return nil
	}

	err := c.transport.Close()
	c.transport = nil

	if err != nil {
		return &TransportError{Op: "close", Err: err}
	}

	return nil
}
