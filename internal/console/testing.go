// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package console

import (
	"bytes"
	"io"
	"sync"
)

// MemoryTransport is an in-memory [Transport]. Data passed to
// [MemoryTransport.Feed] is returned by subsequent reads. Reads of an empty
// buffer return (0, nil), like a serial line after its read timeout.
//
// With Loopback set, written data is also queued for reading, like a terminal
// echoing its input.
type MemoryTransport struct {
	Loopback bool

	mu       sync.Mutex
	pending  bytes.Buffer
	written  bytes.Buffer
	closed   bool
	ReadErr  error
	WriteErr error
	CloseErr error
}

// Feed queues data for reading.
func (t *MemoryTransport) Feed(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pending.WriteString(data)
}

// Written returns everything written so far.
func (t *MemoryTransport) Written() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.written.String()
}

// Closed returns true once Close was called.
func (t *MemoryTransport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.closed
}

// Read implements [io.Reader].
func (t *MemoryTransport) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, io.ErrClosedPipe
	}

	if t.pending.Len() == 0 {
		return 0, t.ReadErr
	}

	return t.pending.Read(p)
}

// Write implements [io.Writer].
func (t *MemoryTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.WriteErr != nil {
		return 0, t.WriteErr
	}

	if t.closed {
		return 0, io.ErrClosedPipe
	}

	if t.Loopback {
		t.pending.Write(p)
	}

	return t.written.Write(p)
}

// Close implements [io.Closer].
func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true

	return t.CloseErr
}
