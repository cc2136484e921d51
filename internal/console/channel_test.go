// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package console_test

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aibor/otter/internal/console"
	"github.com/aibor/otter/internal/wait"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestChannelRead(t *testing.T) {
	tests := []struct {
		name     string
		feeds    []string
		readErr  error
		expected []string
	}{
		{
			name:     "empty",
			feeds:    []string{""},
			expected: []string{""},
		},
		{
			name:     "single chunk",
			feeds:    []string{"dom0 login: "},
			expected: []string{"dom0 login: "},
		},
		{
			name:     "multiple chunks",
			feeds:    []string{strings.Repeat("x", 2*console.ChunkSize+452)},
			expected: []string{strings.Repeat("x", 2*console.ChunkSize+452)},
		},
		{
			name:     "exact chunk size",
			feeds:    []string{strings.Repeat("y", console.ChunkSize)},
			expected: []string{strings.Repeat("y", console.ChunkSize)},
		},
		{
			name:     "consecutive reads",
			feeds:    []string{"first ", "second"},
			expected: []string{"first ", "second"},
		},
		{
			name:     "eof ends drain",
			feeds:    []string{"abc"},
			readErr:  io.EOF,
			expected: []string{"abc"},
		},
		{
			name:     "deadline ends drain",
			feeds:    []string{"abc"},
			readErr:  os.ErrDeadlineExceeded,
			expected: []string{"abc"},
		},
		{
			name:     "other errors degrade to data read",
			feeds:    []string{"abc"},
			readErr:  assert.AnError,
			expected: []string{"abc"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &console.MemoryTransport{ReadErr: tt.readErr}
			channel := console.New(transport)

			var all string

			for idx, feed := range tt.feeds {
				transport.Feed(feed)

				actual := channel.Read()
				assert.Equal(t, tt.expected[idx], string(actual))

				all += tt.expected[idx]
			}

			assert.Equal(t, all, string(channel.Log()))
			assert.Equal(t, len(all), channel.Mark())
		})
	}
}

func TestChannelWrite(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		transport := &console.MemoryTransport{}
		channel := console.New(transport)

		assert.True(t, channel.Write("user\n"))
		assert.True(t, channel.Write("pässword\n"))
		assert.Equal(t, "user\npässword\n", transport.Written())
		assert.Empty(t, channel.Log())
	})

	t.Run("transport failure", func(t *testing.T) {
		transport := &console.MemoryTransport{WriteErr: assert.AnError}
		channel := console.New(transport)

		assert.False(t, channel.Write("user\n"))
	})

	t.Run("detached", func(t *testing.T) {
		channel := console.Detached()

		assert.False(t, channel.Attached())
		assert.False(t, channel.Write("user\n"))
		assert.Empty(t, channel.Read())
	})
}

func TestChannelLoopbackOrdering(t *testing.T) {
	transport := &console.MemoryTransport{Loopback: true}
	channel := console.New(transport)

	require.True(t, channel.Write("A"))
	require.True(t, channel.Write("B"))

	assert.Equal(t, []byte("AB"), channel.Read())
	assert.Equal(t, "AB", string(channel.Log()))

	mark := channel.Mark()

	for _, text := range []string{"C", "", "DE", "", "F"} {
		if text != "" {
			require.True(t, channel.Write(text))
		}

		channel.Read()

		next := channel.Mark()
		assert.GreaterOrEqual(t, next, mark, "mark after %q", text)
		mark = next
	}

	assert.Equal(t, "ABCDEF", string(channel.Log()))
	assert.Equal(t, len("ABCDEF"), channel.Mark())
}

func TestChannelWaitFor(t *testing.T) {
	tests := []struct {
		name         string
		before       string
		mark         bool
		appears      string
		appearsAfter time.Duration
		substr       string
		expectedOK   bool
		expectedTime time.Duration
	}{
		{
			name:         "appears during wait",
			appears:      "\r\ndom0 login: ",
			appearsAfter: 3 * time.Second,
			substr:       "login:",
			expectedOK:   true,
			expectedTime: 3 * time.Second,
		},
		{
			name:         "never appears",
			appears:      "Welcome",
			appearsAfter: time.Second,
			substr:       "login:",
			expectedOK:   false,
			expectedTime: 5 * time.Second,
		},
		{
			name:         "already in log",
			before:       "dom0 login: ",
			substr:       "login:",
			expectedOK:   true,
			expectedTime: 0,
		},
		{
			name:         "already in log but before mark",
			before:       "dom0 login: ",
			mark:         true,
			substr:       "login:",
			expectedOK:   false,
			expectedTime: 5 * time.Second,
		},
		{
			name:         "after mark",
			before:       "dom0 login: ",
			mark:         true,
			appears:      "dom0 login: ",
			appearsAfter: 2 * time.Second,
			substr:       "login:",
			expectedOK:   true,
			expectedTime: 2 * time.Second,
		},
		{
			name:         "split across reads",
			before:       "dom0 lo",
			appears:      "gin: ",
			appearsAfter: time.Second,
			substr:       "login:",
			expectedOK:   true,
			expectedTime: time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := wait.NewFakeClock(epoch)
			transport := &console.MemoryTransport{}
			channel := console.New(transport,
				console.WithClock(clock),
				console.WithDefaultTimeout(5*time.Second),
			)

			transport.Feed(tt.before)
			channel.Read()

			var opts []console.WaitOption
			if tt.mark {
				opts = append(opts, console.Since(channel.Mark()))
			}

			if tt.appears != "" {
				clock.At(tt.appearsAfter, func() { transport.Feed(tt.appears) })
			}

			outcome := channel.WaitFor(t.Context(), tt.substr, opts...)

			assert.Equal(t, tt.expectedOK, outcome.OK, "ok")
			assert.Equal(t, tt.expectedTime, outcome.Elapsed, "elapsed")
		})
	}
}

func TestChannelWaitForTimeoutOverride(t *testing.T) {
	clock := wait.NewFakeClock(epoch)
	channel := console.New(&console.MemoryTransport{},
		console.WithClock(clock),
		console.WithDefaultTimeout(time.Minute),
	)

	outcome := channel.WaitFor(t.Context(), "never",
		console.Timeout(2*time.Second),
		console.PollInterval(500*time.Millisecond),
	)

	assert.False(t, outcome.OK)
	assert.Equal(t, 2*time.Second, outcome.Elapsed)
	assert.Equal(t, 5, outcome.Polls)
}

func TestChannelWaitForDetached(t *testing.T) {
	clock := wait.NewFakeClock(epoch)
	channel := console.Detached(console.WithClock(clock))

	outcome := channel.WaitFor(t.Context(), "login:", console.Timeout(3*time.Second))

	assert.False(t, outcome.OK)
	assert.Equal(t, 3*time.Second, outcome.Elapsed)
}

func TestChannelConcurrentWaits(t *testing.T) {
	transport := &console.MemoryTransport{}
	channel := console.New(transport,
		console.WithDefaultTimeout(5*time.Second),
		console.WithDefaultPollInterval(10*time.Millisecond),
	)

	var wg sync.WaitGroup

	results := make([]bool, 2)

	for idx, substr := range []string{"first", "second"} {
		wg.Add(1)

		go func() {
			defer wg.Done()

			results[idx] = channel.WaitFor(t.Context(), substr).OK
		}()
	}

	transport.Feed("first line\n")
	transport.Feed("second line\n")

	wg.Wait()

	assert.Equal(t, []bool{true, true}, results)
	assert.Equal(t, "first line\nsecond line\n", string(channel.Log()))
}

func TestChannelFlush(t *testing.T) {
	transport := &console.MemoryTransport{}
	channel := console.New(transport)

	transport.Feed("boot messages\n")
	channel.Read()

	t.Run("success", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "serial.log")

		require.NoError(t, channel.Flush(path))

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "boot messages\n", string(content))
	})

	t.Run("missing directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing", "serial.log")

		assert.Error(t, channel.Flush(path))
	})
}

func TestChannelClose(t *testing.T) {
	t.Run("closes once", func(t *testing.T) {
		transport := &console.MemoryTransport{}
		channel := console.New(transport)

		transport.Feed("kept")
		channel.Read()

		require.NoError(t, channel.Close())
		require.NoError(t, channel.Close())

		assert.True(t, transport.Closed())
		assert.False(t, channel.Attached())
		assert.False(t, channel.Write("lost"))
		assert.Equal(t, "kept", string(channel.Log()))
	})

	t.Run("close error", func(t *testing.T) {
		transport := &console.MemoryTransport{CloseErr: assert.AnError}
		channel := console.New(transport)

		err := channel.Close()
		require.ErrorIs(t, err, &console.TransportError{})
		require.ErrorIs(t, err, assert.AnError)
	})
}

func TestChannelAttach(t *testing.T) {
	channel := console.Detached()
	assert.False(t, channel.Write("dropped"))

	transport := &console.MemoryTransport{}
	require.NoError(t, channel.Attach(transport))
	assert.True(t, channel.Attached())

	err := channel.Attach(&console.MemoryTransport{})
	require.ErrorIs(t, err, console.ErrAttached)

	assert.True(t, channel.Write("sent"))
	assert.Equal(t, "sent", transport.Written())
}
