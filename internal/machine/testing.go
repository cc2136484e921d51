// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package machine

import (
	"context"
	"sync"
)

// Fake is an in-memory [Machine]. It records all calls in order. Errors set
// in the exported fields are returned by the respective method.
type Fake struct {
	MachineName string
	Console     Endpoint
	Display     Endpoint

	RevertErr   error
	PowerOnErr  error
	PowerOffErr error
	ConsoleErr  error
	DisplayErr  error

	mu      sync.Mutex
	calls   []string
	running bool
}

var _ Machine = (*Fake)(nil)

// Calls returns the names of all methods called so far.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.calls...)
}

// Running returns true if the machine was powered on and not off again.
func (f *Fake) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.running
}

func (f *Fake) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, call)
}

// Name implements [Machine].
func (f *Fake) Name() string {
	return f.MachineName
}

// RevertSnapshot implements [SnapshotControl].
func (f *Fake) RevertSnapshot(_ context.Context, name string) error {
	f.record("revert " + name)
	return f.RevertErr
}

// PowerOn implements [PowerControl].
func (f *Fake) PowerOn(context.Context) error {
	f.record("power on")

	if f.PowerOnErr != nil {
		return f.PowerOnErr
	}

	f.mu.Lock()
	f.running = true
	f.mu.Unlock()

	return nil
}

// PowerOff implements [PowerControl].
func (f *Fake) PowerOff(context.Context) error {
	f.record("power off")

	if f.PowerOffErr != nil {
		return f.PowerOffErr
	}

	f.mu.Lock()
	f.running = false
	f.mu.Unlock()

	return nil
}

// ConsoleEndpoint implements [ConsoleEndpointProvider].
func (f *Fake) ConsoleEndpoint(context.Context) (Endpoint, error) {
	f.record("console endpoint")
	return f.Console, f.ConsoleErr
}

// DisplayEndpoint implements [DisplayEndpointProvider].
func (f *Fake) DisplayEndpoint(context.Context) (Endpoint, error) {
	f.record("display endpoint")
	return f.Display, f.DisplayErr
}
