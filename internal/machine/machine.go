// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package machine

import (
	"context"
	"errors"
	"net"
	"strconv"
)

// ErrNotRunning is returned for endpoints of machines that are powered off.
var ErrNotRunning = errors.New("machine not running")

// NetworkTicket is the [Endpoint] network of display endpoints that are
// websocket ticket URLs and need a tunnel.
const NetworkTicket = "ticket"

// Endpoint is where a console or display of a machine can be reached.
type Endpoint struct {
	// Network is "tty" for terminal devices, "unix" or "tcp" for sockets and
	// [NetworkTicket] for websocket ticket URLs.
	Network string

	// Address is the device path, socket address or URL.
	Address string

	// VerifyTLS is only used for ticket URLs.
	VerifyTLS bool
}

// IsTicket returns true if the endpoint is a websocket ticket URL.
func (e Endpoint) IsTicket() bool {
	return e.Network == NetworkTicket
}

// String implements [fmt.Stringer].
func (e Endpoint) String() string {
	return e.Network + ":" + e.Address
}

// TCPEndpoint returns the TCP endpoint of host and port.
func TCPEndpoint(host string, port int) Endpoint {
	return Endpoint{Network: "tcp", Address: net.JoinHostPort(host, strconv.Itoa(port))}
}

// PowerControl turns a machine on and off.
type PowerControl interface {
	// PowerOn starts the machine. It is a no-op for running machines.
	PowerOn(ctx context.Context) error

	// PowerOff stops the machine. It is a no-op for stopped machines.
	PowerOff(ctx context.Context) error
}

// SnapshotControl restores machine snapshots.
type SnapshotControl interface {
	// RevertSnapshot restores the named snapshot.
	RevertSnapshot(ctx context.Context, name string) error
}

// ConsoleEndpointProvider locates the text console of a machine.
type ConsoleEndpointProvider interface {
	ConsoleEndpoint(ctx context.Context) (Endpoint, error)
}

// DisplayEndpointProvider locates the remote display of a machine.
type DisplayEndpointProvider interface {
	DisplayEndpoint(ctx context.Context) (Endpoint, error)
}

// Machine is a single virtual machine with all capabilities a session needs.
type Machine interface {
	Name() string
	PowerControl
	SnapshotControl
	ConsoleEndpointProvider
	DisplayEndpointProvider
}
