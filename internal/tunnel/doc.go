// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package tunnel runs websocat processes that expose a remote display
// websocket as a local TCP port.
//
// A [Manager] keeps track of all processes it started, keyed by their local
// port, and terminates them on [Manager.Stop].
//
// The local port is picked by binding to port 0 and releasing the port again
// right before the process binds it. Another process may grab the port in
// between. Readiness is detected by watching the kernel socket table instead
// of connecting, because display tickets are single use and a probing
// connection would consume them.
package tunnel
