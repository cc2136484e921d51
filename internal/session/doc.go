// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package session drives a single test run against a machine.
//
// A [Session] restores the machine's baseline snapshot, powers it on and
// attaches a console and a screen channel to it. Test code interacts with the
// machine through these channels and finally calls [Session.Exit], which
// tears everything down and persists the console log and a run manifest in
// the output directory.
//
// Channels that cannot be attached are replaced by detached ones, unless
// [AttachFailFast] is configured. Independent waits on the console and the
// screen channel may run concurrently.
package session
