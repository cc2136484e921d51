// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package machine defines the capabilities a virtualization platform must
// provide to run a session against one of its machines.
package machine
