// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package serial opens console transports.
//
// Terminal devices are put into raw mode with a read timeout, so reads return
// once the line was idle for that long. Socket connections get a read
// deadline before each read for the same effect. Terminal support is Linux
// only.
package serial
