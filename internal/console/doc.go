// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package console wraps the text console of a machine.
//
// A [Channel] sends input to a [Transport] and accumulates everything read
// from it in a log that lives as long as the channel. Waits match against
// that cumulative log, so text that scrolled by between two waits still
// counts. Use [Channel.Mark] and [Since] to only consider output that
// arrived after a certain point.
package console
