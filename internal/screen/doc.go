// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package screen captures the remote display of a machine.
//
// Every successful capture is stored as "{n}.png" in the output directory,
// numbered from 0 in capture order. Text is extracted from stored frames by a
// [Recognizer]. Unlike console waits, screen waits only look at the text of
// the most recent capture.
package screen
