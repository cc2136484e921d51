// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package wait provides a bounded polling primitive.
//
// [For] repeatedly evaluates a probe until a predicate holds on the observed
// value or the timeout expires. It does not know what it is waiting for:
// console logs, OCR text and socket readiness are all observed the same way.
// Time is taken from a [Clock], so tests can replace real sleeping with a
// [FakeClock].
package wait
