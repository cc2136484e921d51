// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package ocr recognizes text in images by running the tesseract command
// line tool.
package ocr
