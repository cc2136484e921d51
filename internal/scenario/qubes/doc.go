// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package qubes provides test steps for Qubes OS machines.
//
// Screen regions assume a 1280x1024 desktop. The login screen is expected at
// 800x600.
package qubes
