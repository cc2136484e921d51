// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package rfb implements a minimal client for the remote framebuffer
// protocol (VNC).
//
// It supports protocol versions 3.3, 3.7 and 3.8 without authentication, raw
// pixel encoding and the DesktopSize pseudo encoding. That is enough to grab
// the screen of a QEMU VNC server or a VNC tunnel and to send key presses.
// See RFC 6143.
package rfb
