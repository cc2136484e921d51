// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package qemu runs a virtual machine from a disk image with QEMU. It expects
// the required QEMU binary to be present on the system.
//
// The serial console, the VNC display and the QMP monitor of the machine are
// exposed as unix sockets in a runtime directory. Snapshots are internal
// snapshots of the qcow2 disk image and are restored with "loadvm".
package qemu
