// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"path/filepath"
	"slices"
	"strconv"

	"github.com/aibor/otter/internal/sys"
)

const (
	machineTypeQ35  = "q35"
	machineTypeVirt = "virt"
)

// Supported disk image formats.
const (
	DiskFormatQCOW2 = "qcow2"
	DiskFormatRaw   = "raw"
)

// Names of the sockets in the runtime directory.
const (
	SerialSocketName = "serial.sock"
	VNCSocketName    = "vnc.sock"
	QMPSocketName    = "qmp.sock"
)

const serialChardevID = "con0"

// CommandSpec defines the parameters of the QEMU process of a [Machine].
type CommandSpec struct {
	// Path to the qemu-system binary
	Executable string

	// Path to the disk image to boot from.
	Disk string

	// Format of the disk image. Snapshots require [DiskFormatQCOW2].
	DiskFormat string

	// QEMU machine type to use. Depends on the QEMU binary used.
	Machine string

	// CPU type to use. Depends on machine type and QEMU binary used.
	CPU string

	// Number of CPUs for the guest.
	SMP uint64

	// Memory for the machine in MB.
	Memory uint64

	// Disable KVM support.
	NoKVM bool

	// Internal snapshot of the disk to start from. Empty boots the disk as is.
	Snapshot string

	// Directory the serial, VNC and QMP sockets are created in.
	RuntimeDir string

	// ExtraArgs are extra arguments that are passed to the QEMU command.
	// They must not collide with the arguments derived from the other fields.
	ExtraArgs []Argument
}

// AddDefaultsFor adds architecture specific default values to the given spec
// if the fields are not set yet.
func (s *CommandSpec) AddDefaultsFor(arch sys.Arch) error {
	var executable, machine string

	switch arch {
	case sys.AMD64:
		executable = "qemu-system-x86_64"
		machine = machineTypeQ35
	case sys.ARM64:
		executable = "qemu-system-aarch64"
		machine = machineTypeVirt
	case sys.RISCV64:
		executable = "qemu-system-riscv64"
		machine = machineTypeVirt
	default:
		return sys.ErrArchNotSupported
	}

	if s.Executable == "" {
		s.Executable = executable
	}

	if s.Machine == "" {
		s.Machine = machine
	}

	if s.DiskFormat == "" {
		s.DiskFormat = DiskFormatQCOW2
	}

	if !s.NoKVM {
		s.NoKVM = !arch.KVMAvailable()
	}

	return nil
}

// Validate checks for missing and incompatible parameters.
func (s *CommandSpec) Validate() error {
	switch {
	case s.Executable == "":
		return &ArgumentError{"no executable"}
	case s.Disk == "":
		return &ArgumentError{"no disk image"}
	case s.RuntimeDir == "":
		return &ArgumentError{"no runtime directory"}
	}

	if !slices.Contains([]string{DiskFormatQCOW2, DiskFormatRaw}, s.DiskFormat) {
		return &ArgumentError{"unknown disk format: " + s.DiskFormat}
	}

	if s.Snapshot != "" && s.DiskFormat != DiskFormatQCOW2 {
		return &ArgumentError{s.DiskFormat + " disk does not support snapshots"}
	}

	return nil
}

// SerialSocketPath returns the path of the serial console socket.
func (s *CommandSpec) SerialSocketPath() string {
	return filepath.Join(s.RuntimeDir, SerialSocketName)
}

// VNCSocketPath returns the path of the VNC display socket.
func (s *CommandSpec) VNCSocketPath() string {
	return filepath.Join(s.RuntimeDir, VNCSocketName)
}

// QMPSocketPath returns the path of the QMP monitor socket.
func (s *CommandSpec) QMPSocketPath() string {
	return filepath.Join(s.RuntimeDir, QMPSocketName)
}

// arguments compiles the argument list for the QEMU command.
func (s *CommandSpec) arguments() []Argument {
	args := []Argument{
		UniqueArg("drive",
			"file="+s.Disk,
			"format="+s.DiskFormat,
			"if=virtio",
		),
	}

	if s.Machine != "" {
		args = append(args, UniqueArg("machine", s.Machine))
	}

	if s.CPU != "" {
		args = append(args, UniqueArg("cpu", s.CPU))
	}

	if s.SMP != 0 {
		args = append(args, UniqueArg("smp", strconv.FormatUint(s.SMP, 10)))
	}

	if s.Memory != 0 {
		args = append(args, UniqueArg("m", strconv.FormatUint(s.Memory, 10)))
	}

	if !s.NoKVM {
		args = append(args, UniqueArg("enable-kvm"))
	}

	args = append(args,
		// Serial console, connectable at any time.
		RepeatableArg("chardev",
			"socket",
			"id="+serialChardevID,
			"path="+s.SerialSocketPath(),
			"server=on",
			"wait=off",
		),
		RepeatableArg("serial", "chardev:"+serialChardevID),
		UniqueArg("vga", "std"),
		UniqueArg("vnc", "unix:"+s.VNCSocketPath()),
		UniqueArg("qmp", "unix:"+s.QMPSocketPath(), "server=on", "wait=off"),
		// Disable the human monitor. It is reachable via QMP.
		UniqueArg("monitor", "none"),
		// Disable all default devices.
		UniqueArg("nodefaults"),
		// Do not load any user config files.
		UniqueArg("no-user-config"),
	)

	if s.Snapshot != "" {
		args = append(args, UniqueArg("loadvm", s.Snapshot))
	}

	return append(args, s.ExtraArgs...)
}
