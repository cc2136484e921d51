// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package sys provides host system properties relevant for running machines.
package sys

import (
	"os"
	"runtime"
)

// Arch is a machine architecture in GOARCH notation.
type Arch string

// Supported guest architectures.
const (
	AMD64   Arch = "amd64"
	ARM64   Arch = "arm64"
	RISCV64 Arch = "riscv64"
)

// Native is the architecture of the host. Using the same architecture for the
// guest allows using KVM, if available. Use [Arch.KVMAvailable] to check.
const Native Arch = Arch(runtime.GOARCH)

// kvmDevice is a variable so tests can point it elsewhere.
var kvmDevice = "/dev/kvm"

// ParseArch returns the [Arch] for the given name. An empty name is the
// [Native] architecture.
func ParseArch(name string) (Arch, error) {
	if name == "" {
		return Native, nil
	}

	var arch Arch

	return arch, arch.Set(name)
}

func (a *Arch) String() string {
	return string(*a)
}

// IsNative returns true if the architecture is the host's.
func (a *Arch) IsNative() bool {
	return Native == *a
}

// KVMAvailable checks if KVM support is available for the given architecture.
func (a *Arch) KVMAvailable() bool {
	if !a.IsNative() {
		return false
	}

	f, err := os.OpenFile(kvmDevice, os.O_WRONLY, 0)
	if err != nil {
		return false
	}

	_ = f.Close()

	return true
}

// Set implements the [pflag.Value] interface.
func (a *Arch) Set(s string) error {
	switch Arch(s) {
	case AMD64, ARM64, RISCV64:
		*a = Arch(s)
	default:
		return ErrArchNotSupported
	}

	return nil
}

// Type implements the [pflag.Value] interface.
func (*Arch) Type() string {
	return "arch"
}
