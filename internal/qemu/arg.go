// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"fmt"
	"slices"
	"strings"
)

// Argument is a QEMU argument with or without value.
//
// Its name might be marked to be unique in the argument list of a
// [CommandSpec].
type Argument struct {
	name          string
	value         string
	nonUniqueName bool
}

// String implements [fmt.Stringer].
func (a Argument) String() string {
	if a.value == "" {
		return "-" + a.name
	}

	return "-" + a.name + " " + a.value
}

// Name returns the name of the [Argument].
func (a Argument) Name() string {
	return a.name
}

// Value returns the value of the [Argument].
func (a Argument) Value() string {
	return a.value
}

// UniqueName returns if the name of the [Argument] must be unique in an
// argument list.
func (a Argument) UniqueName() bool {
	return !a.nonUniqueName
}

// Equal compares the [Argument]s. Unique arguments are equal if their names
// are equal. Repeatable ones must match in value as well.
func (a Argument) Equal(other Argument) bool {
	switch {
	case a.name != other.name:
		return false
	case a.nonUniqueName:
		return a.value == other.value
	default:
		return true
	}
}

// UniqueArg returns a new [Argument] with the given name that may occur only
// once in an argument list. Multiple values are joined by comma.
func UniqueArg(name string, value ...string) Argument {
	return Argument{
		name:  name,
		value: strings.Join(value, ","),
	}
}

// RepeatableArg returns a new [Argument] with the given name that may occur
// multiple times with different values.
func RepeatableArg(name string, value ...string) Argument {
	return Argument{
		name:          name,
		value:         strings.Join(value, ","),
		nonUniqueName: true,
	}
}

// BuildArgumentStrings compiles the [Argument]s into a slice of strings as
// used by [exec.Command]. It fails with [ErrArgumentCollision] if two
// arguments are [Argument.Equal].
func BuildArgumentStrings(args []Argument) ([]string, error) {
	argStrings := make([]string, 0, 2*len(args))

	for idx, arg := range args {
		if prev := slices.IndexFunc(args[:idx], arg.Equal); prev != -1 {
			return nil, fmt.Errorf(
				"%w: %s, %s",
				ErrArgumentCollision,
				arg,
				args[prev],
			)
		}

		argStrings = append(argStrings, "-"+arg.name)

		if arg.value != "" {
			argStrings = append(argStrings, arg.value)
		}
	}

	return argStrings, nil
}
