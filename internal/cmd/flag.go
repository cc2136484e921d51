// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

var (
	_ pflag.Value = (*LimitedUintValue)(nil)
	_ pflag.Value = (*FilePath)(nil)
	_ pflag.Value = (*ScenarioName)(nil)
)

// LimitedUintValue is a flag value accepting unsigned integers in the
// inclusive range from Lower to Upper. Zero bounds are not checked.
type LimitedUintValue struct {
	Value        *uint64
	Lower, Upper uint64
}

func (u *LimitedUintValue) String() string {
	if u.Value == nil {
		return "0"
	}

	return strconv.FormatUint(*u.Value, 10)
}

func (u *LimitedUintValue) Set(s string) error {
	value, err := strconv.ParseUint(s, 10, 0)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	if u.Lower > 0 && value < u.Lower {
		return fmt.Errorf("%d < %d: %w", value, u.Lower, ErrValueOutOfRange)
	}

	if u.Upper > 0 && value > u.Upper {
		return fmt.Errorf("%d > %d: %w", value, u.Upper, ErrValueOutOfRange)
	}

	*u.Value = value

	return nil
}

func (*LimitedUintValue) Type() string {
	return "uint"
}

// FilePath is a flag value that is made absolute when set.
type FilePath string

func (f *FilePath) String() string {
	return string(*f)
}

func (f *FilePath) Set(s string) error {
	if s == "" {
		return ErrEmptyFilePath
	}

	path, err := filepath.Abs(s)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}

	*f = FilePath(path)

	return nil
}

func (*FilePath) Type() string {
	return "path"
}

// ScenarioName is a flag value accepting the names of known scenarios.
type ScenarioName string

func (n *ScenarioName) String() string {
	return string(*n)
}

func (n *ScenarioName) Set(s string) error {
	if _, exists := scenarios[s]; !exists {
		return fmt.Errorf("%w: %s (known: %s)", ErrUnknownScenario, s,
			strings.Join(scenarioNames(), ", "))
	}

	*n = ScenarioName(s)

	return nil
}

func (*ScenarioName) Type() string {
	return "scenario"
}

func scenarioNames() []string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}
