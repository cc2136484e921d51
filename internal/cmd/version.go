// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

func newVersionCmd(cfg IO) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of otter",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			buildInfo, err := getBuildInfo()
			if err != nil {
				return err
			}

			fmt.Fprintf(cfg.Stdout, "Version: %s\n", buildInfo.Main.Version)

			return nil
		},
	}
}

func getBuildInfo() (*debug.BuildInfo, error) {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return nil, ErrReadBuildInfo
	}

	return buildInfo, nil
}
