// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const name = "otter"

type rootFlags struct {
	configFile string
	debug      bool
}

func newRootCmd(cfg IO) *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   name,
		Short: "Drive automated test sessions against a virtual machine",
		Long: `otter reverts a virtual machine to a snapshot, powers it on, attaches
to its serial console and its screen and runs a scripted scenario that waits
for expected text on either of them.

Frames, the console log and a run manifest are stored in the session output
directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.SetIn(cfg.Stdin)
	root.SetOut(cfg.Stdout)
	root.SetErr(cfg.Stderr)

	root.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		fmt.Fprintln(c.ErrOrStderr(), "Error:", err)
		fmt.Fprint(c.ErrOrStderr(), c.UsageString())

		return &ParseArgsError{msg: "parse flags", err: err}
	})

	if buildInfo, err := getBuildInfo(); err == nil {
		root.Version = buildInfo.Main.Version
		root.SetVersionTemplate("Version: {{.Version}}\n")
	}

	persistent := root.PersistentFlags()
	persistent.StringVar(
		&flags.configFile,
		"config",
		flags.configFile,
		"config file (default ./otter.yaml, then ~/.otter/config.yaml)",
	)
	persistent.BoolVar(
		&flags.debug,
		"debug",
		flags.debug,
		"enable debug output",
	)

	root.AddCommand(newRunCmd(flags, cfg))
	root.AddCommand(newVersionCmd(cfg))

	return root
}
