// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aibor/otter/internal/config"
	"github.com/aibor/otter/internal/ocr"
	"github.com/aibor/otter/internal/qemu"
	"github.com/aibor/otter/internal/scenario/qubes"
	"github.com/aibor/otter/internal/session"
	"github.com/aibor/otter/internal/sys"
	"github.com/aibor/otter/internal/tunnel"
)

const (
	memMin = 128
	memMax = 65536

	smpMin = 1
	smpMax = 64
)

// Config keys the run flags override.
var flagKeys = map[string]string{
	"arch":          "machine.arch",
	"disk":          "machine.disk",
	"memory":        "machine.memory",
	"smp":           "machine.smp",
	"output-dir":    "session.output_dir",
	"snapshot":      "session.snapshot",
	"attach-policy": "session.attach_policy",
}

// IO provides input and output details for the command.
type IO struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

type runOptions struct {
	configFile string
	bindings   config.Bindings
	scenario   string
}

func newRunCmd(root *rootFlags, cfg IO) *cobra.Command {
	var (
		scenarioName = ScenarioName(defaultScenario)
		arch         sys.Arch
		disk         FilePath
		outputDir    FilePath
		memory       uint64
		smp          uint64
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scenario against the configured machine",
		Long: `Run reverts the machine to the configured snapshot, powers it on,
attaches console and screen, runs the scenario and tears everything down.

Flags override the config file and OTTER_* environment variables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bindings := config.Bindings{}
			for flagName, key := range flagKeys {
				bindings[key] = cmd.Flags().Lookup(flagName)
			}

			opts := runOptions{
				configFile: root.configFile,
				bindings:   bindings,
				scenario:   scenarioName.String(),
			}

			return run(cmd.Context(), opts, newLogger(cfg.Stderr, root.debug), cfg.Stdout)
		},
	}

	flags := cmd.Flags()

	flags.Var(
		&scenarioName,
		"scenario",
		"scenario to run: "+strings.Join(scenarioNames(), ", "),
	)

	flags.Var(
		&arch,
		"arch",
		"guest architecture: amd64, arm64, riscv64 (default host arch)",
	)

	flags.Var(
		&disk,
		"disk",
		"disk image to boot",
	)

	flags.Var(
		&outputDir,
		"output-dir",
		"directory for frames, console log and manifest",
	)

	flags.String(
		"snapshot",
		"",
		"baseline snapshot to revert to before power on",
	)

	flags.String(
		"attach-policy",
		"",
		"channel attach failure handling: continue, fail-fast",
	)

	flags.Var(
		&LimitedUintValue{
			Value: &memory,
			Lower: memMin,
			Upper: memMax,
		},
		"memory",
		"memory (in MB) for the QEMU VM",
	)

	flags.Var(
		&LimitedUintValue{
			Value: &smp,
			Lower: smpMin,
			Upper: smpMax,
		},
		"smp",
		"number of CPUs for the QEMU VM",
	)

	return cmd
}

func newMachine(cfg config.Machine, logger *slog.Logger) (*qemu.Machine, error) {
	arch, err := sys.ParseArch(cfg.Arch)
	if err != nil {
		return nil, fmt.Errorf("arch: %w", err)
	}

	spec, err := cfg.CommandSpec()
	if err != nil {
		return nil, err
	}

	err = spec.AddDefaultsFor(arch)
	if err != nil {
		return nil, fmt.Errorf("qemu defaults: %w", err)
	}

	vm, err := qemu.NewMachine(cfg.Name, spec,
		qemu.WithLogger(logger),
		qemu.WithStartTimeout(cfg.StartTimeout),
		qemu.WithGracePeriod(cfg.GracePeriod),
	)
	if err != nil {
		return nil, fmt.Errorf("new qemu machine: %w", err)
	}

	logger.Debug("QEMU machine",
		slog.String("name", cfg.Name),
		slog.String("arch", arch.String()),
		slog.String("disk", spec.Disk),
		slog.Bool("kvm", !spec.NoKVM),
	)

	return vm, nil
}

// sessionOptions builds the tunnel manager and the text recognizer. Both are
// optional unless the scenario needs text recognition.
func sessionOptions(cfg config.Config, needsOCR bool, logger *slog.Logger) ([]session.Option, error) {
	opts := []session.Option{session.WithLogger(logger)}

	tunnels, err := tunnel.New(
		tunnel.WithExecutable(cfg.Tunnel.Executable),
		tunnel.WithGracePeriod(cfg.Tunnel.GracePeriod),
		tunnel.WithReadyTimeout(cfg.Tunnel.ReadyTimeout),
		tunnel.WithLogger(logger),
	)

	switch {
	case err == nil:
		opts = append(opts, session.WithTunnels(tunnels))
	case errors.Is(err, tunnel.ErrExecutableNotFound):
		logger.Info("Display tunnels not available", slog.Any("error", err))
	default:
		return nil, fmt.Errorf("tunnel manager: %w", err)
	}

	recognizer, err := ocr.NewTesseract(
		ocr.WithExecutable(cfg.OCR.Executable),
		ocr.WithLanguage(cfg.OCR.Language),
		ocr.WithLogger(logger),
	)

	switch {
	case err == nil:
		opts = append(opts, session.WithRecognizer(recognizer))
	case !needsOCR && errors.Is(err, ocr.ErrExecutableNotFound):
		logger.Info("Text recognition not available", slog.Any("error", err))
	default:
		return nil, fmt.Errorf("text recognizer: %w", err)
	}

	return opts, nil
}

func run(ctx context.Context, opts runOptions, logger *slog.Logger, stdout io.Writer) (err error) {
	cfg, err := config.Load(opts.configFile, opts.bindings)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.File != "" {
		logger.Debug("Config file loaded", slog.String("path", cfg.File))
	}

	scn, exists := scenarios[opts.scenario]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownScenario, opts.scenario)
	}

	vm, err := newMachine(cfg.Machine, logger)
	if err != nil {
		return err
	}

	sessionOpts, err := sessionOptions(cfg, scn.needsOCR, logger)
	if err != nil {
		return err
	}

	sess, err := session.New(vm, cfg.Session, sessionOpts...)
	if err != nil {
		return fmt.Errorf("new session: %w", err)
	}

	// Teardown must run even if ctx was cancelled by a signal.
	defer func() {
		if sess.State() != session.StateClosed {
			exitErr := sess.Exit(context.WithoutCancel(ctx))
			if exitErr != nil {
				err = errors.Join(err, fmt.Errorf("exit session: %w", exitErr))
			}
		}

		fmt.Fprintf(stdout, "Session %s output: %s\n", sess.ID(), sess.OutputDir())
	}()

	err = sess.Start(ctx)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	err = scn.run(ctx, sess, cfg.Login)
	if err != nil {
		return fmt.Errorf("scenario %s: %w", opts.scenario, err)
	}

	return nil
}

func handleRunError(err error, logger *slog.Logger) int {
	// Flag errors are printed with usage already.
	if errors.Is(err, &ParseArgsError{}) {
		return -1
	}

	logger.Error(err.Error())

	// The machine worked, but did not behave as expected.
	if errors.Is(err, qubes.ErrExpectationFailed) {
		return 1
	}

	return -1
}

// Run is the main entry point for the CLI command.
func Run(ctx context.Context, args []string, cfg IO) int {
	root := newRootCmd(cfg)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err != nil {
		return handleRunError(err, newLogger(cfg.Stderr, false))
	}

	return 0
}
