// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qubes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aibor/otter/internal/console"
	"github.com/aibor/otter/internal/screen"
	"github.com/aibor/otter/internal/session"
)

// ErrExpectationFailed is returned if the machine did not show the expected
// output.
var ErrExpectationFailed = errors.New("expectation failed")

// Screen regions of Qubes OS dialogs.
var (
	LoginPromptRegion = screen.Region{X: 250, Y: 200, Width: 300, Height: 200}
	TopBarUserRegion  = screen.Region{X: 1200, Y: 0, Width: 80, Height: 30}
	TerminalRegion    = screen.Region{X: 0, Y: 30, Width: 300, Height: 100}
)

const (
	// DesktopSettle is the pause after the graphical login.
	DesktopSettle = 5 * time.Second

	// TerminalSettle is the pause after launching a terminal.
	TerminalSettle = 3 * time.Second
)

// Session is the part of [session.Session] the steps use.
type Session interface {
	Console() *console.Channel
	Screen() *screen.Channel
	LoginConsole(ctx context.Context, creds session.Credentials, success string) error
	LoginScreen(ctx context.Context, creds session.Credentials, layout session.ScreenLogin) error
}

var _ Session = (*session.Session)(nil)

func expectationFailed(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrExpectationFailed, step, err)
}

// LoginSerial logs into dom0 on the serial console.
func LoginSerial(ctx context.Context, s Session, creds session.Credentials) error {
	err := s.LoginConsole(ctx, creds, creds.Username+"@dom0")
	if err != nil {
		return expectationFailed("serial login", err)
	}

	return nil
}

// LoginGUI logs in on the graphical login screen with the preselected user.
func LoginGUI(ctx context.Context, s Session, creds session.Credentials) error {
	layout := session.ScreenLogin{
		Prompt:        "Log",
		PromptRegion:  LoginPromptRegion,
		SuccessRegion: TopBarUserRegion,
		Settle:        DesktopSettle,
	}

	if err := s.LoginScreen(ctx, creds, layout); err != nil {
		return expectationFailed("gui login", err)
	}

	return nil
}

// RunInQube runs command in qube via the dom0 serial console and waits for
// expect in its output.
func RunInQube(ctx context.Context, s Session, qube, command, expect string) error {
	line := fmt.Sprintf("qvm-run --pass-io %s %s\n", shellQuote(qube), shellQuote(command))

	mark := s.Console().Mark()

	if !s.Console().Write(line) {
		return expectationFailed("run in "+qube, console.ErrDetached)
	}

	outcome := s.Console().WaitFor(ctx, expect, console.Since(mark))
	if err := outcome.Check(fmt.Sprintf("output %q", expect)); err != nil {
		return expectationFailed("run in "+qube, err)
	}

	return nil
}

// LaunchTerminalDom0 starts a terminal on the dom0 desktop from the serial
// console and waits for its window.
func LaunchTerminalDom0(ctx context.Context, s Session) error {
	for _, line := range []string{"export DISPLAY=:0\n", "xfce4-terminal\n"} {
		if !s.Console().Write(line) {
			return expectationFailed("launch terminal", console.ErrDetached)
		}
	}

	if err := s.Console().Settle(ctx, TerminalSettle); err != nil {
		return err //nolint:wrapcheck
	}

	s.Console().Read()

	outcome := s.Screen().WaitFor(ctx, "Terminal", TerminalRegion)
	if err := outcome.Check("terminal window"); err != nil {
		return expectationFailed("launch terminal", err)
	}

	return nil
}

// Run is the smoke test: log in on serial console and screen, run a command
// in sys-net and open a dom0 terminal.
func Run(ctx context.Context, s Session, creds session.Credentials) error {
	if err := LoginSerial(ctx, s, creds); err != nil {
		return err
	}

	if err := LoginGUI(ctx, s, creds); err != nil {
		return err
	}

	if err := RunInQube(ctx, s, "sys-net", "id", "groups"); err != nil {
		return err
	}

	return LaunchTerminalDom0(ctx, s)
}

// shellQuote quotes s for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
