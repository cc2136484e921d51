// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aibor/otter/internal/console"
	"github.com/aibor/otter/internal/screen"
	"github.com/aibor/otter/internal/wait"
)

const (
	// InputDelay is the pause after sending login input.
	InputDelay = 300 * time.Millisecond

	// LoginPrompt is the console login prompt.
	LoginPrompt = "login: "
)

// Credentials of a guest user.
type Credentials struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// Target is a channel scripted input runs against.
type Target interface {
	// Expect waits for text. The region is ignored by text consoles. A zero
	// timeout uses the channel's default.
	Expect(ctx context.Context, text string, region screen.Region, timeout time.Duration) wait.Outcome

	// Send enters text. A newline submits.
	Send(ctx context.Context, text string) error

	// Settle pauses.
	Settle(ctx context.Context, d time.Duration) error
}

// Step is a single step of a scripted login. Each part is optional: it waits
// for Expect, then sends Send, then settles for Settle.
type Step struct {
	Expect  string
	Region  screen.Region
	Timeout time.Duration
	Send    string
	// Secret keeps Send out of logs.
	Secret bool
	Settle time.Duration
}

type consoleTarget struct {
	channel *console.Channel
}

func (t consoleTarget) Expect(ctx context.Context, text string, _ screen.Region, timeout time.Duration) wait.Outcome {
	var opts []console.WaitOption
	if timeout != 0 {
		opts = append(opts, console.Timeout(timeout))
	}

	return t.channel.WaitFor(ctx, text, opts...)
}

func (t consoleTarget) Send(_ context.Context, text string) error {
	if !t.channel.Write(text) {
		return ErrSendFailed
	}

	return nil
}

func (t consoleTarget) Settle(ctx context.Context, d time.Duration) error {
	return t.channel.Settle(ctx, d) //nolint:wrapcheck
}

type screenTarget struct {
	channel *screen.Channel
}

func (t screenTarget) Expect(ctx context.Context, text string, region screen.Region, timeout time.Duration) wait.Outcome {
	var opts []screen.WaitOption
	if timeout != 0 {
		opts = append(opts, screen.Timeout(timeout))
	}

	return t.channel.WaitFor(ctx, text, region, opts...)
}

func (t screenTarget) Send(ctx context.Context, text string) error {
	if err := t.channel.Type(ctx, text); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	return nil
}

func (t screenTarget) Settle(ctx context.Context, d time.Duration) error {
	return t.channel.Settle(ctx, d) //nolint:wrapcheck
}

// ConsoleTarget returns the console channel as [Target].
func (s *Session) ConsoleTarget() Target {
	return consoleTarget{s.console}
}

// ScreenTarget returns the screen channel as [Target]. Text is typed as key
// presses.
func (s *Session) ScreenTarget() Target {
	return screenTarget{s.screen}
}

// Login runs the steps against target. The session is in [StateLoggingIn]
// meanwhile. A step whose expected text does not appear fails the login with
// [ErrLoginFailed].
func (s *Session) Login(ctx context.Context, target Target, steps ...Step) error {
	if err := s.transition(StateLoggingIn, StateReady); err != nil {
		return err
	}

	defer func() {
		_ = s.transition(StateReady, StateLoggingIn)
	}()

	for idx, step := range steps {
		if err := s.runStep(ctx, target, step); err != nil {
			return fmt.Errorf("%w: step %d: %w", ErrLoginFailed, idx, err)
		}
	}

	s.logger.Info("Login finished", slog.Int("steps", len(steps)))

	return nil
}

func (s *Session) runStep(ctx context.Context, target Target, step Step) error {
	if step.Expect != "" {
		outcome := target.Expect(ctx, step.Expect, step.Region, step.Timeout)
		if err := outcome.Check(fmt.Sprintf("expect %q", step.Expect)); err != nil {
			return err //nolint:wrapcheck
		}
	}

	if step.Send != "" {
		input := step.Send
		if step.Secret {
			input = "<secret>"
		}

		s.logger.Debug("Login input", slog.String("input", input))

		if err := target.Send(ctx, step.Send); err != nil {
			return err
		}
	}

	if step.Settle > 0 {
		if err := target.Settle(ctx, step.Settle); err != nil {
			return err
		}
	}

	return nil
}

// LoginConsole logs in on the console prompt with the credentials. If
// success is not empty, it must appear after the password was sent.
func (s *Session) LoginConsole(ctx context.Context, creds Credentials, success string) error {
	mark := s.console.Mark()

	steps := []Step{
		{Expect: LoginPrompt, Send: creds.Username + "\n", Settle: InputDelay},
		{Send: creds.Password + "\n", Secret: true, Settle: InputDelay},
	}

	if err := s.Login(ctx, s.ConsoleTarget(), steps...); err != nil {
		return err
	}

	if success == "" {
		return nil
	}

	return s.expectConsoleSince(ctx, success, mark)
}

// expectConsoleSince runs as separate login phase so only output after mark
// counts.
func (s *Session) expectConsoleSince(ctx context.Context, text string, mark int) error {
	if err := s.transition(StateLoggingIn, StateReady); err != nil {
		return err
	}

	defer func() {
		_ = s.transition(StateReady, StateLoggingIn)
	}()

	outcome := s.console.WaitFor(ctx, text, console.Since(mark))
	if err := outcome.Check(fmt.Sprintf("expect %q", text)); err != nil {
		return fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}

	return nil
}

// ScreenLogin describes a graphical login screen.
type ScreenLogin struct {
	// Prompt is text shown in PromptRegion while the login screen waits for
	// the password.
	Prompt       string
	PromptRegion screen.Region

	// SuccessRegion shows the user name once logged in.
	SuccessRegion screen.Region

	// Settle is the pause after the password was submitted.
	Settle time.Duration
}

// LoginScreen enters the password on a graphical login screen and waits for
// the user name to show up.
func (s *Session) LoginScreen(ctx context.Context, creds Credentials, layout ScreenLogin) error {
	steps := []Step{
		{
			Expect: layout.Prompt,
			Region: layout.PromptRegion,
			Send:   creds.Password + "\n",
			Secret: true,
			Settle: layout.Settle,
		},
		{
			Expect: creds.Username,
			Region: layout.SuccessRegion,
		},
	}

	return s.Login(ctx, s.ScreenTarget(), steps...)
}
