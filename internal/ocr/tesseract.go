// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// DefaultExecutable is the name of the tesseract binary looked up in PATH.
const DefaultExecutable = "tesseract"

// ErrExecutableNotFound is returned if the tesseract binary is missing.
var ErrExecutableNotFound = errors.New("ocr executable not found")

// Error represents a failed tesseract invocation.
type Error struct {
	Args   []string
	Stderr string
	Err    error
}

// Error implements the [error] interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("tesseract failed: %v", e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}

	return msg
}

// Is implements the [errors.Is] interface.
func (*Error) Is(other error) bool {
	_, ok := other.(*Error)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *Error) Unwrap() error {
	return e.Err
}

// Option configures a [Tesseract].
type Option func(*Tesseract)

// WithExecutable sets the tesseract binary name or path.
func WithExecutable(name string) Option {
	return func(t *Tesseract) {
		if name != "" {
			t.executable = name
		}
	}
}

// WithLanguage sets the language model, like "eng" or "deu+eng".
func WithLanguage(lang string) Option {
	return func(t *Tesseract) {
		t.language = lang
	}
}

// WithLogger sets the logger invocations are reported to.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tesseract) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// Tesseract runs the tesseract binary for each recognition.
type Tesseract struct {
	executable string
	language   string
	logger     *slog.Logger
}

// NewTesseract resolves the tesseract binary. It fails if the binary can not
// be found.
func NewTesseract(opts ...Option) (*Tesseract, error) {
	t := &Tesseract{
		executable: DefaultExecutable,
		logger:     slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		opt(t)
	}

	path, err := exec.LookPath(t.executable)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutableNotFound, err)
	}

	t.executable = path

	return t, nil
}

// RecognizeText returns the whitespace separated tokens tesseract finds in
// the image in reading order.
func (t *Tesseract) RecognizeText(
	ctx context.Context,
	imagePath string,
) ([]string, error) {
	args := []string{imagePath, "stdout"}
	if t.language != "" {
		args = append(args, "-l", t.language)
	}

	cmd := exec.CommandContext(ctx, t.executable, args...)

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		return nil, &Error{
			Args:   args,
			Stderr: strings.TrimSpace(stderr.String()),
			Err:    err,
		}
	}

	tokens := strings.Fields(stdout.String())

	t.logger.Debug("Text recognized",
		slog.String("image", imagePath),
		slog.Int("tokens", len(tokens)),
	)

	return tokens, nil
}
