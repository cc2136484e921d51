// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package screen

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aibor/otter/internal/wait"
)

// Display is a remote display client.
type Display interface {
	// Capture returns the current screen content. It returns [ErrNoFrame] if
	// no frame data arrived.
	Capture(ctx context.Context) (image.Image, error)

	// KeyPress presses and releases the named key. Single characters name
	// themselves.
	KeyPress(ctx context.Context, key string) error

	// Close disconnects the client.
	Close() error
}

// Recognizer extracts text from an image file.
type Recognizer interface {
	// RecognizeText returns the recognized text tokens in reading order.
	RecognizeText(ctx context.Context, imagePath string) ([]string, error)
}

// Channel is the remote display of a machine.
//
// All methods are safe for concurrent use.
type Channel struct {
	mu      sync.Mutex
	display Display
	ocr     Recognizer
	dir     string
	next    int

	logger       *slog.Logger
	clock        wait.Clock
	timeout      time.Duration
	pollInterval time.Duration
}

// New creates a [Channel] that stores frames in dir. A nil display creates a
// detached channel.
func New(display Display, ocr Recognizer, dir string, opts ...Option) *Channel {
	c := &Channel{
		display:      display,
		ocr:          ocr,
		dir:          dir,
		logger:       slog.New(slog.DiscardHandler),
		clock:        wait.RealClock,
		pollInterval: wait.DefaultPollInterval,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Detached creates a [Channel] without display. Captures fail, so waits time
// out.
func Detached(ocr Recognizer, dir string, opts ...Option) *Channel {
	return New(nil, ocr, dir, opts...)
}

// Attached returns true if the channel has a display.
func (c *Channel) Attached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.display != nil
}

// Attach sets the display of a detached channel. Frame numbering continues.
func (c *Channel) Attach(display Display) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.display != nil {
		return ErrAttached
	}

	c.display = display

	return nil
}

// Frames returns the number of successful captures.
func (c *Channel) Frames() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.next
}

// Capture stores the given region of the current screen as the next frame.
//
// On failure, [EmptyFrame] and a [CaptureError] are returned and the frame
// counter stays unchanged.
func (c *Channel) Capture(ctx context.Context, region Region) (Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	frame, err := c.capture(ctx, region)
	if err != nil {
		err = &CaptureError{Err: err}

		level := slog.LevelWarn
		if errors.Is(err, ErrNoFrame) {
			level = slog.LevelDebug
		}

		c.logger.Log(ctx, level, "Screen capture failed",
			slog.String("region", region.String()),
			slog.Any("error", err),
		)

		return EmptyFrame, err
	}

	c.logger.Debug("Screen captured",
		slog.Int("index", frame.Index),
		slog.String("path", frame.Path),
	)

	return frame, nil
}

func (c *Channel) capture(ctx context.Context, region Region) (Frame, error) {
	if c.display == nil {
		return EmptyFrame, ErrDetached
	}

	img, err := c.display.Capture(ctx)
	if err != nil {
		return EmptyFrame, err //nolint:wrapcheck
	}

	img, err = region.crop(img)
	if err != nil {
		return EmptyFrame, err
	}

	path := filepath.Join(c.dir, frameName(c.next))

	err = writePNG(path, img)
	if err != nil {
		return EmptyFrame, err
	}

	frame := Frame{
		Index:  c.next,
		Path:   path,
		Region: region,
	}
	c.next++

	return frame, nil
}

func writePNG(path string, img image.Image) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create frame file: %w", err)
	}

	err = png.Encode(file, img)
	if err != nil {
		_ = file.Close()
		_ = os.Remove(path)

		return fmt.Errorf("encode frame: %w", err)
	}

	err = file.Close()
	if err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close frame file: %w", err)
	}

	return nil
}

// TextOf returns the text recognized in the frame. Tokens are joined by
// single spaces.
func (c *Channel) TextOf(ctx context.Context, frame Frame) (string, error) {
	if frame.IsEmpty() {
		return "", ErrEmptyFrame
	}

	if c.ocr == nil {
		return "", fmt.Errorf("recognize text: %w", ErrDetached)
	}

	tokens, err := c.ocr.RecognizeText(ctx, frame.Path)
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}

	return strings.Join(tokens, " "), nil
}

// WaitFor captures the region repeatedly until its text contains substr.
//
// Only the text of the current capture is matched. Failed captures and
// failed text recognition count as empty text.
func (c *Channel) WaitFor(
	ctx context.Context,
	substr string,
	region Region,
	opts ...WaitOption,
) wait.Outcome {
	o := waitOptions{
		timeout:      c.timeout,
		pollInterval: c.pollInterval,
	}

	for _, opt := range opts {
		opt(&o)
	}

	probe := func(ctx context.Context) (string, error) {
		frame, err := c.Capture(ctx, region)
		if err != nil {
			return "", err
		}

		return c.TextOf(ctx, frame)
	}

	outcome := wait.For(ctx, probe,
		func(text string) bool { return strings.Contains(text, substr) },
		wait.WithTimeout(o.timeout),
		wait.WithPollInterval(o.pollInterval),
		wait.WithClock(c.clock),
		wait.WithLogger(c.logger),
		wait.WithDescription(fmt.Sprintf("screen %q in %s", substr, region)),
	)

	c.logger.Debug("Screen wait finished",
		slog.String("text", substr),
		slog.String("region", region.String()),
		slog.Bool("found", outcome.OK),
		slog.Duration("elapsed", outcome.Elapsed),
	)

	return outcome
}

// Press presses the named keys one after another.
func (c *Channel) Press(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		err := c.press(ctx, key)
		if err != nil {
			return fmt.Errorf("press %q: %w", key, err)
		}
	}

	return nil
}

// Type presses the key of each character of text. Errors do not name the
// failed character, so text may be a secret.
func (c *Channel) Type(ctx context.Context, text string) error {
	for idx, r := range []rune(text) {
		err := c.press(ctx, string(r))
		if err != nil {
			return fmt.Errorf("type character %d: %w", idx, err)
		}
	}

	return nil
}

func (c *Channel) press(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.display == nil {
		return ErrDetached
	}

	return c.display.KeyPress(ctx, key) //nolint:wrapcheck
}

// Settle pauses for the given duration.
func (c *Channel) Settle(ctx context.Context, d time.Duration) error {
	return c.clock.Sleep(ctx, d)
}

// Close disconnects the display. Frames already stored stay in place.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.display == nil {
		return nil
	}

	err := c.display.Close()
	c.display = nil

	if err != nil {
		return fmt.Errorf("close display: %w", err)
	}

	return nil
}
