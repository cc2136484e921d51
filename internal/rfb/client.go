// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rfb

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/aibor/otter/internal/screen"
)

const (
	// DefaultReadTimeout bounds the wait for a framebuffer update.
	DefaultReadTimeout = 5 * time.Second

	handshakeTimeout = 10 * time.Second
	messageTimeout   = 10 * time.Second
)

// Option configures a [Client].
type Option func(*Client)

// WithReadTimeout sets how long [Client.Capture] waits for a framebuffer
// update.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.readTimeout = d
		}
	}
}

// WithLogger sets the logger protocol events are reported to.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client is an RFB client connection. It implements [screen.Display].
type Client struct {
	mu          sync.Mutex
	conn        net.Conn
	name        string
	minor       int
	fb          *image.RGBA
	err         error
	pending     int
	readTimeout time.Duration
	logger      *slog.Logger
}

var _ screen.Display = (*Client)(nil)

// Dial connects to the RFB server at address and performs the handshake.
func Dial(ctx context.Context, network, address string, opts ...Option) (*Client, error) {
	var dialer net.Dialer

	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("dial rfb: %w", err)
	}

	client, err := NewClient(ctx, conn, opts...)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return client, nil
}

// NewClient performs the handshake on an established connection.
func NewClient(ctx context.Context, conn net.Conn, opts ...Option) (*Client, error) {
	c := &Client{
		conn:        conn,
		readTimeout: DefaultReadTimeout,
		logger:      slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		opt(c)
	}

	deadline := time.Now().Add(handshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	err := conn.SetDeadline(deadline)
	if err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}

	err = c.handshake()
	if err != nil {
		return nil, err
	}

	err = conn.SetDeadline(time.Time{})
	if err != nil {
		return nil, fmt.Errorf("reset deadline: %w", err)
	}

	c.logger.Debug("RFB connected",
		slog.String("name", c.name),
		slog.String("version", fmt.Sprintf("3.%d", c.minor)),
		slog.Int("width", c.fb.Rect.Dx()),
		slog.Int("height", c.fb.Rect.Dy()),
	)

	return c, nil
}

func (c *Client) handshake() error {
	err := c.negotiateVersion()
	if err != nil {
		return err
	}

	err = c.negotiateSecurity()
	if err != nil {
		return err
	}

	// ClientInit with shared flag set, so other viewers stay connected.
	_, err = c.conn.Write([]byte{1})
	if err != nil {
		return &ProtocolError{Op: "client init", Err: err}
	}

	var init serverInit

	err = decode(c.conn, &init)
	if err != nil {
		return &ProtocolError{Op: "server init", Err: err}
	}

	if init.NameLength > maxStringLength {
		return &ProtocolError{
			Op:  "server init",
			Err: fmt.Errorf("name too long: %d", init.NameLength),
		}
	}

	name := make([]byte, init.NameLength)

	_, err = io.ReadFull(c.conn, name)
	if err != nil {
		return &ProtocolError{Op: "server init", Err: err}
	}

	c.name = string(name)
	c.fb = image.NewRGBA(image.Rect(0, 0, int(init.Width), int(init.Height)))

	msg, err := encode(
		setPixelFormat{Type: msgSetPixelFormat, Format: clientPixelFormat},
		setEncodings{Type: msgSetEncodings, Count: 2},
		[]int32{encodingRaw, encodingDesktopSize},
	)
	if err != nil {
		return err
	}

	_, err = c.conn.Write(msg)
	if err != nil {
		return &ProtocolError{Op: "set encodings", Err: err}
	}

	return nil
}

func (c *Client) negotiateVersion() error {
	version := make([]byte, 12)

	_, err := io.ReadFull(c.conn, version)
	if err != nil {
		return &ProtocolError{Op: "protocol version", Err: err}
	}

	var major, minor int

	_, err = fmt.Sscanf(string(version), "RFB %03d.%03d\n", &major, &minor)
	if err != nil {
		return &ProtocolError{
			Op:  "protocol version",
			Err: fmt.Errorf("parse %q: %w", version, err),
		}
	}

	switch {
	case major < 3 || (major == 3 && minor < 3):
		return &ProtocolError{
			Op:  "protocol version",
			Err: fmt.Errorf("%w: %d.%d", ErrVersionNotSupported, major, minor),
		}
	case major > 3 || minor >= 8:
		c.minor = 8
	case minor == 7:
		c.minor = 7
	default:
		c.minor = 3
	}

	_, err = fmt.Fprintf(c.conn, "RFB 003.%03d\n", c.minor)
	if err != nil {
		return &ProtocolError{Op: "protocol version", Err: err}
	}

	return nil
}

func (c *Client) negotiateSecurity() error {
	if c.minor == 3 {
		var secType uint32

		err := decode(c.conn, &secType)
		if err != nil {
			return &ProtocolError{Op: "security", Err: err}
		}

		switch uint8(secType) { //nolint:gosec
		case securityNone:
			return nil
		case securityInvalid:
			return c.readFailure()
		default:
			return &ProtocolError{
				Op:  "security",
				Err: fmt.Errorf("%w: %d", ErrSecurityNotSupported, secType),
			}
		}
	}

	var count uint8

	err := decode(c.conn, &count)
	if err != nil {
		return &ProtocolError{Op: "security", Err: err}
	}

	if count == 0 {
		return c.readFailure()
	}

	types := make([]byte, count)

	_, err = io.ReadFull(c.conn, types)
	if err != nil {
		return &ProtocolError{Op: "security", Err: err}
	}

	if !slices.Contains(types, securityNone) {
		return &ProtocolError{
			Op:  "security",
			Err: fmt.Errorf("%w: offered %v", ErrSecurityNotSupported, types),
		}
	}

	_, err = c.conn.Write([]byte{securityNone})
	if err != nil {
		return &ProtocolError{Op: "security", Err: err}
	}

	// Only 3.8 sends a security result for the "None" type.
	if c.minor < 8 {
		return nil
	}

	var result uint32

	err = decode(c.conn, &result)
	if err != nil {
		return &ProtocolError{Op: "security result", Err: err}
	}

	if result != 0 {
		return c.readFailure()
	}

	return nil
}

func (c *Client) readFailure() error {
	reason, err := readString(c.conn)
	if err != nil {
		return &ProtocolError{Op: "failure reason", Err: err}
	}

	return &AuthError{Reason: reason}
}

// Name returns the desktop name announced by the server.
func (c *Client) Name() string {
	return c.name
}

// Size returns the current framebuffer size.
func (c *Client) Size() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.fb.Rect.Dx(), c.fb.Rect.Dy()
}

// Capture requests a full framebuffer update and returns the screen content
// once it arrived.
//
// If no update arrives within the read timeout, an error wrapping
// [screen.ErrNoFrame] is returned and the connection stays usable.
func (c *Client) Capture(ctx context.Context) (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return nil, c.err
	}

	msg, err := encode(framebufferUpdateRequest{
		Type:   msgFramebufferUpdateRequest,
		Width:  uint16(c.fb.Rect.Dx()), //nolint:gosec
		Height: uint16(c.fb.Rect.Dy()), //nolint:gosec
	})
	if err != nil {
		return nil, err
	}

	err = c.write(ctx, msg)
	if err != nil {
		return nil, err
	}

	// Replies to requests of earlier timed out captures may still arrive.
	// Only the reply to this request is returned.
	c.pending++

	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	deadline := time.Now().Add(c.readTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	for {
		_ = c.conn.SetReadDeadline(deadline)

		msgType := make([]byte, 1)

		_, err := io.ReadFull(c.conn, msgType)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr //nolint:wrapcheck
			}

			if errors.Is(err, os.ErrDeadlineExceeded) {
				return nil, fmt.Errorf("%w: %w", screen.ErrNoFrame, err)
			}

			return nil, c.fail(&ProtocolError{Op: "read message", Err: err})
		}

		// A started message must be read completely, or the stream is out
		// of sync.
		_ = c.conn.SetReadDeadline(time.Now().Add(messageTimeout))

		updated, err := c.handleMessage(msgType[0])
		if err != nil {
			return nil, c.fail(err)
		}

		if !updated {
			continue
		}

		if c.pending > 0 {
			c.pending--
		}

		if c.pending > 0 {
			c.logger.Debug("RFB skipped late update", slog.Int("pending", c.pending))
			continue
		}

		frame := image.NewRGBA(c.fb.Rect)
		copy(frame.Pix, c.fb.Pix)

		return frame, nil
	}
}

func (c *Client) handleMessage(msgType uint8) (bool, error) {
	switch msgType {
	case msgFramebufferUpdate:
		return true, c.readFramebufferUpdate()
	case msgSetColourMapEntries:
		var header struct {
			_      uint8
			First  uint16
			Colors uint16
		}

		err := decode(c.conn, &header)
		if err != nil {
			return false, &ProtocolError{Op: "colour map", Err: err}
		}

		return false, c.discard("colour map", int64(header.Colors)*6)
	case msgBell:
		return false, nil
	case msgServerCutText:
		var header struct {
			_      [3]byte
			Length uint32
		}

		err := decode(c.conn, &header)
		if err != nil {
			return false, &ProtocolError{Op: "cut text", Err: err}
		}

		return false, c.discard("cut text", int64(header.Length))
	default:
		return false, &ProtocolError{
			Op:  "read message",
			Err: fmt.Errorf("unknown message type %d", msgType),
		}
	}
}

func (c *Client) discard(op string, n int64) error {
	_, err := io.CopyN(io.Discard, c.conn, n)
	if err != nil {
		return &ProtocolError{Op: op, Err: err}
	}

	return nil
}

func (c *Client) readFramebufferUpdate() error {
	var header struct {
		_          uint8
		Rectangles uint16
	}

	err := decode(c.conn, &header)
	if err != nil {
		return &ProtocolError{Op: "framebuffer update", Err: err}
	}

	for range header.Rectangles {
		var rect rectangleHeader

		err := decode(c.conn, &rect)
		if err != nil {
			return &ProtocolError{Op: "rectangle", Err: err}
		}

		switch rect.Encoding {
		case encodingRaw:
			err = c.readRaw(rect)
		case encodingDesktopSize:
			c.fb = image.NewRGBA(image.Rect(0, 0, int(rect.Width), int(rect.Height)))
			c.logger.Debug("RFB desktop resized",
				slog.Int("width", int(rect.Width)),
				slog.Int("height", int(rect.Height)),
			)
		default:
			err = &ProtocolError{
				Op:  "rectangle",
				Err: fmt.Errorf("%w: %d", ErrEncodingNotSupported, rect.Encoding),
			}
		}

		if err != nil {
			return err
		}
	}

	return nil
}

// readRaw reads raw encoded pixels into the framebuffer. Pixels outside of the
// framebuffer are dropped.
func (c *Client) readRaw(rect rectangleHeader) error {
	row := make([]byte, int(rect.Width)*bytesPerPixel)

	for dy := range int(rect.Height) {
		_, err := io.ReadFull(c.conn, row)
		if err != nil {
			return &ProtocolError{Op: "raw rectangle", Err: err}
		}

		y := int(rect.Y) + dy

		for dx := range int(rect.Width) {
			x := int(rect.X) + dx
			if !(image.Point{x, y}.In(c.fb.Rect)) {
				continue
			}

			src := row[dx*bytesPerPixel:]
			dst := c.fb.Pix[c.fb.PixOffset(x, y):]
			dst[0] = src[2]
			dst[1] = src[1]
			dst[2] = src[0]
			dst[3] = 0xff
		}
	}

	return nil
}

// KeyPress presses and releases the given key. See [Keysyms] for the key
// format. Modifiers of combinations are held while the main key is pressed.
func (c *Client) KeyPress(ctx context.Context, key string) error {
	syms, err := Keysyms(key)
	if err != nil {
		return err
	}

	events := make([]any, 0, 2*len(syms))
	for _, sym := range syms {
		events = append(events, keyEvent{Type: msgKeyEvent, Down: 1, Key: sym})
	}

	for _, sym := range slices.Backward(syms) {
		events = append(events, keyEvent{Type: msgKeyEvent, Down: 0, Key: sym})
	}

	msg, err := encode(events...)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return c.err
	}

	return c.write(ctx, msg)
}

func (c *Client) write(ctx context.Context, msg []byte) error {
	deadline := time.Now().Add(messageTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	_ = c.conn.SetWriteDeadline(deadline)

	_, err := c.conn.Write(msg)
	if err != nil {
		return c.fail(&ProtocolError{Op: "write", Err: err})
	}

	return nil
}

// fail marks the connection as broken. All later calls return err.
func (c *Client) fail(err error) error {
	c.err = err
	return err
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err == nil {
		c.err = net.ErrClosed
	}

	err := c.conn.Close()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("close rfb: %w", err)
	}

	return nil
}
