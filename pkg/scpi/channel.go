// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scpi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultTimeout bounds each individual read attempt
	DefaultTimeout = 5 * time.Second

	defaultBufferSize = 4096

	// drainTimeout bounds each read that discards a late reply
	drainTimeout = 20 * time.Millisecond

	// maxDrainReads stops draining a link that never goes quiet
	maxDrainReads = 256

	// maxPrealloc caps the buffer reserved for a declared block length
	maxPrealloc = 1 << 20
)

// Conn is the byte link supplied by the connection layer.
//
// A Read that runs into the read timeout must return n == 0 together with
// either a nil error (serial ports behave this way) or an error that
// reports Timeout() / wraps os.ErrDeadlineExceeded (network connections).
type Conn interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Dialer opens a new Conn. The Channel never dials on its own; Open and
// Reconnect are the only callers.
type Dialer func(ctx context.Context) (Conn, error)

// Option configures a Channel
type Option func(*Channel)

// WithTimeout sets the per-read timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithBufferSize sets the size of a single read
func WithBufferSize(n int) Option {
	return func(c *Channel) {
		if n > 0 {
			c.bufSize = n
		}
	}
}

// WithLogger replaces the global zerolog logger
func WithLogger(l zerolog.Logger) Option {
	return func(c *Channel) {
		c.logger = l
	}
}

// Channel is one persistent command/response link to an instrument.
//
// Commands are serialized: a query, including draining a binary block,
// completes before the next command is written. The wire protocol has no
// request identifiers, so overlapping requests are not supported.
type Channel struct {
	dial    Dialer
	timeout time.Duration
	bufSize int
	logger  zerolog.Logger

	mu       sync.Mutex
	conn     Conn
	closed   bool
	desync   bool // a response was abandoned and may still arrive
	buf      []byte
	pending  []byte // bytes read but not yet consumed by the current response
	received int    // bytes received for the current response
}

// NewChannel creates an unopened channel
func NewChannel(dial Dialer, opts ...Option) *Channel {
	c := &Channel{
		dial:    dial,
		timeout: DefaultTimeout,
		bufSize: defaultBufferSize,
		logger:  log.Logger,
		closed:  true,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.buf = make([]byte, c.bufSize)
	return c
}

// Timeout returns the per-read timeout
func (c *Channel) Timeout() time.Duration {
	return c.timeout
}

// Open dials the instrument if the channel is not already open
func (c *Channel) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		return nil
	}
	return c.connect(ctx)
}

// Reconnect closes the current link, if any, and dials a new one
func (c *Channel) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("close before reconnect")
		}
	}
	c.conn = nil
	c.closed = true
	return c.connect(ctx)
}

// Close releases the link
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.pending = c.pending[:0]
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// IsOpen reports whether the link is usable
func (c *Channel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *Channel) connect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return &TransportError{Kind: KindConnectionClosed, Err: err}
	}
	c.conn = conn
	c.closed = false
	c.desync = false
	c.pending = c.pending[:0]
	c.logger.Debug().Msg("channel connected")
	return nil
}

// Send writes a command without reading a reply
func (c *Channel) Send(ctx context.Context, cmd Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send(ctx, cmd)
}

// Query writes a command and returns its text reply with the terminator,
// surrounding whitespace and any leading NUL bytes removed.
func (c *Channel) Query(ctx context.Context, cmd Command) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.send(ctx, cmd); err != nil {
		return nil, err
	}
	line, err := c.readLine(ctx, string(cmd))
	if err != nil {
		c.abandon()
		return nil, err
	}
	line = bytes.TrimLeft(line, "\x00")
	line = bytes.TrimSpace(line)
	c.logger.Debug().Str("cmd", trimCommand(cmd)).Int("bytes", len(line)).Msg("reply")
	return line, nil
}

// QueryBinaryBlock writes a command and reads a definite-length block reply.
// The payload is read by its declared length and never scanned for the
// terminator, which is consumed separately afterwards.
func (c *Channel) QueryBinaryBlock(ctx context.Context, cmd Command) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.send(ctx, cmd); err != nil {
		return nil, err
	}
	payload, err := c.readBlock(ctx, trimCommand(cmd))
	if err != nil {
		c.abandon()
		return nil, err
	}
	c.logger.Debug().Str("cmd", trimCommand(cmd)).Int("bytes", len(payload)).Msg("block")
	return payload, nil
}

func (c *Channel) send(ctx context.Context, cmd Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	if c.closed || c.conn == nil {
		return &TransportError{Kind: KindConnectionClosed, Command: trimCommand(cmd)}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", trimCommand(cmd), err)
	}

	// Leftovers belong to an earlier response
	if len(c.pending) > 0 {
		c.logger.Debug().Int("bytes", len(c.pending)).Msg("discarding stale bytes")
		c.pending = c.pending[:0]
	}
	c.received = 0

	if c.desync {
		if err := c.drain(trimCommand(cmd)); err != nil {
			return err
		}
	}

	c.logger.Debug().Str("cmd", trimCommand(cmd)).Msg("send")
	if _, err := c.conn.Write(cmd.wire()); err != nil {
		c.closed = true
		return &TransportError{Kind: KindConnectionClosed, Command: trimCommand(cmd), Err: err}
	}
	return nil
}

// abandon marks the link as carrying the rest of a failed response
func (c *Channel) abandon() {
	if !c.closed {
		c.desync = true
	}
}

// drain discards whatever the instrument still sends for an abandoned
// response, until a short read comes back empty
func (c *Channel) drain(cmd string) error {
	timeout := min(c.timeout, drainTimeout)
	discarded := 0
	for i := 0; i < maxDrainReads; i++ {
		if err := c.conn.SetReadTimeout(timeout); err != nil {
			c.closed = true
			return &TransportError{Kind: KindConnectionClosed, Command: cmd, Err: err}
		}
		n, err := c.conn.Read(c.buf)
		if n > 0 {
			discarded += n
			continue
		}
		if err != nil && !isTimeout(err) {
			c.closed = true
			return &TransportError{Kind: KindConnectionClosed, Command: cmd, Err: err}
		}
		c.desync = false
		break
	}
	if discarded > 0 {
		c.logger.Debug().Int("bytes", discarded).Msg("discarded late reply")
	}
	return nil
}

// fill performs exactly one read attempt bounded by the timeout
func (c *Channel) fill(ctx context.Context, cmd string) error {
	if err := ctx.Err(); err != nil {
		c.pending = c.pending[:0]
		return fmt.Errorf("%s: %w", cmd, err)
	}
	if err := c.conn.SetReadTimeout(c.timeout); err != nil {
		c.closed = true
		return &TransportError{Kind: KindConnectionClosed, Command: cmd, Err: err}
	}

	n, err := c.conn.Read(c.buf)
	if n > 0 {
		c.pending = append(c.pending, c.buf[:n]...)
		c.received += n
		return nil
	}

	switch {
	case err == nil, isTimeout(err):
		c.logger.Debug().Str("cmd", cmd).Int("received", c.received).Msg("read timeout")
		c.pending = c.pending[:0]
		return &TransportError{Kind: KindTimeout, Command: cmd, Received: c.received}
	default:
		c.closed = true
		c.pending = c.pending[:0]
		return &TransportError{Kind: KindConnectionClosed, Command: cmd, Received: c.received, Err: err}
	}
}

func (c *Channel) readLine(ctx context.Context, cmd string) ([]byte, error) {
	cmd = strings.TrimSpace(cmd)
	for {
		if i := bytes.IndexByte(c.pending, Terminator); i >= 0 {
			line := make([]byte, i)
			copy(line, c.pending[:i])
			c.pending = c.pending[i+1:]
			return line, nil
		}
		if err := c.fill(ctx, cmd); err != nil {
			return nil, err
		}
	}
}

func (c *Channel) readByte(ctx context.Context, cmd string) (byte, error) {
	for len(c.pending) == 0 {
		if err := c.fill(ctx, cmd); err != nil {
			return 0, err
		}
	}
	b := c.pending[0]
	c.pending = c.pending[1:]
	return b, nil
}

func (c *Channel) readExact(ctx context.Context, cmd string, n int) ([]byte, error) {
	out := make([]byte, 0, min(n, maxPrealloc))
	for len(out) < n {
		if len(c.pending) == 0 {
			if err := c.fill(ctx, cmd); err != nil {
				return nil, err
			}
		}
		take := n - len(out)
		if take > len(c.pending) {
			take = len(c.pending)
		}
		out = append(out, c.pending[:take]...)
		c.pending = c.pending[take:]
	}
	return out, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func trimCommand(cmd Command) string {
	return strings.TrimSpace(string(cmd))
}
