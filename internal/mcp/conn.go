// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mcp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
)

// Conn carries whole JSON-RPC messages. Read returns io.EOF when the peer
// is gone. Write must be safe for concurrent use.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, msg []byte) error
	Close() error
}

// stdioConn frames messages as newline-delimited JSON.
type stdioConn struct {
	r  *bufio.Reader
	w  io.Writer
	c  io.Closer
	mu sync.Mutex
}

// NewStdioConn returns a Conn reading lines from r and writing lines to w.
// If r implements io.Closer it is closed by Close.
func NewStdioConn(r io.Reader, w io.Writer) Conn {
	c := &stdioConn{r: bufio.NewReader(r), w: w}
	if closer, ok := r.(io.Closer); ok {
		c.c = closer
	}
	return c
}

// Read returns the next non-blank line without its terminator.
// The read itself is not interruptible; ctx is only checked between lines.
func (c *stdioConn) Read(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, err := c.r.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			// A final line without a newline is still a message.
			return line, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (c *stdioConn) Write(ctx context.Context, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	buf := make([]byte, 0, len(msg)+1)
	buf = append(buf, msg...)
	buf = append(buf, '\n')
	_, err := c.w.Write(buf)
	return err
}

func (c *stdioConn) Close() error {
	if c.c == nil {
		return nil
	}
	err := c.c.Close()
	if errors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	return err
}
