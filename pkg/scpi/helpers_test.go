// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scpi

import (
	"bytes"
	"context"
	"time"
)

// readStep is one scripted Read result. A step with no data and no error
// behaves like a read that hit the timeout.
type readStep struct {
	data []byte
	err  error
}

// fakeConn replays scripted reads and records everything written
type fakeConn struct {
	reads    []readStep
	written  bytes.Buffer
	timeouts []time.Duration
	closed   bool
}

func (f *fakeConn) Read(p []byte) (int, error) {
	if len(f.reads) == 0 {
		return 0, nil
	}
	s := f.reads[0]
	if len(s.data) > len(p) {
		n := copy(p, s.data)
		f.reads[0].data = s.data[n:]
		return n, nil
	}
	f.reads = f.reads[1:]
	n := copy(p, s.data)
	return n, s.err
}

func (f *fakeConn) Write(p []byte) (int, error) {
	return f.written.Write(p)
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func (f *fakeConn) SetReadTimeout(t time.Duration) error {
	f.timeouts = append(f.timeouts, t)
	return nil
}

func data(s string) readStep {
	return readStep{data: []byte(s)}
}

func stall() readStep {
	return readStep{}
}

// openFake returns an open channel over conn
func openFake(conn *fakeConn, opts ...Option) *Channel {
	dial := func(context.Context) (Conn, error) {
		return conn, nil
	}
	ch := NewChannel(dial, opts...)
	if err := ch.Open(context.Background()); err != nil {
		panic(err)
	}
	return ch
}
