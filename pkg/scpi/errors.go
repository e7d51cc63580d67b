// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scpi

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is matching against a *TransportError
var (
	ErrTimeout          = errors.New("read timeout")
	ErrNonASCII         = errors.New("non-ASCII command")
	ErrConnectionClosed = errors.New("connection closed")
	ErrMalformedBlock   = errors.New("malformed binary block")
)

// ErrorKind classifies a transport failure
type ErrorKind int

const (
	KindTimeout ErrorKind = iota
	KindNonASCII
	KindConnectionClosed
	KindMalformedBlock
)

// String returns the kind name
func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindNonASCII:
		return "non-ascii command"
	case KindConnectionClosed:
		return "connection closed"
	case KindMalformedBlock:
		return "malformed block"
	default:
		return "unknown"
	}
}

// TransportError is returned by every Channel operation that fails.
//
// Received is the number of response bytes read before a timeout, which
// tells a dead link (0) apart from a slow one. Byte and Position name the
// offending byte of a non-ASCII command.
type TransportError struct {
	Kind     ErrorKind
	Command  string
	Received int
	Byte     byte
	Position int
	Err      error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	var msg string
	switch e.Kind {
	case KindTimeout:
		msg = fmt.Sprintf("timeout after %d bytes received", e.Received)
	case KindNonASCII:
		msg = fmt.Sprintf("non-ASCII byte 0x%02X at position %d", e.Byte, e.Position)
	case KindConnectionClosed:
		msg = "connection closed"
	case KindMalformedBlock:
		msg = "malformed binary block"
	default:
		msg = "transport error"
	}
	if e.Command != "" {
		msg = fmt.Sprintf("%s: %s", e.Command, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind
func (e *TransportError) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrNonASCII:
		return e.Kind == KindNonASCII
	case ErrConnectionClosed:
		return e.Kind == KindConnectionClosed
	case ErrMalformedBlock:
		return e.Kind == KindMalformedBlock
	}
	return false
}

func malformed(cmd string, format string, args ...interface{}) *TransportError {
	return &TransportError{Kind: KindMalformedBlock, Command: cmd, Err: fmt.Errorf(format, args...)}
}
