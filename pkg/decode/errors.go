// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package decode

import "fmt"

// ErrorKind classifies a per-frame decode anomaly
type ErrorKind uint8

const (
	KindFraming ErrorKind = iota
	KindParity
	KindMissingAck
	KindUnterminated
)

// String returns the kind name
func (k ErrorKind) String() string {
	switch k {
	case KindFraming:
		return "framing_error"
	case KindParity:
		return "parity_error"
	case KindMissingAck:
		return "missing_ack"
	case KindUnterminated:
		return "unterminated_frame"
	default:
		return fmt.Sprintf("ErrorKind(%d)", uint8(k))
	}
}

// Flag returns the frame flag matching the kind
func (k ErrorKind) Flag() Flags {
	switch k {
	case KindFraming:
		return FlagFramingError
	case KindParity:
		return FlagParityError
	case KindMissingAck:
		return FlagAckMissing
	default:
		return FlagUnterminated
	}
}

// Error is a decode anomaly local to one frame. It is reported alongside
// the frames and never aborts a decode run.
type Error struct {
	Kind    ErrorKind
	Time    float64 // seconds
	Frame   int     // index into the frame list
	Message string
}

// Error implements the error interface
func (e Error) Error() string {
	return fmt.Sprintf("%s at %.9fs (frame %d): %s", e.Kind, e.Time, e.Frame, e.Message)
}

// ConfigError reports an invalid decoder configuration
type ConfigError struct {
	Protocol Protocol
	Field    string
	Reason   string
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s config: %s %s", e.Protocol, e.Field, e.Reason)
}

// errorList collects anomalies and flags the frame they belong to
type errorList []Error

func (l *errorList) add(span *Span, frame int, kind ErrorKind, at float64, format string, args ...any) {
	span.Flags |= kind.Flag()
	*l = append(*l, Error{Kind: kind, Time: at, Frame: frame, Message: fmt.Sprintf(format, args...)})
}
