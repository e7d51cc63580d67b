// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package decode

import (
	"fmt"
	"math"
	"math/bits"
	"strings"

	"github.com/Thermoquad/scopebus/pkg/digitizer"
)

// Parity selects the UART parity bit
type Parity uint8

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
	ParityMark
	ParitySpace
)

// String returns the parity name
func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "none"
	case ParityOdd:
		return "odd"
	case ParityEven:
		return "even"
	case ParityMark:
		return "mark"
	case ParitySpace:
		return "space"
	default:
		return fmt.Sprintf("Parity(%d)", uint8(p))
	}
}

// ParseParity accepts the names returned by String
func ParseParity(s string) (Parity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "n":
		return ParityNone, nil
	case "odd", "o":
		return ParityOdd, nil
	case "even", "e":
		return ParityEven, nil
	case "mark", "m":
		return ParityMark, nil
	case "space", "s":
		return ParitySpace, nil
	default:
		return 0, fmt.Errorf("unknown parity %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (p Parity) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (p *Parity) UnmarshalText(text []byte) error {
	v, err := ParseParity(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Bit returns the expected parity bit for data
func (p Parity) Bit(data uint16) uint32 {
	ones := uint32(bits.OnesCount16(data) & 1)
	switch p {
	case ParityOdd:
		return ones ^ 1
	case ParityEven:
		return ones
	case ParityMark:
		return 1
	default:
		return 0
	}
}

// UARTConfig configures the UART decoder
type UARTConfig struct {
	Baud     float64 `toml:"baud"`
	DataBits int     `toml:"data_bits"`
	Parity   Parity  `toml:"parity"`
	StopBits float64 `toml:"stop_bits"`

	// Inverted decodes a line that idles low
	Inverted bool `toml:"inverted"`
}

// Validate fills defaults and checks ranges
func (c *UARTConfig) Validate() error {
	if c.DataBits == 0 {
		c.DataBits = 8
	}
	if c.StopBits == 0 {
		c.StopBits = 1
	}
	if !(c.Baud > 0) || math.IsInf(c.Baud, 0) {
		return &ConfigError{Protocol: ProtocolUART, Field: "baud", Reason: fmt.Sprintf("%g must be positive and finite", c.Baud)}
	}
	if c.DataBits < 5 || c.DataBits > 9 {
		return &ConfigError{Protocol: ProtocolUART, Field: "data_bits", Reason: fmt.Sprintf("%d is not in 5-9", c.DataBits)}
	}
	if c.StopBits != 1 && c.StopBits != 1.5 && c.StopBits != 2 {
		return &ConfigError{Protocol: ProtocolUART, Field: "stop_bits", Reason: fmt.Sprintf("%g is not 1, 1.5 or 2", c.StopBits)}
	}
	if c.Parity > ParitySpace {
		return &ConfigError{Protocol: ProtocolUART, Field: "parity", Reason: c.Parity.String()}
	}
	return nil
}

// FrameBits returns the character length in bit periods
func (c UARTConfig) FrameBits() float64 {
	n := 1 + float64(c.DataBits) + c.StopBits
	if c.Parity != ParityNone {
		n++
	}
	return n
}

// DecodeUART reconstructs characters from a single data line.
//
// An idle-to-active edge starts a character and every following bit is
// sampled at the middle of its period. The decoded value is always
// reported; parity and stop bit problems only set flags.
func DecodeUART(tx *digitizer.Trace, cfg UARTConfig) ([]Frame, []Error, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if tx == nil {
		return nil, nil, &ConfigError{Protocol: ProtocolUART, Field: "channels", Reason: "tx trace is required"}
	}

	startDir := digitizer.Falling
	if cfg.Inverted {
		startDir = digitizer.Rising
	}
	logical := func(l digitizer.Level) uint32 {
		b := l.Bit()
		if cfg.Inverted {
			b ^= 1
		}
		return b
	}

	period := 1 / cfg.Baud
	hasParity := cfg.Parity != ParityNone

	var (
		frames []Frame
		errs   errorList
	)
	cursor := tx.Cursor()
	resume := math.Inf(-1)

	for _, e := range tx.Edges {
		if e.Direction != startDir || e.Time < resume {
			continue
		}
		start := e.Time
		sampleAt := func(n int) float64 { return start + (float64(n)+0.5)*period }

		if logical(cursor.At(sampleAt(0))) != 0 {
			// Start bit did not hold: glitch
			resume = sampleAt(0)
			continue
		}

		f := &UARTFrame{
			Span:     Span{Start: start, End: start + cfg.FrameBits()*period},
			DataBits: cfg.DataBits,
		}
		idx := len(frames)

		n := 1
		for i := 0; i < cfg.DataBits; i++ {
			f.Value |= uint16(logical(cursor.At(sampleAt(n)))) << i
			n++
		}

		if hasParity {
			at := sampleAt(n)
			got := logical(cursor.At(at))
			if at <= tx.End && got != cfg.Parity.Bit(f.Value) {
				errs.add(&f.Span, idx, KindParity, at, "parity bit %d, expected %d (%s)", got, cfg.Parity.Bit(f.Value), cfg.Parity)
			}
			n++
		}

		last := sampleAt(n)
		stops := []float64{last}
		if cfg.StopBits == 2 {
			last = sampleAt(n + 1)
			stops = append(stops, last)
		}
		for _, at := range stops {
			if at <= tx.End && logical(cursor.At(at)) != 1 {
				errs.add(&f.Span, idx, KindFraming, at, "stop bit not idle")
				break
			}
		}

		// Complete once every bit has been sampled
		if last > tx.End {
			errs.add(&f.Span, idx, KindUnterminated, tx.End, "capture ended inside character")
		}
		f.End = min(f.End, tx.End)

		frames = append(frames, f)
		resume = last
	}

	return frames, errs, nil
}
