// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package decode

import (
	"github.com/Thermoquad/scopebus/pkg/digitizer"
)

// I2CConfig configures the I2C decoder
type I2CConfig struct {
	// AddressBits is 7 (default) or 10
	AddressBits int `toml:"address_bits"`

	// RepeatedStart treats a Start inside a transaction as the boundary of
	// a new transaction instead of a framing error.
	RepeatedStart bool `toml:"repeated_start"`
}

// Validate fills defaults and checks ranges
func (c *I2CConfig) Validate() error {
	if c.AddressBits == 0 {
		c.AddressBits = 7
	}
	if c.AddressBits != 7 && c.AddressBits != 10 {
		return &ConfigError{Protocol: ProtocolI2C, Field: "address_bits", Reason: "must be 7 or 10"}
	}
	return nil
}

// tenBitPrefix is the 11110xx pattern of a 10-bit address first byte
const tenBitPrefix = 0x1E

type i2cDecoder struct {
	cfg    I2CConfig
	frames []Frame
	errs   errorList

	scl, sda digitizer.Level

	cur     *I2CFrame
	bits    uint32
	nbits   int
	sampled bool // a bit was sampled in the current SCL high phase
	bytes   int  // complete bytes in cur, address bytes included

	// tenBit is the full 10-bit address written since the last Stop. A
	// read header carries only its two high bits.
	tenBit      uint16
	tenBitValid bool
}

// DecodeI2C reconstructs I2C transactions from clock and data traces.
//
// Start and Stop are data edges while the clock is held high. Bits are
// sampled from the data level at clock rising edges and every ninth bit is
// the acknowledge (low = ACK). A bit sampled in the same clock high phase
// as a Start or Stop belongs to that condition, not to a byte. Edges with
// equal timestamps apply the data edge before the clock edge.
func DecodeI2C(scl, sda *digitizer.Trace, cfg I2CConfig) ([]Frame, []Error, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if scl == nil || sda == nil {
		return nil, nil, &ConfigError{Protocol: ProtocolI2C, Field: "channels", Reason: "scl and sda traces are required"}
	}

	d := &i2cDecoder{
		cfg: cfg,
		scl: idleHigh(scl.Initial),
		sda: idleHigh(sda.Initial),
	}

	ci, di := 0, 0
	for ci < len(scl.Edges) || di < len(sda.Edges) {
		if di < len(sda.Edges) && (ci >= len(scl.Edges) || sda.Edges[di].Time <= scl.Edges[ci].Time) {
			d.dataEdge(sda.Edges[di])
			di++
		} else {
			d.clockEdge(scl.Edges[ci])
			ci++
		}
	}

	if d.cur != nil {
		end := scl.End
		if sda.End > end {
			end = sda.End
		}
		d.cur.End = end
		d.errs.add(&d.cur.Span, len(d.frames), KindUnterminated, end,
			"capture ended inside transaction after %d bytes", d.bytes)
		if d.nbits > 0 {
			d.errs.add(&d.cur.Span, len(d.frames), KindFraming, end, "incomplete byte (%d bits)", d.nbits)
		}
		d.frames = append(d.frames, d.cur)
	}

	return d.frames, d.errs, nil
}

// An I2C bus idles high through its pull-ups
func idleHigh(l digitizer.Level) digitizer.Level {
	if l == digitizer.LevelUnknown {
		return digitizer.LevelHigh
	}
	return l
}

func (d *i2cDecoder) dataEdge(e digitizer.Edge) {
	d.sda = e.Direction.After()
	if d.scl != digitizer.LevelHigh {
		return
	}

	d.unsample()
	if e.Direction == digitizer.Falling {
		d.start(e.Time)
	} else {
		d.stop(e.Time)
	}
}

func (d *i2cDecoder) clockEdge(e digitizer.Edge) {
	d.scl = e.Direction.After()
	if d.cur == nil {
		return
	}

	if e.Direction == digitizer.Rising {
		d.bits = d.bits<<1 | d.sda.Bit()
		d.nbits++
		d.sampled = true
		return
	}

	d.sampled = false
	if d.nbits == 9 {
		d.byteDone(byte(d.bits>>1), d.bits&1 == 0, e.Time)
		d.bits, d.nbits = 0, 0
	}
}

// unsample drops the bit taken at the clock edge that opened the current
// high phase
func (d *i2cDecoder) unsample() {
	if d.sampled {
		d.bits >>= 1
		d.nbits--
		d.sampled = false
	}
}

func (d *i2cDecoder) start(at float64) {
	if d.cur != nil {
		idx := len(d.frames)
		d.cur.End = at
		if d.nbits > 0 {
			d.errs.add(&d.cur.Span, idx, KindFraming, at, "incomplete byte (%d bits) before start", d.nbits)
		}
		if !d.cfg.RepeatedStart && !d.tenBitReadSetup() {
			d.cur.Flags |= FlagUnterminated
			d.errs.add(&d.cur.Span, idx, KindFraming, at, "start before stop")
		}
		d.frames = append(d.frames, d.cur)
	}

	d.cur = &I2CFrame{Span: Span{Start: at}}
	d.bits, d.nbits, d.bytes = 0, 0, 0
	d.sampled = false
}

func (d *i2cDecoder) stop(at float64) {
	if d.cur == nil {
		return
	}
	idx := len(d.frames)
	d.cur.End = at
	if d.nbits > 0 {
		d.errs.add(&d.cur.Span, idx, KindFraming, at, "incomplete byte (%d bits) at stop", d.nbits)
	} else if d.bytes == 0 {
		d.errs.add(&d.cur.Span, idx, KindFraming, at, "stop without address")
	}
	d.frames = append(d.frames, d.cur)
	d.cur = nil
	d.tenBitValid = false
}

// tenBitReadSetup reports whether cur is the address-only write that opens
// a 10-bit read, which must be followed by a repeated Start
func (d *i2cDecoder) tenBitReadSetup() bool {
	f := d.cur
	return f.TenBit && !f.Read && f.AddressAck && d.bytes == 2 && d.nbits == 0
}

func (d *i2cDecoder) byteDone(b byte, ack bool, at float64) {
	f := d.cur
	idx := len(d.frames)
	n := d.bytes
	d.bytes++

	switch {
	case n == 0:
		f.Read = b&1 == 1
		f.AddressAck = ack
		if d.cfg.AddressBits == 10 && b>>3 == tenBitPrefix {
			f.TenBit = true
			f.Address = uint16(b>>1&0x03) << 8
			if f.Read && d.tenBitValid && d.tenBit>>8 == f.Address>>8 {
				f.Address = d.tenBit
			}
		} else {
			f.Address = uint16(b >> 1)
		}
		if !ack {
			d.errs.add(&f.Span, idx, KindMissingAck, at, "address 0x%02X not acknowledged", f.Address)
		}

	case n == 1 && f.TenBit && !f.Read:
		f.Address |= uint16(b)
		d.tenBit, d.tenBitValid = f.Address, true
		if !ack {
			f.AddressAck = false
			d.errs.add(&f.Span, idx, KindMissingAck, at, "address 0x%03X not acknowledged", f.Address)
		}

	default:
		f.Data = append(f.Data, b)
		f.Acks = append(f.Acks, ack)
		// The master NACKs the last byte of a read
		if !ack && !f.Read {
			d.errs.add(&f.Span, idx, KindMissingAck, at, "data byte %d (0x%02X) not acknowledged", len(f.Data)-1, b)
		}
	}
}
