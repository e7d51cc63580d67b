// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package decode

import (
	"fmt"
	"strings"
)

// Protocol selects a decoder
type Protocol uint8

const (
	ProtocolI2C Protocol = iota + 1
	ProtocolSPI
	ProtocolUART
)

// String returns the protocol name
func (p Protocol) String() string {
	switch p {
	case ProtocolI2C:
		return "I2C"
	case ProtocolSPI:
		return "SPI"
	case ProtocolUART:
		return "UART"
	default:
		return fmt.Sprintf("Protocol(%d)", uint8(p))
	}
}

// ParseProtocol accepts "i2c", "spi" or "uart" in any case
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "i2c":
		return ProtocolI2C, nil
	case "spi":
		return ProtocolSPI, nil
	case "uart":
		return ProtocolUART, nil
	default:
		return 0, fmt.Errorf("unknown protocol %q (expected i2c, spi or uart)", s)
	}
}

// Role names the signal a trace carries
type Role string

const (
	RoleSCL  Role = "scl"
	RoleSDA  Role = "sda"
	RoleSCK  Role = "sck"
	RoleMOSI Role = "mosi"
	RoleMISO Role = "miso"
	RoleCS   Role = "cs"
	RoleTX   Role = "tx"
)

// Roles returns the signals a protocol uses, required ones first
func (p Protocol) Roles() []Role {
	switch p {
	case ProtocolI2C:
		return []Role{RoleSCL, RoleSDA}
	case ProtocolSPI:
		return []Role{RoleSCK, RoleMOSI, RoleMISO, RoleCS}
	case ProtocolUART:
		return []Role{RoleTX}
	default:
		return nil
	}
}

// Flags marks per-frame anomalies
type Flags uint8

const (
	FlagAckMissing Flags = 1 << iota
	FlagFramingError
	FlagParityError
	FlagUnterminated
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagAckMissing, "NACK"},
	{FlagFramingError, "FRAMING"},
	{FlagParityError, "PARITY"},
	{FlagUnterminated, "UNTERMINATED"},
}

// Has reports whether all bits of f are set
func (fl Flags) Has(f Flags) bool {
	return fl&f == f
}

// String joins the set flag names with '|', or "OK"
func (fl Flags) String() string {
	if fl == 0 {
		return "OK"
	}
	var names []string
	for _, n := range flagNames {
		if fl.Has(n.flag) {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}

// Span is the part every frame shares
type Span struct {
	Start float64 // seconds
	End   float64 // seconds
	Flags Flags
}

// Header returns the frame span
func (s Span) Header() Span {
	return s
}

// Valid reports whether no anomaly flag is set
func (s Span) Valid() bool {
	return s.Flags == 0
}

// Frame is one decoded message. The set of implementations is closed:
// *I2CFrame, *SPIFrame and *UARTFrame.
type Frame interface {
	Protocol() Protocol
	Header() Span
	Payload() []byte
	isFrame()
}

// I2CFrame is one Start to Stop transaction
type I2CFrame struct {
	Span
	Address    uint16
	TenBit     bool
	Read       bool
	AddressAck bool
	Data       []byte
	Acks       []bool // one per data byte, true = ACK
}

func (*I2CFrame) isFrame() {}

// Protocol returns ProtocolI2C
func (*I2CFrame) Protocol() Protocol { return ProtocolI2C }

// Payload returns the data bytes
func (f *I2CFrame) Payload() []byte { return f.Data }

// SPIFrame is one chip-select window or one burst between idle gaps
type SPIFrame struct {
	Span
	WordSize    int
	MOSI        []uint32 // nil when no MOSI trace was supplied
	MISO        []uint32 // nil when no MISO trace was supplied
	PartialBits int      // bits in the last word if it is incomplete, else 0
}

func (*SPIFrame) isFrame() {}

// Protocol returns ProtocolSPI
func (*SPIFrame) Protocol() Protocol { return ProtocolSPI }

// Payload returns the MOSI words, or the MISO words when MOSI is absent,
// as big-endian bytes of (WordSize+7)/8 each.
func (f *SPIFrame) Payload() []byte {
	words := f.MOSI
	if words == nil {
		words = f.MISO
	}
	return wordBytes(words, f.WordSize)
}

func wordBytes(words []uint32, size int) []byte {
	n := (size + 7) / 8
	out := make([]byte, 0, len(words)*n)
	for _, w := range words {
		for i := n - 1; i >= 0; i-- {
			out = append(out, byte(w>>(8*i)))
		}
	}
	return out
}

// UARTFrame is one character
type UARTFrame struct {
	Span
	Value    uint16
	DataBits int
}

func (*UARTFrame) isFrame() {}

// Protocol returns ProtocolUART
func (*UARTFrame) Protocol() Protocol { return ProtocolUART }

// Payload returns the value as one byte, or two big-endian bytes for 9
// data bits.
func (f *UARTFrame) Payload() []byte {
	if f.DataBits > 8 {
		return []byte{byte(f.Value >> 8), byte(f.Value)}
	}
	return []byte{byte(f.Value)}
}
