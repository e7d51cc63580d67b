// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package decode

import (
	"fmt"
	"strings"
)

// FormatFrame formats a frame into a human-readable line
func FormatFrame(f Frame) string {
	h := f.Header()
	prefix := fmt.Sprintf("[%12.9fs] %-4s", h.Start, f.Protocol())

	var body string
	switch fr := f.(type) {
	case *I2CFrame:
		rw := "W"
		if fr.Read {
			rw = "R"
		}
		addr := fmt.Sprintf("0x%02X", fr.Address)
		if fr.TenBit {
			addr = fmt.Sprintf("0x%03X", fr.Address)
		}
		body = fmt.Sprintf("addr=%s %s %s data=%s", addr, rw, ackString(fr.AddressAck), formatI2CData(fr))
	case *SPIFrame:
		body = fmt.Sprintf("words=%d", max(len(fr.MOSI), len(fr.MISO)))
		if fr.MOSI != nil {
			body += " mosi=" + formatWords(fr.MOSI, fr.WordSize)
		}
		if fr.MISO != nil {
			body += " miso=" + formatWords(fr.MISO, fr.WordSize)
		}
	case *UARTFrame:
		body = fmt.Sprintf("0x%02X", fr.Value)
		if fr.DataBits <= 8 && fr.Value >= 0x20 && fr.Value < 0x7F {
			body += fmt.Sprintf(" '%c'", rune(fr.Value))
		}
	}

	return fmt.Sprintf("%s %s [%s]", prefix, body, h.Flags)
}

// FormatResult formats every frame followed by the decode errors
func FormatResult(r *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d frames, %d errors\n", r.Protocol(), r.Len(), len(r.Errors()))
	for _, f := range r.Frames() {
		b.WriteString(FormatFrame(f))
		b.WriteByte('\n')
	}
	for _, e := range r.Errors() {
		fmt.Fprintf(&b, "  ! %s\n", e.Error())
	}
	return b.String()
}

func ackString(ack bool) string {
	if ack {
		return "ACK"
	}
	return "NACK"
}

func formatI2CData(f *I2CFrame) string {
	if len(f.Data) == 0 {
		return "[]"
	}
	parts := make([]string, len(f.Data))
	for i, b := range f.Data {
		parts[i] = fmt.Sprintf("%02X", b)
		if i < len(f.Acks) && !f.Acks[i] {
			parts[i] += "*"
		}
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func formatWords(words []uint32, size int) string {
	digits := (size + 3) / 4
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = fmt.Sprintf("%0*X", digits, w)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
