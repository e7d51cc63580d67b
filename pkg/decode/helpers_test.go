// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package decode

import (
	"github.com/Thermoquad/scopebus/pkg/digitizer"
)

const (
	low  = digitizer.LevelLow
	high = digitizer.LevelHigh
)

// line records the edges of one synthetic logic signal
type line struct {
	initial digitizer.Level
	level   digitizer.Level
	edges   []digitizer.Edge
}

func newLine(initial digitizer.Level) *line {
	return &line{initial: initial, level: initial}
}

func (l *line) set(at float64, level digitizer.Level) {
	if level == l.level {
		return
	}
	dir := digitizer.Falling
	if level == high {
		dir = digitizer.Rising
	}
	l.edges = append(l.edges, digitizer.Edge{Time: at, Direction: dir})
	l.level = level
}

func (l *line) trace(end float64) *digitizer.Trace {
	return digitizer.NewTrace(0, l.initial, l.edges, 0, end)
}

func levelOf(b bool) digitizer.Level {
	if b {
		return high
	}
	return low
}

// ============================================================
// I2C bus generator
// ============================================================

type i2cBus struct {
	scl, sda *line
	t, h     float64
}

func newI2CBus() *i2cBus {
	// 100 kHz
	return &i2cBus{scl: newLine(high), sda: newLine(high), t: 10e-6, h: 5e-6}
}

func (b *i2cBus) start() *i2cBus {
	if b.scl.level == low {
		// Repeated start: release SDA, raise SCL
		b.sda.set(b.t, high)
		b.t += b.h / 2
		b.scl.set(b.t, high)
		b.t += b.h / 2
	}
	b.sda.set(b.t, low)
	b.t += b.h / 2
	b.scl.set(b.t, low)
	b.t += b.h / 2
	return b
}

func (b *i2cBus) bit(v bool) {
	b.sda.set(b.t, levelOf(v))
	b.t += b.h / 2
	b.scl.set(b.t, high)
	b.t += b.h
	b.scl.set(b.t, low)
	b.t += b.h / 2
}

func (b *i2cBus) write(v byte, ack bool) *i2cBus {
	for i := 7; i >= 0; i-- {
		b.bit(v>>i&1 == 1)
	}
	b.bit(!ack)
	return b
}

func (b *i2cBus) stop() *i2cBus {
	b.sda.set(b.t, low)
	b.t += b.h / 2
	b.scl.set(b.t, high)
	b.t += b.h / 2
	b.sda.set(b.t, high)
	b.t += b.h
	return b
}

func (b *i2cBus) traces() (scl, sda *digitizer.Trace) {
	end := b.t + b.h
	return b.scl.trace(end), b.sda.trace(end)
}

// ============================================================
// SPI bus generator
// ============================================================

type spiBus struct {
	sck, mosi, miso, cs *line
	mode                int
	t, h                float64
}

func newSPIBus(mode int) *spiBus {
	idle := levelOf(mode&2 != 0)
	return &spiBus{
		sck:  newLine(idle),
		mosi: newLine(low),
		miso: newLine(low),
		cs:   newLine(high),
		mode: mode,
		t:    1e-6,
		h:    0.5e-6,
	}
}

func (b *spiBus) toggle() {
	b.sck.set(b.t, levelOf(b.sck.level == low))
}

// word clocks one MSB-first word of size bits on both data lines
func (b *spiBus) word(out, in uint32, size int) *spiBus {
	for i := size - 1; i >= 0; i-- {
		o, n := levelOf(out>>i&1 == 1), levelOf(in>>i&1 == 1)
		if b.mode&1 == 0 {
			// Data valid before the leading (sampling) edge
			b.mosi.set(b.t, o)
			b.miso.set(b.t, n)
			b.t += b.h / 2
			b.toggle()
			b.t += b.h
			b.toggle()
			b.t += b.h / 2
		} else {
			// Data shifted on the leading edge, sampled on the trailing edge
			b.toggle()
			b.t += b.h / 2
			b.mosi.set(b.t, o)
			b.miso.set(b.t, n)
			b.t += b.h / 2
			b.toggle()
			b.t += b.h
		}
	}
	return b
}

func (b *spiBus) select_() *spiBus {
	b.cs.set(b.t, low)
	b.t += b.h
	return b
}

func (b *spiBus) deselect() *spiBus {
	b.t += b.h
	b.cs.set(b.t, high)
	b.t += b.h
	return b
}

func (b *spiBus) idle(d float64) *spiBus {
	b.t += d
	return b
}

func (b *spiBus) end() float64 {
	return b.t + b.h
}

// ============================================================
// UART line generator
// ============================================================

// uartTrace encodes characters with one idle bit between them. cfg must
// be valid.
func uartTrace(cfg UARTConfig, values ...uint16) *digitizer.Trace {
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	period := 1 / cfg.Baud
	l := newLine(levelOf(!cfg.Inverted))
	t := period

	for _, v := range values {
		t = uartChar(l, t, cfg, v, cfg.Parity.Bit(v), true)
		t += period
	}
	return l.trace(t + period)
}

// uartChar encodes one character starting at t and returns the time after
// its stop bits. cfg defaults must already be filled in.
func uartChar(l *line, t float64, cfg UARTConfig, v uint16, parity uint32, stopOK bool) float64 {
	period := 1 / cfg.Baud
	phys := func(b bool) digitizer.Level {
		if cfg.Inverted {
			b = !b
		}
		return levelOf(b)
	}

	l.set(t, phys(false))
	t += period
	for i := 0; i < cfg.DataBits; i++ {
		l.set(t, phys(v>>i&1 == 1))
		t += period
	}
	if cfg.Parity != ParityNone {
		l.set(t, phys(parity == 1))
		t += period
	}
	l.set(t, phys(stopOK))
	t += cfg.StopBits * period
	l.set(t, phys(true))
	return t
}
