// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mock

import "math"

// LogicHigh is the voltage of a high level in generated signals
const LogicHigh = 3.3

// Codes8 quantizes volts to signed 8-bit codes at 25 codes per division
func Codes8(volts []float64, scale, offset float64) []byte {
	out := make([]byte, len(volts))
	for i, v := range volts {
		code := math.Round((v + offset) / scale * 25)
		code = math.Max(-128, math.Min(127, code))
		out[i] = byte(int8(code))
	}
	return out
}

// levels renders a list of (duration, level) segments at rate
type levels struct {
	rate  float64
	volts []float64
	t     float64
}

func (l *levels) hold(d float64, high bool) {
	v := 0.0
	if high {
		v = LogicHigh
	}
	l.t += d
	for n := int(math.Round(l.t * l.rate)); len(l.volts) < n; {
		l.volts = append(l.volts, v)
	}
}

// UART renders data as an idle-high 8N1 line at baud, sampled at rate
func UART(data []byte, baud, rate float64) []float64 {
	bit := 1 / baud
	l := &levels{rate: rate}
	l.hold(2*bit, true)
	for _, b := range data {
		l.hold(bit, false)
		for i := 0; i < 8; i++ {
			l.hold(bit, b>>i&1 == 1)
		}
		l.hold(bit, true)
		l.hold(bit, true)
	}
	l.hold(2*bit, true)
	return l.volts
}

// I2CWrite renders a write of data to the 7-bit address, every byte
// acknowledged, as SCL and SDA lines sampled at rate
func I2CWrite(addr byte, data []byte, bitrate, rate float64) (scl, sda []float64) {
	q := 1 / bitrate / 4
	c := &levels{rate: rate}
	d := &levels{rate: rate}
	step := func(clk, dat bool) {
		c.hold(q, clk)
		d.hold(q, dat)
	}

	step(true, true)
	step(true, true)
	// Start
	step(true, false)
	step(false, false)

	send := func(b byte, ack bool) {
		for i := 7; i >= 0; i-- {
			bit := b>>i&1 == 1
			step(false, bit)
			step(true, bit)
			step(true, bit)
			step(false, bit)
		}
		step(false, !ack)
		step(true, !ack)
		step(true, !ack)
		step(false, !ack)
	}
	send(addr<<1, true)
	for _, b := range data {
		send(b, true)
	}

	// Stop
	step(false, false)
	step(true, false)
	step(true, true)
	step(true, true)
	return c.volts, d.volts
}
