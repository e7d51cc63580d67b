// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package decode

import (
	"fmt"
	"math"
	"sort"

	"github.com/Thermoquad/scopebus/pkg/digitizer"
)

// SPIConfig configures the SPI decoder
type SPIConfig struct {
	// Mode is the standard 0-3 combination of CPOL (bit 1) and CPHA (bit 0)
	Mode int `toml:"mode"`

	// WordSize is the word width in bits, 1-32. Zero means 8.
	WordSize int `toml:"word_size"`

	LSBFirst     bool `toml:"lsb_first"`
	CSActiveHigh bool `toml:"cs_active_high"`

	// IdleGap splits frames when no CS trace is supplied. Zero means ten
	// times the median interval between sampling edges.
	IdleGap float64 `toml:"idle_gap"`
}

// CPOL returns the idle clock polarity
func (c SPIConfig) CPOL() bool { return c.Mode&2 != 0 }

// CPHA returns the clock phase
func (c SPIConfig) CPHA() bool { return c.Mode&1 != 0 }

// SampleEdge returns the clock edge data is sampled on
func (c SPIConfig) SampleEdge() digitizer.Direction {
	if c.CPOL() == c.CPHA() {
		return digitizer.Rising
	}
	return digitizer.Falling
}

// Validate fills defaults and checks ranges
func (c *SPIConfig) Validate() error {
	if c.WordSize == 0 {
		c.WordSize = 8
	}
	if c.Mode < 0 || c.Mode > 3 {
		return &ConfigError{Protocol: ProtocolSPI, Field: "mode", Reason: fmt.Sprintf("%d is not in 0-3", c.Mode)}
	}
	if c.WordSize < 1 || c.WordSize > 32 {
		return &ConfigError{Protocol: ProtocolSPI, Field: "word_size", Reason: fmt.Sprintf("%d is not in 1-32", c.WordSize)}
	}
	if !(c.IdleGap >= 0) || math.IsInf(c.IdleGap, 0) {
		return &ConfigError{Protocol: ProtocolSPI, Field: "idle_gap", Reason: "must be finite and not negative"}
	}
	return nil
}

type window struct {
	start, end   float64
	unterminated bool
}

// DecodeSPI reconstructs SPI transfers. clk is required, at least one of
// mosi and miso must be given, and cs may be nil.
//
// Each sampling edge captures one bit per data line from the level held
// just before the edge.
func DecodeSPI(clk, mosi, miso, cs *digitizer.Trace, cfg SPIConfig) ([]Frame, []Error, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if clk == nil {
		return nil, nil, &ConfigError{Protocol: ProtocolSPI, Field: "channels", Reason: "sck trace is required"}
	}
	if mosi == nil && miso == nil {
		return nil, nil, &ConfigError{Protocol: ProtocolSPI, Field: "channels", Reason: "mosi or miso trace is required"}
	}

	var samples []float64
	dir := cfg.SampleEdge()
	for _, e := range clk.Edges {
		if e.Direction == dir {
			samples = append(samples, e.Time)
		}
	}

	var windows []window
	if cs != nil {
		windows = csWindows(cs, cfg.CSActiveHigh)
	} else {
		windows = gapWindows(samples, cfg.IdleGap)
	}

	var (
		frames []Frame
		errs   errorList
		mo, mi *digitizer.Cursor
	)
	if mosi != nil {
		mo = mosi.Cursor()
	}
	if miso != nil {
		mi = miso.Cursor()
	}

	next := 0
	for _, w := range windows {
		f := &SPIFrame{Span: Span{Start: w.start, End: w.end}, WordSize: cfg.WordSize}
		idx := len(frames)
		if mo != nil {
			f.MOSI = []uint32{}
		}
		if mi != nil {
			f.MISO = []uint32{}
		}

		// Clock edges outside every window are ignored
		for next < len(samples) && samples[next] < w.start {
			next++
		}

		var outWord, inWord uint32
		nbits := 0
		for ; next < len(samples) && samples[next] <= w.end; next++ {
			at := samples[next]
			if mo != nil {
				outWord = pushBit(outWord, mo.At(at).Bit(), nbits, cfg)
			}
			if mi != nil {
				inWord = pushBit(inWord, mi.At(at).Bit(), nbits, cfg)
			}
			nbits++
			if nbits == cfg.WordSize {
				f.appendWord(outWord, inWord)
				outWord, inWord, nbits = 0, 0, 0
			}
		}

		if nbits > 0 {
			f.appendWord(outWord, inWord)
			f.PartialBits = nbits
			errs.add(&f.Span, idx, KindFraming, w.end, "incomplete word (%d of %d bits)", nbits, cfg.WordSize)
		}
		if w.unterminated {
			errs.add(&f.Span, idx, KindUnterminated, w.end, "chip select still active at end of capture")
		}
		frames = append(frames, f)
	}

	return frames, errs, nil
}

func pushBit(word, bit uint32, n int, cfg SPIConfig) uint32 {
	if cfg.LSBFirst {
		return word | bit<<n
	}
	return word<<1 | bit
}

func (f *SPIFrame) appendWord(out, in uint32) {
	if f.MOSI != nil {
		f.MOSI = append(f.MOSI, out)
	}
	if f.MISO != nil {
		f.MISO = append(f.MISO, in)
	}
}

// csWindows returns the intervals where chip select is active
func csWindows(cs *digitizer.Trace, activeHigh bool) []window {
	active := digitizer.LevelLow
	if activeHigh {
		active = digitizer.LevelHigh
	}

	var windows []window
	open := cs.Initial == active
	start := cs.Start
	for _, e := range cs.Edges {
		if e.Direction.After() == active {
			open, start = true, e.Time
		} else if open {
			windows = append(windows, window{start: start, end: e.Time})
			open = false
		}
	}
	if open {
		windows = append(windows, window{start: start, end: cs.End, unterminated: true})
	}
	return windows
}

// gapWindows splits sampling edges wherever the spacing exceeds gap
func gapWindows(samples []float64, gap float64) []window {
	if len(samples) == 0 {
		return nil
	}
	if gap == 0 {
		gap = 10 * medianInterval(samples)
	}

	var windows []window
	w := window{start: samples[0], end: samples[0]}
	for _, t := range samples[1:] {
		if gap > 0 && t-w.end > gap {
			windows = append(windows, w)
			w = window{start: t}
		}
		w.end = t
	}
	return append(windows, w)
}

func medianInterval(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	d := make([]float64, len(samples)-1)
	for i := range d {
		d[i] = samples[i+1] - samples[i]
	}
	sort.Float64s(d)
	return d[len(d)/2]
}
