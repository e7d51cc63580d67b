// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package decode

import (
	"fmt"
	"testing"

	"github.com/Thermoquad/scopebus/pkg/digitizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSPI_AllModesBothDirections(t *testing.T) {
	for mode := 0; mode <= 3; mode++ {
		t.Run(fmt.Sprintf("mode %d", mode), func(t *testing.T) {
			bus := newSPIBus(mode).select_().word(0xA5, 0x5A, 8).word(0x3C, 0xC3, 8).deselect()
			end := bus.end()

			frames, errs, err := DecodeSPI(bus.sck.trace(end), bus.mosi.trace(end), bus.miso.trace(end), bus.cs.trace(end), SPIConfig{Mode: mode})
			require.NoError(t, err)
			assert.Empty(t, errs)
			require.Len(t, frames, 1)

			f := frames[0].(*SPIFrame)
			assert.Equal(t, []uint32{0xA5, 0x3C}, f.MOSI)
			assert.Equal(t, []uint32{0x5A, 0xC3}, f.MISO)
			assert.Equal(t, []byte{0xA5, 0x3C}, f.Payload())
			assert.Equal(t, Flags(0), f.Flags)
			assert.Zero(t, f.PartialBits)
		})
	}
}

func TestSPIConfig_SampleEdge(t *testing.T) {
	assert.Equal(t, digitizer.Rising, SPIConfig{Mode: 0}.SampleEdge())
	assert.Equal(t, digitizer.Falling, SPIConfig{Mode: 1}.SampleEdge())
	assert.Equal(t, digitizer.Falling, SPIConfig{Mode: 2}.SampleEdge())
	assert.Equal(t, digitizer.Rising, SPIConfig{Mode: 3}.SampleEdge())
}

func TestDecodeSPI_IdleGapWithoutCS(t *testing.T) {
	bus := newSPIBus(0).word(0x11, 0, 8).word(0x22, 0, 8).idle(100e-6).word(0x33, 0, 8)
	end := bus.end()

	frames, errs, err := DecodeSPI(bus.sck.trace(end), bus.mosi.trace(end), nil, nil, SPIConfig{})
	require.NoError(t, err)
	assert.Empty(t, errs)
	require.Len(t, frames, 2)
	assert.Equal(t, []uint32{0x11, 0x22}, frames[0].(*SPIFrame).MOSI)
	assert.Equal(t, []uint32{0x33}, frames[1].(*SPIFrame).MOSI)
	assert.Nil(t, frames[0].(*SPIFrame).MISO)

	// An explicit gap wider than the idle period keeps one frame
	frames, _, err = DecodeSPI(bus.sck.trace(end), bus.mosi.trace(end), nil, nil, SPIConfig{IdleGap: 1e-3})
	require.NoError(t, err)
	assert.Len(t, frames, 1)
}

func TestDecodeSPI_IncompleteWord(t *testing.T) {
	bus := newSPIBus(0).select_().word(0xABC, 0, 12).deselect()
	end := bus.end()

	frames, errs, err := DecodeSPI(bus.sck.trace(end), bus.mosi.trace(end), nil, bus.cs.trace(end), SPIConfig{})
	require.NoError(t, err)
	require.Len(t, frames, 1)

	f := frames[0].(*SPIFrame)
	assert.Equal(t, []uint32{0xAB, 0xC}, f.MOSI)
	assert.Equal(t, 4, f.PartialBits)
	assert.True(t, f.Flags.Has(FlagFramingError))
	require.Len(t, errs, 1)
	assert.Equal(t, KindFraming, errs[0].Kind)
}

func TestDecodeSPI_ChipSelectOpenAtEnd(t *testing.T) {
	bus := newSPIBus(0).select_().word(0x7E, 0, 8)
	end := bus.end()

	frames, errs, err := DecodeSPI(bus.sck.trace(end), bus.mosi.trace(end), nil, bus.cs.trace(end), SPIConfig{})
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.True(t, frames[0].Header().Flags.Has(FlagUnterminated))
	assert.Equal(t, []uint32{0x7E}, frames[0].(*SPIFrame).MOSI)
	require.Len(t, errs, 1)
	assert.Equal(t, KindUnterminated, errs[0].Kind)
}

func TestDecodeSPI_IgnoresClocksOutsideChipSelect(t *testing.T) {
	bus := newSPIBus(0).word(0xFF, 0, 8).select_().word(0x42, 0, 8).deselect().word(0xFF, 0, 8)
	end := bus.end()

	frames, _, err := DecodeSPI(bus.sck.trace(end), bus.mosi.trace(end), nil, bus.cs.trace(end), SPIConfig{})
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, []uint32{0x42}, frames[0].(*SPIFrame).MOSI)
}

func TestDecodeSPI_LSBFirstAndWordSize(t *testing.T) {
	bus := newSPIBus(0).select_().word(0x01, 0, 8).word(0x2AB, 0, 10).deselect()
	end := bus.end()

	frames, _, err := DecodeSPI(bus.sck.trace(end), bus.mosi.trace(end), nil, bus.cs.trace(end), SPIConfig{LSBFirst: true, WordSize: 18})
	require.NoError(t, err)
	require.Len(t, frames, 1)
	// 00000001 1010101011 read LSB first
	assert.Equal(t, []uint32{0x35580}, frames[0].(*SPIFrame).MOSI)
	assert.Equal(t, []byte{0x03, 0x55, 0x80}, frames[0].Payload())
}

func TestDecodeSPI_ConfigErrors(t *testing.T) {
	bus := newSPIBus(0)
	end := bus.end()
	clk, mosi := bus.sck.trace(end), bus.mosi.trace(end)

	tests := []struct {
		name      string
		clk, mosi *digitizer.Trace
		cfg       SPIConfig
		wantField string
	}{
		{"mode", clk, mosi, SPIConfig{Mode: 4}, "mode"},
		{"word size", clk, mosi, SPIConfig{WordSize: 33}, "word_size"},
		{"idle gap", clk, mosi, SPIConfig{IdleGap: -1}, "idle_gap"},
		{"no clock", nil, mosi, SPIConfig{}, "channels"},
		{"no data", clk, nil, SPIConfig{}, "channels"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeSPI(tt.clk, tt.mosi, nil, nil, tt.cfg)
			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.wantField, ce.Field)
		})
	}
}
