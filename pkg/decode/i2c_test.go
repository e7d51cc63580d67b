// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package decode

import (
	"testing"

	"github.com/Thermoquad/scopebus/pkg/digitizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeI2C(t *testing.T, bus *i2cBus, cfg I2CConfig) ([]Frame, []Error) {
	t.Helper()
	scl, sda := bus.traces()
	frames, errs, err := DecodeI2C(scl, sda, cfg)
	require.NoError(t, err)
	return frames, errs
}

func TestDecodeI2C_SingleWrite(t *testing.T) {
	bus := newI2CBus().start().write(0x50<<1, true).write(0xA5, true).stop()

	frames, errs := decodeI2C(t, bus, I2CConfig{})
	require.Len(t, frames, 1)
	assert.Empty(t, errs)

	f := frames[0].(*I2CFrame)
	assert.Equal(t, uint16(0x50), f.Address)
	assert.False(t, f.Read)
	assert.True(t, f.AddressAck)
	assert.Equal(t, []byte{0xA5}, f.Data)
	assert.Equal(t, []bool{true}, f.Acks)
	assert.False(t, f.Flags.Has(FlagFramingError))
	assert.True(t, f.Valid())
	assert.Less(t, f.Start, f.End)
}

func TestDecodeI2C_ReadEndsWithNack(t *testing.T) {
	bus := newI2CBus().start().write(0x68<<1|1, true).write(0x12, true).write(0x34, false).stop()

	frames, errs := decodeI2C(t, bus, I2CConfig{})
	require.Len(t, frames, 1)
	assert.Empty(t, errs, "master NACK on the last read byte is normal")

	f := frames[0].(*I2CFrame)
	assert.True(t, f.Read)
	assert.Equal(t, uint16(0x68), f.Address)
	assert.Equal(t, []byte{0x12, 0x34}, f.Data)
	assert.Equal(t, []bool{true, false}, f.Acks)
	assert.Equal(t, Flags(0), f.Flags)
}

func TestDecodeI2C_AddressNack(t *testing.T) {
	bus := newI2CBus().start().write(0x3C<<1, false).stop()

	frames, errs := decodeI2C(t, bus, I2CConfig{})
	require.Len(t, frames, 1)
	f := frames[0].(*I2CFrame)
	assert.False(t, f.AddressAck)
	assert.True(t, f.Flags.Has(FlagAckMissing))
	require.Len(t, errs, 1)
	assert.Equal(t, KindMissingAck, errs[0].Kind)
	assert.Equal(t, 0, errs[0].Frame)
}

func TestDecodeI2C_WriteNack(t *testing.T) {
	bus := newI2CBus().start().write(0x50<<1, true).write(0x01, false).stop()

	frames, errs := decodeI2C(t, bus, I2CConfig{})
	require.Len(t, frames, 1)
	assert.True(t, frames[0].Header().Flags.Has(FlagAckMissing))
	require.Len(t, errs, 1)
	assert.Equal(t, KindMissingAck, errs[0].Kind)
}

func TestDecodeI2C_Unterminated(t *testing.T) {
	bus := newI2CBus().start().write(0x50<<1, true).write(0xDE, true).write(0xAD, true)

	frames, errs := decodeI2C(t, bus, I2CConfig{})
	require.Len(t, frames, 1)

	f := frames[0].(*I2CFrame)
	assert.True(t, f.Flags.Has(FlagUnterminated))
	assert.Equal(t, []byte{0xDE, 0xAD}, f.Data, "captured bytes are still reported")
	require.Len(t, errs, 1)
	assert.Equal(t, KindUnterminated, errs[0].Kind)
}

func TestDecodeI2C_StartBeforeStop(t *testing.T) {
	bus := newI2CBus().
		start().write(0x50<<1, true).write(0x00, true).
		start().write(0x50<<1|1, true).write(0x42, false).stop()

	frames, errs := decodeI2C(t, bus, I2CConfig{})
	require.Len(t, frames, 2)

	first := frames[0].(*I2CFrame)
	assert.True(t, first.Flags.Has(FlagFramingError))
	assert.True(t, first.Flags.Has(FlagUnterminated))
	assert.Equal(t, []byte{0x00}, first.Data)

	second := frames[1].(*I2CFrame)
	assert.Equal(t, Flags(0), second.Flags, "decoding restarts cleanly at the new start")
	assert.True(t, second.Read)
	assert.Equal(t, []byte{0x42}, second.Data)

	require.Len(t, errs, 1)
	assert.Equal(t, KindFraming, errs[0].Kind)
	assert.Equal(t, 0, errs[0].Frame)
}

func TestDecodeI2C_RepeatedStartAllowed(t *testing.T) {
	bus := newI2CBus().
		start().write(0x50<<1, true).write(0x00, true).
		start().write(0x50<<1|1, true).write(0x42, false).stop()

	frames, errs := decodeI2C(t, bus, I2CConfig{RepeatedStart: true})
	require.Len(t, frames, 2)
	assert.Empty(t, errs)
	assert.Equal(t, Flags(0), frames[0].Header().Flags)
	assert.Equal(t, frames[0].Header().End, frames[1].Header().Start)
}

func TestDecodeI2C_IncompleteByteAtStop(t *testing.T) {
	bus := newI2CBus().start().write(0x50<<1, true)
	for i := 0; i < 3; i++ {
		bus.bit(true)
	}
	bus.stop()

	frames, errs := decodeI2C(t, bus, I2CConfig{})
	require.Len(t, frames, 1)
	assert.True(t, frames[0].Header().Flags.Has(FlagFramingError))
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "3 bits")
}

func TestDecodeI2C_TenBitAddress(t *testing.T) {
	bus := newI2CBus().start().write(0xF4, true).write(0x34, true).write(0x99, true).stop()

	frames, errs := decodeI2C(t, bus, I2CConfig{AddressBits: 10})
	require.Len(t, frames, 1)
	assert.Empty(t, errs)

	f := frames[0].(*I2CFrame)
	assert.True(t, f.TenBit)
	assert.Equal(t, uint16(0x234), f.Address)
	assert.Equal(t, []byte{0x99}, f.Data)

	// Without 10-bit addressing the same prefix is a 7-bit address
	frames, _ = decodeI2C(t, bus, I2CConfig{})
	assert.Equal(t, uint16(0x7A), frames[0].(*I2CFrame).Address)
}

func TestDecodeI2C_TenBitRead(t *testing.T) {
	bus := newI2CBus().
		start().write(0xF4, true).write(0x34, true).
		start().write(0xF5, true).write(0x99, false).stop()

	for _, repeated := range []bool{true, false} {
		frames, errs := decodeI2C(t, bus, I2CConfig{AddressBits: 10, RepeatedStart: repeated})
		require.Len(t, frames, 2)
		assert.Empty(t, errs, "repeated start %v", repeated)

		setup := frames[0].(*I2CFrame)
		assert.Equal(t, uint16(0x234), setup.Address)
		assert.False(t, setup.Read)
		assert.Equal(t, Flags(0), setup.Flags)

		read := frames[1].(*I2CFrame)
		assert.True(t, read.TenBit)
		assert.True(t, read.Read)
		assert.Equal(t, uint16(0x234), read.Address)
		assert.Equal(t, []byte{0x99}, read.Data)
	}
}

func TestDecodeI2C_TenBitReadAfterStopKeepsHighBits(t *testing.T) {
	bus := newI2CBus().
		start().write(0xF4, true).write(0x34, true).stop().
		start().write(0xF5, true).write(0x99, false).stop()

	frames, _ := decodeI2C(t, bus, I2CConfig{AddressBits: 10})
	require.Len(t, frames, 2)
	assert.Equal(t, uint16(0x200), frames[1].(*I2CFrame).Address)
}

func TestDecodeI2C_DataEdgeBeforeClockOnTie(t *testing.T) {
	// SDA falls exactly when SCL falls: the data edge sees SCL still high
	scl := digitizer.NewTrace(0, high, []digitizer.Edge{
		{Time: 1, Direction: digitizer.Falling},
	}, 0, 2)
	sda := digitizer.NewTrace(0, high, []digitizer.Edge{
		{Time: 1, Direction: digitizer.Falling},
	}, 0, 2)

	frames, errs, err := DecodeI2C(scl, sda, I2CConfig{})
	require.NoError(t, err)
	require.Len(t, frames, 1, "start detected")
	assert.Equal(t, 1.0, frames[0].Header().Start)
	require.Len(t, errs, 1)
	assert.Equal(t, KindUnterminated, errs[0].Kind)
}

func TestDecodeI2C_IgnoresDataChangesWithClockLow(t *testing.T) {
	bus := newI2CBus()
	// SCL low, SDA toggling: no start or stop
	bus.scl.set(bus.t, low)
	bus.sda.set(bus.t+1e-6, low)
	bus.sda.set(bus.t+2e-6, high)
	bus.t += 3e-6

	frames, errs := decodeI2C(t, bus, I2CConfig{})
	assert.Empty(t, frames)
	assert.Empty(t, errs)
}

func TestDecodeI2C_ConfigErrors(t *testing.T) {
	scl, sda := newI2CBus().traces()

	_, _, err := DecodeI2C(scl, sda, I2CConfig{AddressBits: 8})
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "address_bits", ce.Field)

	_, _, err = DecodeI2C(nil, sda, I2CConfig{})
	assert.ErrorAs(t, err, &ce)
}
