// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mock

import (
	"context"
	"testing"

	"github.com/Thermoquad/scopebus/pkg/scpi"
	"github.com/Thermoquad/scopebus/pkg/waveform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openScope(t *testing.T, s *Scope) *scpi.Channel {
	t.Helper()
	ch := scpi.NewChannel(s.Dial)
	require.NoError(t, ch.Open(context.Background()))
	t.Cleanup(func() { _ = ch.Close() })
	return ch
}

func TestScope_Identify(t *testing.T) {
	ch := openScope(t, NewScope())
	id, err := ch.Identify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SDS1104X-E", id.Model)
	assert.Equal(t, "MOCK0001", id.Serial)
}

func TestScope_AcquireDefaultPayload(t *testing.T) {
	s := NewScope()
	ch := openScope(t, s)

	rec, err := waveform.Acquire(context.Background(), ch, 1, waveform.Format8)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2, 3}, rec.Samples())
	assert.InDelta(t, 1e3, rec.SampleRate(), 1e-9)
	assert.Contains(t, s.Commands(), "COMM_FORMAT DEF9,BYTE,BIN")
}

func TestScope_AcquireWord(t *testing.T) {
	s := NewScope()
	s.SetChannel(2, 0.5, 0.25, []byte{0, 50, 0xCE})
	ch := openScope(t, s)

	rec, err := waveform.Acquire(context.Background(), ch, 2, waveform.Format16)
	require.NoError(t, err)
	// (code/6400)*0.5 - 0.25 with codes 0, 12800, -12800
	assert.InDeltaSlice(t, []float64{-0.25, 0.75, -1.25}, rec.Samples(), 1e-12)
}

func TestScope_SetCommands(t *testing.T) {
	s := NewScope()
	ch := openScope(t, s)
	ctx := context.Background()

	require.NoError(t, ch.Send(ctx, "C3:VDIV 2.00E+00V"))
	require.NoError(t, ch.Send(ctx, "C3:OFST -1.5V"))
	settings, err := waveform.ReadSettings(ctx, ch, 3)
	require.NoError(t, err)
	assert.Equal(t, 2.0, settings.VerticalScale)
	assert.Equal(t, -1.5, settings.VerticalOffset)
}

func TestScope_UnknownQueryTimesOut(t *testing.T) {
	ch := openScope(t, NewScope())
	_, err := ch.Query(context.Background(), "TRIG_MODE?")
	assert.ErrorIs(t, err, scpi.ErrTimeout)

	// Still usable
	_, err = ch.Identify(context.Background())
	assert.NoError(t, err)
}

func TestScope_ClosedReportsConnectionClosed(t *testing.T) {
	s := NewScope()
	ch := openScope(t, s)
	require.NoError(t, s.Close())

	_, err := ch.Query(context.Background(), "*IDN?")
	assert.ErrorIs(t, err, scpi.ErrConnectionClosed)
	require.NoError(t, ch.Reconnect(context.Background()))
	_, err = ch.Identify(context.Background())
	assert.NoError(t, err)
}

func TestCodes8(t *testing.T) {
	assert.Equal(t, []byte{0, 25, 83, 127, 0x80}, Codes8([]float64{0, 1, 3.3, 100, -100}, 1, 0))
}

func TestGenerators(t *testing.T) {
	v := UART([]byte("A"), 1000, 10000)
	assert.Len(t, v, 150)

	scl, sda := I2CWrite(0x50, []byte{1}, 1000, 40000)
	assert.Equal(t, len(scl), len(sda))
}
