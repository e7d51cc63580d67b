// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"bytes"
	"context"
	"testing"

	"github.com/Thermoquad/scopebus/pkg/decode"
	"github.com/Thermoquad/scopebus/pkg/digitizer"
	"github.com/Thermoquad/scopebus/pkg/scpi"
	"github.com/Thermoquad/scopebus/pkg/scpi/mock"
	"github.com/Thermoquad/scopebus/pkg/waveform"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRate = 4e6

func i2cScope(t *testing.T) *scpi.Channel {
	t.Helper()
	scope := mock.NewScope()
	scope.SetSampleRate(sampleRate)
	scl, sda := mock.I2CWrite(0x50, []byte{0xA5, 0x5A}, 100e3, sampleRate)
	scope.SetChannel(1, 1, 0, mock.Codes8(scl, 1, 0))
	scope.SetChannel(2, 1, 0, mock.Codes8(sda, 1, 0))

	ch := scpi.NewChannel(scope.Dial)
	require.NoError(t, ch.Open(context.Background()))
	t.Cleanup(func() { _ = ch.Close() })
	return ch
}

func assertI2CResult(t *testing.T, r *decode.Result) {
	t.Helper()
	require.Equal(t, 1, r.Len())
	assert.Empty(t, r.Errors())
	f := r.At(0).(*decode.I2CFrame)
	assert.Equal(t, uint16(0x50), f.Address)
	assert.Equal(t, []byte{0xA5, 0x5A}, f.Data)
	assert.True(t, f.Valid())
}

func TestAcquireAndDecode(t *testing.T) {
	ctx := context.Background()
	ch := i2cScope(t)

	c, err := Acquire(ctx, ch, map[decode.Role]int{decode.RoleSCL: 1, decode.RoleSDA: 2}, waveform.Format8)
	require.NoError(t, err)
	assert.Equal(t, "SDS1104X-E", c.Instrument.Model)
	assert.Equal(t, []decode.Role{decode.RoleSCL, decode.RoleSDA}, c.Roles())
	assert.Equal(t, 2, c.Records[decode.RoleSDA].Channel())

	r, err := c.Decode(ctx, decode.Request{Protocol: decode.ProtocolI2C}, Auto(0.1))
	require.NoError(t, err)
	assertI2CResult(t, r)

	r, err = c.Decode(ctx, decode.Request{Protocol: decode.ProtocolI2C}, Fixed(digitizer.Thresholds{High: 2, Low: 1}))
	require.NoError(t, err)
	assertI2CResult(t, r)
}

func TestAcquire_Errors(t *testing.T) {
	ctx := context.Background()
	ch := i2cScope(t)

	_, err := Acquire(ctx, ch, nil, waveform.Format8)
	assert.Error(t, err)

	_, err = Acquire(ctx, ch, map[decode.Role]int{decode.RoleTX: 7}, waveform.Format8)
	assert.ErrorIs(t, err, waveform.ErrInvalidChannel)
}

func TestDigitize_ThresholdError(t *testing.T) {
	ctx := context.Background()
	c, err := Acquire(ctx, i2cScope(t), map[decode.Role]int{decode.RoleSCL: 1, decode.RoleSDA: 2}, waveform.Format8)
	require.NoError(t, err)

	_, err = c.Digitize(ctx, Fixed(digitizer.Thresholds{High: 1, Low: 2}))
	var ce *digitizer.ConfigError
	assert.ErrorAs(t, err, &ce)
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()

	c, err := Acquire(ctx, i2cScope(t), map[decode.Role]int{decode.RoleSCL: 1, decode.RoleSDA: 2}, waveform.Format8)
	require.NoError(t, err)
	require.NoError(t, Save(fs, "/captures/i2c.cbor", c))

	loaded, err := Load(fs, "/captures/i2c.cbor")
	require.NoError(t, err)
	assert.Equal(t, c.ID, loaded.ID)
	assert.True(t, c.Taken.Equal(loaded.Taken))
	assert.Equal(t, c.Instrument, loaded.Instrument)
	for _, role := range c.Roles() {
		assert.Equal(t, c.Records[role].Samples(), loaded.Records[role].Samples())
		assert.Equal(t, c.Records[role].Timing(), loaded.Records[role].Timing())
		assert.Equal(t, c.Records[role].Calibration(), loaded.Records[role].Calibration())
	}

	r, err := loaded.Decode(ctx, decode.Request{Protocol: decode.ProtocolI2C}, Auto(0.1))
	require.NoError(t, err)
	assertI2CResult(t, r)
}

func TestLoad_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, err := Load(fs, "/missing.cbor")
	assert.Error(t, err)

	require.NoError(t, afero.WriteFile(fs, "/junk.cbor", []byte{0xFF, 0x00}, 0o644))
	_, err = Load(fs, "/junk.cbor")
	assert.Error(t, err)

	c := &Capture{Records: map[decode.Role]*waveform.Record{}}
	require.NoError(t, Save(fs, "/ok.cbor", c))
	data, err := afero.ReadFile(fs, "/ok.cbor")
	require.NoError(t, err)
	// Version is the first map entry: key 1, value 1
	require.True(t, bytes.HasPrefix(data[1:], []byte{0x01, 0x01}))
	data[2] = 0x09
	require.NoError(t, afero.WriteFile(fs, "/future.cbor", data, 0o644))
	_, err = Load(fs, "/future.cbor")
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestImportCSV(t *testing.T) {
	fs := afero.NewMemMapFs()
	const rate = 1e6

	volts := mock.UART([]byte("ok"), 9600, rate)
	rec, err := waveform.NewRecord(1, volts, waveform.NewCalibration(waveform.Format8, 1, 0), waveform.Timing{SampleInterval: 1 / rate})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, waveform.WriteCSV(&buf, rec))
	require.NoError(t, afero.WriteFile(fs, "/tx.csv", buf.Bytes(), 0o644))

	c, err := ImportCSV(fs, map[decode.Role]string{decode.RoleTX: "/tx.csv"})
	require.NoError(t, err)
	assert.InDelta(t, 1/rate, c.Records[decode.RoleTX].SampleInterval(), 1e-12)

	r, err := c.Decode(context.Background(), decode.Request{Protocol: decode.ProtocolUART, UART: decode.UARTConfig{Baud: 9600}}, Auto(0.1))
	require.NoError(t, err)
	require.Equal(t, 2, r.Len())
	assert.Empty(t, r.Errors())
	assert.Equal(t, []byte("o"), r.At(0).Payload())
	assert.Equal(t, []byte("k"), r.At(1).Payload())

	_, err = ImportCSV(fs, map[decode.Role]string{decode.RoleTX: "/none.csv"})
	assert.Error(t, err)
}
