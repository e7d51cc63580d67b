// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"testing"
	"time"

	"github.com/Thermoquad/scopebus/pkg/decode"
	"github.com/Thermoquad/scopebus/pkg/waveform"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const uartProfile = `
protocol = "UART"
format = "word"

[connection]
host = "192.168.1.50"
timeout = "2s"

[thresholds]
auto = false
high = 2.0
low = 1.0

[channels]
tx = 2

[uart]
baud = 9600.0
data_bits = 8
parity = "even"
stop_bits = 2.0
`

func TestDefaults(t *testing.T) {
	p := Defaults()
	assert.Equal(t, 5024, p.Connection.Port)
	assert.Equal(t, 5*time.Second, p.Connection.TimeoutDuration())
	assert.True(t, p.Thresholds.Auto)
	require.NoError(t, p.Validate())
}

func TestLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/profiles/uart.toml", []byte(uartProfile), 0o644))

	p, err := Load(fs, "/profiles/uart.toml")
	require.NoError(t, err)

	assert.Equal(t, "uart", p.Protocol)
	assert.Equal(t, "192.168.1.50", p.Connection.Host)
	assert.Equal(t, DefaultPort, p.Connection.Port, "unset fields keep defaults")
	assert.Equal(t, 2*time.Second, p.Connection.TimeoutDuration())
	assert.False(t, p.Thresholds.Auto)
	assert.Equal(t, 2.0, p.Thresholds.Fixed().High)
	assert.Equal(t, map[decode.Role]int{decode.RoleTX: 2}, p.Assignments())
	assert.Equal(t, []string{"tx"}, p.RoleNames())

	format, err := p.SampleFormat()
	require.NoError(t, err)
	assert.Equal(t, waveform.Format16, format)

	req, err := p.Request()
	require.NoError(t, err)
	assert.Equal(t, decode.ProtocolUART, req.Protocol)
	assert.Equal(t, 9600.0, req.UART.Baud)
	assert.Equal(t, decode.ParityEven, req.UART.Parity)
	assert.Equal(t, 2.0, req.UART.StopBits)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(afero.NewMemMapFs(), "/nope.toml")
	assert.Error(t, err)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		toml string
		want string
	}{
		{"bad protocol", `protocol = "can"`, "Protocol"},
		{"bad port", "[connection]\nport = 70000", "Port"},
		{"bad timeout", "[connection]\ntimeout = \"soon\"", "Timeout"},
		{"inverted thresholds", "[thresholds]\nhigh = 1.0\nlow = 2.0", "High"},
		{"channel out of range", "[channels]\nscl = 5", "Channels"},
		{"unknown role", "[channels]\nclk = 1", "unknown channel role"},
		{"bad uart baud", "protocol = \"uart\"\n[uart]\nbaud = 0.0", "baud"},
		{"bad spi mode", "protocol = \"spi\"\n[spi]\nmode = 7", "mode"},
		{"bad parity", "[uart]\nparity = \"sometimes\"", "parity"},
		{"not toml", "protocol = ", "parse profile"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.toml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewValidator_RegistersDuration(t *testing.T) {
	require.NotPanics(t, func() { newValidator() })

	type timed struct {
		Timeout string `validate:"duration"`
	}
	v := newValidator()
	assert.NoError(t, v.Struct(timed{Timeout: "250ms"}))
	assert.Error(t, v.Struct(timed{Timeout: "soon"}))
}
