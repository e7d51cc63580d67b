// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads read-only decode profiles from TOML.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Thermoquad/scopebus/pkg/decode"
	"github.com/Thermoquad/scopebus/pkg/digitizer"
	"github.com/Thermoquad/scopebus/pkg/waveform"
	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
)

const (
	// DefaultPort is the Siglent SCPI raw socket port
	DefaultPort = 5024

	// DefaultTimeout bounds each read attempt
	DefaultTimeout = 5 * time.Second

	// DefaultHysteresis is the automatic threshold band as a fraction of swing
	DefaultHysteresis = 0.1
)

// Connection selects and parameterizes the instrument link
type Connection struct {
	Host     string `toml:"host" validate:"omitempty,hostname_rfc1123|ip"`
	Port     int    `toml:"port" validate:"min=1,max=65535"`
	Serial   string `toml:"serial"`
	Baud     int    `toml:"baud" validate:"omitempty,min=300"`
	URL      string `toml:"url" validate:"omitempty,url"`
	Username string `toml:"username"`
	Timeout  string `toml:"timeout" validate:"duration"`
}

// TimeoutDuration parses Timeout, falling back to DefaultTimeout
func (c Connection) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return DefaultTimeout
	}
	return d
}

// Thresholds configures the digitizer. With Auto set, High and Low are
// derived per record from its swing.
type Thresholds struct {
	Auto       bool    `toml:"auto"`
	Hysteresis float64 `toml:"hysteresis" validate:"min=0,lt=1"`
	High       float64 `toml:"high" validate:"gtefield=Low"`
	Low        float64 `toml:"low"`
}

// Fixed returns the explicit threshold pair
func (t Thresholds) Fixed() digitizer.Thresholds {
	return digitizer.Thresholds{High: t.High, Low: t.Low}
}

// Profile is one decode setup
type Profile struct {
	Protocol   string            `toml:"protocol" validate:"omitempty,oneof=i2c spi uart"`
	Format     string            `toml:"format" validate:"omitempty,oneof=byte word"`
	Connection Connection        `toml:"connection"`
	Thresholds Thresholds        `toml:"thresholds"`
	Channels   map[string]int    `toml:"channels" validate:"dive,min=1,max=4"`
	I2C        decode.I2CConfig  `toml:"i2c"`
	SPI        decode.SPIConfig  `toml:"spi"`
	UART       decode.UARTConfig `toml:"uart"`
}

// Defaults returns a profile with the built-in settings
func Defaults() *Profile {
	return &Profile{
		Format: "byte",
		Connection: Connection{
			Port:    DefaultPort,
			Baud:    115200,
			Timeout: DefaultTimeout.String(),
		},
		Thresholds: Thresholds{Auto: true, Hysteresis: DefaultHysteresis},
		Channels:   map[string]int{},
		UART:       decode.UARTConfig{Baud: 115200},
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("duration", validateDuration); err != nil {
		panic(fmt.Sprintf("register duration validation: %v", err))
	}
	return v
}

// validateDuration checks if string is a valid Go duration.
func validateDuration(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	if val == "" {
		return true
	}
	_, err := time.ParseDuration(val)
	return err == nil
}

// Load reads path from fs over the defaults and validates the result
func Load(fs afero.Fs, path string) (*Profile, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	return Parse(data)
}

// Parse decodes a TOML profile over the defaults and validates it
func Parse(data []byte) (*Profile, error) {
	p := Defaults()
	if err := toml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	p.Protocol = strings.ToLower(p.Protocol)
	p.Format = strings.ToLower(p.Format)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks field ranges, channel roles and the selected protocol
func (p *Profile) Validate() error {
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag())
			}
			return fmt.Errorf("invalid profile: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid profile: %w", err)
	}

	known := map[decode.Role]bool{}
	for _, proto := range []decode.Protocol{decode.ProtocolI2C, decode.ProtocolSPI, decode.ProtocolUART} {
		for _, r := range proto.Roles() {
			known[r] = true
		}
	}
	for name := range p.Channels {
		if !known[decode.Role(strings.ToLower(name))] {
			return fmt.Errorf("invalid profile: unknown channel role %q", name)
		}
	}

	if p.Protocol == "" {
		return nil
	}
	req, err := p.Request()
	if err != nil {
		return err
	}
	return req.Validate()
}

// Request builds the decoder request for the selected protocol
func (p *Profile) Request() (decode.Request, error) {
	proto, err := decode.ParseProtocol(p.Protocol)
	if err != nil {
		return decode.Request{}, err
	}
	return decode.Request{Protocol: proto, I2C: p.I2C, SPI: p.SPI, UART: p.UART}, nil
}

// SampleFormat returns the acquisition sample width
func (p *Profile) SampleFormat() (waveform.Format, error) {
	return waveform.ParseFormat(p.Format)
}

// Assignments maps roles to scope channels
func (p *Profile) Assignments() map[decode.Role]int {
	out := make(map[decode.Role]int, len(p.Channels))
	for name, ch := range p.Channels {
		out[decode.Role(strings.ToLower(name))] = ch
	}
	return out
}

// RoleNames returns the assigned roles in sorted order
func (p *Profile) RoleNames() []string {
	names := make([]string, 0, len(p.Channels))
	for name := range p.Channels {
		names = append(names, strings.ToLower(name))
	}
	sort.Strings(names)
	return names
}
