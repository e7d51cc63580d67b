// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package decode

import (
	"fmt"

	"github.com/Thermoquad/scopebus/pkg/digitizer"
)

// Channels maps signal roles to digitized traces
type Channels map[Role]*digitizer.Trace

// Request selects a protocol and carries its settings
type Request struct {
	Protocol Protocol
	I2C      I2CConfig
	SPI      SPIConfig
	UART     UARTConfig
}

// Validate checks the settings of the selected protocol
func (r *Request) Validate() error {
	switch r.Protocol {
	case ProtocolI2C:
		return r.I2C.Validate()
	case ProtocolSPI:
		return r.SPI.Validate()
	case ProtocolUART:
		return r.UART.Validate()
	default:
		return &ConfigError{Protocol: r.Protocol, Field: "protocol", Reason: "is not i2c, spi or uart"}
	}
}

// Run decodes one capture with the selected protocol
func Run(req Request, ch Channels) (*Result, error) {
	var (
		frames []Frame
		errs   []Error
		err    error
	)

	switch req.Protocol {
	case ProtocolI2C:
		if err := ch.require(ProtocolI2C, RoleSCL, RoleSDA); err != nil {
			return nil, err
		}
		frames, errs, err = DecodeI2C(ch[RoleSCL], ch[RoleSDA], req.I2C)
	case ProtocolSPI:
		if err := ch.require(ProtocolSPI, RoleSCK); err != nil {
			return nil, err
		}
		frames, errs, err = DecodeSPI(ch[RoleSCK], ch[RoleMOSI], ch[RoleMISO], ch[RoleCS], req.SPI)
	case ProtocolUART:
		if err := ch.require(ProtocolUART, RoleTX); err != nil {
			return nil, err
		}
		frames, errs, err = DecodeUART(ch[RoleTX], req.UART)
	default:
		return nil, &ConfigError{Protocol: req.Protocol, Field: "protocol", Reason: "is not i2c, spi or uart"}
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", req.Protocol, err)
	}

	return NewResult(req.Protocol, frames, errs), nil
}

func (ch Channels) require(p Protocol, roles ...Role) error {
	for _, r := range roles {
		if ch[r] == nil {
			return &ConfigError{Protocol: p, Field: "channels", Reason: fmt.Sprintf("missing %s trace", r)}
		}
	}
	return nil
}
