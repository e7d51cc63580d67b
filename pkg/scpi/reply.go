// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scpi

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Identity is the parsed *IDN? reply
type Identity struct {
	Manufacturer string
	Model        string
	Serial       string
	Firmware     string
}

// String returns "Manufacturer Model (Serial) Firmware"
func (id Identity) String() string {
	return fmt.Sprintf("%s %s (%s) %s", id.Manufacturer, id.Model, id.Serial, id.Firmware)
}

// ParseIdentity parses "Manufacturer,Model,Serial,Firmware"
func ParseIdentity(reply string) (Identity, error) {
	fields := strings.Split(strings.TrimSpace(reply), ",")
	if len(fields) != 4 {
		return Identity{}, fmt.Errorf("invalid *IDN? reply %q: expected 4 fields, got %d", reply, len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return Identity{
		Manufacturer: fields[0],
		Model:        fields[1],
		Serial:       fields[2],
		Firmware:     fields[3],
	}, nil
}

// Identify queries *IDN?
func (c *Channel) Identify(ctx context.Context) (Identity, error) {
	reply, err := c.Query(ctx, "*IDN?")
	if err != nil {
		return Identity{}, err
	}
	return ParseIdentity(string(reply))
}

// ParseValue extracts the number from a reply such as "C1:VDIV 1.00E+00V",
// "SARA 1.00E+09Sa/s" or a bare "2.5E-01". The unit suffix is matched
// case-insensitively and may be empty.
func ParseValue(reply string, unit string) (float64, error) {
	s := strings.TrimSpace(reply)
	if i := strings.LastIndexByte(s, ' '); i >= 0 {
		s = s[i+1:]
	}
	if unit != "" && len(s) > len(unit) && strings.EqualFold(s[len(s)-len(unit):], unit) {
		s = s[:len(s)-len(unit)]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", reply, err)
	}
	return v, nil
}
