// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package waveform

import (
	"fmt"
	"math"
)

// Instrument scaling for DAT2 waveform transfers. Samples are signed, so the
// zero code sits at the vertical centre of the screen. The 16-bit constant is
// the 8-bit one shifted up by eight bits.
//
// TODO: confirm both constants against the programming guide of every
// supported model family before adding it to the supported list.
const (
	CodesPerDivision8  = 25.0
	CodesPerDivision16 = 6400.0
	CodeCenter         = 0.0
)

// Format is the sample width used on the wire
type Format int

const (
	Format8 Format = iota
	Format16
)

// String returns the SCPI name of the format
func (f Format) String() string {
	switch f {
	case Format8:
		return "BYTE"
	case Format16:
		return "WORD"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// ParseFormat accepts "BYTE"/"8" and "WORD"/"16"
func ParseFormat(s string) (Format, error) {
	switch s {
	case "BYTE", "byte", "8":
		return Format8, nil
	case "WORD", "word", "16":
		return Format16, nil
	}
	return 0, fmt.Errorf("unknown sample format %q", s)
}

// CodesPerDivision returns the fixed scaling constant for the format
func (f Format) CodesPerDivision() float64 {
	if f == Format16 {
		return CodesPerDivision16
	}
	return CodesPerDivision8
}

// Calibration converts raw codes to volts:
//
//	volts = (code - CodeCenter) / CodesPerDivision * VerticalScale - VerticalOffset
type Calibration struct {
	VerticalScale    float64 // volts per division
	VerticalOffset   float64 // volts
	CodesPerDivision float64
	CodeCenter       float64
}

// NewCalibration fills in the fixed constants for a sample format
func NewCalibration(format Format, scale, offset float64) Calibration {
	return Calibration{
		VerticalScale:    scale,
		VerticalOffset:   offset,
		CodesPerDivision: format.CodesPerDivision(),
		CodeCenter:       CodeCenter,
	}
}

// CalibrationError reports an unusable calibration or timing parameter
type CalibrationError struct {
	Field  string
	Value  float64
	Reason string
}

// Error implements the error interface
func (e *CalibrationError) Error() string {
	return fmt.Sprintf("invalid calibration: %s=%g %s", e.Field, e.Value, e.Reason)
}

// Validate checks that the conversion is defined
func (c Calibration) Validate() error {
	if err := nonZeroFinite("codes_per_division", c.CodesPerDivision); err != nil {
		return err
	}
	if err := nonZeroFinite("vertical_scale", c.VerticalScale); err != nil {
		return err
	}
	if err := finite("vertical_offset", c.VerticalOffset); err != nil {
		return err
	}
	return finite("code_center", c.CodeCenter)
}

// Volts converts one code. The calibration must be valid.
func (c Calibration) Volts(code float64) float64 {
	return (code-c.CodeCenter)/c.CodesPerDivision*c.VerticalScale - c.VerticalOffset
}

// Code is the inverse of Volts, before rounding
func (c Calibration) Code(volts float64) float64 {
	return (volts+c.VerticalOffset)/c.VerticalScale*c.CodesPerDivision + c.CodeCenter
}

func nonZeroFinite(field string, v float64) error {
	if v == 0 {
		return &CalibrationError{Field: field, Value: v, Reason: "must not be zero"}
	}
	return finite(field, v)
}

func finite(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &CalibrationError{Field: field, Value: v, Reason: "must be finite"}
	}
	return nil
}
