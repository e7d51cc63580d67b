// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package waveform

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Timing places samples on the time axis
type Timing struct {
	SampleInterval float64 // seconds
	TriggerOffset  float64 // time of sample 0, seconds
}

// Validate checks the record timing invariants
func (t Timing) Validate() error {
	if !(t.SampleInterval > 0) || math.IsInf(t.SampleInterval, 0) {
		return &CalibrationError{Field: "sample_interval", Value: t.SampleInterval, Reason: "must be positive and finite"}
	}
	return finite("trigger_offset", t.TriggerOffset)
}

// Record is an immutable, time-stamped voltage array for one channel
type Record struct {
	channel int
	samples []float64
	timing  Timing
	cal     Calibration
}

// Code is a raw signed sample
type Code interface {
	~int8 | ~int16
}

// Build converts raw codes into a Record. It has no side effects and may
// be called concurrently for different channels.
func Build[C Code](channel int, codes []C, cal Calibration, timing Timing) (*Record, error) {
	if err := cal.Validate(); err != nil {
		return nil, err
	}
	if err := timing.Validate(); err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return nil, &CalibrationError{Field: "samples", Value: 0, Reason: "record must not be empty"}
	}

	samples := make([]float64, len(codes))
	for i, code := range codes {
		samples[i] = cal.Volts(float64(code))
	}
	return &Record{channel: channel, samples: samples, timing: timing, cal: cal}, nil
}

// NewRecord wraps already-calibrated voltages. The slice is copied.
func NewRecord(channel int, volts []float64, cal Calibration, timing Timing) (*Record, error) {
	if err := cal.Validate(); err != nil {
		return nil, err
	}
	if err := timing.Validate(); err != nil {
		return nil, err
	}
	if len(volts) == 0 {
		return nil, &CalibrationError{Field: "samples", Value: 0, Reason: "record must not be empty"}
	}
	samples := make([]float64, len(volts))
	copy(samples, volts)
	return &Record{channel: channel, samples: samples, timing: timing, cal: cal}, nil
}

// Channel returns the source channel number
func (r *Record) Channel() int {
	return r.channel
}

// Len returns the number of samples
func (r *Record) Len() int {
	return len(r.samples)
}

// At returns sample i in volts
func (r *Record) At(i int) float64 {
	return r.samples[i]
}

// Samples returns the voltage buffer. Callers must not modify it.
func (r *Record) Samples() []float64 {
	return r.samples
}

// Time returns the timestamp of sample i
func (r *Record) Time(i int) float64 {
	return r.timing.TriggerOffset + float64(i)*r.timing.SampleInterval
}

// Start returns the time of the first sample
func (r *Record) Start() float64 {
	return r.timing.TriggerOffset
}

// End returns the time of the last sample
func (r *Record) End() float64 {
	return r.Time(len(r.samples) - 1)
}

// SampleInterval returns seconds between samples
func (r *Record) SampleInterval() float64 {
	return r.timing.SampleInterval
}

// SampleRate returns samples per second
func (r *Record) SampleRate() float64 {
	return 1 / r.timing.SampleInterval
}

// TriggerOffset returns the time of sample 0
func (r *Record) TriggerOffset() float64 {
	return r.timing.TriggerOffset
}

// Timing returns the time axis parameters
func (r *Record) Timing() Timing {
	return r.timing
}

// Calibration returns the parameters used to build the record
func (r *Record) Calibration() Calibration {
	return r.cal
}

// MinMax returns the smallest and largest finite sample
func (r *Record) MinMax() (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range r.samples {
		if math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// Codes8 reinterprets a block payload as signed 8-bit codes
func Codes8(payload []byte) []int8 {
	codes := make([]int8, len(payload))
	for i, b := range payload {
		codes[i] = int8(b)
	}
	return codes
}

// Codes16 reinterprets a block payload as signed little-endian 16-bit codes
func Codes16(payload []byte) ([]int16, error) {
	if len(payload)%2 != 0 {
		return nil, fmt.Errorf("16-bit payload has odd length %d", len(payload))
	}
	codes := make([]int16, len(payload)/2)
	for i := range codes {
		codes[i] = int16(binary.LittleEndian.Uint16(payload[2*i:]))
	}
	return codes, nil
}
