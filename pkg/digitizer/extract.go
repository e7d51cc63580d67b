// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package digitizer

import (
	"fmt"
	"math"

	"github.com/Thermoquad/scopebus/pkg/waveform"
)

// ConfigError reports an invalid threshold configuration
type ConfigError struct {
	Field  string
	Reason string
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid digitizer config: %s %s", e.Field, e.Reason)
}

// Thresholds is a hysteresis pair in volts
type Thresholds struct {
	High float64
	Low  float64
}

// Validate requires finite thresholds with High >= Low
func (th Thresholds) Validate() error {
	if math.IsNaN(th.High) || math.IsInf(th.High, 0) {
		return &ConfigError{Field: "high_threshold", Reason: "must be finite"}
	}
	if math.IsNaN(th.Low) || math.IsInf(th.Low, 0) {
		return &ConfigError{Field: "low_threshold", Reason: "must be finite"}
	}
	if th.High < th.Low {
		return &ConfigError{Field: "high_threshold", Reason: fmt.Sprintf("%g is below low_threshold %g", th.High, th.Low)}
	}
	return nil
}

// ExtractEdges returns the transitions of rec under the given thresholds
func ExtractEdges(rec *waveform.Record, high, low float64) ([]Edge, error) {
	tr, err := Extract(rec, Thresholds{High: high, Low: low})
	if err != nil {
		return nil, err
	}
	return tr.Edges, nil
}

// Extract runs the hysteresis state machine over rec in a single pass.
//
// The first sample outside the band fixes the initial level without
// emitting an edge. After that a sample above High switches Low to High and
// a sample below Low switches High to Low; samples inside the band, and NaN
// samples, hold the state. Each edge is timed by linear interpolation
// between the two samples straddling the threshold that was crossed.
func Extract(rec *waveform.Record, th Thresholds) (*Trace, error) {
	if err := th.Validate(); err != nil {
		return nil, err
	}

	samples := rec.Samples()
	tr := &Trace{
		Channel: rec.Channel(),
		Initial: LevelUnknown,
		Start:   rec.Start(),
		End:     rec.End(),
	}

	state := LevelUnknown
	prev := -1
	last := math.Inf(-1)
	for i, v := range samples {
		if math.IsNaN(v) {
			continue
		}

		switch state {
		case LevelUnknown:
			if v > th.High {
				state = LevelHigh
				tr.Initial = LevelHigh
			} else if v < th.Low {
				state = LevelLow
				tr.Initial = LevelLow
			}

		case LevelLow:
			if v > th.High {
				last = crossing(rec, prev, i, th.High, last)
				tr.Edges = append(tr.Edges, Edge{Channel: tr.Channel, Time: last, Direction: Rising})
				state = LevelHigh
			}

		case LevelHigh:
			if v < th.Low {
				last = crossing(rec, prev, i, th.Low, last)
				tr.Edges = append(tr.Edges, Edge{Channel: tr.Channel, Time: last, Direction: Falling})
				state = LevelLow
			}
		}
		prev = i
	}

	return tr, nil
}

// crossing interpolates where the segment (j, i) meets level. The result is
// kept strictly after the previous edge.
func crossing(rec *waveform.Record, j, i int, level, last float64) float64 {
	ti := rec.Time(i)
	t := ti
	if j >= 0 {
		vj, vi := rec.At(j), rec.At(i)
		tj := rec.Time(j)
		if vi != vj {
			t = tj + (level-vj)/(vi-vj)*(ti-tj)
		}
	}
	if !(t > last) {
		t = math.Nextafter(last, math.Inf(1))
	}
	return t
}

// AutoThresholds centres a hysteresis band on the midpoint of the signal
// swing. hysteresis is the band width as a fraction of the swing.
func AutoThresholds(rec *waveform.Record, hysteresis float64) (Thresholds, error) {
	if hysteresis < 0 || hysteresis >= 1 || math.IsNaN(hysteresis) {
		return Thresholds{}, &ConfigError{Field: "hysteresis", Reason: "must be in [0, 1)"}
	}
	lo, hi := rec.MinMax()
	if math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return Thresholds{}, &ConfigError{Field: "record", Reason: "has no finite samples"}
	}
	mid := (lo + hi) / 2
	band := (hi - lo) * hysteresis / 2
	return Thresholds{High: mid + band, Low: mid - band}, nil
}
