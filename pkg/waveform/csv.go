// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package waveform

import (
	"io"

	"github.com/gocarina/gocsv"
)

type csvSample struct {
	Time    float64 `csv:"Time (s)"`
	Voltage float64 `csv:"Voltage (V)"`
}

// WriteCSV writes one "Time (s),Voltage (V)" row per sample
func WriteCSV(w io.Writer, r *Record) error {
	rows := make([]csvSample, r.Len())
	for i := range rows {
		rows[i] = csvSample{Time: r.Time(i), Voltage: r.At(i)}
	}
	return gocsv.Marshal(rows, w)
}

// ReadCSV parses rows written by WriteCSV back into times and voltages
func ReadCSV(rd io.Reader) (times, volts []float64, err error) {
	var rows []csvSample
	if err := gocsv.Unmarshal(rd, &rows); err != nil {
		return nil, nil, err
	}
	times = make([]float64, len(rows))
	volts = make([]float64, len(rows))
	for i, row := range rows {
		times[i] = row.Time
		volts[i] = row.Voltage
	}
	return times, volts, nil
}
