// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package decode

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
)

type frameRow struct {
	Index    int     `csv:"Index"`
	Protocol string  `csv:"Protocol"`
	Start    float64 `csv:"Start (s)"`
	End      float64 `csv:"End (s)"`
	Address  string  `csv:"Address"`
	Payload  string  `csv:"Payload"`
	MISO     string  `csv:"MISO"`
	Flags    string  `csv:"Flags"`
}

// WriteCSV exports one row per frame
func WriteCSV(w io.Writer, r *Result) error {
	rows := make([]*frameRow, 0, r.Len())
	for i, f := range r.Frames() {
		h := f.Header()
		row := &frameRow{
			Index:    i,
			Protocol: f.Protocol().String(),
			Start:    h.Start,
			End:      h.End,
			Payload:  hex.EncodeToString(f.Payload()),
			Flags:    h.Flags.String(),
		}
		switch fr := f.(type) {
		case *I2CFrame:
			row.Address = fmt.Sprintf("0x%02X", fr.Address)
			if fr.Read {
				row.Address += " R"
			} else {
				row.Address += " W"
			}
		case *SPIFrame:
			if fr.MOSI != nil && fr.MISO != nil {
				row.MISO = hex.EncodeToString(wordBytes(fr.MISO, fr.WordSize))
			}
		}
		rows = append(rows, row)
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("write frames csv: %w", err)
	}
	return nil
}
