// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/Thermoquad/scopebus/pkg/decode"
	"github.com/Thermoquad/scopebus/pkg/scpi"
	"github.com/Thermoquad/scopebus/pkg/waveform"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// FileVersion is written into every capture file
const FileVersion = 1

// ErrUnsupportedVersion is returned for capture files from a newer writer
var ErrUnsupportedVersion = errors.New("unsupported capture file version")

type fileRecord struct {
	Channel          int       `cbor:"1,keyasint"`
	Samples          []float64 `cbor:"2,keyasint"`
	SampleInterval   float64   `cbor:"3,keyasint"`
	TriggerOffset    float64   `cbor:"4,keyasint"`
	VerticalScale    float64   `cbor:"5,keyasint"`
	VerticalOffset   float64   `cbor:"6,keyasint"`
	CodesPerDivision float64   `cbor:"7,keyasint"`
	CodeCenter       float64   `cbor:"8,keyasint"`
}

type file struct {
	Version      int                   `cbor:"1,keyasint"`
	ID           []byte                `cbor:"2,keyasint"`
	Taken        int64                 `cbor:"3,keyasint"` // unix nanoseconds
	Manufacturer string                `cbor:"4,keyasint"`
	Model        string                `cbor:"5,keyasint"`
	Serial       string                `cbor:"6,keyasint"`
	Firmware     string                `cbor:"7,keyasint"`
	Records      map[string]fileRecord `cbor:"8,keyasint"`
}

// Save writes c to path as CBOR, creating parent directories
func Save(fs afero.Fs, path string, c *Capture) error {
	f := file{
		Version:      FileVersion,
		ID:           c.ID[:],
		Taken:        c.Taken.UnixNano(),
		Manufacturer: c.Instrument.Manufacturer,
		Model:        c.Instrument.Model,
		Serial:       c.Instrument.Serial,
		Firmware:     c.Instrument.Firmware,
		Records:      make(map[string]fileRecord, len(c.Records)),
	}
	for role, rec := range c.Records {
		cal, timing := rec.Calibration(), rec.Timing()
		f.Records[string(role)] = fileRecord{
			Channel:          rec.Channel(),
			Samples:          rec.Samples(),
			SampleInterval:   timing.SampleInterval,
			TriggerOffset:    timing.TriggerOffset,
			VerticalScale:    cal.VerticalScale,
			VerticalOffset:   cal.VerticalOffset,
			CodesPerDivision: cal.CodesPerDivision,
			CodeCenter:       cal.CodeCenter,
		}
	}

	data, err := cbor.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode capture: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return fmt.Errorf("write capture: %w", err)
	}
	return nil
}

// Load reads a capture written by Save
func Load(fs afero.Fs, path string) (*Capture, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read capture: %w", err)
	}

	var f file
	if err := cbor.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode capture: %w", err)
	}
	if f.Version < 1 || f.Version > FileVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, f.Version)
	}

	id, err := uuid.FromBytes(f.ID)
	if err != nil {
		return nil, fmt.Errorf("capture id: %w", err)
	}

	c := &Capture{
		ID:    id,
		Taken: time.Unix(0, f.Taken),
		Instrument: scpi.Identity{
			Manufacturer: f.Manufacturer,
			Model:        f.Model,
			Serial:       f.Serial,
			Firmware:     f.Firmware,
		},
		Records: make(map[decode.Role]*waveform.Record, len(f.Records)),
	}
	for role, fr := range f.Records {
		cal := waveform.Calibration{
			VerticalScale:    fr.VerticalScale,
			VerticalOffset:   fr.VerticalOffset,
			CodesPerDivision: fr.CodesPerDivision,
			CodeCenter:       fr.CodeCenter,
		}
		timing := waveform.Timing{SampleInterval: fr.SampleInterval, TriggerOffset: fr.TriggerOffset}
		rec, err := waveform.NewRecord(fr.Channel, fr.Samples, cal, timing)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", role, err)
		}
		c.Records[decode.Role(role)] = rec
	}
	return c, nil
}

// ImportCSV builds a capture from "Time (s),Voltage (V)" files such as
// those written by waveform.WriteCSV. Samples must be evenly spaced.
func ImportCSV(fs afero.Fs, files map[decode.Role]string) (*Capture, error) {
	c := &Capture{
		ID:      uuid.New(),
		Taken:   time.Now(),
		Records: make(map[decode.Role]*waveform.Record, len(files)),
	}

	roles := make([]decode.Role, 0, len(files))
	for role := range files {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })

	for i, role := range roles {
		channel, path := i+1, files[role]
		fh, err := fs.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		times, volts, err := waveform.ReadCSV(fh)
		_ = fh.Close()
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if len(times) < 2 {
			return nil, fmt.Errorf("%s: need at least two samples", path)
		}

		timing := waveform.Timing{
			SampleInterval: (times[len(times)-1] - times[0]) / float64(len(times)-1),
			TriggerOffset:  times[0],
		}
		// Voltages are already calibrated; the nominal calibration only
		// documents the sample width
		rec, err := waveform.NewRecord(channel, volts, waveform.NewCalibration(waveform.Format8, 1, 0), timing)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		c.Records[role] = rec
	}
	return c, nil
}
