// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package waveform

import (
	"context"
	"errors"
	"fmt"

	"github.com/Thermoquad/scopebus/pkg/scpi"
	"github.com/rs/zerolog/log"
)

// MaxChannel is the highest analog channel number
const MaxChannel = 4

// ErrInvalidChannel is returned for channel numbers outside 1..MaxChannel
var ErrInvalidChannel = errors.New("invalid channel number")

// Querier is the part of the transport used for acquisition
type Querier interface {
	Send(ctx context.Context, cmd scpi.Command) error
	Query(ctx context.Context, cmd scpi.Command) ([]byte, error)
	QueryBinaryBlock(ctx context.Context, cmd scpi.Command) ([]byte, error)
}

// Settings is the per-channel state read before a waveform transfer
type Settings struct {
	VerticalScale  float64
	VerticalOffset float64
	SampleRate     float64
}

// ReadSettings queries vertical scale, offset and sample rate
func ReadSettings(ctx context.Context, q Querier, channel int) (Settings, error) {
	if channel < 1 || channel > MaxChannel {
		return Settings{}, fmt.Errorf("%w: %d (must be 1-%d)", ErrInvalidChannel, channel, MaxChannel)
	}
	ch := fmt.Sprintf("C%d", channel)

	var s Settings
	var err error
	if s.VerticalScale, err = queryValue(ctx, q, scpi.Command(ch+":VDIV?"), "V"); err != nil {
		return Settings{}, err
	}
	if s.VerticalOffset, err = queryValue(ctx, q, scpi.Command(ch+":OFST?"), "V"); err != nil {
		return Settings{}, err
	}
	if s.SampleRate, err = queryValue(ctx, q, "SARA?", "Sa/s"); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Acquire downloads one channel and converts it to a Record.
// The trigger is assumed to sit at the centre of the record.
func Acquire(ctx context.Context, q Querier, channel int, format Format) (*Record, error) {
	settings, err := ReadSettings(ctx, q, channel)
	if err != nil {
		return nil, err
	}
	if !(settings.SampleRate > 0) {
		return nil, &CalibrationError{Field: "sample_rate", Value: settings.SampleRate, Reason: "must be positive"}
	}

	if err := q.Send(ctx, scpi.Command("COMM_FORMAT DEF9,"+format.String()+",BIN")); err != nil {
		return nil, fmt.Errorf("set waveform format: %w", err)
	}

	payload, err := q.QueryBinaryBlock(ctx, scpi.Command(fmt.Sprintf("C%d:WF? DAT2", channel)))
	if err != nil {
		return nil, fmt.Errorf("read waveform C%d: %w", channel, err)
	}

	cal := NewCalibration(format, settings.VerticalScale, settings.VerticalOffset)
	dt := 1 / settings.SampleRate

	var rec *Record
	switch format {
	case Format16:
		codes, err := Codes16(payload)
		if err != nil {
			return nil, err
		}
		rec, err = Build(channel, codes, cal, Timing{SampleInterval: dt, TriggerOffset: -float64(len(codes)) * dt / 2})
		if err != nil {
			return nil, err
		}
	default:
		codes := Codes8(payload)
		rec, err = Build(channel, codes, cal, Timing{SampleInterval: dt, TriggerOffset: -float64(len(codes)) * dt / 2})
		if err != nil {
			return nil, err
		}
	}

	log.Debug().
		Int("channel", channel).
		Int("samples", rec.Len()).
		Float64("vdiv", settings.VerticalScale).
		Float64("offset", settings.VerticalOffset).
		Float64("sara", settings.SampleRate).
		Msg("waveform acquired")
	return rec, nil
}

func queryValue(ctx context.Context, q Querier, cmd scpi.Command, unit string) (float64, error) {
	reply, err := q.Query(ctx, cmd)
	if err != nil {
		return 0, err
	}
	return scpi.ParseValue(string(reply), unit)
}
