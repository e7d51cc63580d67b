// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture acquires multi-channel waveforms from one instrument and
// runs the decode pipeline over them.
package capture

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Thermoquad/scopebus/pkg/decode"
	"github.com/Thermoquad/scopebus/pkg/digitizer"
	"github.com/Thermoquad/scopebus/pkg/scpi"
	"github.com/Thermoquad/scopebus/pkg/waveform"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Instrument is the transport a capture is taken over
type Instrument interface {
	waveform.Querier
	Identify(ctx context.Context) (scpi.Identity, error)
}

// Capture is a set of waveform records taken together, keyed by the
// signal each channel carries
type Capture struct {
	ID         uuid.UUID
	Taken      time.Time
	Instrument scpi.Identity
	Records    map[decode.Role]*waveform.Record
}

// Roles returns the captured roles in sorted order
func (c *Capture) Roles() []decode.Role {
	roles := make([]decode.Role, 0, len(c.Records))
	for r := range c.Records {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// Acquire reads every assigned channel in turn. The instrument link carries
// one command at a time, so channels are never read concurrently.
func Acquire(ctx context.Context, inst Instrument, assignments map[decode.Role]int, format waveform.Format) (*Capture, error) {
	if len(assignments) == 0 {
		return nil, fmt.Errorf("no channels assigned")
	}

	id, err := inst.Identify(ctx)
	if err != nil {
		return nil, fmt.Errorf("identify instrument: %w", err)
	}

	c := &Capture{
		ID:         uuid.New(),
		Taken:      time.Now(),
		Instrument: id,
		Records:    make(map[decode.Role]*waveform.Record, len(assignments)),
	}

	roles := make([]decode.Role, 0, len(assignments))
	for r := range assignments {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return assignments[roles[i]] < assignments[roles[j]] })

	for _, role := range roles {
		ch := assignments[role]
		rec, err := waveform.Acquire(ctx, inst, ch, format)
		if err != nil {
			return nil, fmt.Errorf("acquire %s on C%d: %w", role, ch, err)
		}
		log.Info().
			Str("role", string(role)).
			Int("channel", ch).
			Int("samples", rec.Len()).
			Float64("rate", rec.SampleRate()).
			Msg("channel acquired")
		c.Records[role] = rec
	}

	return c, nil
}

// ThresholdFunc picks digitizer thresholds for one record
type ThresholdFunc func(rec *waveform.Record) (digitizer.Thresholds, error)

// Fixed uses the same thresholds for every record
func Fixed(th digitizer.Thresholds) ThresholdFunc {
	return func(*waveform.Record) (digitizer.Thresholds, error) {
		return th, nil
	}
}

// Auto derives thresholds from each record's swing
func Auto(hysteresis float64) ThresholdFunc {
	return func(rec *waveform.Record) (digitizer.Thresholds, error) {
		return digitizer.AutoThresholds(rec, hysteresis)
	}
}

// Digitize extracts the edges of every record in parallel
func (c *Capture) Digitize(ctx context.Context, thresholds ThresholdFunc) (decode.Channels, error) {
	roles := c.Roles()
	traces := make([]*digitizer.Trace, len(roles))

	g, ctx := errgroup.WithContext(ctx)
	for i, role := range roles {
		i, role := i, role
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec := c.Records[role]
			th, err := thresholds(rec)
			if err != nil {
				return fmt.Errorf("thresholds for %s: %w", role, err)
			}
			tr, err := digitizer.Extract(rec, th)
			if err != nil {
				return fmt.Errorf("digitize %s: %w", role, err)
			}
			traces[i] = tr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ch := make(decode.Channels, len(roles))
	for i, role := range roles {
		ch[role] = traces[i]
	}
	return ch, nil
}

// Decode digitizes the capture and runs the requested decoder
func (c *Capture) Decode(ctx context.Context, req decode.Request, thresholds ThresholdFunc) (*decode.Result, error) {
	ch, err := c.Digitize(ctx, thresholds)
	if err != nil {
		return nil, err
	}
	return decode.Run(req, ch)
}
