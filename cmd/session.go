// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"

	"github.com/Thermoquad/scopebus/pkg/capture"
	"github.com/Thermoquad/scopebus/pkg/config"
	"github.com/Thermoquad/scopebus/pkg/decode"
)

// thresholdFunc returns the digitizer thresholds selected by the profile
func thresholdFunc(p *config.Profile) capture.ThresholdFunc {
	if p.Thresholds.Auto {
		return capture.Auto(p.Thresholds.Hysteresis)
	}
	return capture.Fixed(p.Thresholds.Fixed())
}

// decodeRequest returns the decoder request, requiring a protocol
func decodeRequest(p *config.Profile) (decode.Request, error) {
	if p.Protocol == "" {
		return decode.Request{}, fmt.Errorf("no protocol selected (use --protocol or set protocol in the profile)")
	}
	return p.Request()
}

// acquireAssigned reads every channel the profile assigns
func acquireAssigned(ctx context.Context, inst capture.Instrument, p *config.Profile) (*capture.Capture, error) {
	format, err := p.SampleFormat()
	if err != nil {
		return nil, err
	}
	assignments := p.Assignments()
	if len(assignments) == 0 {
		return nil, fmt.Errorf("no channels assigned (use --channel role=N or [channels] in the profile)")
	}
	return capture.Acquire(ctx, inst, assignments, format)
}
