// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package decode

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// Statistics accumulates frame and anomaly counts across decode runs
type Statistics struct {
	clock clockwork.Clock

	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	Runs         uint64
	TotalFrames  uint64
	ValidFrames  uint64
	AckMissing   uint64
	FramingError uint64
	ParityError  uint64
	Unterminated uint64
	DecodeErrors uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a tracker on the real clock
func NewStatistics() *Statistics {
	return NewStatisticsWithClock(clockwork.NewRealClock())
}

// NewStatisticsWithClock creates a tracker on the given clock
func NewStatisticsWithClock(clock clockwork.Clock) *Statistics {
	now := clock.Now()
	return &Statistics{
		clock:          clock,
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update adds the frames and errors of one run
func (s *Statistics) Update(r *Result) {
	if r == nil {
		return
	}
	s.Runs++
	for _, f := range r.Frames() {
		s.TotalFrames++
		flags := f.Header().Flags
		if flags == 0 {
			s.ValidFrames++
			continue
		}
		if flags.Has(FlagAckMissing) {
			s.AckMissing++
		}
		if flags.Has(FlagFramingError) {
			s.FramingError++
		}
		if flags.Has(FlagParityError) {
			s.ParityError++
		}
		if flags.Has(FlagUnterminated) {
			s.Unterminated++
		}
	}
	s.DecodeErrors += uint64(len(r.Errors()))
	s.LastUpdateTime = s.clock.Now()
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := s.clock.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.DecodeErrors) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var validPercent float64
	if s.TotalFrames > 0 {
		validPercent = float64(s.ValidFrames) * 100.0 / float64(s.TotalFrames)
	}
	percent := func(n uint64) float64 {
		if s.TotalFrames == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := s.clock.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Decode Runs:     %8d\n", s.Runs)
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, validPercent)

	if s.AckMissing > 0 {
		result += fmt.Sprintf("Missing ACK:     %8d (%.1f%%)\n", s.AckMissing, percent(s.AckMissing))
	}
	if s.FramingError > 0 {
		result += fmt.Sprintf("Framing Errors:  %8d (%.1f%%)\n", s.FramingError, percent(s.FramingError))
	}
	if s.ParityError > 0 {
		result += fmt.Sprintf("Parity Errors:   %8d (%.1f%%)\n", s.ParityError, percent(s.ParityError))
	}
	if s.Unterminated > 0 {
		result += fmt.Sprintf("Unterminated:    %8d (%.1f%%)\n", s.Unterminated, percent(s.Unterminated))
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	now := s.clock.Now()
	*s = Statistics{clock: s.clock, StartTime: now, LastUpdateTime: now}
}
