// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package decode

import (
	"sort"
	"sync/atomic"
)

// Result is the ordered, read-only output of one decode run
type Result struct {
	protocol Protocol
	frames   []Frame
	errs     []Error
}

// NewResult orders frames by start time. The sort is stable and error
// frame indexes are remapped to the new order.
func NewResult(protocol Protocol, frames []Frame, errs []Error) *Result {
	order := make([]int, len(frames))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return frames[order[a]].Header().Start < frames[order[b]].Header().Start
	})

	sorted := make([]Frame, len(frames))
	position := make([]int, len(frames))
	for newIdx, oldIdx := range order {
		sorted[newIdx] = frames[oldIdx]
		position[oldIdx] = newIdx
	}

	remapped := make([]Error, len(errs))
	for i, e := range errs {
		if e.Frame >= 0 && e.Frame < len(position) {
			e.Frame = position[e.Frame]
		}
		remapped[i] = e
	}

	return &Result{protocol: protocol, frames: sorted, errs: remapped}
}

// Protocol returns the decoder that produced the result
func (r *Result) Protocol() Protocol {
	return r.protocol
}

// Len returns the number of frames
func (r *Result) Len() int {
	return len(r.frames)
}

// At returns frame i
func (r *Result) At(i int) Frame {
	return r.frames[i]
}

// Frames returns all frames in start order. The slice must not be modified.
func (r *Result) Frames() []Frame {
	return r.frames
}

// Errors returns the decode anomalies. The slice must not be modified.
func (r *Result) Errors() []Error {
	return r.errs
}

// ErrorsFor returns the anomalies recorded against frame i
func (r *Result) ErrorsFor(i int) []Error {
	var out []Error
	for _, e := range r.errs {
		if e.Frame == i {
			out = append(out, e)
		}
	}
	return out
}

// Between returns the frames starting in [from, to)
func (r *Result) Between(from, to float64) []Frame {
	lo := sort.Search(len(r.frames), func(i int) bool { return r.frames[i].Header().Start >= from })
	hi := sort.Search(len(r.frames), func(i int) bool { return r.frames[i].Header().Start >= to })
	if hi < lo {
		return nil
	}
	return r.frames[lo:hi:hi]
}

// Sink holds the latest Result. Each decode run replaces it wholesale.
type Sink struct {
	current atomic.Pointer[Result]
}

// Replace publishes r and returns the result it replaced
func (s *Sink) Replace(r *Result) *Result {
	return s.current.Swap(r)
}

// Load returns the current result, or nil before the first run
func (s *Sink) Load() *Result {
	return s.current.Load()
}
