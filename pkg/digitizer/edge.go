// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package digitizer

import (
	"fmt"
	"sort"
)

// Direction of a logic transition
type Direction uint8

const (
	Rising Direction = iota
	Falling
)

// String returns "rising" or "falling"
func (d Direction) String() string {
	if d == Rising {
		return "rising"
	}
	return "falling"
}

// Level is a logic state
type Level int8

const (
	LevelUnknown Level = iota
	LevelLow
	LevelHigh
)

// String returns the level name
func (l Level) String() string {
	switch l {
	case LevelLow:
		return "low"
	case LevelHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Bit returns 1 for high and 0 otherwise
func (l Level) Bit() uint32 {
	if l == LevelHigh {
		return 1
	}
	return 0
}

// After returns the level an edge leaves behind
func (d Direction) After() Level {
	if d == Rising {
		return LevelHigh
	}
	return LevelLow
}

// Edge is a detected transition with an interpolated timestamp in seconds
type Edge struct {
	Channel   int
	Time      float64
	Direction Direction
}

// Trace is the edge sequence of one channel together with the level held
// before the first edge and the capture window.
type Trace struct {
	Channel int
	Initial Level
	Edges   []Edge
	Start   float64
	End     float64
}

// NewTrace builds a trace and checks the edge invariants
func NewTrace(channel int, initial Level, edges []Edge, start, end float64) *Trace {
	MustIncrease(edges)
	return &Trace{Channel: channel, Initial: initial, Edges: edges, Start: start, End: end}
}

// LevelAt returns the level held just before t: edges at exactly t are not
// yet applied.
func (t *Trace) LevelAt(at float64) Level {
	i := sort.Search(len(t.Edges), func(i int) bool { return t.Edges[i].Time >= at })
	if i == 0 {
		return t.Initial
	}
	return t.Edges[i-1].Direction.After()
}

// Final returns the level after the last edge
func (t *Trace) Final() Level {
	if len(t.Edges) == 0 {
		return t.Initial
	}
	return t.Edges[len(t.Edges)-1].Direction.After()
}

// Cursor returns a forward-only level reader
func (t *Trace) Cursor() *Cursor {
	return &Cursor{trace: t, level: t.Initial}
}

// Cursor answers LevelAt queries for non-decreasing times in amortized O(1)
type Cursor struct {
	trace *Trace
	next  int
	level Level
}

// At returns the level held just before t. Times must not decrease
// between calls.
func (c *Cursor) At(at float64) Level {
	edges := c.trace.Edges
	for c.next < len(edges) && edges[c.next].Time < at {
		c.level = edges[c.next].Direction.After()
		c.next++
	}
	return c.level
}

// MustIncrease panics if timestamps do not strictly increase or directions
// do not alternate. Either indicates a digitizer bug, not bad input data.
func MustIncrease(edges []Edge) {
	for i := 1; i < len(edges); i++ {
		if !(edges[i].Time > edges[i-1].Time) {
			panic(fmt.Sprintf("digitizer: edge %d at %g does not follow %g", i, edges[i].Time, edges[i-1].Time))
		}
		if edges[i].Direction == edges[i-1].Direction {
			panic(fmt.Sprintf("digitizer: edges %d and %d are both %s", i-1, i, edges[i].Direction))
		}
	}
}
