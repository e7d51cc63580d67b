// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package mock provides a deterministic in-memory oscilloscope that speaks
// the SCPI wire protocol, for offline use and tests.
package mock

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Thermoquad/scopebus/pkg/scpi"
)

// DefaultIdentity is the *IDN? reply of a new Scope
const DefaultIdentity = "Siglent Technologies,SDS1104X-E,MOCK0001,1.0.0.0"

var (
	reVDIVQuery = regexp.MustCompile(`^C(\d+):VDIV\?$`)
	reOFSTQuery = regexp.MustCompile(`^C(\d+):OFST\?$`)
	reVDIVSet   = regexp.MustCompile(`^C(\d+):VDIV\s+(\S+)$`)
	reOFSTSet   = regexp.MustCompile(`^C(\d+):OFST\s+(\S+)$`)
	reWaveform  = regexp.MustCompile(`^C(\d+):WF\?\s*DAT2$`)
)

type channel struct {
	scale   float64
	offset  float64
	payload []byte
}

// Scope answers identification, per-channel vertical settings, sample
// rate and DAT2 waveform queries. Unknown queries get no reply, so the
// caller sees a timeout just as with a real instrument.
type Scope struct {
	mu       sync.Mutex
	identity string
	rate     float64
	format   string
	channels map[int]*channel
	pending  bytes.Buffer
	out      bytes.Buffer
	closed   bool
	commands []string
}

// NewScope returns a scope with four 1 V/div channels sampling at 1 kSa/s,
// each holding the payload {0, 25, 50, 75}
func NewScope() *Scope {
	s := &Scope{
		identity: DefaultIdentity,
		rate:     1e3,
		format:   "BYTE",
		channels: make(map[int]*channel),
	}
	for ch := 1; ch <= 4; ch++ {
		s.channels[ch] = &channel{scale: 1, payload: []byte{0, 25, 50, 75}}
	}
	return s
}

// SetIdentity changes the *IDN? reply
func (s *Scope) SetIdentity(idn string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = idn
}

// SetSampleRate changes the SARA? reply
func (s *Scope) SetSampleRate(rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rate = rate
}

// SetChannel sets the vertical settings and raw waveform payload of ch
func (s *Scope) SetChannel(ch int, scale, offset float64, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[ch] = &channel{scale: scale, offset: offset, payload: payload}
}

// Commands returns every command line received so far
func (s *Scope) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Dial reopens the scope and returns it as a transport connection
func (s *Scope) Dial(context.Context) (scpi.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = false
	s.pending.Reset()
	s.out.Reset()
	return s, nil
}

// Write implements io.Writer. Complete lines are executed immediately.
func (s *Scope) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	s.pending.Write(p)
	for {
		line, err := s.pending.ReadString('\n')
		if err != nil {
			// Keep the partial line for the next write
			s.pending.Reset()
			s.pending.WriteString(line)
			break
		}
		s.execute(strings.TrimSpace(line))
	}
	return len(p), nil
}

// Read implements io.Reader. With nothing queued it reports a deadline
// timeout.
func (s *Scope) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.EOF
	}
	if s.out.Len() == 0 {
		return 0, os.ErrDeadlineExceeded
	}
	return s.out.Read(p)
}

// SetReadTimeout implements scpi.Conn. Reads never block.
func (s *Scope) SetReadTimeout(time.Duration) error {
	return nil
}

// Close implements io.Closer
func (s *Scope) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Scope) execute(cmd string) {
	s.commands = append(s.commands, cmd)
	upper := strings.ToUpper(cmd)

	switch {
	case upper == "*IDN?":
		s.reply(s.identity)
	case upper == "SARA?":
		s.reply("SARA " + scientific(s.rate, "Sa/s"))
	case strings.HasPrefix(upper, "COMM_FORMAT "):
		if parts := strings.Split(upper, ","); len(parts) == 3 {
			s.format = parts[1]
		}
	case reVDIVQuery.MatchString(upper):
		ch := s.channel(reVDIVQuery.FindStringSubmatch(upper)[1])
		if ch != nil {
			s.reply(strings.TrimSuffix(cmd, "?") + " " + scientific(ch.scale, "V"))
		}
	case reOFSTQuery.MatchString(upper):
		ch := s.channel(reOFSTQuery.FindStringSubmatch(upper)[1])
		if ch != nil {
			s.reply(strings.TrimSuffix(cmd, "?") + " " + scientific(ch.offset, "V"))
		}
	case reVDIVSet.MatchString(upper):
		m := reVDIVSet.FindStringSubmatch(upper)
		if ch := s.channel(m[1]); ch != nil {
			if v, err := strconv.ParseFloat(strings.TrimSuffix(m[2], "V"), 64); err == nil {
				ch.scale = v
			}
		}
	case reOFSTSet.MatchString(upper):
		m := reOFSTSet.FindStringSubmatch(upper)
		if ch := s.channel(m[1]); ch != nil {
			if v, err := strconv.ParseFloat(strings.TrimSuffix(m[2], "V"), 64); err == nil {
				ch.offset = v
			}
		}
	case reWaveform.MatchString(upper):
		ch := s.channel(reWaveform.FindStringSubmatch(upper)[1])
		if ch == nil {
			return
		}
		s.out.WriteString(fmt.Sprintf("C%s:WF DAT2,", reWaveform.FindStringSubmatch(upper)[1]))
		s.out.Write(scpi.EncodeBlock(s.wordPayload(ch.payload)))
	}
}

// wordPayload widens 8-bit payloads when WORD format was requested
func (s *Scope) wordPayload(payload []byte) []byte {
	if s.format != "WORD" {
		return payload
	}
	out := make([]byte, 0, 2*len(payload))
	for _, b := range payload {
		code := int16(int8(b)) * 256
		out = append(out, byte(code), byte(code>>8))
	}
	return out
}

func (s *Scope) channel(n string) *channel {
	i, err := strconv.Atoi(n)
	if err != nil {
		return nil
	}
	return s.channels[i]
}

func (s *Scope) reply(line string) {
	s.out.WriteString(line)
	s.out.WriteByte(scpi.Terminator)
}

// scientific formats like Siglent replies, e.g. 1.00E+00V
func scientific(v float64, unit string) string {
	return strconv.FormatFloat(v, 'E', 2, 64) + unit
}
