// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/scopebus/pkg/decode"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for notices
}

// TUI model
type model struct {
	connInfo      string
	protocol      decode.Protocol
	showAll       bool
	stats         *decode.Statistics
	sink          *decode.Sink
	eventLog      []eventLogEntry
	maxLogEntries int
	frames        viewport.Model
	captures      int
	failures      int
	lastTook      time.Duration
	width         int
	height        int
	quitting      bool
	now           func() time.Time
}

// Messages
type tickMsg time.Time

// formatElapsed formats a duration as "1 hour, 2 minutes and 3 seconds"
func formatElapsed(d time.Duration) string {
	seconds := int64(d / time.Second)
	if seconds <= 0 {
		return "0 seconds"
	}

	units := []struct {
		name string
		size int64
	}{
		{"day", 86400},
		{"hour", 3600},
		{"minute", 60},
		{"second", 1},
	}

	parts := []string{}
	for _, u := range units {
		n := seconds / u.size
		seconds %= u.size
		switch {
		case n == 1:
			parts = append(parts, "1 "+u.name)
		case n > 1:
			parts = append(parts, fmt.Sprintf("%d %ss", n, u.name))
		}
	}

	if len(parts) == 1 {
		return parts[0]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
}

func initialModel(connInfo string, protocol decode.Protocol, showAll bool, sink *decode.Sink) model {
	return model{
		connInfo:      connInfo,
		protocol:      protocol,
		showAll:       showAll,
		stats:         decode.NewStatistics(),
		sink:          sink,
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		frames:        viewport.New(76, 8),
		width:         80,
		height:        24,
		now:           time.Now,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
		// Scroll the frame list
		var cmd tea.Cmd
		m.frames, cmd = m.frames.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.frames.Width = max(msg.Width-4, 20)
		m.frames.Height = max(msg.Height/2-10, 4)

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd()

	case pollMsg:
		m.lastTook = msg.took
		if msg.err != nil {
			m.failures++
			m.addLogEntry(fmt.Sprintf("ACQUIRE ERROR: %v", msg.err), true)
			return m, nil
		}
		m.captures++
		m.stats.Update(msg.result)
		m.logResult(msg.result)
		m.refreshFrames()

	case reconnectMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Reconnect failed: %v", msg.err), true)
		} else {
			m.addLogEntry("Reconnected", false)
		}
	}

	return m, nil
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: m.now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

// logResult adds decode errors, and every frame with --show-all
func (m *model) logResult(r *decode.Result) {
	for _, e := range r.Errors() {
		m.addLogEntry(e.Error(), true)
	}
	if m.showAll {
		for _, f := range r.Frames() {
			m.addLogEntry(decode.FormatFrame(f), false)
		}
	}
}

// refreshFrames shows the latest result from the sink
func (m *model) refreshFrames() {
	r := m.sink.Load()
	if r == nil {
		return
	}
	lines := make([]string, 0, r.Len())
	for _, f := range r.Frames() {
		lines = append(lines, decode.FormatFrame(f))
	}
	if len(lines) == 0 {
		lines = append(lines, "(no frames in last capture)")
	}
	m.frames.SetContent(strings.Join(lines, "\n"))
	m.frames.GotoTop()
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("SCOPEBUS - " + strings.ToUpper(m.protocol.String()) + " MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | Up %s | Press 'q' to quit",
		m.connInfo, func() string {
			if m.showAll {
				return "All frames"
			}
			return "Errors only"
		}(), formatElapsed(m.now().Sub(m.stats.StartTime)))))
	s.WriteString("\n\n")

	if m.captures == 0 && m.failures == 0 {
		s.WriteString(warningStyle.Render("⏳ Waiting for first capture..."))
		s.WriteString("\n\n")
	}

	// Statistics
	m.stats.CalculateRates()
	var validPercent float64
	if m.stats.TotalFrames > 0 {
		validPercent = float64(m.stats.ValidFrames) * 100.0 / float64(m.stats.TotalFrames)
	}
	flagged := m.stats.TotalFrames - m.stats.ValidFrames

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Captures:"), statsValueStyle.Render(fmt.Sprintf("%d", m.captures)),
		statsLabelStyle.Render("Frames:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.TotalFrames)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", m.stats.ValidFrames, validPercent)),
		statsLabelStyle.Render("Flagged:"), func() string {
			if flagged > 0 {
				return errorStyle.Render(fmt.Sprintf("%d", flagged))
			}
			return statsValueStyle.Render("0")
		}(),
	))

	if flagged > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %d   %s %d   %s %d   %s %d\n",
			headerStyle.Render("missing ACK"), m.stats.AckMissing,
			headerStyle.Render("framing"), m.stats.FramingError,
			headerStyle.Render("parity"), m.stats.ParityError,
			headerStyle.Render("unterminated"), m.stats.Unterminated,
		))
	}

	if m.failures > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s\n",
			statsLabelStyle.Render("Acquire Failures:"), errorStyle.Render(fmt.Sprintf("%d", m.failures)),
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f frames/s", m.stats.FrameRate)),
		statsLabelStyle.Render("Error Rate:"), func() string {
			if m.stats.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
		}(),
		statsLabelStyle.Render("Cycle:"), statsValueStyle.Render(m.lastTook.Round(time.Millisecond).String()),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Frames of the latest capture
	s.WriteString(statsLabelStyle.Render("Latest Capture:"))
	s.WriteString(headerStyle.Render(" (↑/↓ to scroll)"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Render(m.frames.View()))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - m.frames.Height - 18 // Reserve space for header, stats and frames
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
