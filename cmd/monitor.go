// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Thermoquad/scopebus/pkg/config"
	"github.com/Thermoquad/scopebus/pkg/decode"
	"github.com/Thermoquad/scopebus/pkg/scpi"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	showAll         bool
	statsInterval   int
	useTUI          bool
	monitorInterval time.Duration
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Repeatedly acquire and decode, tracking errors and statistics",
	Long: `Acquire the assigned channels in a loop and decode every capture.

Each capture replaces the previous result. The monitor tracks:
  - Missing ACKs, framing and parity errors, unterminated frames
  - Frame and error rates across captures
  - Transport failures (the link is re-established after a drop)

By default, only decode errors are logged. Use --show-all to log every frame.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&showAll, "show-all", false, "Log all frames (not just errors)")
	monitorCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds, text mode)")
	monitorCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", time.Second, "Delay between acquisitions")
}

// pollMsg carries the outcome of one acquire-and-decode cycle
type pollMsg struct {
	result *decode.Result
	err    error
	took   time.Duration
}

// reconnectMsg reports a re-established link
type reconnectMsg struct {
	err error
}

// poller acquires and decodes until its context ends
type poller struct {
	ch       *scpi.Channel
	profile  *config.Profile
	req      decode.Request
	sink     *decode.Sink
	interval time.Duration
	emit     func(tea.Msg)
}

func (p *poller) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		start := time.Now()
		result, err := p.cycle(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			p.sink.Replace(result)
		}
		p.emit(pollMsg{result: result, err: err, took: time.Since(start)})

		if errors.Is(err, scpi.ErrConnectionClosed) {
			rerr := p.ch.Reconnect(ctx)
			if ctx.Err() != nil {
				return
			}
			p.emit(reconnectMsg{err: rerr})
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *poller) cycle(ctx context.Context) (*decode.Result, error) {
	c, err := acquireAssigned(ctx, p.ch, p.profile)
	if err != nil {
		return nil, err
	}
	return c.Decode(ctx, p.req, thresholdFunc(p.profile))
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	req, err := decodeRequest(profile)
	if err != nil {
		return err
	}
	if monitorInterval <= 0 || statsInterval <= 0 {
		return fmt.Errorf("--interval and --stats-interval must be positive")
	}
	if len(profile.Assignments()) == 0 {
		return fmt.Errorf("no channels assigned (use --channel role=N or [channels] in the profile)")
	}

	ch, connInfo, err := OpenChannel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	id, err := ch.Identify(ctx)
	if err != nil {
		return fmt.Errorf("identify instrument: %w", err)
	}
	log.Info().Str("connection", connInfo).Str("instrument", id.String()).Msg("connected")

	p := &poller{
		ch:       ch,
		profile:  profile,
		req:      req,
		sink:     &decode.Sink{},
		interval: monitorInterval,
	}

	if useTUI {
		return runMonitorTUI(ctx, cancel, p, connInfo)
	}
	return runMonitorText(ctx, cmd.OutOrStdout(), p, connInfo)
}

// runMonitorTUI runs the poller behind the terminal UI
func runMonitorTUI(ctx context.Context, cancel context.CancelFunc, p *poller, connInfo string) error {
	// Keep log lines from tearing the alternate screen
	log.Logger = log.Logger.Level(zerolog.Disabled)

	m := initialModel(connInfo, p.req.Protocol, showAll, p.sink)
	prog := tea.NewProgram(m)
	p.emit = prog.Send

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.run(ctx)
	}()

	_, err := prog.Run()
	cancel()
	<-done
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// runMonitorText prints errors as they are decoded and periodic statistics
func runMonitorText(ctx context.Context, out io.Writer, p *poller, connInfo string) error {
	fmt.Fprintf(out, "Scopebus - Monitor\n")
	fmt.Fprintf(out, "Connection: %s\n", connInfo)
	fmt.Fprintf(out, "Protocol: %s\n", p.req.Protocol)
	fmt.Fprintf(out, "Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Fprintf(out, "Mode: All frames\n")
	} else {
		fmt.Fprintf(out, "Mode: Errors only\n")
	}
	fmt.Fprintf(out, "Press Ctrl+C to exit\n\n")

	msgs := make(chan tea.Msg, 4)
	p.emit = func(msg tea.Msg) {
		select {
		case msgs <- msg:
		case <-ctx.Done():
		}
	}
	go p.run(ctx)

	stats := decode.NewStatistics()
	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			fmt.Fprint(out, stats.String())
			return nil

		case msg := <-msgs:
			switch msg := msg.(type) {
			case pollMsg:
				if msg.err != nil {
					fmt.Fprintf(out, "[%s] ACQUIRE ERROR: %v\n", time.Now().Format("15:04:05.000"), msg.err)
					continue
				}
				stats.Update(msg.result)
				printResult(out, msg.result, showAll)
			case reconnectMsg:
				if msg.err != nil {
					fmt.Fprintf(out, "[%s] RECONNECT FAILED: %v\n", time.Now().Format("15:04:05.000"), msg.err)
				} else {
					fmt.Fprintf(out, "[%s] Reconnected\n", time.Now().Format("15:04:05.000"))
				}
			}

		case <-statsTicker.C:
			fmt.Fprintln(out)
			fmt.Fprint(out, stats.String())
			fmt.Fprintln(out)
		}
	}
}

// printResult prints every frame when all is set, otherwise only the
// flagged frames with their errors
func printResult(out io.Writer, r *decode.Result, all bool) {
	for i, f := range r.Frames() {
		if !all && f.Header().Valid() {
			continue
		}
		fmt.Fprintln(out, decode.FormatFrame(f))
		for _, e := range r.ErrorsFor(i) {
			fmt.Fprintf(out, "  ! %s\n", e.Error())
		}
	}
}
