// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Thermoquad/scopebus/pkg/scpi"
	"github.com/spf13/cobra"
)

var (
	pingCount int
	pingDelay time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure command round-trip time with repeated *IDN? queries",
	Long: `Send *IDN? several times and report the round-trip time of each reply.

This is useful for verifying:
  - The link carries commands in both directions
  - The per-read timeout suits the link (WebSocket bridges add latency)
  - The channel stays usable after a timed-out query

Exit codes:
  0 - All queries answered
  1 - One or more queries failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of queries to send")
	pingCmd.Flags().DurationVar(&pingDelay, "delay", 100*time.Millisecond, "Delay between queries")
}

// pingSummary counts answered and failed queries
type pingSummary struct {
	sent     int
	answered int
	min, max time.Duration
	total    time.Duration
}

func (s pingSummary) String() string {
	loss := 0.0
	if s.sent > 0 {
		loss = float64(s.sent-s.answered) / float64(s.sent) * 100
	}
	out := fmt.Sprintf("%d queries sent, %d replies received, %.0f%% loss\n", s.sent, s.answered, loss)
	if s.answered > 0 {
		avg := s.total / time.Duration(s.answered)
		out += fmt.Sprintf("rtt min/avg/max = %v/%v/%v\n",
			s.min.Round(time.Microsecond), avg.Round(time.Microsecond), s.max.Round(time.Microsecond))
	}
	return out
}

// pingLoop sends count identity queries on ch
func pingLoop(ctx context.Context, out io.Writer, ch *scpi.Channel, count int, delay time.Duration) pingSummary {
	var s pingSummary
	for i := 1; i <= count && ctx.Err() == nil; i++ {
		fmt.Fprintf(out, "Query %d/%d: ", i, count)
		s.sent++

		start := time.Now()
		id, err := ch.Identify(ctx)
		rtt := time.Since(start)
		if err != nil {
			fmt.Fprintf(out, "FAILED: %v\n", err)
		} else {
			fmt.Fprintf(out, "reply from %s %s, rtt=%v\n", id.Model, id.Serial, rtt.Round(time.Microsecond))
			s.answered++
			s.total += rtt
			if s.min == 0 || rtt < s.min {
				s.min = rtt
			}
			if rtt > s.max {
				s.max = rtt
			}
		}

		if i < count {
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
		}
	}
	return s
}

func runPing(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ch, connInfo, err := OpenChannel(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer ch.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scopebus - Ping\n")
	fmt.Fprintf(out, "Connection: %s\n", connInfo)
	fmt.Fprintf(out, "Timeout: %s per read\n", ch.Timeout())
	fmt.Fprintf(out, "Count: %d queries\n\n", pingCount)

	s := pingLoop(ctx, out, ch, pingCount, pingDelay)

	fmt.Fprintf(out, "\n--- Ping statistics ---\n")
	fmt.Fprint(out, s.String())

	if s.answered < s.sent {
		os.Exit(1)
	}
	return nil
}
