// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Thermoquad/scopebus/pkg/scpi"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Send raw SCPI commands interactively",
	Long: `Read SCPI commands from standard input, one per line, and print the replies.

  - Lines ending in a query (e.g. "C1:VDIV?") print the text reply
  - Waveform queries ("C1:WF? DAT2") print the block length and first bytes
  - Other lines are sent without waiting for a reply

If the link drops, the next command reconnects once before failing.
Type "quit" or press Ctrl+D to exit.`,
	RunE: runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

// isBlockQuery reports whether cmd returns a definite-length block
func isBlockQuery(cmd scpi.Command) bool {
	return strings.Contains(strings.ToUpper(string(cmd)), ":WF?")
}

// consoleSession executes lines on one channel
type consoleSession struct {
	ch  *scpi.Channel
	out io.Writer
}

// execute runs one command, reconnecting once after a dropped link
func (s *consoleSession) execute(ctx context.Context, cmd scpi.Command) error {
	err := s.executeOnce(ctx, cmd)
	if !errors.Is(err, scpi.ErrConnectionClosed) {
		return err
	}

	log.Warn().Err(err).Msg("connection lost, reconnecting")
	if rerr := s.ch.Reconnect(ctx); rerr != nil {
		return fmt.Errorf("reconnect failed: %w", rerr)
	}
	return s.executeOnce(ctx, cmd)
}

func (s *consoleSession) executeOnce(ctx context.Context, cmd scpi.Command) error {
	switch {
	case isBlockQuery(cmd):
		block, err := s.ch.QueryBinaryBlock(ctx, cmd)
		if err != nil {
			return err
		}
		head := block
		if len(head) > 16 {
			head = head[:16]
		}
		fmt.Fprintf(s.out, "<block %d bytes> % X", len(block), head)
		if len(head) < len(block) {
			fmt.Fprint(s.out, " ...")
		}
		fmt.Fprintln(s.out)

	case cmd.IsQuery():
		reply, err := s.ch.Query(ctx, cmd)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%s\n", reply)

	default:
		if err := s.ch.Send(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

// run reads commands from in until EOF, "quit" or ctx ends. Command
// errors are printed and do not end the session.
func (s *consoleSession) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for ctx.Err() == nil && scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.EqualFold(line, "quit"), strings.EqualFold(line, "exit"):
			return nil
		}

		if err := s.execute(ctx, scpi.Command(line)); err != nil {
			fmt.Fprintf(s.out, "ERROR: %v\n", err)
		}
	}
	return scanner.Err()
}

func runConsole(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ch, connInfo, err := OpenChannel(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer ch.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scopebus - SCPI Console\n")
	fmt.Fprintf(out, "Connection: %s\n", connInfo)
	fmt.Fprintf(out, "Type \"quit\" or press Ctrl+D to exit\n\n")

	s := &consoleSession{ch: ch, out: out}
	return s.run(ctx, cmd.InOrStdin())
}
