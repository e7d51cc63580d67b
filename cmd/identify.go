// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/Thermoquad/scopebus/pkg/scpi"
	"github.com/spf13/cobra"
)

var identifyCmd = &cobra.Command{
	Use:   "identify",
	Short: "Test the connection by querying the scope identity",
	Long: `Connect to the scope and send *IDN?.

Exit codes:
  0 - Identity received
  1 - No valid reply within the read timeout
  2 - Connection error

Useful for checking connectivity before a capture.`,
	RunE: runIdentify,
}

func init() {
	rootCmd.AddCommand(identifyCmd)
}

func runIdentify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ch, connInfo, err := OpenChannel(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer ch.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scopebus - Identify\n")
	fmt.Fprintf(out, "Connection: %s\n", connInfo)
	fmt.Fprintf(out, "Timeout: %s\n\n", ch.Timeout())

	id, err := ch.Identify(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FAILED: %v\n", err)
		if errors.Is(err, scpi.ErrConnectionClosed) {
			os.Exit(2)
		}
		os.Exit(1)
	}

	fmt.Fprintf(out, "SUCCESS: %s\n", id)
	fmt.Fprintf(out, "  Manufacturer: %s\n", id.Manufacturer)
	fmt.Fprintf(out, "  Model: %s\n", id.Model)
	fmt.Fprintf(out, "  Serial: %s\n", id.Serial)
	fmt.Fprintf(out, "  Firmware: %s\n", id.Firmware)
	return nil
}
