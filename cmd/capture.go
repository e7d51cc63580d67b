// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/Thermoquad/scopebus/pkg/capture"
	"github.com/Thermoquad/scopebus/pkg/waveform"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	captureOutput string
	captureCSVDir string
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Acquire the assigned channels and save them to a capture file",
	Long: `Download the waveform of every assigned channel and save the set as a
CBOR capture file that 'decode --file' can process offline.

With --csv-dir, each channel is also written as "Time (s),Voltage (V)" CSV.

Example:
  scopebus --host 192.168.1.50 capture --channel scl=1,sda=2 -o bus.cbor`,
	RunE: runCapture,
}

func init() {
	rootCmd.AddCommand(captureCmd)
	captureCmd.Flags().StringVarP(&captureOutput, "output", "o", "capture.cbor", "Capture file to write")
	captureCmd.Flags().StringVar(&captureCSVDir, "csv-dir", "", "Also export each channel as CSV into this directory")
}

func runCapture(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ch, connInfo, err := OpenChannel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()
	log.Info().Str("connection", connInfo).Msg("connected")

	c, err := acquireAssigned(ctx, ch, profile)
	if err != nil {
		return err
	}

	fs := afero.NewOsFs()
	if err := capture.Save(fs, captureOutput, c); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved capture %s (%s) to %s\n", c.ID, c.Instrument.Model, captureOutput)

	if captureCSVDir != "" {
		if err := exportRecords(fs, captureCSVDir, c); err != nil {
			return err
		}
	}
	return nil
}

// exportRecords writes one CSV per role
func exportRecords(fs afero.Fs, dir string, c *capture.Capture) error {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	for _, role := range c.Roles() {
		path := filepath.Join(dir, string(role)+".csv")
		f, err := fs.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		err = waveform.WriteCSV(f, c.Records[role])
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		log.Info().Str("role", string(role)).Str("path", path).Msg("channel exported")
	}
	return nil
}
