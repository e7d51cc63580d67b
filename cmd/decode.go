// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/Thermoquad/scopebus/pkg/capture"
	"github.com/Thermoquad/scopebus/pkg/decode"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	decodeFile   string
	decodeCSV    map[string]string
	decodeExport string
	decodeStats  bool
)

var decodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "Decode bus traffic from the scope or a saved capture",
	Long: `Digitize each channel and decode the selected protocol.

Sources, in order of precedence:
  --file bus.cbor            capture saved by 'scopebus capture'
  --csv scl=a.csv,sda=b.csv  "Time (s),Voltage (V)" exports
  (neither)                  live acquisition of the assigned channels

Every frame is printed with its time, contents and flags, followed by the
decode errors. Use --export to write the frames as CSV.`,
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().StringVarP(&decodeFile, "file", "f", "", "Decode a saved capture file")
	decodeCmd.Flags().StringToStringVar(&decodeCSV, "csv", nil, "Decode CSV waveforms (role=path)")
	decodeCmd.Flags().StringVarP(&decodeExport, "export", "e", "", "Write decoded frames to this CSV file")
	decodeCmd.Flags().BoolVar(&decodeStats, "stats", false, "Print a statistics summary")
}

func runDecode(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	req, err := decodeRequest(profile)
	if err != nil {
		return err
	}

	fs := afero.NewOsFs()
	c, source, err := loadCapture(ctx, fs)
	if err != nil {
		return err
	}

	result, err := c.Decode(ctx, req, thresholdFunc(profile))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scopebus - Decode\n")
	fmt.Fprintf(out, "Source: %s\n\n", source)
	fmt.Fprint(out, decode.FormatResult(result))

	if decodeExport != "" {
		if err := exportFrames(fs, decodeExport, result); err != nil {
			return err
		}
		log.Info().Str("path", decodeExport).Int("frames", result.Len()).Msg("frames exported")
	}

	if decodeStats {
		stats := decode.NewStatistics()
		stats.Update(result)
		fmt.Fprintln(out)
		fmt.Fprint(out, stats.String())
	}
	return nil
}

// loadCapture picks the capture source from the flags
func loadCapture(ctx context.Context, fs afero.Fs) (*capture.Capture, string, error) {
	switch {
	case decodeFile != "":
		c, err := capture.Load(fs, decodeFile)
		if err != nil {
			return nil, "", err
		}
		return c, fmt.Sprintf("File: %s (%s, %s)", decodeFile, c.ID, c.Taken.Format("2006-01-02 15:04:05")), nil

	case len(decodeCSV) > 0:
		c, err := capture.ImportCSV(fs, csvFiles(decodeCSV))
		if err != nil {
			return nil, "", err
		}
		return c, fmt.Sprintf("CSV: %d channels", len(c.Records)), nil
	}

	ch, connInfo, err := OpenChannel(ctx)
	if err != nil {
		return nil, "", err
	}
	defer ch.Close()

	c, err := acquireAssigned(ctx, ch, profile)
	if err != nil {
		return nil, "", err
	}
	return c, connInfo, nil
}

func csvFiles(flags map[string]string) map[decode.Role]string {
	files := make(map[decode.Role]string, len(flags))
	for role, path := range flags {
		files[decode.Role(strings.ToLower(role))] = path
	}
	return files
}

func exportFrames(fs afero.Fs, path string, r *decode.Result) error {
	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	err = decode.WriteCSV(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
