// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/Thermoquad/scopebus/pkg/config"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	// Profile
	configPath string

	// TCP connection flags
	host    string
	tcpPort int

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Decode selection
	protocolName string
	channelFlags map[string]int
	sampleFormat string
	thresholdHi  float64
	thresholdLo  float64
	hysteresis   float64

	// Shared
	readTimeout time.Duration
	useMock     bool
	debug       bool
	logFile     string

	// profile is loaded before every command runs
	profile *config.Profile
)

var rootCmd = &cobra.Command{
	Use:   "scopebus",
	Short: "Oscilloscope bus decoder",
	Long: `Scopebus - Acquire waveforms from a networked oscilloscope and decode
the I2C, SPI or UART traffic they carry.

Connection modes:
  TCP:       --host 192.168.1.50 [--tcp-port 5024]
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]
  Mock:      --mock (built-in simulated scope)

Decode settings come from a TOML profile (--config). Connection flags given
on the command line override the profile.

For WebSocket authentication, the password is read from the SCOPEBUS_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "0.3.0",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Decode profile (TOML)")

	// TCP connection flags
	rootCmd.PersistentFlags().StringVar(&host, "host", "", "Scope hostname or IP address")
	rootCmd.PersistentFlags().IntVar(&tcpPort, "tcp-port", config.DefaultPort, "SCPI socket port")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVar(&protocolName, "protocol", "", "Protocol to decode (i2c, spi, uart)")
	rootCmd.PersistentFlags().StringToIntVar(&channelFlags, "channel", nil, "Assign a role to a scope channel (e.g. --channel scl=1,sda=2)")
	rootCmd.PersistentFlags().StringVar(&sampleFormat, "format", "byte", "Waveform sample width (byte, word)")

	rootCmd.PersistentFlags().Float64Var(&thresholdHi, "high", 0, "Fixed high threshold in volts (with --low)")
	rootCmd.PersistentFlags().Float64Var(&thresholdLo, "low", 0, "Fixed low threshold in volts (with --high)")
	rootCmd.PersistentFlags().Float64Var(&hysteresis, "hysteresis", config.DefaultHysteresis, "Automatic threshold band as a fraction of swing")

	rootCmd.PersistentFlags().DurationVar(&readTimeout, "timeout", config.DefaultTimeout, "Per-read timeout")
	rootCmd.PersistentFlags().BoolVar(&useMock, "mock", false, "Use the simulated scope")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write JSON logs to this file (rotated)")
}

// Execute runs the root command. Ctrl+C cancels the running command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func setup(cmd *cobra.Command, args []string) error {
	initLogging(cmd.ErrOrStderr(), debug, logFile)

	var err error
	profile, err = loadProfile(afero.NewOsFs(), configPath)
	if err != nil {
		return err
	}
	return applyFlags(cmd, profile)
}

func loadProfile(fs afero.Fs, path string) (*config.Profile, error) {
	if path == "" {
		return config.Defaults(), nil
	}
	p, err := config.Load(fs, path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return p, nil
}

// applyFlags copies explicitly set flags over the profile and validates
// the result
func applyFlags(cmd *cobra.Command, p *config.Profile) error {
	flags := cmd.Flags()
	if flags.Changed("host") {
		p.Connection.Host = host
	}
	if flags.Changed("tcp-port") {
		p.Connection.Port = tcpPort
	}
	if flags.Changed("port") {
		p.Connection.Serial = portName
	}
	if flags.Changed("baud") {
		p.Connection.Baud = baudRate
	}
	if flags.Changed("url") {
		p.Connection.URL = wsURL
	}
	if flags.Changed("username") {
		p.Connection.Username = wsUsername
	}
	if flags.Changed("timeout") {
		p.Connection.Timeout = readTimeout.String()
	}
	if flags.Changed("protocol") {
		p.Protocol = strings.ToLower(protocolName)
	}
	if flags.Changed("format") {
		p.Format = strings.ToLower(sampleFormat)
	}
	if flags.Changed("channel") {
		p.Channels = make(map[string]int, len(channelFlags))
		for role, ch := range channelFlags {
			p.Channels[strings.ToLower(role)] = ch
		}
	}
	if flags.Changed("high") || flags.Changed("low") {
		if !flags.Changed("high") || !flags.Changed("low") {
			return fmt.Errorf("--high and --low must be given together")
		}
		p.Thresholds.Auto = false
		p.Thresholds.High = thresholdHi
		p.Thresholds.Low = thresholdLo
	}
	if flags.Changed("hysteresis") {
		p.Thresholds.Auto = true
		p.Thresholds.Hysteresis = hysteresis
	}
	return p.Validate()
}
