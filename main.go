// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Scopebus - Oscilloscope Bus Decoder
//
// A CLI tool for acquiring waveforms from a networked oscilloscope and
// decoding the I2C, SPI and UART traffic they carry.

package main

import (
	"os"

	"github.com/Thermoquad/scopebus/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
