// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Turbostat - Specialized Turbo e-bike telemetry tool
//
// A CLI tool for decoding, monitoring and controlling Specialized Turbo
// e-bikes through a BLE bridge.

package main

import (
	"os"

	_ "go.uber.org/automaxprocs"

	"github.com/Thermoquad/turbostat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
