// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/turbostat/pkg/bridge"
	"github.com/Thermoquad/turbostat/pkg/turbo"
)

var (
	scanTimeout int
	scanAll     bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List Turbo bikes seen by the bridge",
	Long: `Listen for scan results relayed by the bridge and list Turbo bikes.

A bike is recognised by the "TURBOHMI" magic in its manufacturer data under
Nordic's company ID. Use --all to list every advertiser.

Examples:
  turbostat scan --port /dev/ttyUSB0
  turbostat scan --url ws://bridge.local/ble --timeout 10

Exit codes:
  0 - At least one bike found
  1 - No bike found before the timeout
  2 - Connection error`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().IntVar(&scanTimeout, "timeout", 5, "Scan duration in seconds")
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "Show every advertiser, not just Turbo bikes")
}

type scanResult struct {
	address string
	rssi    int8
	mfr     []byte
	turbo   bool
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	link, connInfo, closeLink, err := openLink(ctx)
	if err != nil {
		connectionFailed(err)
	}
	defer closeLink()

	go func() {
		for range link.Notifications() {
		}
	}()

	fmt.Printf("Turbostat - Scan\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Scanning for %d seconds...\n", scanTimeout)

	seen := make(map[string]bool)
	found := 0
	deadline := time.After(time.Duration(scanTimeout) * time.Second)

scan:
	for {
		select {
		case adv, ok := <-link.Adverts():
			if !ok {
				fmt.Fprintf(os.Stderr, "Read error: connection closed\n")
				closeLink()
				os.Exit(exitConnection)
			}
			res := classifyAdvert(adv)
			if seen[res.address] || (!res.turbo && !scanAll) {
				continue
			}
			seen[res.address] = true
			if res.turbo {
				found++
			}
			printScanResult(res)
		case <-deadline:
			break scan
		case <-ctx.Done():
			break scan
		}
	}

	fmt.Printf("\n--- Scan summary ---\n")
	fmt.Printf("Bikes found: %d\n", found)
	if found == 0 {
		fmt.Printf("No Turbo bikes found. Make sure the bike is on and not connected to another device.\n")
		closeLink()
		os.Exit(exitFailed)
	}
	return nil
}

func classifyAdvert(adv *bridge.Advert) scanResult {
	res := scanResult{address: adv.Address, rssi: adv.RSSI, mfr: adv.Manufacturer}
	if data, ok := turbo.ParseManufacturerData(adv.Manufacturer); ok {
		res.turbo = turbo.IsTurboAdvertisement(data)
	}
	return res
}

func printScanResult(res scanResult) {
	name := "(unknown)"
	if res.turbo {
		name = "Specialized Turbo"
	}
	fmt.Printf("\n  Name:    %s\n", name)
	fmt.Printf("  Address: %s\n", res.address)
	fmt.Printf("  RSSI:    %d dBm\n", res.rssi)
	if len(res.mfr) > 0 {
		fmt.Printf("  Mfr:     %x\n", res.mfr)
	}
}
