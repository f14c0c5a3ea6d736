// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/turbostat/internal/transport"
)

var (
	pingTimeout int
	pingCount   int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test the bridge by sending PING frames",
	Long: `Send PING frames to the BLE bridge and wait for PONG.

The bridge answers locally (nothing is sent to the bike) with its uptime.

This is useful for verifying:
  - The serial port or WebSocket connection is established
  - HTTP Basic authentication works
  - The bridge firmware is processing frames
  - Bidirectional frame flow works

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 5, "Timeout in seconds for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	timeout := time.Duration(pingTimeout) * time.Second
	link, connInfo, closeLink, err := openLink(ctx, transport.WithRequestTimeout(timeout))
	if err != nil {
		connectionFailed(err)
	}
	defer closeLink()

	fmt.Printf("Turbostat - Bridge Ping Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds per ping\n", pingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	go func() {
		for range link.Notifications() {
		}
	}()

	successCount := 0
	failCount := 0
	var totalRTT time.Duration

	for i := 1; i <= pingCount && ctx.Err() == nil; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		pingCtx, cancelPing := context.WithTimeout(ctx, timeout)
		uptime, rtt, err := link.Ping(pingCtx)
		cancelPing()

		switch {
		case err == nil:
			fmt.Printf("PONG from bridge, uptime=%s, rtt=%v\n",
				formatUptime(uint64(uptime.Milliseconds())), rtt.Round(time.Millisecond))
			totalRTT += rtt
			successCount++
		case errors.Is(err, transport.ErrRequestTimeout), errors.Is(err, context.DeadlineExceeded):
			fmt.Printf("TIMEOUT (no response in %ds)\n", pingTimeout)
			failCount++
		default:
			fmt.Printf("FAILED: %v\n", err)
			failCount++
		}

		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	sent := successCount + failCount
	fmt.Printf("\n--- Ping statistics ---\n")
	if sent == 0 {
		fmt.Printf("no pings sent\n")
		return nil
	}
	fmt.Printf("%d pings sent, %d responses received, %.0f%% packet loss\n",
		sent, successCount, float64(failCount)/float64(sent)*100)
	if successCount > 0 {
		fmt.Printf("average rtt=%v\n", (totalRTT / time.Duration(successCount)).Round(time.Millisecond))
	}

	if failCount > 0 {
		closeLink()
		os.Exit(exitFailed)
	}
	return nil
}
