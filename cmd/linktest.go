// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/turbostat/internal/transport"
	"github.com/Thermoquad/turbostat/pkg/bridge"
)

var linkTestDuration int

var linkTestCmd = &cobra.Command{
	Use:   "link_test",
	Short: "Test bridge connection stability",
	Long: `Connect to the bridge and listen without sending anything.

Every frame received is logged with its kind and size, and a heartbeat is
printed each second. Useful for debugging dropped WebSocket sessions or a
flaky serial cable.

Exit codes:
  0 - Test completed normally
  1 - Connection lost during the test
  2 - Connection error`,
	RunE: runLinkTest,
}

func init() {
	rootCmd.AddCommand(linkTestCmd)
	linkTestCmd.Flags().IntVar(&linkTestDuration, "duration", 30, "Test duration in seconds")
}

func runLinkTest(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	frames := make(chan *bridge.Frame, 100)
	hook := transport.WithFrameHook(func(f *bridge.Frame, outbound bool) {
		if outbound {
			return
		}
		select {
		case frames <- f:
		default:
		}
	})

	link, connInfo, closeLink, err := openLink(ctx, hook)
	if err != nil {
		connectionFailed(err)
	}
	defer closeLink()

	go func() {
		for range link.Notifications() {
		}
	}()

	fmt.Printf("Bridge Connection Stability Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Duration: %d seconds\n\n", linkTestDuration)

	start := time.Now()
	endTime := start.Add(time.Duration(linkTestDuration) * time.Second)
	heartbeat := time.NewTicker(time.Second)
	defer heartbeat.Stop()

	framesReceived := 0
	bytesReceived := 0

	fmt.Printf("Listening for frames...\n\n")

	for time.Now().Before(endTime) {
		select {
		case f := <-frames:
			framesReceived++
			bytesReceived += f.Length()
			fmt.Printf("[%s] %s %d bytes: % X\n",
				f.Timestamp().Format("15:04:05.000"), f.Kind(), f.Length(), f.Payload())

		case <-link.Done():
			fmt.Printf("\n[%s] Connection lost\n", time.Now().Format("15:04:05.000"))
			printLinkTestResults(time.Since(start), framesReceived, bytesReceived, link.Stats())
			fmt.Printf("Result: FAILED (connection lost)\n")
			closeLink()
			os.Exit(exitFailed)

		case <-ctx.Done():
			printLinkTestResults(time.Since(start), framesReceived, bytesReceived, link.Stats())
			fmt.Printf("Result: INTERRUPTED\n")
			return nil

		case <-heartbeat.C:
			fmt.Printf("[%s] Still connected... (%.0fs remaining)\n",
				time.Now().Format("15:04:05.000"), time.Until(endTime).Seconds())
		}
	}

	printLinkTestResults(time.Since(start), framesReceived, bytesReceived, link.Stats())
	fmt.Printf("Result: PASSED (connection stable)\n")
	return nil
}

func printLinkTestResults(elapsed time.Duration, frames, bytes int, stats transport.LinkStats) {
	fmt.Printf("\n--- Test Results ---\n")
	fmt.Printf("Duration: %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Frames received: %d\n", frames)
	fmt.Printf("Payload bytes received: %d\n", bytes)
	fmt.Printf("CRC errors: %d\n", stats.CRCErrors)
	fmt.Printf("Framing errors: %d\n", stats.FramingErrors)
}
