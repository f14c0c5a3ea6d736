// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/turbostat/pkg/turbo"
)

var packetTestTimeout int

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid Turbo message",
	Long: `Wait for a single valid notification from the bike through the bridge.

Exit codes:
  0 - Successfully received and decoded a message
  1 - Timeout reached without receiving a valid message
  2 - Connection error

Useful for testing connectivity to the bridge and that the bike is awake.`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a message")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	link, connInfo, closeLink, err := openLink(ctx)
	if err != nil {
		connectionFailed(err)
	}

	fmt.Printf("Turbostat - Packet Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	fmt.Printf("Waiting for valid Turbo message...\n\n")

	code := waitForMessage(link.Notifications(), link.Done(), time.Duration(packetTestTimeout)*time.Second)
	if stats := link.Stats(); stats.CRCErrors+stats.FramingErrors > 0 {
		fmt.Printf("(skipped %d bad frames before sync)\n", stats.CRCErrors+stats.FramingErrors)
	}
	closeLink()
	os.Exit(code)
	return nil
}

// waitForMessage returns the exit code for the first decodable notification
func waitForMessage(notifications <-chan []byte, done <-chan struct{}, timeout time.Duration) int {
	deadline := time.After(timeout)
	invalid := 0
	for {
		select {
		case buf, ok := <-notifications:
			if !ok {
				fmt.Fprintf(os.Stderr, "Read error: connection closed\n")
				return exitConnection
			}
			rec, err := turbo.Decode(buf)
			if err != nil {
				invalid++
				continue
			}
			if invalid > 0 {
				fmt.Printf("(skipped %d undecodable messages)\n", invalid)
			}
			fmt.Printf("SUCCESS: Received valid message\n")
			fmt.Printf("  Producer: %s (0x%02X)\n", turbo.FormatProducer(rec.Producer), uint8(rec.Producer))
			fmt.Printf("  Channel: 0x%02X\n", rec.Channel)
			if rec.Known() {
				fmt.Printf("  Field: %s = %s %s\n", rec.Name(), turbo.FormatValue(rec.Value), rec.Unit())
			}
			fmt.Printf("  Raw: %s\n", turbo.FormatHex(buf))
			return exitOK

		case <-done:
			fmt.Fprintf(os.Stderr, "Read error: connection closed\n")
			return exitConnection

		case <-deadline:
			fmt.Fprintf(os.Stderr, "TIMEOUT: No valid message received within %s\n", timeout)
			return exitFailed
		}
	}
}
