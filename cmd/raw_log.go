// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/turbostat/internal/transport"
	"github.com/Thermoquad/turbostat/pkg/bridge"
	"github.com/Thermoquad/turbostat/pkg/turbo"
)

var rawLogOutbound bool

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw bridge frames in human-readable format",
	Long: `Continuously decode and display bridge frames as they arrive.

NOTIFY and READ_RESPONSE frames are decoded as Turbo messages and shown with
timestamp, producer, field name and converted value. Other frames (adverts,
pongs, bridge errors) are shown as kind and payload bytes.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawLogOutbound, "outbound", false, "Also show frames sent to the bridge")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	hook := transport.WithFrameHook(func(f *bridge.Frame, outbound bool) {
		if outbound && !rawLogOutbound {
			return
		}
		fmt.Print(formatFrame(f, outbound))
	})

	link, connInfo, closeLink, err := openLink(ctx, hook)
	if err != nil {
		return err
	}
	defer closeLink()

	fmt.Printf("Turbostat - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	// Notifications are printed by the hook; keep the channel drained
	go func() {
		for range link.Notifications() {
		}
	}()

	select {
	case <-ctx.Done():
	case <-link.Done():
		fmt.Println("Connection closed")
	}

	stats := link.Stats()
	fmt.Printf("\nFrames: %d  Notifications: %d  CRC errors: %d  Framing errors: %d\n",
		stats.Frames, stats.Notifications, stats.CRCErrors, stats.FramingErrors)
	return nil
}

// formatFrame renders one frame as a log line
func formatFrame(f *bridge.Frame, outbound bool) string {
	dir := "<-"
	if outbound {
		dir = "->"
	}
	ts := f.Timestamp().Format("15:04:05.000")

	switch f.Kind() {
	case bridge.KindNotify, bridge.KindReadResponse:
		rec, err := turbo.Decode(f.Payload())
		if err != nil {
			return fmt.Sprintf("[%s] %s %s [ERROR] %v (%s)\n", ts, dir, f.Kind(), err, turbo.FormatHex(f.Payload()))
		}
		return fmt.Sprintf("%s %s %s", dir, f.Kind(), turbo.FormatRecord(rec))
	case bridge.KindError:
		return fmt.Sprintf("[%s] %s ERROR %q\n", ts, dir, f.ErrorText())
	case bridge.KindPong:
		if uptime, err := f.Uptime(); err == nil {
			return fmt.Sprintf("[%s] %s PONG uptime=%s\n", ts, dir, formatUptime(uint64(uptime.Milliseconds())))
		}
	}
	return fmt.Sprintf("[%s] %s %s\n", ts, dir, f)
}
