// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/turbostat/internal/transport"
	"github.com/Thermoquad/turbostat/pkg/turbo"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze malformed messages and errors",
	Long: `Track frame errors, malformed messages, and anomalous values with statistics.

This command validates each notification and detects:
  - CRC and framing errors on the bridge link
  - Malformed messages (truncated or over-long payloads, bad assist levels)
  - Unregistered producers and channels
  - Anomalous telemetry values (speed > 100 km/h, implausible temperatures,
    percentages above 100)
  - Statistics and trends (message rate, error rate, success rate)

By default, only errors are displayed. Use --show-all to display valid messages too.

Messages are validated in real-time, with errors highlighted immediately and
periodic statistics summaries displayed at configurable intervals.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all messages (not just errors)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	errorDetectionCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	link, connInfo, closeLink, err := openLink(ctx)
	if err != nil {
		return err
	}
	defer closeLink()

	if useTUI {
		return runTUIMode(link, connInfo)
	}
	return runTextMode(link, connInfo, ctx.Done())
}

// inspect decodes and validates one notification
func inspect(buf []byte) notifyMsg {
	rec, err := turbo.Decode(buf)
	if err != nil {
		return notifyMsg{raw: buf, decodeErr: err}
	}
	return notifyMsg{raw: buf, record: rec, anomalies: turbo.ValidateRecord(rec)}
}

// skippedFrames is the number of bad frames seen so far
func skippedFrames(link *transport.Link) uint64 {
	st := link.Stats()
	return st.CRCErrors + st.FramingErrors
}

// printDecodeError prints a decode error in highlighted format
func printDecodeError(msg notifyMsg) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m %v\n", timestamp, msg.decodeErr)
	fmt.Printf("  Data: %s\n", turbo.FormatHex(msg.raw))
	fmt.Printf("  >>> DECODE FAILED <<<\n\n")
}

// printBridgeErrors reports frame errors counted since the last call
func printBridgeErrors(prev, cur transport.LinkStats) {
	timestamp := time.Now().Format("15:04:05.000")
	if n := cur.CRCErrors - prev.CRCErrors; n > 0 {
		fmt.Printf("[%s] \033[1;31mCRC ERROR:\033[0m %d frame(s) failed the CRC check\n\n", timestamp, n)
	}
	if n := cur.FramingErrors - prev.FramingErrors; n > 0 {
		fmt.Printf("[%s] \033[1;31mFRAMING ERROR:\033[0m %d frame(s) malformed\n\n", timestamp, n)
	}
	if n := cur.Dropped - prev.Dropped; n > 0 {
		fmt.Printf("[%s] \033[1;33mDROPPED:\033[0m %d notification(s) dropped\n\n", timestamp, n)
	}
}

// printValidationErrors prints validation errors for a record
func printValidationErrors(rec *turbo.Record, anomalies []turbo.ValidationError) {
	timestamp := rec.Timestamp.Format("15:04:05.000")

	fmt.Printf("[%s] \033[1;33mVALIDATION ERROR:\033[0m %s (0x%02X) channel 0x%02X\n",
		timestamp, turbo.FormatProducer(rec.Producer), uint8(rec.Producer), rec.Channel)
	fmt.Printf("  CRC: \033[1;32mOK\033[0m\n")

	for i, a := range anomalies {
		switch a.Type {
		case turbo.AnomalyUnknownField, turbo.AnomalyUnknownProducer:
			fmt.Printf("  Issue %d: %s\n", i+1, a.Message)
			fmt.Printf("    raw=%d\n", rec.Raw)

		case turbo.AnomalyHighSpeed:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, a.Message)
			if speed, ok := a.Details["value"].(float64); ok {
				fmt.Printf("    Speed=%.1f km/h (max 100)\n", speed)
			}

		case turbo.AnomalyInvalidTemp:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, a.Message)
			if temp, ok := a.Details["value"].(int64); ok {
				fmt.Printf("    Temperature=%d°C (valid: -40 to 120°C)\n", temp)
			}

		case turbo.AnomalyOutOfRange:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, a.Message)

		default:
			fmt.Printf("  Issue %d: %s\n", i+1, a.Message)
		}
	}

	if rec.Known() {
		fmt.Printf("  Field: %s = %s %s\n", rec.Name(), turbo.FormatValue(rec.Value), rec.Unit())
	}
	fmt.Printf("  >>> MESSAGE FLAGGED <<<\n\n")
}

// runTUIMode runs error detection in TUI mode
func runTUIMode(link *transport.Link, connInfo string) error {
	m := initialModel(connInfo, statsInterval, showAll, link.Stats)
	p := tea.NewProgram(m)

	go func() {
		synchronized := false
		for buf := range link.Notifications() {
			if !synchronized {
				synchronized = true
				p.Send(syncMsg{skippedFrames: skippedFrames(link)})
			}
			p.Send(inspect(buf))
		}
		p.Send(linkClosedMsg{})
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// runTextMode runs error detection in text mode
func runTextMode(link *transport.Link, connInfo string, done <-chan struct{}) error {
	fmt.Printf("Turbostat - Error Detection Mode\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All messages\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stats := turbo.NewStatistics()
	synchronized := false
	var bridgeStats transport.LinkStats

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()
	pollTicker := time.NewTicker(time.Second)
	defer pollTicker.Stop()

	printStats := func() {
		fmt.Println()
		fmt.Print(stats.String())
		fmt.Printf("Bridge Frames:   %8d (CRC errors %d, framing errors %d)\n",
			bridgeStats.Frames, bridgeStats.CRCErrors, bridgeStats.FramingErrors)
		fmt.Println()
	}

	for {
		select {
		case buf, ok := <-link.Notifications():
			if !ok {
				fmt.Printf("Connection closed\n")
				printStats()
				return nil
			}

			if !synchronized {
				synchronized = true
				bridgeStats = link.Stats()
				if skipped := bridgeStats.CRCErrors + bridgeStats.FramingErrors; skipped > 0 {
					fmt.Printf("[SYNC] Synchronized after skipping %d bad frames\n\n", skipped)
				} else {
					fmt.Printf("[SYNC] Synchronized\n\n")
				}
			}

			msg := inspect(buf)
			if msg.decodeErr != nil {
				stats.Update(nil, msg.decodeErr, nil)
				printDecodeError(msg)
				continue
			}
			stats.Update(msg.record, nil, msg.anomalies)

			if len(msg.anomalies) > 0 {
				printValidationErrors(msg.record, msg.anomalies)
			} else if showAll {
				fmt.Print(turbo.FormatRecord(msg.record))
			}

		case <-pollTicker.C:
			if !synchronized {
				continue
			}
			cur := link.Stats()
			printBridgeErrors(bridgeStats, cur)
			bridgeStats = cur

		case <-statsTicker.C:
			printStats()

		case <-done:
			printStats()
			return nil
		}
	}
}
