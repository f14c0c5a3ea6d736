// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/turbostat/internal/capture"
	"github.com/Thermoquad/turbostat/pkg/telemetry"
	"github.com/Thermoquad/turbostat/pkg/turbo"
)

var (
	replayFormat string
	replayQuiet  bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Replay a capture file through the decoder",
	Long: `Feed the notifications of a capture written with --capture.record through
the monitor and print them like 'telemetry' does, followed by the session
summary and decode statistics.

With --capture.realtime the capture is replayed at its recorded pace
(scaled by --capture.speed).`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVarP(&replayFormat, "format", "f", formatTable, "Output format: table, json or yaml")
	replayCmd.Flags().BoolVarP(&replayQuiet, "quiet", "q", false, "Only print the summary")
}

func runReplay(cmd *cobra.Command, args []string) error {
	if err := validateFormat(replayFormat); err != nil {
		return err
	}

	var popts []capture.PlayerOption
	if opts.Capture.Realtime {
		popts = append(popts, capture.WithRealtime(opts.Capture.Speed))
	}
	player, err := capture.Open(args[0], popts...)
	if err != nil {
		return err
	}
	defer player.Close()

	ctx, cancel := signalContext()
	defer cancel()

	monitor := newMonitor()
	defer monitor.Close()
	if !replayQuiet {
		monitor.OnUpdate(func(rec *turbo.Record, snap *telemetry.Snapshot) {
			if replayFormat != formatTable {
				writeStructured(os.Stdout, replayFormat, snap.ToMap())
				return
			}
			if rec.Known() {
				writeRecordLine(os.Stdout, rec)
			}
		})
	}

	fed, err := player.Feed(ctx, monitor)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("replay stopped after %d notifications: %w", fed, err)
	}

	fmt.Printf("\n--- Session Summary ---\n")
	fmt.Printf("  capture entries: %d, notifications fed: %d\n", player.Count(), fed)
	if err := writeSummary(os.Stdout, replayFormat, monitor.Summary()); err != nil {
		return err
	}
	if replayFormat == formatTable {
		stats := monitor.Statistics()
		fmt.Printf("\n%s", stats.String())
	}
	return nil
}
