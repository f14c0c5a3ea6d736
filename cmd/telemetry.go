// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/turbostat/internal/log"
	"github.com/Thermoquad/turbostat/internal/session"
	"github.com/Thermoquad/turbostat/internal/transport"
	"github.com/Thermoquad/turbostat/pkg/telemetry"
	"github.com/Thermoquad/turbostat/pkg/turbo"
)

var (
	telemetryDuration  time.Duration
	telemetryFormat    string
	telemetryReconnect bool
	telemetryAll       bool
)

var telemetryCmd = &cobra.Command{
	Use:   "telemetry",
	Short: "Stream live telemetry",
	Long: `Stream live telemetry from the bike until Ctrl+C or --duration elapses.

Each decoded field is printed as it arrives:
  table: one "name = value unit" line per field
  json:  the full snapshot as one JSON line per update
  yaml:  the full snapshot as one YAML document per update

A session summary with the last value of every field is printed on exit.
With --reconnect the stream survives bridge restarts and dropped WebSocket
sessions; the snapshot carries over between connections.`,
	RunE: runTelemetry,
}

func init() {
	rootCmd.AddCommand(telemetryCmd)
	telemetryCmd.Flags().DurationVarP(&telemetryDuration, "duration", "d", 0, "How long to stream (0 = until Ctrl+C)")
	telemetryCmd.Flags().StringVarP(&telemetryFormat, "format", "f", formatTable, "Output format: table, json or yaml")
	telemetryCmd.Flags().BoolVar(&telemetryReconnect, "reconnect", false, "Reconnect with backoff when the link drops")
	telemetryCmd.Flags().BoolVar(&telemetryAll, "all", false, "Also print unregistered channels (table format)")
}

func runTelemetry(cmd *cobra.Command, args []string) error {
	if err := validateFormat(telemetryFormat); err != nil {
		return err
	}
	if err := requireConnection(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	if telemetryDuration > 0 {
		ctx, cancel = context.WithTimeout(ctx, telemetryDuration)
		defer cancel()
	}

	dial, err := transport.NewDialer(opts.Connection)
	if err != nil {
		return err
	}
	lo, closeCapture, err := linkOptions()
	if err != nil {
		return err
	}
	defer closeCapture()

	monitor := newMonitor()
	defer monitor.Close()

	var out sync.Mutex
	printed := make(chan struct{})
	if telemetryFormat == formatTable {
		go func() {
			defer close(printed)
			printRecords(os.Stdout, &out, monitor.Stream(), telemetryAll)
		}()
	} else {
		close(printed)
		monitor.OnUpdate(func(rec *turbo.Record, snap *telemetry.Snapshot) {
			out.Lock()
			defer out.Unlock()
			if err := writeStructured(os.Stdout, telemetryFormat, snap.ToMap()); err != nil {
				log.Error(err, "failed to encode snapshot")
			}
		})
	}

	s := session.New(dial, monitor,
		session.WithLogger(log.WithName("session")),
		session.WithLinkOptions(lo...),
		session.WithReconnect(telemetryReconnect),
		session.WithStateHook(func(from, to string) {
			log.Debug("session state", "from", from, "to", to)
		}),
	)

	fmt.Fprintf(os.Stderr, "Connecting ...\n")
	err = s.Run(ctx)
	monitor.Close()
	<-printed

	out.Lock()
	defer out.Unlock()
	fmt.Printf("\n--- Session Summary ---\n")
	if werr := writeSummary(os.Stdout, telemetryFormat, monitor.Summary()); werr != nil {
		return werr
	}
	if telemetryFormat == formatTable {
		stats := monitor.Statistics()
		fmt.Printf("\n%s", stats.String())
		if dropped := monitor.Dropped(); dropped > 0 {
			fmt.Printf("Dropped Records: %8d\n", dropped)
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// printRecords writes one line per record until records is closed.
// Unregistered channels are only shown when all is set.
func printRecords(w io.Writer, mu sync.Locker, records <-chan *turbo.Record, all bool) {
	for rec := range records {
		mu.Lock()
		switch {
		case rec.Known():
			writeRecordLine(w, rec)
		case all:
			fmt.Fprintf(w, "%-28s = %10d (unregistered %s)\n",
				fmt.Sprintf("0x%02X/0x%02X", uint8(rec.Producer), rec.Channel), rec.Raw, turbo.FormatProducer(rec.Producer))
		}
		mu.Unlock()
	}
}
