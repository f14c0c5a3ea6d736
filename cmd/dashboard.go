// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/turbostat/internal/log"
	"github.com/Thermoquad/turbostat/internal/session"
	"github.com/Thermoquad/turbostat/internal/transport"
	"github.com/Thermoquad/turbostat/pkg/telemetry"
	"github.com/Thermoquad/turbostat/pkg/turbo"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Interactive TUI for monitoring and controlling the bike",
	Long: `Monitor and control a Turbo bike via an interactive terminal UI.

Features:
  - Live battery, motor and settings telemetry
  - Assist level selection (OFF, ECO, TRAIL, TURBO)
  - Per-mode assist percentage
  - Decode statistics and bridge uptime
  - Event logging
  - Automatic reconnection on connection loss

Tab switches between the assist list, the percentage input and the apply
button. Arrow keys navigate the assist list; Enter applies.

Supports both serial and WebSocket connections.`,
	RunE: runDashboard,
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}

// dashboardBridge is what the TUI needs from the running session
type dashboardBridge struct {
	sess *session.Session
}

func (b dashboardBridge) link() (*transport.Link, error) {
	return b.sess.Link()
}

// write sends cmd on the current link
func (b dashboardBridge) write(cmd []byte) error {
	link, err := b.link()
	if err != nil {
		return err
	}
	return link.Write(cmd)
}

// ping measures the current link
func (b dashboardBridge) ping(ctx context.Context) (uptime, rtt time.Duration, err error) {
	link, err := b.link()
	if err != nil {
		return 0, 0, err
	}
	return link.Ping(ctx)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	if err := requireConnection(); err != nil {
		return err
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The TUI owns the terminal; keep session logs out of it
	monitor := telemetry.NewMonitor(telemetry.WithValidation())
	defer monitor.Close()

	sess := session.New(dial, monitor,
		session.WithLogger(log.NewNopLogger()),
		session.WithLinkOptions(append(lo, transport.WithLinkLogger(log.NewNopLogger()))...),
	)

	m := initialDashboardModel(dashboardBridge{sess: sess}, monitor)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())

	sess.OnStateChange(func(from, to string) {
		p.Send(sessionStateMsg{from: from, to: to, info: sess.Info()})
	})
	go batchUpdates(ctx, monitor, p)

	sessErr := make(chan error, 1)
	go func() {
		sessErr <- sess.Run(ctx)
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-sessErr
		return fmt.Errorf("TUI error: %v", err)
	}

	cancel()
	if err := <-sessErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// batchUpdates forwards decoded records to the TUI at a fixed rate so a busy
// bike does not flood the event loop
func batchUpdates(ctx context.Context, monitor *telemetry.Monitor, p *tea.Program) {
	records := make(chan *turbo.Record, 256)
	monitor.OnUpdate(func(rec *turbo.Record, _ *telemetry.Snapshot) {
		select {
		case records <- rec:
		default:
		}
	})

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var batch dashboardBatchMsg
		drain:
			for {
				select {
				case rec := <-records:
					batch.records = append(batch.records, rec)
				default:
					break drain
				}
			}
			if len(batch.records) > 0 {
				batch.snapshot = monitor.Snapshot()
				batch.stats = monitor.Statistics()
				p.Send(batch)
			}
		}
	}
}
