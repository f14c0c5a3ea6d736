// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/Thermoquad/turbostat/internal/capture"
	"github.com/Thermoquad/turbostat/internal/log"
	"github.com/Thermoquad/turbostat/internal/transport"
	"github.com/Thermoquad/turbostat/pkg/telemetry"
)

// Exit codes shared by the diagnostic commands
const (
	exitOK         = 0
	exitFailed     = 1
	exitConnection = 2
)

// signalContext is cancelled on Ctrl+C or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// linkOptions returns the options every link gets: logger, request timeout
// and, with --capture.record, a recorder hook. The returned func closes the
// recorder.
func linkOptions() ([]transport.LinkOption, func(), error) {
	lo := []transport.LinkOption{
		transport.WithLinkLogger(log.WithName("link")),
		transport.WithRequestTimeout(opts.Connection.RequestTimeout),
	}
	if opts.Capture.Record == "" {
		return lo, func() {}, nil
	}

	rec, err := capture.Create(opts.Capture.Record)
	if err != nil {
		return nil, nil, err
	}
	log.Info("recording bridge traffic", "path", opts.Capture.Record)
	lo = append(lo, transport.WithFrameHook(rec.Frame))

	return lo, func() {
		if err := rec.Close(); err != nil {
			log.Error(err, "failed to close capture", "path", opts.Capture.Record)
			return
		}
		log.Info("capture closed", "path", opts.Capture.Record, "frames", rec.Count())
	}, nil
}

// openLink dials the bridge once and starts the link reader. The returned
// func stops the reader and closes the connection; it may be called more
// than once.
func openLink(ctx context.Context, extra ...transport.LinkOption) (*transport.Link, string, func(), error) {
	if err := requireConnection(); err != nil {
		return nil, "", nil, err
	}

	conn, info, err := transport.Open(ctx, opts.Connection)
	if err != nil {
		return nil, "", nil, err
	}

	lo, closeCapture, err := linkOptions()
	if err != nil {
		conn.Close()
		return nil, "", nil, err
	}

	link := transport.NewLink(conn, append(lo, extra...)...)
	ctx, cancel := context.WithCancel(ctx)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		if err := link.Run(ctx); err != nil && ctx.Err() == nil {
			log.Warn("link stopped", "err", err.Error())
		}
	}()

	var once sync.Once
	return link, info, func() {
		once.Do(func() {
			cancel()
			link.Close()
			<-stopped
			closeCapture()
		})
	}, nil
}

// newMonitor creates a monitor that logs through the global logger and
// counts anomalies
func newMonitor() *telemetry.Monitor {
	return telemetry.NewMonitor(
		telemetry.WithLogger(log.WithName("monitor").Logr()),
		telemetry.WithValidation(),
	)
}

// connectionFailed reports err and exits with the connection error code
func connectionFailed(err error) {
	fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
	os.Exit(exitConnection)
}
