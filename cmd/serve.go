// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/turbostat/internal/log"
	"github.com/Thermoquad/turbostat/internal/mqtt"
	"github.com/Thermoquad/turbostat/internal/server"
	"github.com/Thermoquad/turbostat/internal/session"
	"github.com/Thermoquad/turbostat/internal/transport"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bridge session with an HTTP API and optional MQTT publishing",
	Long: `Keep a session with the bridge open and expose the live snapshot.

HTTP endpoints (--http.addr):
  GET /healthz                 liveness
  GET /readyz                  200 once telemetry has been decoded
  GET /metrics                 Prometheus metrics
  GET /api/v1/snapshot         full snapshot with counters
  GET /api/v1/snapshot/{name}  battery, battery2, motor or settings
  GET /api/v1/fields           field registry
  PUT /api/v1/fields/{name}    write a field: {"value": "...", "dry_run": false}
  GET /api/v1/stats            decode statistics and connection state

With --mqtt.broker set, the snapshot is published retained to
{topic-root}/snapshot every --mqtt.interval, and with --mqtt.fields every
decoded field also goes to {topic-root}/{producer}/{field}.

The session reconnects with exponential backoff until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
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

	ctx, cancel := signalContext()
	defer cancel()

	monitor := newMonitor()
	defer monitor.Close()

	sess := session.New(dial, monitor,
		session.WithLogger(log.WithName("session")),
		session.WithLinkOptions(lo...),
		session.WithStateHook(func(from, to string) {
			log.Debug("session state changed", "from", from, "to", to)
		}),
	)

	httpServer := server.NewHTTPServer(opts.HTTP, monitor,
		server.WithWriter(func() (server.CommandWriter, error) {
			return sess.Link()
		}),
		server.WithState(sess.State),
		server.WithHTTPLogger(log.WithName("http")),
	)

	mgr := server.NewManager(log.WithName("server"),
		server.ServerFunc(sess.Run),
		httpServer,
	)

	if opts.MQTT.Enabled() {
		client, err := mqtt.Dial(ctx, opts.MQTT, log.WithName("mqtt"))
		if err != nil {
			return err
		}
		defer func() {
			dctx, dcancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer dcancel()
			if err := client.Disconnect(dctx); err != nil {
				log.Warn("mqtt disconnect failed", "err", err.Error())
			}
		}()

		mgr.Add(mqtt.NewPublisher(client, monitor,
			mqtt.WithTopicRoot(opts.MQTT.TopicRoot),
			mqtt.WithQoS(opts.MQTT.QoS),
			mqtt.WithInterval(opts.MQTT.Interval),
			mqtt.WithFieldTopics(opts.MQTT.Fields),
			mqtt.WithPublisherLogger(log.WithName("mqtt")),
		))
	}

	err = mgr.Start(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		return err
	}
	log.Info("stopped")
	return nil
}
