// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Thermoquad/turbostat/internal/log"
	"github.com/Thermoquad/turbostat/internal/options"
)

var (
	opts = options.NewOptions()
	cfg  = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "turbostat",
	Short: "Specialized Turbo e-bike telemetry tool",
	Long: `Turbostat - A CLI tool for reading and controlling Specialized Turbo e-bikes
through a BLE bridge.

The bridge relays the bike's GATT notifications and Request-Read replies as
framed packets over a serial port or a WebSocket. Turbostat decodes them into
battery, motor and settings telemetry, and can write assist commands back.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the TURBOSTAT_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.

Every flag can also be set in $HOME/.turbostat.yaml (or --config) and through
TURBOSTAT_* environment variables, e.g. TURBOSTAT_LOG_LEVEL=debug.`,
	Version:           "0.3.0",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	opts.AddFlags(rootCmd.PersistentFlags())
}

// setup layers config file and environment under the flags, validates the
// result and starts the logger
func setup(cmd *cobra.Command, args []string) error {
	if err := opts.Load(cfg, cmd.Flags()); err != nil {
		return err
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	log.Init(opts.Log)
	if file := options.UsedConfigFile(cfg); file != "" {
		log.Debug("using config file", "path", file)
	}

	options.Watch(cfg, func(level string, ev fsnotify.Event) {
		if err := log.SetLevel(level); err != nil {
			log.Warn("ignoring log level from config", "level", level, "err", err.Error())
			return
		}
		log.Info("log level reloaded", "level", level, "file", ev.Name)
	})
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// requireConnection fails early for commands that talk to a bridge
func requireConnection() error {
	if !opts.Connection.Configured() {
		return fmt.Errorf("either --port or --url must be specified")
	}
	return nil
}
