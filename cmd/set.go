// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/turbostat/internal/log"
	"github.com/Thermoquad/turbostat/pkg/turbo"
)

var (
	setDryRun bool
	setVerify bool
)

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Write a setting to the bike",
	Long: `Encode a command and write it to the bike's write characteristic.

Use --dry-run to print the command bytes without connecting, and --verify to
read the value back afterwards.

Examples:
  turbostat set assist trail --port /dev/ttyUSB0
  turbostat set assist-percent eco 35 --url ws://bridge.local/ble
  turbostat set peak-assist 30 60 100 --dry-run
  turbostat set acceleration 16.67 --dry-run
  turbostat set field shuttle 50 --verify`,
}

var setAssistCmd = &cobra.Command{
	Use:   "assist <off|eco|trail|turbo|0-3>",
	Short: "Change the assist level",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := turbo.ParseAssistLevel(args[0])
		if err != nil {
			return err
		}
		command, err := turbo.SetAssistLevel(level)
		if err != nil {
			return err
		}
		return sendCommand(command, turbo.ProducerMotor, turbo.ChannelMotorAssistLevel)
	},
}

var setAssistPercentCmd = &cobra.Command{
	Use:   "assist-percent <eco|trail|turbo|1-3> <percent>",
	Short: "Change the support percentage of one assist mode",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseModeIndex(args[0])
		if err != nil {
			return err
		}
		pct, err := parsePercent(args[1])
		if err != nil {
			return err
		}
		command, err := turbo.SetAssistPercent(index, pct)
		if err != nil {
			return err
		}
		return sendCommand(command, turbo.ProducerSettings, uint8(turbo.ChannelSettingsAssistLev1+index))
	},
}

var setPeakAssistCmd = &cobra.Command{
	Use:   "peak-assist <eco> <trail> <turbo>",
	Short: "Change the peak assist of all three modes",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var pct [3]int
		for i, arg := range args {
			v, err := parsePercent(arg)
			if err != nil {
				return err
			}
			pct[i] = v
		}
		command, err := turbo.SetPeakAssist(pct[0], pct[1], pct[2])
		if err != nil {
			return err
		}
		return sendCommand(command, turbo.ProducerMotor, turbo.ChannelMotorPeakAssist)
	},
}

var setAccelerationCmd = &cobra.Command{
	Use:   "acceleration <percent>",
	Short: "Change the acceleration sensitivity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pct, err := strconv.ParseFloat(strings.TrimSuffix(args[0], "%"), 64)
		if err != nil {
			return fmt.Errorf("invalid percentage %q", args[0])
		}
		command, err := turbo.SetAccelerationSensitivity(pct)
		if err != nil {
			return err
		}
		return sendCommand(command, turbo.ProducerSettings, turbo.ChannelSettingsAcceleration)
	},
}

var setShuttleCmd = &cobra.Command{
	Use:   "shuttle <0-100>",
	Short: "Change the shuttle value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := parsePercent(args[0])
		if err != nil {
			return err
		}
		command, err := turbo.SetShuttle(v)
		if err != nil {
			return err
		}
		return sendCommand(command, turbo.ProducerMotor, turbo.ChannelMotorShuttle)
	},
}

var setFieldCmd = &cobra.Command{
	Use:   "field <name> <value>",
	Short: "Write any writable field through its inverse conversion",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		def, ok := turbo.DefaultRegistry().LookupName(args[0])
		if !ok {
			return fmt.Errorf("unknown field: %s", args[0])
		}
		value, err := turbo.ParseFieldValue(def, args[1])
		if err != nil {
			return err
		}
		command, err := turbo.EncodeField(def, value)
		if err != nil {
			return err
		}
		return sendCommand(command, def.Producer, def.Channel)
	},
}

func init() {
	rootCmd.AddCommand(setCmd)
	setCmd.PersistentFlags().BoolVar(&setDryRun, "dry-run", false, "Print the command bytes without sending")
	setCmd.PersistentFlags().BoolVar(&setVerify, "verify", false, "Read the value back after writing")
	setCmd.AddCommand(setAssistCmd, setAssistPercentCmd, setPeakAssistCmd,
		setAccelerationCmd, setShuttleCmd, setFieldCmd)
}

// parseModeIndex maps eco/trail/turbo or 1-3 to the 0-based mode index
func parseModeIndex(s string) (int, error) {
	switch strings.ToLower(s) {
	case "eco", "1":
		return 0, nil
	case "trail", "2":
		return 1, nil
	case "turbo", "3":
		return 2, nil
	}
	return 0, fmt.Errorf("unknown assist mode %q (want eco, trail or turbo)", s)
}

func parsePercent(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSuffix(s, "%"))
	if err != nil {
		return 0, fmt.Errorf("invalid percentage %q", s)
	}
	return v, nil
}

// sendCommand writes command, or only prints it with --dry-run. With
// --verify the (producer, channel) pair is read back.
func sendCommand(command []byte, producer turbo.Producer, channel uint8) error {
	fmt.Printf("Command: %s\n", turbo.FormatHex(command))
	if setDryRun {
		return nil
	}

	ctx, cancel := signalContext()
	defer cancel()

	link, connInfo, closeLink, err := openLink(ctx)
	if err != nil {
		return err
	}
	defer closeLink()

	go func() {
		for range link.Notifications() {
		}
	}()

	if err := link.Write(command); err != nil {
		return err
	}
	log.Info("command sent", "command", turbo.FormatHex(command), "conn", connInfo)
	fmt.Printf("Sent via %s\n", connInfo)

	if !setVerify {
		return nil
	}

	reqCtx, cancelReq := context.WithTimeout(ctx, opts.Connection.RequestTimeout)
	defer cancelReq()
	resp, err := link.Request(reqCtx, producer, channel)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	rec, err := turbo.Decode(resp)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	fmt.Print("Read back: ")
	return writeReading(os.Stdout, formatTable, rec)
}
