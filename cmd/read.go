// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/turbostat/pkg/turbo"
)

var (
	readFormat    string
	readSecondary bool
)

var readCmd = &cobra.Command{
	Use:   "read <field|list>",
	Short: "Read a single value (use 'read list' to see fields)",
	Long: `Read one field with a Request-Read round trip and print it.

'read list' prints every known field with its producer and channel; it does
not need a connection. Battery fields read the primary pack unless
--secondary is given.

Examples:
  turbostat read list
  turbostat read battery_charge_percent --port /dev/ttyUSB0
  turbostat read odometer --url ws://bridge.local/ble -f json`,
	Args: cobra.ExactArgs(1),
	RunE: runRead,
}

func init() {
	rootCmd.AddCommand(readCmd)
	readCmd.Flags().StringVarP(&readFormat, "format", "f", formatTable, "Output format: table, json or yaml")
	readCmd.Flags().BoolVar(&readSecondary, "secondary", false, "Read from the secondary battery")
}

func runRead(cmd *cobra.Command, args []string) error {
	if err := validateFormat(readFormat); err != nil {
		return err
	}

	registry := turbo.DefaultRegistry()
	if args[0] == "list" {
		writeFieldList(os.Stdout, registry)
		return nil
	}

	def, err := resolveField(registry, args[0], readSecondary)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\nUse 'read list' to see available fields.\n", err)
		os.Exit(exitFailed)
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

	fmt.Fprintf(os.Stderr, "Reading '%s' via %s ...\n", def.Name, connInfo)

	reqCtx, cancelReq := context.WithTimeout(ctx, opts.Connection.RequestTimeout)
	defer cancelReq()
	resp, err := link.Request(reqCtx, def.Producer, def.Channel)
	if err != nil {
		return err
	}

	rec, err := turbo.Decode(resp)
	if err != nil {
		return fmt.Errorf("decode response %s: %w", turbo.FormatHex(resp), err)
	}
	return writeReading(os.Stdout, readFormat, rec)
}

// resolveField finds a field by name, switching battery fields to the
// secondary pack when asked
func resolveField(r *turbo.Registry, name string, secondary bool) (*turbo.FieldDefinition, error) {
	def, ok := r.LookupName(name)
	if !ok {
		return nil, fmt.Errorf("unknown field: %s", name)
	}
	if !secondary {
		return def, nil
	}
	if def.Producer != turbo.ProducerBattery {
		return nil, fmt.Errorf("--secondary only applies to battery fields, %s is a %s field",
			name, turbo.FormatProducer(def.Producer))
	}
	second, ok := r.Lookup(turbo.ProducerBattery2, def.Channel)
	if !ok {
		return nil, fmt.Errorf("no secondary battery field for %s", name)
	}
	return second, nil
}

// writeFieldList prints "name (sender=0x.. channel=0x..) [unit]" lines
func writeFieldList(w io.Writer, r *turbo.Registry) {
	fmt.Fprintf(w, "Available fields:\n\n")
	seen := make(map[string]bool)
	for _, def := range r.Fields() {
		if seen[def.Name] {
			continue
		}
		seen[def.Name] = true
		fmt.Fprintf(w, "  %-28s  (sender=0x%02x channel=0x%02x)  [%s]\n",
			def.Name, uint8(def.Producer), def.Channel, def.Unit)
	}
}

type reading struct {
	Field string `json:"field" yaml:"field"`
	Value any    `json:"value" yaml:"value"`
	Raw   uint32 `json:"raw" yaml:"raw"`
	Unit  string `json:"unit" yaml:"unit"`
}

func writeReading(w io.Writer, format string, rec *turbo.Record) error {
	if format == formatTable {
		if !rec.Known() {
			fmt.Fprintf(w, "0x%02X/0x%02X = %d (unregistered)\n", uint8(rec.Producer), rec.Channel, rec.Raw)
			return nil
		}
		fmt.Fprintf(w, "%s = %s %s\n", rec.Name(), turbo.FormatValue(rec.Value), rec.Unit())
		return nil
	}

	value := rec.Value
	switch v := value.(type) {
	case turbo.AssistLevel:
		value = v.String()
	case turbo.PeakAssist:
		value = v.Array()
	}
	return writeStructured(w, format, reading{Field: rec.Name(), Value: value, Raw: rec.Raw, Unit: rec.Unit()})
}
