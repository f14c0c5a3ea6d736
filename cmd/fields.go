// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/turbostat/pkg/turbo"
)

var fieldsWritable bool

var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "Show the field table",
	Long: `Show every registered (producer, channel) pair with its name, unit,
payload width and whether it can be written with 'turbostat set'.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		writeFieldTable(os.Stdout, turbo.DefaultRegistry(), fieldsWritable)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fieldsCmd)
	fieldsCmd.Flags().BoolVarP(&fieldsWritable, "writable", "w", false, "Only list writable fields")
}

func writeFieldTable(w io.Writer, r *turbo.Registry, writableOnly bool) {
	table := uitable.New()
	table.MaxColWidth = 40
	table.AddRow("PRODUCER", "CHANNEL", "NAME", "UNIT", "WIDTH", "WRITABLE")

	for _, def := range r.Fields() {
		if writableOnly && !def.Writable() {
			continue
		}
		writable := ""
		if def.Writable() {
			writable = "yes"
		}
		table.AddRow(
			fmt.Sprintf("%s (0x%02X)", turbo.FormatProducer(def.Producer), uint8(def.Producer)),
			fmt.Sprintf("0x%02X", def.Channel),
			def.Name,
			def.Unit,
			def.Width,
			writable,
		)
	}
	fmt.Fprintln(w, table)
}
