// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/turbostat/pkg/telemetry"
	"github.com/Thermoquad/turbostat/pkg/turbo"
)

// Output formats for telemetry, read and decode
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func validateFormat(format string) error {
	switch format {
	case formatTable, formatJSON, formatYAML:
		return nil
	}
	return fmt.Errorf("unknown format %q (use table, json or yaml)", format)
}

// sectionOrder is the print order of snapshot sections
var sectionOrder = []string{"battery", "battery2", "motor", "settings"}

// writeRecordLine prints one decoded field as "name = value unit"
func writeRecordLine(w io.Writer, rec *turbo.Record) {
	fmt.Fprintf(w, "%-28s = %10s %s\n", rec.Name(), turbo.FormatValue(rec.Value), rec.Unit())
}

// writeStructured encodes v as one JSON line or a YAML document
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
}

// writeSummary prints the final state of a session
func writeSummary(w io.Writer, format string, summary *telemetry.Summary) error {
	view := summary.ToMap()

	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(view, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case formatYAML:
		return writeStructured(w, format, view)
	}

	for _, name := range sectionOrder {
		section, ok := view[name].(map[string]any)
		if !ok || len(section) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n  %s:\n", name)
		keys := make([]string, 0, len(section))
		for k := range section {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "    %-28s = %s\n", k, formatSummaryValue(section[k]))
		}
	}
	fmt.Fprintf(w, "  message_count: %d\n", summary.MessageCount)
	if summary.UnknownCount > 0 {
		fmt.Fprintf(w, "  unknown_count: %d\n", summary.UnknownCount)
	}
	return nil
}

func formatSummaryValue(v any) string {
	if ints, ok := v.([]int); ok {
		parts := make([]string, len(ints))
		for i, n := range ints {
			parts[i] = fmt.Sprint(n)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return turbo.FormatValue(v)
}
