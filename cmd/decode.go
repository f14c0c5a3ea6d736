// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/turbostat/pkg/bridge"
	"github.com/Thermoquad/turbostat/pkg/turbo"
)

var (
	decodeFormat string
	decodeFrames bool
)

var decodeCmd = &cobra.Command{
	Use:   "decode <hex>...",
	Short: "Decode messages given as hex, offline",
	Long: `Decode Turbo messages from hex without a connection.

Each argument is one message; bytes may be separated by spaces, colons or
dashes. With --frames the arguments are joined and decoded as a stream of
bridge frames instead.

Examples:
  turbostat decode 000c57 "01 02 fd 00"
  turbostat decode --frames 7e030100 0c57...`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().StringVarP(&decodeFormat, "format", "f", formatTable, "Output format: table, json or yaml")
	decodeCmd.Flags().BoolVar(&decodeFrames, "frames", false, "Input is bridge-framed")
}

func runDecode(cmd *cobra.Command, args []string) error {
	if err := validateFormat(decodeFormat); err != nil {
		return err
	}

	var messages [][]byte
	if decodeFrames {
		data, err := parseHex(strings.Join(args, ""))
		if err != nil {
			return err
		}
		frames, errs := bridge.NewDecoder().Decode(data)
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "frame error: %v\n", err)
		}
		for _, f := range frames {
			if f.Kind() != bridge.KindNotify && f.Kind() != bridge.KindReadResponse {
				fmt.Printf("%s\n", f)
				continue
			}
			messages = append(messages, f.Payload())
		}
	} else {
		for _, arg := range args {
			buf, err := parseHex(arg)
			if err != nil {
				return err
			}
			messages = append(messages, buf)
		}
	}

	failed := 0
	for _, buf := range messages {
		if err := decodeOne(os.Stdout, decodeFormat, buf); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", turbo.FormatHex(buf), err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d messages failed to decode", failed, len(messages))
	}
	return nil
}

func decodeOne(w io.Writer, format string, buf []byte) error {
	rec, err := turbo.Decode(buf)
	if err != nil {
		return err
	}
	if format == formatTable {
		fmt.Fprint(w, turbo.FormatRecord(rec))
		return nil
	}
	return writeReading(w, format, rec)
}

// parseHex accepts "0c57", "0C 57", "0c:57" and a leading 0x
func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	s = strings.NewReplacer(" ", "", ":", "", "-", "", "\t", "").Replace(s)
	buf, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	return buf, nil
}
