// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package turbo

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatRecord formats a record into a human-readable line
func FormatRecord(r *Record) string {
	timestamp := r.Timestamp.Format("15:04:05.000")
	producer := FormatProducer(r.Producer)

	if !r.Known() {
		return fmt.Sprintf("[%s] %s (0x%02X) ch=0x%02X raw=%d (unregistered)\n",
			timestamp, producer, uint8(r.Producer), r.Channel, r.Raw)
	}

	value := FormatValue(r.Value)
	if unit := r.Unit(); unit != "" {
		value += " " + unit
	}
	return fmt.Sprintf("[%s] %s (0x%02X) %s = %s (raw=%d)\n",
		timestamp, producer, uint8(r.Producer), r.Name(), value, r.Raw)
}

// FormatProducer returns the human-readable name for a producer
func FormatProducer(p Producer) string {
	switch p {
	case ProducerBattery:
		return "BATTERY"
	case ProducerMotor:
		return "MOTOR"
	case ProducerSettings:
		return "SETTINGS"
	case ProducerUnknown03:
		return "UNKNOWN_03"
	case ProducerBattery2:
		return "BATTERY_2"
	default:
		return "UNKNOWN"
	}
}

// FormatValue formats a decoded value for display
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "-"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(val, 10)
	case AssistLevel:
		return val.String()
	case PeakAssist:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// FormatHex formats a buffer as space-separated hex bytes
func FormatHex(buf []byte) string {
	var s strings.Builder
	for i, b := range buf {
		if i > 0 {
			s.WriteByte(' ')
		}
		fmt.Fprintf(&s, "%02X", b)
	}
	return s.String()
}
