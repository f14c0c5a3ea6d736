// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"
)

var fieldUnits = map[string]string{
	"capacity_wh":            "Wh",
	"remaining_wh":           "Wh",
	"health_pct":             "%",
	"temp_c":                 "°C",
	"charge_cycles":          "cycles",
	"voltage_v":              "V",
	"current_a":              "A",
	"charge_pct":             "%",
	"rider_power_w":          "W",
	"cadence_rpm":            "RPM",
	"speed_kmh":              "km/h",
	"odometer_km":            "km",
	"motor_temp_c":           "°C",
	"motor_power_w":          "W",
	"shuttle":                "",
	"wheel_circumference_mm": "mm",
	"assist_lev1_pct":        "%",
	"assist_lev2_pct":        "%",
	"assist_lev3_pct":        "%",
	"fake_channel":           "",
	"acceleration_pct":       "%",
	"peak_assist_eco":        "%",
	"peak_assist_trail":      "%",
	"peak_assist_turbo":      "%",
}

// Collector exports a monitor's snapshot as Prometheus metrics.
// Values are read at scrape time, so absent fields produce no series.
type Collector struct {
	monitor *Monitor

	fieldValue   *prometheus.Desc
	assistLevel  *prometheus.Desc
	messages     *prometheus.Desc
	unknown      *prometheus.Desc
	decodeErrors *prometheus.Desc
}

// NewCollector creates a collector reading from m
func NewCollector(m *Monitor) *Collector {
	return &Collector{
		monitor: m,
		fieldValue: prometheus.NewDesc(
			"turbostat_field_value",
			"Latest value of a decoded telemetry field.",
			[]string{"producer", "field", "unit"}, nil,
		),
		assistLevel: prometheus.NewDesc(
			"turbostat_assist_level",
			"Current assist level (0=OFF, 1=ECO, 2=TRAIL, 3=TURBO).",
			nil, nil,
		),
		messages: prometheus.NewDesc(
			"turbostat_messages_total",
			"Total number of decoded messages.",
			nil, nil,
		),
		unknown: prometheus.NewDesc(
			"turbostat_unknown_messages_total",
			"Decoded messages that did not map onto a state field.",
			nil, nil,
		),
		decodeErrors: prometheus.NewDesc(
			"turbostat_decode_errors_total",
			"Buffers that failed to decode.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.fieldValue
	ch <- c.assistLevel
	ch <- c.messages
	ch <- c.unknown
	ch <- c.decodeErrors
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	summary := c.monitor.Summary()
	stats := c.monitor.Statistics()
	snap := summary.Snapshot

	c.collectFields(ch, "battery", snap.Battery.ToMap())
	c.collectFields(ch, "battery2", snap.Battery2.ToMap())
	c.collectFields(ch, "settings", snap.Settings.ToMap())

	motor := snap.Motor.ToMap()
	if p := snap.Motor.PeakAssist; p != nil {
		motor["peak_assist_eco"] = int64(p.Eco)
		motor["peak_assist_trail"] = int64(p.Trail)
		motor["peak_assist_turbo"] = int64(p.Turbo)
	}
	c.collectFields(ch, "motor", motor)

	if level := snap.Motor.AssistLevel; level != nil {
		ch <- prometheus.MustNewConstMetric(c.assistLevel, prometheus.GaugeValue, float64(*level))
	}

	ch <- prometheus.MustNewConstMetric(c.messages, prometheus.CounterValue, float64(summary.MessageCount))
	ch <- prometheus.MustNewConstMetric(c.unknown, prometheus.CounterValue, float64(summary.UnknownCount))
	ch <- prometheus.MustNewConstMetric(c.decodeErrors, prometheus.CounterValue,
		float64(stats.DecodeErrors+stats.MalformedMessages+stats.InvalidEnums))
}

func (c *Collector) collectFields(ch chan<- prometheus.Metric, producer string, fields map[string]any) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		var v float64
		switch n := fields[name].(type) {
		case int64:
			v = float64(n)
		case float64:
			v = n
		default:
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.fieldValue, prometheus.GaugeValue, v, producer, name, fieldUnits[name])
	}
}
