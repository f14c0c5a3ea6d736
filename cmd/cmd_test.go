// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/turbostat/pkg/telemetry"
	"github.com/Thermoquad/turbostat/pkg/turbo"
)

// ============================================================
// Input Parsing Tests
// ============================================================

func TestParseHex(t *testing.T) {
	tests := []struct {
		in      string
		want    []byte
		wantErr bool
	}{
		{"0c57", []byte{0x0C, 0x57}, false},
		{"0x0C57", []byte{0x0C, 0x57}, false},
		{"00 0C 57", []byte{0x00, 0x0C, 0x57}, false},
		{"01:05:02:00", []byte{0x01, 0x05, 0x02, 0x00}, false},
		{"02-07-a0-0f", []byte{0x02, 0x07, 0xA0, 0x0F}, false},
		{"0c5", nil, true},
		{"zz", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseHex(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got % X", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("expected % X, got % X", tt.want, got)
			}
		})
	}
}

func TestParseModeIndex(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"eco", 0}, {"ECO", 0}, {"1", 0},
		{"trail", 1}, {"2", 1},
		{"Turbo", 2}, {"3", 2},
	}
	for _, tt := range tests {
		got, err := parseModeIndex(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("parseModeIndex(%q) = %d, %v; want %d", tt.in, got, err, tt.want)
		}
	}

	for _, bad := range []string{"off", "0", "4", ""} {
		if _, err := parseModeIndex(bad); err == nil {
			t.Errorf("parseModeIndex(%q): expected error", bad)
		}
	}
}

func TestParsePercent(t *testing.T) {
	if v, err := parsePercent("45%"); err != nil || v != 45 {
		t.Errorf("parsePercent(45%%) = %d, %v", v, err)
	}
	if v, err := parsePercent("100"); err != nil || v != 100 {
		t.Errorf("parsePercent(100) = %d, %v", v, err)
	}
	if _, err := parsePercent("lots"); err == nil {
		t.Error("expected error for non-numeric percentage")
	}
}

func TestValidateFormat(t *testing.T) {
	for _, f := range []string{formatTable, formatJSON, formatYAML} {
		if err := validateFormat(f); err != nil {
			t.Errorf("%s: unexpected error %v", f, err)
		}
	}
	if err := validateFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

// ============================================================
// Field Resolution Tests
// ============================================================

func TestResolveField(t *testing.T) {
	r := turbo.DefaultRegistry()

	def, err := resolveField(r, "battery_charge_percent", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def.Producer != turbo.ProducerBattery || def.Channel != turbo.ChannelBatteryChargePercent {
		t.Errorf("unexpected primary def %+v", def)
	}

	def, err = resolveField(r, "battery_charge_percent", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def.Producer != turbo.ProducerBattery2 || def.Channel != turbo.ChannelBatteryChargePercent {
		t.Errorf("unexpected secondary def %+v", def)
	}

	if _, err := resolveField(r, "speed", true); err == nil {
		t.Error("--secondary on a motor field should fail")
	}
	if _, err := resolveField(r, "warp_drive", false); err == nil {
		t.Error("unknown field should fail")
	}
}

func TestWriteFieldList_Deduplicates(t *testing.T) {
	var buf bytes.Buffer
	writeFieldList(&buf, turbo.DefaultRegistry())
	out := buf.String()

	if n := strings.Count(out, "battery_voltage "); n != 1 {
		t.Errorf("battery_voltage listed %d times", n)
	}
	if !strings.Contains(out, "(sender=0x02 channel=0x07)") {
		t.Errorf("acceleration address missing:\n%s", out)
	}
}

// ============================================================
// Output Tests
// ============================================================

func TestWriteReading_JSON(t *testing.T) {
	rec, err := turbo.Decode([]byte{0x01, 0x05, 0x02, 0x00})
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := writeReading(&buf, formatJSON, rec); err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("bad JSON %q: %v", buf.String(), err)
	}
	if got["field"] != "assist_level" || got["value"] != "TRAIL" || got["raw"] != float64(2) {
		t.Errorf("unexpected reading %v", got)
	}
}

func TestWriteReading_TableUnregistered(t *testing.T) {
	rec, err := turbo.Decode([]byte{0x03, 0x27, 0x01})
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := writeReading(&buf, formatTable, rec); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "0x03/0x27 = 1 (unregistered)\n" {
		t.Errorf("unexpected output %q", got)
	}
}

func TestWriteSummary(t *testing.T) {
	m := telemetry.NewMonitor()
	m.Feed([]byte{0x00, 0x0C, 0x57})
	m.Feed([]byte{0x03, 0x27, 0x01})
	summary := m.Summary()

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writeSummary(&buf, formatTable, summary); err != nil {
			t.Fatal(err)
		}
		out := buf.String()
		for _, want := range []string{"battery:", "charge_pct", "message_count: 2", "unknown_count: 1"} {
			if !strings.Contains(out, want) {
				t.Errorf("missing %q in:\n%s", want, out)
			}
		}
		if strings.Contains(out, "motor:") {
			t.Error("empty motor section should not be printed")
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writeSummary(&buf, formatJSON, summary); err != nil {
			t.Fatal(err)
		}
		var got map[string]any
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("bad JSON: %v", err)
		}
		if got["message_count"] != float64(2) {
			t.Errorf("unexpected message_count %v", got["message_count"])
		}
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writeSummary(&buf, formatYAML, summary); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "message_count: 2") {
			t.Errorf("unexpected YAML:\n%s", buf.String())
		}
	})
}

func TestPrintRecords(t *testing.T) {
	records := func() <-chan *turbo.Record {
		m := telemetry.NewMonitor()
		m.Feed([]byte{0x00, 0x0C, 0x57})
		m.Feed([]byte{0x03, 0x27, 0x01})
		m.Close()
		return m.Stream()
	}

	t.Run("registered only", func(t *testing.T) {
		var buf bytes.Buffer
		var mu sync.Mutex
		printRecords(&buf, &mu, records(), false)
		out := buf.String()
		if strings.Count(out, "\n") != 1 || !strings.Contains(out, "battery_charge_percent") {
			t.Errorf("unexpected output:\n%s", out)
		}
	})

	t.Run("all", func(t *testing.T) {
		var buf bytes.Buffer
		var mu sync.Mutex
		printRecords(&buf, &mu, records(), true)
		if !strings.Contains(buf.String(), "0x03/0x27") {
			t.Errorf("unregistered channel missing:\n%s", buf.String())
		}
	})
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		ms   uint64
		want string
	}{
		{0, "0 seconds"},
		{1000, "1 second"},
		{61000, "1 minute and 1 second"},
		{3600000, "1 hour"},
		{90061000, "1 day, 1 hour, 1 minute, and 1 second"},
	}
	for _, tt := range tests {
		if got := formatUptime(tt.ms); got != tt.want {
			t.Errorf("formatUptime(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

// ============================================================
// Diagnostics Tests
// ============================================================

func TestWaitForMessage(t *testing.T) {
	t.Run("valid message", func(t *testing.T) {
		ch := make(chan []byte, 2)
		ch <- []byte{0x00, 0x02}
		ch <- []byte{0x00, 0x0C, 0x57}
		if code := waitForMessage(ch, nil, time.Second); code != exitOK {
			t.Errorf("expected exitOK, got %d", code)
		}
	})

	t.Run("closed", func(t *testing.T) {
		ch := make(chan []byte)
		close(ch)
		if code := waitForMessage(ch, nil, time.Second); code != exitConnection {
			t.Errorf("expected exitConnection, got %d", code)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		ch := make(chan []byte)
		if code := waitForMessage(ch, nil, 20*time.Millisecond); code != exitFailed {
			t.Errorf("expected exitFailed, got %d", code)
		}
	})
}

// ============================================================
// Dashboard Model Tests
// ============================================================

func TestAssistItems(t *testing.T) {
	items := assistItems(nil)
	if len(items) != 4 {
		t.Fatalf("expected 4 modes, got %d", len(items))
	}
	if d := items[1].(assistMode).Description(); d != "assist: ?" {
		t.Errorf("unexpected description %q", d)
	}

	pct := int64(35)
	items = assistItems(&telemetry.SettingsState{AssistLev2Pct: &pct})
	trail := items[2].(assistMode)
	if trail.level != turbo.AssistTrail || trail.Description() != "assist: 35%" {
		t.Errorf("unexpected trail row %+v %q", trail, trail.Description())
	}
}

func TestDashboard_EnterWhileDisconnected(t *testing.T) {
	m := initialDashboardModel(dashboardBridge{}, telemetry.NewMonitor())

	next, cmd := m.handleEnter()
	if cmd != nil {
		t.Error("no command should be sent while disconnected")
	}
	dm := next.(dashboardModel)
	if len(dm.errorLog) != 1 || !dm.errorLog[0].isError {
		t.Errorf("expected one error entry, got %+v", dm.errorLog)
	}
}

func TestDashboard_FocusSkipsPercentForOff(t *testing.T) {
	m := initialDashboardModel(dashboardBridge{}, telemetry.NewMonitor())

	// OFF is selected first
	m.cycleFocus(1)
	if m.focusedField != focusAssistList {
		t.Errorf("expected focus to stay on the list, got %d", m.focusedField)
	}

	m.assistList.Select(1)
	m.cycleFocus(1)
	if m.focusedField != focusPercentInput {
		t.Errorf("expected percent input focus, got %d", m.focusedField)
	}
	m.cycleFocus(1)
	if m.focusedField != focusButton {
		t.Errorf("expected button focus, got %d", m.focusedField)
	}
}

func TestDashboard_StateChanges(t *testing.T) {
	m := initialDashboardModel(dashboardBridge{}, telemetry.NewMonitor())

	m.handleStateChange(sessionStateMsg{from: "connecting", to: "streaming", info: "Serial: /dev/ttyUSB0"})
	if !m.streaming || m.connInfo != "Serial: /dev/ttyUSB0" {
		t.Errorf("unexpected model after streaming: streaming=%v info=%q", m.streaming, m.connInfo)
	}

	m.handleStateChange(sessionStateMsg{from: "streaming", to: "reconnecting"})
	if m.streaming || !m.connectionLost {
		t.Error("expected connection lost after reconnecting")
	}

	m.handleStateChange(sessionStateMsg{from: "reconnecting", to: "streaming", info: "Serial: /dev/ttyUSB0"})
	last := m.errorLog[len(m.errorLog)-1]
	if !strings.HasPrefix(last.message, "Reconnected") {
		t.Errorf("unexpected last entry %q", last.message)
	}
}
