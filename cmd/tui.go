// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-logr/logr"

	"github.com/Thermoquad/turbostat/internal/transport"
	"github.com/Thermoquad/turbostat/pkg/telemetry"
	"github.com/Thermoquad/turbostat/pkg/turbo"
)

// Error log entry
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for warnings
}

// TUI model
type model struct {
	connInfo      string
	statsInterval int
	showAll       bool
	stats         *turbo.Statistics
	linkStats     func() transport.LinkStats
	bridge        transport.LinkStats
	snapshot      *telemetry.Snapshot
	lastUpdate    time.Time
	errorLog      []errorLogEntry
	maxLogEntries int
	synchronized  bool
	skippedFrames uint64
	width         int
	height        int
	quitting      bool
}

// Messages
type tickMsg time.Time
type notifyMsg struct {
	raw       []byte
	record    *turbo.Record
	decodeErr error
	anomalies []turbo.ValidationError
}
type syncMsg struct {
	skippedFrames uint64
}
type linkClosedMsg struct{}

// formatUptime formats uptime in milliseconds to human-friendly string
func formatUptime(ms uint64) string {
	if ms == 0 {
		return "0 seconds"
	}

	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	plural := func(n uint64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func initialModel(connInfo string, statsInterval int, showAll bool, linkStats func() transport.LinkStats) model {
	return model{
		connInfo:      connInfo,
		statsInterval: statsInterval,
		showAll:       showAll,
		stats:         turbo.NewStatistics(),
		linkStats:     linkStats,
		snapshot:      telemetry.NewSnapshot(logr.Discard()),
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.stats.CalculateRates()
		if m.linkStats != nil {
			m.bridge = m.linkStats()
		}
		return m, tickCmd()

	case syncMsg:
		m.synchronized = true
		m.skippedFrames = msg.skippedFrames
		if msg.skippedFrames > 0 {
			m.addLogEntry(fmt.Sprintf("Synchronized after skipping %d bad frames", msg.skippedFrames), false)
		} else {
			m.addLogEntry("Synchronized", false)
		}

	case linkClosedMsg:
		m.addLogEntry("Connection closed", true)

	case notifyMsg:
		m.handleNotify(msg)
	}

	return m, nil
}

func (m *model) handleNotify(msg notifyMsg) {
	if msg.decodeErr != nil {
		m.stats.Update(nil, msg.decodeErr, nil)
		m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v (%s)", msg.decodeErr, turbo.FormatHex(msg.raw)), true)
		return
	}

	rec := msg.record
	m.stats.Update(rec, nil, msg.anomalies)
	if m.snapshot.UpdateFromRecord(rec) {
		m.lastUpdate = rec.Timestamp
	}

	switch {
	case len(msg.anomalies) > 0:
		for _, a := range msg.anomalies {
			m.addLogEntry(a.Message, a.Type != turbo.AnomalyUnknownField)
		}
	case m.showAll:
		m.addLogEntry(strings.TrimSuffix(turbo.FormatRecord(rec), "\n"), false)
	}
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	// Keep only last N entries
	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("TURBOSTAT - ERROR DETECTION"))
	s.WriteString("\n")
	mode := "Errors only"
	if m.showAll {
		mode = "All messages"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | Press 'q' to quit", m.connInfo, mode)))
	s.WriteString("\n\n")

	// Sync status
	if !m.synchronized {
		s.WriteString(warningStyle.Render("⏳ Waiting for first notification..."))
	} else {
		s.WriteString(statsValueStyle.Render("✓ Synchronized"))
		if m.skippedFrames > 0 {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" (skipped %d bad frames)", m.skippedFrames)))
		}
	}
	s.WriteString("\n\n")

	s.WriteString(boxStyle.Render(m.renderStats(statsLabelStyle, statsValueStyle, errorStyle, warningStyle, headerStyle)))
	s.WriteString("\n\n")

	// Telemetry section (only shown once something was applied)
	if !m.lastUpdate.IsZero() {
		s.WriteString(statsLabelStyle.Render("Latest Telemetry:"))
		s.WriteString("\n")
		s.WriteString(boxStyle.Render(renderSnapshot(m.snapshot, statsLabelStyle, statsValueStyle)))
		s.WriteString("\n\n")
	}

	// Error log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 20
	if logHeight < 5 {
		logHeight = 5
	}
	s.WriteString(boxStyle.Width(m.width - 4).Render(renderEventLog(m.errorLog, logHeight, headerStyle, errorStyle, warningStyle)))

	return s.String()
}

func (m model) renderStats(label, value, errStyle, warn, header lipgloss.Style) string {
	st := m.stats
	errorsTotal := st.Errors() + m.bridge.CRCErrors + m.bridge.FramingErrors
	var validPercent, errorPercent float64
	if st.TotalMessages > 0 {
		validPercent = float64(st.ValidMessages) * 100.0 / float64(st.TotalMessages)
		errorPercent = float64(st.Errors()) * 100.0 / float64(st.TotalMessages)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s   %s %s   %s %s\n",
		label.Render("Total:"), value.Render(fmt.Sprintf("%d", st.TotalMessages)),
		label.Render("Valid:"), value.Render(fmt.Sprintf("%d (%.1f%%)", st.ValidMessages, validPercent)),
		label.Render("Errors:"), errStyle.Render(fmt.Sprintf("%d (%.1f%%)", errorsTotal, errorPercent)),
	)

	if m.bridge.CRCErrors > 0 || m.bridge.FramingErrors > 0 || m.bridge.Dropped > 0 {
		fmt.Fprintf(&b, "%s %s   %s %s   %s %s\n",
			label.Render("CRC Errors:"), errStyle.Render(fmt.Sprintf("%d", m.bridge.CRCErrors)),
			label.Render("Framing Errors:"), errStyle.Render(fmt.Sprintf("%d", m.bridge.FramingErrors)),
			label.Render("Dropped:"), warn.Render(fmt.Sprintf("%d", m.bridge.Dropped)),
		)
	}

	if st.MalformedMessages > 0 || st.InvalidEnums > 0 {
		fmt.Fprintf(&b, "%s %s (%s: %d)\n",
			label.Render("Malformed:"), errStyle.Render(fmt.Sprintf("%d", st.MalformedMessages)),
			header.Render("invalid enums"), st.InvalidEnums,
		)
	}

	if st.UnknownFields > 0 || st.UnknownProducers > 0 {
		fmt.Fprintf(&b, "%s %s (%s: %d)\n",
			label.Render("Unregistered:"), warn.Render(fmt.Sprintf("%d", st.UnknownFields+st.UnknownProducers)),
			header.Render("unknown producer"), st.UnknownProducers,
		)
	}

	if st.AnomalousValues > 0 {
		fmt.Fprintf(&b, "%s %s (%s: %d, %s: %d, %s: %d)\n",
			label.Render("Anomalous:"), warn.Render(fmt.Sprintf("%d", st.AnomalousValues)),
			header.Render("out of range"), st.OutOfRange,
			header.Render("invalid temp"), st.InvalidTemp,
			header.Render("high speed"), st.HighSpeed,
		)
	}

	rate := value
	if st.ErrorRate > 0 {
		rate = errStyle
	}
	fmt.Fprintf(&b, "%s %s   %s %s",
		label.Render("Message Rate:"), value.Render(fmt.Sprintf("%.1f msg/s", st.MessageRate)),
		label.Render("Error Rate:"), rate.Render(fmt.Sprintf("%.1f err/s", st.ErrorRate)),
	)
	return b.String()
}

// renderSnapshot shows the headline values of each section present
func renderSnapshot(snap *telemetry.Snapshot, label, value lipgloss.Style) string {
	var b strings.Builder
	line := func(name string, v any, unit string) {
		fmt.Fprintf(&b, "%s %s  ", label.Render(name), value.Render(strings.TrimSpace(turbo.FormatValue(v)+" "+unit)))
	}

	bat := snap.Battery
	if !bat.Empty() {
		if bat.ChargePct != nil {
			line("Charge:", *bat.ChargePct, "%")
		}
		if bat.VoltageV != nil {
			line("Voltage:", *bat.VoltageV, "V")
		}
		if bat.CurrentA != nil {
			line("Current:", *bat.CurrentA, "A")
		}
		if bat.TempC != nil {
			line("Temp:", *bat.TempC, "°C")
		}
		b.WriteString("\n")
	}

	mot := snap.Motor
	if !mot.Empty() {
		if mot.SpeedKmh != nil {
			line("Speed:", *mot.SpeedKmh, "km/h")
		}
		if mot.CadenceRPM != nil {
			line("Cadence:", *mot.CadenceRPM, "rpm")
		}
		if mot.RiderPowerW != nil {
			line("Rider:", *mot.RiderPowerW, "W")
		}
		if mot.MotorPowerW != nil {
			line("Motor:", *mot.MotorPowerW, "W")
		}
		if mot.AssistLevel != nil {
			line("Assist:", *mot.AssistLevel, "")
		}
		b.WriteString("\n")
	}

	if !snap.Battery2.Empty() && snap.Battery2.ChargePct != nil {
		line("Battery 2:", *snap.Battery2.ChargePct, "%")
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderEventLog(entries []errorLogEntry, height int, header, errStyle, warn lipgloss.Style) string {
	if len(entries) == 0 {
		return header.Render("  (no events yet)")
	}

	start := len(entries) - height
	if start < 0 {
		start = 0
	}
	var b strings.Builder
	for _, entry := range entries[start:] {
		timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
		if entry.isError {
			fmt.Fprintf(&b, "%s %s\n", header.Render(timestamp), errStyle.Render("✗ "+entry.message))
		} else {
			fmt.Fprintf(&b, "%s %s\n", header.Render(timestamp), warn.Render("ℹ "+entry.message))
		}
	}
	return b.String()
}
