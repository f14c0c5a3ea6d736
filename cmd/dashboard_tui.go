// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/turbostat/internal/session"
	"github.com/Thermoquad/turbostat/pkg/telemetry"
	"github.com/Thermoquad/turbostat/pkg/turbo"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	pingIntervalSeconds  = 5 // Ping the bridge every N seconds
	dashboardPingTimeout = 2 * time.Second
)

// Focus states
const (
	focusAssistList = iota
	focusPercentInput
	focusButton
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// assistMode is one row of the assist list
type assistMode struct {
	level   turbo.AssistLevel
	percent *int64 // configured assist percentage, nil for OFF or unseen
}

// Implement list.Item interface
func (a assistMode) Title() string { return a.level.String() }
func (a assistMode) Description() string {
	if a.level == turbo.AssistOff {
		return "motor off"
	}
	if a.percent == nil {
		return "assist: ?"
	}
	return fmt.Sprintf("assist: %d%%", *a.percent)
}
func (a assistMode) FilterValue() string { return a.level.String() }

// dashboardModel is the Bubble Tea model for the dashboard TUI
type dashboardModel struct {
	bridge   dashboardBridge
	monitor  *telemetry.Monitor
	connInfo string

	// Telemetry
	snapshot   *telemetry.Snapshot
	stats      turbo.Statistics
	lastUpdate time.Time

	errorLog      []errorLogEntry
	maxLogEntries int

	// Control
	assistList   list.Model
	percentInput textinput.Model
	focusedField int

	// UI state
	width          int
	height         int
	streaming      bool
	quitting       bool
	connectionLost bool

	// Ping state
	lastPingTime    time.Time
	bridgeUptime    time.Duration
	bridgeRTT       time.Duration
	hasBridgeUptime bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type dashboardTickMsg time.Time

type dashboardBatchMsg struct {
	records  []*turbo.Record
	snapshot *telemetry.Snapshot
	stats    turbo.Statistics
}

type sessionStateMsg struct {
	from, to string
	info     string
}

type commandResultMsg struct {
	what    string
	command []byte
	err     error
}

type pingResultMsg struct {
	uptime time.Duration
	rtt    time.Duration
	err    error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialDashboardModel(bridge dashboardBridge, monitor *telemetry.Monitor) dashboardModel {
	ti := textinput.New()
	ti.Placeholder = "50"
	ti.CharLimit = 3
	ti.Width = 6

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	assistList := list.New(assistItems(nil), delegate, 24, 10)
	assistList.Title = "Assist"
	assistList.SetShowStatusBar(false)
	assistList.SetShowHelp(false)
	assistList.SetFilteringEnabled(false)

	return dashboardModel{
		bridge:        bridge,
		monitor:       monitor,
		connInfo:      "connecting...",
		snapshot:      &telemetry.Snapshot{},
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		assistList:    assistList,
		percentInput:  ti,
		focusedField:  focusAssistList,
		width:         80,
		height:        24,
	}
}

// assistItems builds the list rows from the configured percentages in
// settings
func assistItems(settings *telemetry.SettingsState) []list.Item {
	items := []list.Item{assistMode{level: turbo.AssistOff}}
	var pcts [3]*int64
	if settings != nil {
		pcts = [3]*int64{settings.AssistLev1Pct, settings.AssistLev2Pct, settings.AssistLev3Pct}
	}
	for i, level := range []turbo.AssistLevel{turbo.AssistEco, turbo.AssistTrail, turbo.AssistTurbo} {
		items = append(items, assistMode{level: level, percent: pcts[i]})
	}
	return items
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(dashboardTickCmd(), textinput.Blink)
}

func dashboardTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return dashboardTickMsg(t)
	})
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case dashboardTickMsg:
		m.stats = m.monitor.Statistics()
		cmds = append(cmds, dashboardTickCmd())
		if m.streaming && time.Since(m.lastPingTime) >= pingIntervalSeconds*time.Second {
			m.lastPingTime = time.Now()
			cmds = append(cmds, m.pingCmd())
		}

	case dashboardBatchMsg:
		m.stats = msg.stats
		m.snapshot = msg.snapshot
		m.lastUpdate = time.Now()
		for _, rec := range msg.records {
			m.processRecord(rec)
		}
		m.refreshAssistList()

	case sessionStateMsg:
		m.handleStateChange(msg)

	case commandResultMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("%s failed: %v", msg.what, msg.err), true)
		} else {
			m.addLogEntry(fmt.Sprintf("%s sent (%s)", msg.what, turbo.FormatHex(msg.command)), false)
		}

	case pingResultMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Bridge ping failed: %v", msg.err), true)
		} else {
			m.bridgeUptime = msg.uptime
			m.bridgeRTT = msg.rtt
			m.hasBridgeUptime = true
		}
	}

	var cmd tea.Cmd
	if m.focusedField == focusPercentInput {
		m.percentInput, cmd = m.percentInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m dashboardModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab":
		m.cycleFocus(1)
		return m, nil

	case "shift+tab":
		m.cycleFocus(-1)
		return m, nil

	case "enter":
		return m.handleEnter()

	case "up", "k", "down", "j":
		if m.focusedField == focusAssistList {
			var cmd tea.Cmd
			m.assistList, cmd = m.assistList.Update(msg)
			return m, cmd
		}
	}

	if m.focusedField == focusPercentInput {
		var cmd tea.Cmd
		m.percentInput, cmd = m.percentInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *dashboardModel) cycleFocus(delta int) {
	maxFocus := focusButton
	m.focusedField = (m.focusedField + delta + maxFocus + 1) % (maxFocus + 1)

	// OFF has no percentage to edit
	if m.selectedMode().level == turbo.AssistOff && m.focusedField != focusAssistList {
		m.focusedField = focusAssistList
	}

	if m.focusedField == focusPercentInput {
		m.percentInput.Focus()
	} else {
		m.percentInput.Blur()
	}
}

func (m dashboardModel) selectedMode() assistMode {
	if item, ok := m.assistList.SelectedItem().(assistMode); ok {
		return item
	}
	return assistMode{level: turbo.AssistOff}
}

func (m dashboardModel) handleEnter() (tea.Model, tea.Cmd) {
	if !m.streaming {
		m.addLogEntry("Cannot send command: bike not connected", true)
		return m, nil
	}

	selected := m.selectedMode()
	switch m.focusedField {
	case focusAssistList:
		cmd, err := turbo.SetAssistLevel(selected.level)
		if err != nil {
			m.addLogEntry(err.Error(), true)
			return m, nil
		}
		return m, m.writeCmd("Assist "+selected.level.String(), cmd)

	case focusPercentInput, focusButton:
		text := m.percentInput.Value()
		if text == "" {
			text = m.percentInput.Placeholder
		}
		pct, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil {
			m.addLogEntry(fmt.Sprintf("Invalid percentage %q", text), true)
			return m, nil
		}
		cmd, err := turbo.SetAssistPercent(int(selected.level)-1, pct)
		if err != nil {
			m.addLogEntry(err.Error(), true)
			return m, nil
		}
		return m, m.writeCmd(fmt.Sprintf("%s assist %d%%", selected.level, pct), cmd)
	}
	return m, nil
}

// writeCmd sends command off the UI goroutine
func (m dashboardModel) writeCmd(what string, command []byte) tea.Cmd {
	bridge := m.bridge
	return func() tea.Msg {
		return commandResultMsg{what: what, command: command, err: bridge.write(command)}
	}
}

func (m dashboardModel) pingCmd() tea.Cmd {
	bridge := m.bridge
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), dashboardPingTimeout)
		defer cancel()
		uptime, rtt, err := bridge.ping(ctx)
		return pingResultMsg{uptime: uptime, rtt: rtt, err: err}
	}
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

func (m *dashboardModel) processRecord(rec *turbo.Record) {
	if !rec.Known() {
		m.addLogEntry(fmt.Sprintf("Unknown field %s channel 0x%02X: raw=%d",
			turbo.FormatProducer(rec.Producer), rec.Channel, rec.Raw), false)
		return
	}
	// Assist changes are worth logging; the rest is shown live
	if rec.Producer == turbo.ProducerMotor && rec.Channel == turbo.ChannelMotorAssistLevel {
		m.addLogEntry("Assist level is now "+turbo.FormatValue(rec.Value), false)
	}
}

func (m *dashboardModel) refreshAssistList() {
	index := m.assistList.Index()
	m.assistList.SetItems(assistItems(&m.snapshot.Settings))
	m.assistList.Select(index)
}

func (m *dashboardModel) handleStateChange(msg sessionStateMsg) {
	switch msg.to {
	case session.StateStreaming:
		m.streaming = true
		m.connInfo = msg.info
		if m.connectionLost {
			m.addLogEntry("Reconnected to "+msg.info, false)
		} else {
			m.addLogEntry("Connected to "+msg.info, false)
		}
		m.connectionLost = false
		// Ping straight away rather than waiting for the next interval
		m.lastPingTime = time.Time{}
	case session.StateReconnecting:
		m.streaming = false
		m.connectionLost = true
		m.hasBridgeUptime = false
		m.addLogEntry("Connection lost - reconnecting...", true)
	default:
		m.streaming = false
	}
}

func (m *dashboardModel) addLogEntry(message string, isError bool) {
	m.errorLog = append(m.errorLog, errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m dashboardModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
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

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	buttonStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12")).
		Padding(0, 2)

	focusedButtonStyle := buttonStyle.
		Background(lipgloss.Color("10"))

	// Header
	s.WriteString(titleStyle.Render("TURBOSTAT DASHBOARD"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit Tab=switch Enter=apply", connStatus)))
	s.WriteString("\n")
	if m.hasBridgeUptime {
		fmt.Fprintf(&s, " %s %s  %s %s",
			labelStyle.Render("Bridge Uptime:"), valueStyle.Render(formatUptime(uint64(m.bridgeUptime.Milliseconds()))),
			labelStyle.Render("RTT:"), valueStyle.Render(m.bridgeRTT.Round(time.Millisecond).String()))
	}
	s.WriteString("\n\n")

	// Assist list | control panel
	leftWidth := 24
	rightWidth := m.width - leftWidth - 6
	listStyle := boxStyle.Width(leftWidth)
	if m.focusedField == focusAssistList {
		listStyle = focusedBoxStyle.Width(leftWidth)
	}
	controlPanel := boxStyle.Width(rightWidth).Render(
		m.renderControlPanel(labelStyle, valueStyle, headerStyle, buttonStyle, focusedButtonStyle))
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, listStyle.Render(m.assistList.View()), " ", controlPanel))
	s.WriteString("\n\n")

	s.WriteString(m.renderStatisticsBar(labelStyle, valueStyle, errorStyle, boxStyle))
	s.WriteString("\n\n")

	s.WriteString(labelStyle.Render("EVENTS"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Width(m.width - 4).Render(renderEventLog(m.errorLog, 8, headerStyle, errorStyle, warningStyle)))

	return s.String()
}

func (m dashboardModel) renderControlPanel(label, value, header, button, focusedButton lipgloss.Style) string {
	var s strings.Builder

	current := "unknown"
	if m.snapshot.Motor.AssistLevel != nil {
		current = m.snapshot.Motor.AssistLevel.String()
	}
	fmt.Fprintf(&s, "%s %s\n", label.Render("Current Assist:"), value.Render(current))
	if m.snapshot.Settings.AccelerationPct != nil {
		fmt.Fprintf(&s, "%s %s\n", label.Render("Acceleration:"),
			value.Render(turbo.FormatValue(*m.snapshot.Settings.AccelerationPct)+" %"))
	}
	s.WriteString("\n")

	selected := m.selectedMode()
	if selected.level == turbo.AssistOff {
		s.WriteString(header.Render("Enter on the list switches assist level"))
	} else {
		s.WriteString(label.Render(selected.level.String() + " assist %: "))
		if m.focusedField == focusPercentInput {
			s.WriteString(m.percentInput.View())
		} else {
			val := m.percentInput.Value()
			if val == "" {
				val = m.percentInput.Placeholder
			}
			fmt.Fprintf(&s, "[%s]", val)
		}
		s.WriteString("\n\n")

		btnText := "[ Apply % ]"
		if m.focusedField == focusButton {
			s.WriteString(focusedButton.Render(btnText))
		} else {
			s.WriteString(button.Render(btnText))
		}
	}

	s.WriteString("\n\n")
	if m.lastUpdate.IsZero() {
		s.WriteString(header.Render("Waiting for telemetry..."))
	} else {
		s.WriteString(renderSnapshot(m.snapshot, label, value))
	}
	return s.String()
}

func (m dashboardModel) renderStatisticsBar(label, value, errStyle, box lipgloss.Style) string {
	st := m.stats
	var validPercent, errorPercent float64
	if st.TotalMessages > 0 {
		validPercent = float64(st.ValidMessages) * 100.0 / float64(st.TotalMessages)
		errorPercent = float64(st.Errors()) * 100.0 / float64(st.TotalMessages)
	}

	errText := value.Render("0.0%")
	if errorPercent > 0 {
		errText = errStyle.Render(fmt.Sprintf("%.1f%%", errorPercent))
	}
	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s",
		label.Render("Total:"), value.Render(fmt.Sprintf("%d", st.TotalMessages)),
		label.Render("Valid:"), value.Render(fmt.Sprintf("%.1f%%", validPercent)),
		label.Render("Errors:"), errText,
		label.Render("Rate:"), value.Render(fmt.Sprintf("%.1f msg/s", st.MessageRate)),
	)
	return box.Width(m.width - 4).Render(content)
}
