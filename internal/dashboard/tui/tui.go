// Package tui renders dashboard frames in the terminal with bubbletea.
package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nerrad567/flora-core/internal/dashboard"
	"github.com/nerrad567/flora-core/internal/device"
)

// Palette.
const (
	colorForeground = "#F8F8F2"
	colorCyan       = "#8BE9FD"
	colorGreen      = "#50FA7B"
	colorOrange     = "#FFB86C"
	colorPurple     = "#BD93F9"
	colorRed        = "#FF5555"
	colorComment    = "#6272A4"
)

// logLines is how many recent log entries the view shows.
const logLines = 10

// waterCommand is sent to the selected device by the W key.
var waterCommand = json.RawMessage(`{"action":"water"}`)

type styles struct {
	title, header, muted, online, offline, warning, alert, app lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorPurple)).Bold(true),
		header:  lipgloss.NewStyle().Foreground(lipgloss.Color(colorCyan)).Bold(true),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorComment)),
		online:  lipgloss.NewStyle().Foreground(lipgloss.Color(colorGreen)),
		offline: lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed)),
		warning: lipgloss.NewStyle().Foreground(lipgloss.Color(colorOrange)),
		alert:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed)).Bold(true),
		app: lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(colorCyan)).
			Foreground(lipgloss.Color(colorForeground)),
	}
}

// Controls are the session actions bound to keys. Refresh, Wake and
// ClearLog must not block; SendCommand runs off the UI loop.
type Controls interface {
	Refresh()
	Wake()
	ClearLog()
	SendCommand(ctx context.Context, deviceID string, command json.RawMessage) (string, error)
}

// FrameMsg delivers a new frame to the model.
type FrameMsg dashboard.Frame

// CommandResultMsg reports the outcome of a command sent from the keyboard.
type CommandResultMsg struct {
	DeviceID  string
	CommandID string
	Err       error
}

// Model is the bubbletea model for the dashboard.
type Model struct {
	controls Controls
	frame    dashboard.Frame
	ready    bool
	cursor   int
	status   string
	failed   bool
	styles   styles
}

// New creates a model bound to controls.
func New(controls Controls) *Model {
	return &Model{controls: controls, styles: newStyles()}
}

func (*Model) Init() tea.Cmd {
	return nil
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case FrameMsg:
		m.frame = dashboard.Frame(msg)
		m.ready = true
		m.clampCursor()
	case CommandResultMsg:
		if msg.Err != nil {
			m.status = fmt.Sprintf("command to %s failed: %v", msg.DeviceID, msg.Err)
			m.failed = true
		} else {
			m.status = fmt.Sprintf("command %s sent to %s", msg.CommandID, msg.DeviceID)
			m.failed = false
		}
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return m, tea.Quit
	case tea.KeyUp:
		m.moveCursor(-1)
	case tea.KeyDown:
		m.moveCursor(1)
	case tea.KeyRunes:
		switch string(msg.Runes) {
		case "q":
			return m, tea.Quit
		case "r":
			m.controls.Refresh()
		case "w":
			m.controls.Wake()
		case "c":
			m.controls.ClearLog()
		case "k":
			m.moveCursor(-1)
		case "j":
			m.moveCursor(1)
		case "W":
			return m, m.water()
		}
	}
	return m, nil
}

// water sends the water command to the selected device.
func (m *Model) water() tea.Cmd {
	if len(m.frame.Devices) == 0 {
		return nil
	}
	id := m.frame.Devices[m.cursor].ID
	m.status = "watering " + id + "..."
	m.failed = false

	controls := m.controls
	return func() tea.Msg {
		cmdID, err := controls.SendCommand(context.Background(), id, waterCommand)
		return CommandResultMsg{DeviceID: id, CommandID: cmdID, Err: err}
	}
}

func (m *Model) moveCursor(delta int) {
	m.cursor += delta
	m.clampCursor()
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.frame.Devices) {
		m.cursor = len(m.frame.Devices) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) View() string {
	if !m.ready {
		return m.styles.muted.Render("Connecting to Flora Core...") + "\n"
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(m.renderStats())
	b.WriteString("\n\n")
	b.WriteString(m.renderDevices())
	if alerts := m.renderAlerts(); alerts != "" {
		b.WriteString("\n\n")
		b.WriteString(alerts)
	}
	b.WriteString("\n\n")
	b.WriteString(m.renderLog())
	if m.status != "" {
		style := m.styles.online
		if m.failed {
			style = m.styles.alert
		}
		b.WriteString("\n\n")
		b.WriteString(style.Render(m.status))
	}
	b.WriteString("\n\n")
	b.WriteString(m.styles.muted.Render("↑/↓ select • W water • r refresh • w reconnect • c clear log • q quit"))

	return m.styles.app.Render(b.String()) + "\n"
}

func (m *Model) renderHeader() string {
	status := m.styles.offline.Render("● Offline")
	if m.frame.Online {
		status = m.styles.online.Render("● Online")
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		m.styles.title.Render("Flora Dashboard"),
		"  ",
		status,
		"  ",
		m.styles.muted.Render(string(m.frame.State)),
	)
}

func (m *Model) renderStats() string {
	st := m.frame.Stats
	line := fmt.Sprintf("Devices: %d  Active: %d", st.Total, st.Active)
	if avg := st.Averages; avg != nil {
		line += fmt.Sprintf("  Avg T: %.1f°C  H: %.1f%%  S: %.1f%%  L: %.0f lux",
			avg.Temperature, avg.Humidity, avg.SoilMoisture, avg.LightLevel)
	} else {
		line += "  Avg: --"
	}
	return line
}

func (m *Model) renderDevices() string {
	if len(m.frame.Devices) == 0 {
		return m.styles.muted.Render("No devices yet.")
	}

	lines := []string{m.styles.header.Render(fmt.Sprintf("  %-20s %-14s %-8s %7s %7s %7s %8s  %s",
		"NAME", "LOCATION", "STATUS", "TEMP", "HUM", "SOIL", "LIGHT", "LAST SEEN"))}
	for i, d := range m.frame.Devices {
		marker := "  "
		if i == m.cursor {
			marker = "› "
		}
		status := m.styles.online.Render(fmt.Sprintf("%-8s", "active"))
		if !d.IsActive {
			status = m.styles.offline.Render(fmt.Sprintf("%-8s", "inactive"))
		}
		lines = append(lines, fmt.Sprintf("%s%-20s %-14s %s %7.1f %7.1f %7.1f %8.0f  %s",
			marker, truncate(d.Name, 20), truncate(d.Location, 14), status,
			d.Sensors.Temperature, d.Sensors.Humidity, d.Sensors.SoilMoisture, d.Sensors.LightLevel,
			lastSeen(d, m.frame.At)))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderAlerts() string {
	if len(m.frame.Alerts) == 0 {
		return ""
	}
	lines := []string{m.styles.header.Render("Alerts")}
	for _, a := range m.frame.Alerts {
		style := m.styles.warning
		if a.Severity == dashboard.SeverityError {
			style = m.styles.alert
		}
		lines = append(lines, style.Render("! "+a.Message))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderLog() string {
	lines := []string{m.styles.header.Render("Recent readings")}
	if len(m.frame.Log) == 0 {
		lines = append(lines, m.styles.muted.Render("Log is empty."))
		return strings.Join(lines, "\n")
	}
	for i, e := range m.frame.Log {
		if i == logLines {
			break
		}
		lines = append(lines, fmt.Sprintf("%s %s %s",
			m.styles.muted.Render(e.Timestamp.Format("15:04:05")),
			truncate(e.DeviceName, 20),
			e.Data))
	}
	return strings.Join(lines, "\n")
}

func lastSeen(d device.Record, now time.Time) string {
	if d.LastSeen == nil {
		return "never"
	}
	age := now.Sub(*d.LastSeen).Round(time.Second)
	if age < time.Second {
		return "just now"
	}
	return age.String() + " ago"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// ProgramRenderer forwards session frames to a running program.
type ProgramRenderer struct {
	Program *tea.Program
}

// Render sends f to the program. It returns immediately once the program
// has exited.
func (r ProgramRenderer) Render(f dashboard.Frame) {
	r.Program.Send(FrameMsg(f))
}
