// ABOUTME: Implements a scrollable activity log panel using the bubbles viewport component.
// ABOUTME: Displays session events with color-coded formatting based on entry level.
package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
)

// LogLevel classifies an activity log entry.
type LogLevel int

const (
	LogInfo LogLevel = iota
	LogSuccess
	LogError
)

// LogEntry is one line of the activity log.
type LogEntry struct {
	Time  time.Time
	Level LogLevel
	Text  string
}

// LogPanelModel is a scrollable activity log.
type LogPanelModel struct {
	entries  []LogEntry
	max      int
	viewport viewport.Model
	focused  bool
	width    int
	height   int
}

// NewLogPanelModel creates a new log panel with a maximum number of entries.
// If maxEntries is <= 0, it defaults to 200.
func NewLogPanelModel(maxEntries int) LogPanelModel {
	if maxEntries <= 0 {
		maxEntries = 200
	}
	vp := viewport.New(80, 10)
	return LogPanelModel{
		entries:  make([]LogEntry, 0, maxEntries),
		max:      maxEntries,
		viewport: vp,
	}
}

// Append adds an entry to the log, evicting the oldest entry if at capacity.
func (m *LogPanelModel) Append(e LogEntry) {
	if len(m.entries) >= m.max {
		m.entries = m.entries[1:]
	}
	m.entries = append(m.entries, e)
	m.syncViewport()
}

// Add appends text at the given level, stamped now.
func (m *LogPanelModel) Add(level LogLevel, text string) {
	m.Append(LogEntry{Time: time.Now(), Level: level, Text: text})
}

// Len returns the number of entries in the log.
func (m LogPanelModel) Len() int {
	return len(m.entries)
}

// Last returns the newest entry, if any.
func (m LogPanelModel) Last() (LogEntry, bool) {
	if len(m.entries) == 0 {
		return LogEntry{}, false
	}
	return m.entries[len(m.entries)-1], true
}

// SetFocused sets whether this panel accepts scroll keys.
func (m *LogPanelModel) SetFocused(focused bool) {
	m.focused = focused
}

// IsFocused returns whether the panel is focused.
func (m LogPanelModel) IsFocused() bool {
	return m.focused
}

// SetSize sets the available dimensions and updates the viewport.
func (m *LogPanelModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	// Reserve space for the border (2 lines top/bottom) and title (1 line)
	m.viewport.Width = max(1, w-2)
	m.viewport.Height = max(1, h-3)
	m.syncViewport()
}

// Scroll moves the viewport by delta lines, clamped to the content.
func (m *LogPanelModel) Scroll(delta int) {
	m.viewport.SetYOffset(m.viewport.YOffset + delta)
}

// View renders the log panel.
func (m LogPanelModel) View() string {
	title := "ACTIVITY"
	if m.focused {
		title = "ACTIVITY (focused)"
	}

	var content string
	if len(m.entries) == 0 {
		content = "No activity yet"
	} else {
		content = m.viewport.View()
	}

	rendered := TitleStyle.Render(title) + "\n" + content

	return BorderStyle.
		Width(max(1, m.width-2)).
		Height(max(1, m.height-2)).
		Render(rendered)
}

// syncViewport rebuilds the viewport content from entries and scrolls to the bottom.
func (m *LogPanelModel) syncViewport() {
	if len(m.entries) == 0 {
		m.viewport.SetContent("")
		return
	}
	lines := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		lines = append(lines, formatEntry(e))
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
	m.viewport.GotoBottom()
}

// formatEntry formats a single entry as a log line.
func formatEntry(e LogEntry) string {
	ts := LogTimestampStyle.Render(e.Time.Format("15:04:05"))
	return ts + " " + levelStyle(e.Level).Render(e.Text)
}

func levelStyle(l LogLevel) lipgloss.Style {
	switch l {
	case LogSuccess:
		return LogSuccessStyle
	case LogError:
		return LogErrorStyle
	default:
		return LogInfoStyle
	}
}
