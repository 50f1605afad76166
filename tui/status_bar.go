// ABOUTME: Implements a single-line status bar for the bottom of the TUI showing session progress.
// ABOUTME: Displays session state, selected file, request flags, and time spent on the current submission.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/mammoscope/client"
)

// StatusBarModel displays session status in a single line.
type StatusBarModel struct {
	target    string // server URL or "local"
	state     client.State
	fileName  string
	options   client.Options
	startTime time.Time
	lastRun   time.Duration
	width     int
}

// NewStatusBarModel creates a StatusBarModel for the given prediction target.
func NewStatusBarModel(target string) StatusBarModel {
	return StatusBarModel{target: target}
}

// Start records the submission start time.
func (m *StatusBarModel) Start() {
	m.startTime = time.Now()
}

// Stop freezes the elapsed time of the finished submission.
func (m *StatusBarModel) Stop() {
	m.lastRun = m.Elapsed()
	m.startTime = time.Time{}
}

// Sync copies the displayed fields from a session snapshot.
func (m *StatusBarModel) Sync(snap client.Snapshot) {
	m.state = snap.State
	m.fileName = snap.FileName
	m.options = snap.Options
}

// SetState overrides the displayed state until the next Sync.
func (m *StatusBarModel) SetState(s client.State) {
	m.state = s
}

// SetOptions updates the displayed request flags.
func (m *StatusBarModel) SetOptions(o client.Options) {
	m.options = o
}

// SetWidth sets the bar width for rendering.
func (m *StatusBarModel) SetWidth(w int) {
	m.width = w
}

// Elapsed returns the time since Start() was called, or zero if not started.
func (m StatusBarModel) Elapsed() time.Duration {
	if m.startTime.IsZero() {
		return 0
	}
	return time.Since(m.startTime)
}

// formatElapsed formats a duration as a human-readable string.
// Durations under a minute show as seconds (e.g. "12s").
// Durations of a minute or more show as minutes and seconds (e.g. "2m30s").
func formatElapsed(d time.Duration) string {
	d = d.Truncate(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) - minutes*60
	return fmt.Sprintf("%dm%ds", minutes, seconds)
}

// flags renders the request options, or "-" when none are set.
func (m StatusBarModel) flags() string {
	var f []string
	if m.options.Mock {
		f = append(f, "mock")
	}
	if m.options.Debug {
		f = append(f, "debug")
	}
	if len(f) == 0 {
		return "-"
	}
	return strings.Join(f, ",")
}

// View renders the status bar as a single styled line.
func (m StatusBarModel) View() string {
	file := m.fileName
	if file == "" {
		file = "none"
	}

	var timing string
	switch {
	case !m.startTime.IsZero():
		timing = "Elapsed: " + formatElapsed(m.Elapsed())
	case m.lastRun > 0:
		timing = "Last run: " + formatElapsed(m.lastRun)
	default:
		timing = "Elapsed: 0s"
	}

	content := fmt.Sprintf("%s | %s | File: %s | Flags: %s | %s",
		m.target, StyleForState(m.state).Render(m.state.String()), file, m.flags(), timing)

	style := StatusBarStyle.Width(m.width)

	return lipgloss.PlaceHorizontal(m.width, lipgloss.Left, style.Render(content))
}
