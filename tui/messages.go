// ABOUTME: Bubble Tea message types used in the TUI message loop.
// ABOUTME: Each type carries the outcome of a session call made off the update loop.
package tui

import (
	"time"

	"github.com/2389-research/mammoscope/report"
)

// SelectedMsg reports the outcome of selecting a file.
type SelectedMsg struct {
	Path string
	Err  error
}

// SubmittedMsg reports the outcome of a submission.
type SubmittedMsg struct {
	Report *report.Report
	Err    error
}

// ExportedMsg reports where the CSV was written.
type ExportedMsg struct {
	Path string
	Err  error
}

// TickMsg is sent periodically to update the elapsed timer and spinner.
type TickMsg struct {
	Time time.Time
}
