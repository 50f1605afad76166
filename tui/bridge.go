// ABOUTME: Bridge connecting the client session to the Bubble Tea message loop.
// ABOUTME: Provides tea.Cmd factories for file selection, submission, CSV export, and ticks.
package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/2389-research/mammoscope/client"
	"github.com/2389-research/mammoscope/report"
)

// SelectCmd returns a tea.Cmd that reads and previews path on the session.
func SelectCmd(ctx context.Context, s *client.Session, path string) tea.Cmd {
	return func() tea.Msg {
		return SelectedMsg{Path: path, Err: s.Select(ctx, path)}
	}
}

// SubmitCmd returns a tea.Cmd that submits the selected file. The session
// rejects the call with client.ErrInFlight if one is already running.
func SubmitCmd(ctx context.Context, s *client.Session) tea.Cmd {
	return func() tea.Msg {
		rep, err := s.Submit(ctx)
		return SubmittedMsg{Report: rep, Err: err}
	}
}

// ExportCmd returns a tea.Cmd that writes the report CSV into dir under the
// timestamped download name.
func ExportCmd(rep *report.Report, dir string, now time.Time) tea.Cmd {
	return func() tea.Msg {
		if rep == nil {
			return ExportedMsg{Err: report.ErrNoResult}
		}
		path := filepath.Join(dir, report.Filename(now))
		if err := os.WriteFile(path, rep.CSV, 0o644); err != nil {
			return ExportedMsg{Err: fmt.Errorf("write csv: %w", err)}
		}
		return ExportedMsg{Path: path}
	}
}

// TickCmd returns a tea.Cmd that sends a TickMsg after the given interval.
func TickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return TickMsg{Time: t}
	})
}
