// ABOUTME: Defines lipgloss style constants for the TUI panels, session states, banner tones, and log formatting.
// ABOUTME: Provides StyleForState and StyleForTone to map session and report values to display styles.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/mammoscope/client"
	"github.com/2389-research/mammoscope/report"
)

var (
	// Panel borders
	BorderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62"))

	// Title styling
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))

	// Session state colors
	IdleStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	SelectedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	SubmittingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	DisplayingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	FailedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	// Banner tones
	WarningBannerStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("231")).
				Background(lipgloss.Color("160")).
				Padding(0, 1)
	SuccessBannerStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("231")).
				Background(lipgloss.Color("28")).
				Padding(0, 1)

	// Chart bars
	BarStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	BarAltStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	ChartLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))

	// Log entry colors
	LogTimestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	LogInfoStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	LogErrorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	LogSuccessStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))

	// Status bar
	StatusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	// Result panel labels
	LabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Width(14)
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	// Path input and maximized chart
	InputStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("214")).
			Padding(0, 1)
	OverlayStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("214")).
			Padding(1, 2)
)

// StyleForState returns the display style for a session state.
func StyleForState(s client.State) lipgloss.Style {
	switch s {
	case client.Idle:
		return IdleStyle
	case client.FileSelected:
		return SelectedStyle
	case client.Submitting:
		return SubmittingStyle
	case client.Displaying:
		return DisplayingStyle
	case client.Failed:
		return FailedStyle
	default:
		return IdleStyle
	}
}

// StyleForTone returns the banner style for a report tone.
func StyleForTone(t report.Tone) lipgloss.Style {
	if t == report.ToneWarning {
		return WarningBannerStyle
	}
	return SuccessBannerStyle
}
