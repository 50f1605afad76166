// ABOUTME: Bubble Tea sub-model for the prediction result: banner, charts, tissue, explanation, and feature table.
// ABOUTME: Charts are drawn from whatever the terminal backend currently holds, so the panel never outlives a dispose.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/mammoscope/report"
)

// maxFeatureRows bounds the feature table in the panel.
const maxFeatureRows = 6

// ResultsPanelModel displays the current report.
type ResultsPanelModel struct {
	report  *report.Report
	backend *TerminalBackend
	width   int
	height  int
}

// NewResultsPanelModel creates a panel drawing charts from backend.
func NewResultsPanelModel(backend *TerminalBackend) ResultsPanelModel {
	return ResultsPanelModel{backend: backend}
}

// SetReport replaces the displayed report; nil clears the panel.
func (m *ResultsPanelModel) SetReport(rep *report.Report) {
	m.report = rep
}

// SetSize sets the available dimensions.
func (m *ResultsPanelModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// View renders the results panel as a string.
func (m ResultsPanelModel) View() string {
	title := TitleStyle.Render("RESULT")

	var content string
	if m.report == nil {
		content = title + "\n\n" + ValueStyle.Render("No result yet")
	} else {
		content = title + "\n" + m.body()
	}

	style := BorderStyle
	if m.width > 0 {
		style = style.Width(max(1, m.width-2))
	}
	if m.height > 0 {
		style = style.Height(max(1, m.height-2)).MaxHeight(m.height)
	}
	return style.Render(content)
}

func (m ResultsPanelModel) body() string {
	rep := m.report
	res := rep.Result
	inner := max(20, m.width-6)

	var lines []string
	banner := fmt.Sprintf("%s (%s)", rep.Banner.Class, report.Percent(rep.Banner.Confidence))
	lines = append(lines, StyleForTone(rep.Banner.Tone).Render(banner), "")

	if res.AbnormalityType != nil {
		lines = append(lines, row("Abnormality:", *res.AbnormalityType))
	}
	if t := res.BackgroundTissue; t != nil {
		lines = append(lines, row("Tissue:", fmt.Sprintf("%s (%s)", t.Text, t.Code)))
		if t.Explain != "" {
			lines = append(lines, row("", t.Explain))
		}
	}
	if e := res.Explanation; e != nil {
		for _, l := range e.Class {
			lines = append(lines, row("Why:", l))
		}
		for _, l := range e.Abnormality {
			lines = append(lines, row("Finding:", l))
		}
	}

	for _, spec := range m.backend.Charts() {
		lines = append(lines, "", RenderChart(spec, inner))
	}

	if len(rep.Features) > 0 {
		lines = append(lines, "", TitleStyle.Render("Top features"))
		for i, f := range rep.Features {
			if i == maxFeatureRows {
				lines = append(lines, IdleStyle.Render(fmt.Sprintf("… %d more", len(rep.Features)-i)))
				break
			}
			lines = append(lines, fmt.Sprintf("%2d. %s %s", f.Rank, padRight(f.Name, 20), f.Percent))
		}
	}
	return lipgloss.NewStyle().MaxWidth(inner).Render(strings.Join(lines, "\n"))
}

// row renders a label-value pair using the standard label and value styles.
func row(label, value string) string {
	return LabelStyle.Render(label) + ValueStyle.Render(value)
}
