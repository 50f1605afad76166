// ABOUTME: Bubble Tea sub-model showing the selected image as a shaded character preview.
// ABOUTME: The preview is redrawn to the panel size from the already scaled image held by the session.
package tui

import (
	"fmt"
	"strings"

	"github.com/2389-research/mammoscope/preview"
)

// PreviewPanelModel displays the selected file.
type PreviewPanelModel struct {
	preview *preview.Preview
	width   int
	height  int
}

// NewPreviewPanelModel creates an empty preview panel.
func NewPreviewPanelModel() PreviewPanelModel {
	return PreviewPanelModel{}
}

// SetPreview replaces the displayed image; nil clears it.
func (m *PreviewPanelModel) SetPreview(p *preview.Preview) {
	m.preview = p
}

// SetSize sets the available dimensions.
func (m *PreviewPanelModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// View renders the preview panel.
func (m PreviewPanelModel) View() string {
	title := TitleStyle.Render("PREVIEW")

	var content string
	if m.preview == nil {
		content = title + "\n\n" + IdleStyle.Render("Press o to select an image")
	} else {
		w, h := m.preview.Size()
		caption := ValueStyle.Render(fmt.Sprintf("%s %s %dx%d", m.preview.Name, m.preview.Format, w, h))
		// Border (2), title and caption (2).
		cols, rows := max(1, m.width-4), max(1, m.height-4)
		content = title + "\n" + caption + "\n" + strings.Join(preview.Shade(m.preview.Scaled, cols, rows), "\n")
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
