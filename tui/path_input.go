// ABOUTME: PathInputModel is the file chooser: a text input dialog that collects an image path.
// ABOUTME: Opened with "o", confirmed with Enter, dismissed with Esc.
package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// PathInputModel renders a text input for the image path.
type PathInputModel struct {
	textInput textinput.Model
	active    bool
}

// NewPathInputModel creates an inactive PathInputModel.
func NewPathInputModel() PathInputModel {
	ti := textinput.New()
	ti.Prompt = "image> "
	ti.Placeholder = "path/to/mammogram.png"
	ti.CharLimit = 4096
	return PathInputModel{textInput: ti}
}

// Open activates the dialog, pre-filled with the last path.
func (m *PathInputModel) Open(last string) tea.Cmd {
	m.active = true
	m.textInput.SetValue(last)
	m.textInput.CursorEnd()
	return m.textInput.Focus()
}

// Submit closes the dialog and returns the trimmed path.
func (m *PathInputModel) Submit() string {
	path := strings.TrimSpace(m.textInput.Value())
	m.Close()
	return path
}

// Close dismisses the dialog without a selection.
func (m *PathInputModel) Close() {
	m.active = false
	m.textInput.Blur()
}

// IsActive returns whether the dialog is visible.
func (m PathInputModel) IsActive() bool {
	return m.active
}

// Update forwards msg to the embedded textinput.
func (m PathInputModel) Update(msg tea.Msg) (PathInputModel, tea.Cmd) {
	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

// View renders the dialog. Returns an empty string when inactive.
func (m PathInputModel) View() string {
	if !m.active {
		return ""
	}
	return InputStyle.Render(TitleStyle.Render("Select image") + "\n" + m.textInput.View())
}
