// ABOUTME: Top-level Bubble Tea AppModel that lays out the preview, result, activity, and status panels.
// ABOUTME: Implements tea.Model (Init, Update, View) and drives a client.Session through tea.Cmds.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/mammoscope/client"
	"github.com/2389-research/mammoscope/report"
)

// tickInterval drives the elapsed timer while a submission runs.
const tickInterval = 250 * time.Millisecond

// logHeight is the fixed height of the activity panel.
const logHeight = 8

// FocusTarget indicates which panel currently has keyboard focus.
type FocusTarget int

const (
	FocusResults FocusTarget = iota
	FocusLog
)

// AppModel is the top-level Bubble Tea model. The session owns all prediction
// state; the model only mirrors it for display.
type AppModel struct {
	preview   PreviewPanelModel
	results   ResultsPanelModel
	log       LogPanelModel
	statusBar StatusBarModel
	input     PathInputModel

	session *client.Session
	backend *TerminalBackend
	ctx     context.Context
	outDir  string
	now     func() time.Time

	lastPath   string
	submitting bool
	focus      FocusTarget
	width      int
	height     int
}

// AppOption configures optional AppModel behavior.
type AppOption func(*AppModel)

// WithExportDir sets where CSV exports are written. Defaults to the working directory.
func WithExportDir(dir string) AppOption {
	return func(m *AppModel) { m.outDir = dir }
}

// WithInitialPath selects path as soon as the program starts.
func WithInitialPath(path string) AppOption {
	return func(m *AppModel) { m.lastPath = path }
}

// NewAppModel creates an AppModel submitting through p. target names the
// prediction source in the status bar.
func NewAppModel(ctx context.Context, p client.Predictor, target string, opts client.Options, appOpts ...AppOption) AppModel {
	backend := NewTerminalBackend()
	m := AppModel{
		preview:   NewPreviewPanelModel(),
		results:   NewResultsPanelModel(backend),
		log:       NewLogPanelModel(200),
		statusBar: NewStatusBarModel(target),
		input:     NewPathInputModel(),
		session:   client.NewSession(p, backend, client.WithOptions(opts)),
		backend:   backend,
		ctx:       ctx,
		outDir:    ".",
		now:       time.Now,
		focus:     FocusResults,
	}
	for _, o := range appOpts {
		o(&m)
	}
	m.statusBar.Sync(m.session.Snapshot())
	return m
}

// Session exposes the underlying session.
func (m AppModel) Session() *client.Session {
	return m.session
}

// Init implements tea.Model.
func (m AppModel) Init() tea.Cmd {
	if m.lastPath != "" {
		return SelectCmd(m.ctx, m.session, m.lastPath)
	}
	return nil
}

// Update implements tea.Model. Routes incoming messages to the appropriate
// handler and returns the updated model with any follow-up commands.
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case SelectedMsg:
		return m.handleSelected(msg)

	case SubmittedMsg:
		return m.handleSubmitted(msg)

	case ExportedMsg:
		if msg.Err != nil {
			m.log.Add(LogError, "export failed: "+msg.Err.Error())
		} else {
			m.log.Add(LogSuccess, "wrote "+msg.Path)
		}
		return m, nil

	case TickMsg:
		if !m.submitting {
			return m, nil
		}
		return m, TickCmd(tickInterval)

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	}

	if m.input.IsActive() {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m AppModel) handleSelected(msg SelectedMsg) (tea.Model, tea.Cmd) {
	snap := m.session.Snapshot()
	m.sync(snap)
	switch {
	case errors.Is(msg.Err, client.ErrInFlight):
		m.log.Add(LogError, "selection ignored: a submission is in flight")
	case msg.Err != nil:
		m.log.Add(LogError, msg.Err.Error())
	default:
		m.lastPath = msg.Path
		w, h := snap.Preview.Size()
		m.log.Add(LogInfo, fmt.Sprintf("selected %s (%dx%d)", snap.FileName, w, h))
	}
	return m, nil
}

func (m AppModel) handleSubmitted(msg SubmittedMsg) (tea.Model, tea.Cmd) {
	if errors.Is(msg.Err, client.ErrInFlight) {
		m.log.Add(LogError, "already submitting")
		return m, nil
	}
	m.submitting = false
	m.statusBar.Stop()
	m.sync(m.session.Snapshot())

	var envErr *client.EnvelopeError
	switch {
	case msg.Err == nil:
		m.log.Add(LogSuccess, fmt.Sprintf("%s (%s)", msg.Report.Banner.Class, report.Percent(msg.Report.Banner.Confidence)))
	case errors.As(msg.Err, &envErr):
		m.log.Add(LogError, envErr.Message)
		for _, line := range strings.Split(strings.TrimRight(envErr.Diagnostics, "\n"), "\n") {
			if line != "" {
				m.log.Add(LogInfo, line)
			}
		}
	default:
		m.log.Add(LogError, msg.Err.Error())
	}
	return m, nil
}

// sync mirrors a session snapshot into the panels.
func (m *AppModel) sync(snap client.Snapshot) {
	m.preview.SetPreview(snap.Preview)
	m.results.SetReport(snap.Report)
	m.statusBar.Sync(snap)
}

// handleKeyMsg processes keyboard input, routing to the path dialog or app-level shortcuts.
func (m AppModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.input.IsActive() {
		switch msg.Type {
		case tea.KeyEnter:
			path := m.input.Submit()
			if path == "" {
				return m, nil
			}
			return m, SelectCmd(m.ctx, m.session, path)
		case tea.KeyEsc:
			m.input.Close()
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	if _, ok := m.backend.Overlay(); ok {
		switch msg.String() {
		case "esc", "q", "enter":
			_ = m.session.Renderer().CloseOverlay()
			return m, nil
		case "ctrl+c":
			return m, tea.Quit
		}
		return m, nil
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "o":
		return m, m.input.Open(m.lastPath)
	case "s", "enter":
		return m.submit()
	case "m":
		return m.toggle(func(o *client.Options) { o.Mock = !o.Mock })
	case "d":
		return m.toggle(func(o *client.Options) { o.Debug = !o.Debug })
	case "r":
		if err := m.session.Reset(); err != nil {
			m.log.Add(LogError, "reset: "+err.Error())
			return m, nil
		}
		m.sync(m.session.Snapshot())
		m.log.Add(LogInfo, "cleared")
		return m, nil
	case "c":
		return m, ExportCmd(m.session.Snapshot().Report, m.outDir, m.now())
	case "1", "2", "3":
		id := report.ChartIDs[msg.String()[0]-'1']
		if _, err := m.session.Renderer().Maximize(id); err != nil {
			m.log.Add(LogError, err.Error())
		}
		return m, nil
	case "tab":
		m.focus = m.nextFocus()
		m.log.SetFocused(m.focus == FocusLog)
		return m, nil
	case "up", "k":
		if m.focus == FocusLog {
			m.log.Scroll(-1)
		}
		return m, nil
	case "down", "j":
		if m.focus == FocusLog {
			m.log.Scroll(1)
		}
		return m, nil
	}
	return m, nil
}

// submit starts a submission unless one is already running. The session
// enforces the same rule; checking here avoids queueing a doomed command.
func (m AppModel) submit() (tea.Model, tea.Cmd) {
	if m.submitting {
		m.log.Add(LogError, "already submitting")
		return m, nil
	}
	if m.session.Snapshot().FileName == "" {
		m.log.Add(LogError, client.ErrNoFile.Error())
		return m, nil
	}
	m.submitting = true
	m.statusBar.Start()
	m.statusBar.SetState(client.Submitting)
	m.log.Add(LogInfo, "submitting")
	return m, tea.Batch(SubmitCmd(m.ctx, m.session), TickCmd(tickInterval))
}

func (m AppModel) toggle(flip func(*client.Options)) (tea.Model, tea.Cmd) {
	opts := m.session.Snapshot().Options
	flip(&opts)
	m.session.SetOptions(opts)
	m.statusBar.SetOptions(opts)
	m.log.Add(LogInfo, "flags: "+m.statusBar.flags())
	return m, nil
}

// nextFocus cycles the focus target between results and log.
func (m AppModel) nextFocus() FocusTarget {
	if m.focus == FocusResults {
		return FocusLog
	}
	return FocusResults
}

// View implements tea.Model. Renders the full TUI layout with all panels.
func (m AppModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	// Minimum terminal size guard to prevent layout overflow
	if m.width < 60 || m.height < 20 {
		return fmt.Sprintf("Terminal too small (%dx%d). Minimum: 60x20.", m.width, m.height)
	}

	m.statusBar.SetWidth(m.width)
	statusView := m.statusBar.View()

	if spec, ok := m.backend.Overlay(); ok {
		body := RenderChart(spec, m.width-8) + "\n\n" + IdleStyle.Render("esc to close")
		overlay := OverlayStyle.Width(m.width - 2).Render(body)
		return overlay + "\n" + statusView
	}

	statusBarHeight := 1
	topHeight := m.height - statusBarHeight - logHeight
	previewWidth := m.width * 40 / 100
	resultsWidth := m.width - previewWidth

	m.preview.SetSize(previewWidth, topHeight)
	m.results.SetSize(resultsWidth, topHeight)
	m.log.SetSize(m.width, logHeight)

	top := lipgloss.JoinHorizontal(lipgloss.Top, m.preview.View(), m.results.View())
	bottom := m.log.View()
	if m.input.IsActive() {
		bottom = m.input.View()
	}

	var b strings.Builder
	b.WriteString(top)
	b.WriteString("\n")
	b.WriteString(bottom)
	b.WriteString("\n")
	b.WriteString(statusView)
	return b.String()
}

// Help is the key reference shown by the CLI.
const Help = "o open  s submit  m mock  d debug  1-3 maximize chart  c export csv  r reset  tab focus  q quit"
