// ABOUTME: Terminal chart backend: draws report chart specs as lipgloss-styled horizontal bars.
// ABOUTME: Tracks live handles in creation order so the app can lay out exactly what the renderer owns.
package tui

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/mammoscope/report"
)

const (
	fullBlock  = "█"
	emptyBlock = "░"
)

// TerminalBackend allocates charts drawn as text.
type TerminalBackend struct {
	mu   sync.Mutex
	live []*TerminalChart
}

// NewTerminalBackend returns an empty backend.
func NewTerminalBackend() *TerminalBackend {
	return &TerminalBackend{}
}

var _ report.Backend = (*TerminalBackend)(nil)

// NewChart records a live chart for spec.
func (b *TerminalBackend) NewChart(spec report.ChartSpec) (report.Chart, error) {
	if len(spec.Labels) != len(spec.Values) {
		return nil, fmt.Errorf("chart %s: %d labels for %d values", spec.ID, len(spec.Labels), len(spec.Values))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	c := &TerminalChart{spec: spec, backend: b}
	b.live = append(b.live, c)
	return c, nil
}

// Charts returns the live non-overlay charts in creation order.
func (b *TerminalBackend) Charts() []report.ChartSpec {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []report.ChartSpec
	for _, c := range b.live {
		if !c.spec.Overlay {
			out = append(out, c.spec)
		}
	}
	return out
}

// Overlay returns the live overlay chart, if any.
func (b *TerminalBackend) Overlay() (report.ChartSpec, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.live {
		if c.spec.Overlay {
			return c.spec, true
		}
	}
	return report.ChartSpec{}, false
}

// Live returns the number of charts not yet destroyed.
func (b *TerminalBackend) Live() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.live)
}

// TerminalChart is a chart handle from TerminalBackend.
type TerminalChart struct {
	spec    report.ChartSpec
	backend *TerminalBackend
}

func (c *TerminalChart) Spec() report.ChartSpec { return c.spec }

func (c *TerminalChart) Destroy() error {
	b := c.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, lc := range b.live {
		if lc == c {
			b.live = append(b.live[:i], b.live[i+1:]...)
			return nil
		}
	}
	return report.ErrAlreadyDestroyed
}

// RenderChart draws spec in at most width columns. Pie slices are shown as
// shares of the whole; bar and radar values are scaled to the axis maximum.
func RenderChart(spec report.ChartSpec, width int) string {
	labelWidth := 0
	for _, l := range spec.Labels {
		labelWidth = max(labelWidth, lipgloss.Width(l))
	}
	texts := make([]string, len(spec.Values))
	textWidth := 0
	for i, v := range spec.Values {
		if spec.Kind == report.Pie {
			texts[i] = report.Percent(v)
		} else {
			texts[i] = fmt.Sprintf("%.3f", v)
		}
		textWidth = max(textWidth, len(texts[i]))
	}
	barWidth := max(4, width-labelWidth-textWidth-2)

	limit := axisMax(spec)
	lines := []string{TitleStyle.Render(spec.Title)}
	for i, v := range spec.Values {
		style := BarStyle
		if i%2 == 1 {
			style = BarAltStyle
		}
		label := ChartLabelStyle.Render(padRight(spec.Labels[i], labelWidth))
		lines = append(lines, label+" "+style.Render(bar(v, limit, barWidth))+" "+texts[i])
	}
	return strings.Join(lines, "\n")
}

func axisMax(spec report.ChartSpec) float64 {
	switch {
	case spec.Kind == report.Pie:
		var sum float64
		for _, v := range spec.Values {
			sum += math.Abs(v)
		}
		return sum
	case spec.Max > 0:
		return spec.Max
	}
	var m float64
	for _, v := range spec.Values {
		m = math.Max(m, math.Abs(v))
	}
	return m
}

// bar renders v/limit of width cells as filled blocks.
func bar(v, limit float64, width int) string {
	filled := 0
	if limit > 0 {
		filled = int(math.Round(math.Min(1, math.Abs(v)/limit) * float64(width)))
	}
	return strings.Repeat(fullBlock, filled) + strings.Repeat(emptyBlock, width-filled)
}

func padRight(s string, w int) string {
	if n := lipgloss.Width(s); n < w {
		return s + strings.Repeat(" ", w-n)
	}
	return s
}
