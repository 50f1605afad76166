// ABOUTME: Renderer owns the chart handles for one render cycle and disposes them before the next.
// ABOUTME: Charts are drawn through a pluggable Backend; the overlay re-creates a chart from stored data.
package report

import (
	"errors"
	"fmt"
	"sync"

	"github.com/2389-research/mammoscope/predict"
)

// ErrNothingRendered is returned by Maximize before any successful Render.
var ErrNothingRendered = errors.New("no report has been rendered")

// ErrUnknownChart is returned by Maximize for an id not in the current report.
var ErrUnknownChart = errors.New("unknown chart")

// Chart is a live chart handle. Destroy releases it and must be safe to call once.
type Chart interface {
	Spec() ChartSpec
	Destroy() error
}

// Backend allocates charts on some surface (terminal, browser, memory).
type Backend interface {
	NewChart(spec ChartSpec) (Chart, error)
}

// Renderer is the single owner of every chart it creates.
type Renderer struct {
	backend Backend

	mu      sync.Mutex
	charts  []Chart
	overlay Chart
	current *Report
}

// NewRenderer returns a renderer drawing through backend.
func NewRenderer(backend Backend) *Renderer {
	return &Renderer{backend: backend}
}

// Render disposes everything from the previous call, then draws a fresh set
// of charts for res. If any chart fails, the ones already created are released.
func (r *Renderer) Render(res *predict.Result) (*Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	disposeErr := r.disposeLocked()

	rep, err := Build(res)
	if err != nil {
		return nil, errors.Join(err, disposeErr)
	}

	charts := make([]Chart, 0, len(rep.Charts))
	for _, spec := range rep.Charts {
		c, err := r.backend.NewChart(spec)
		if err != nil {
			for _, created := range charts {
				_ = created.Destroy()
			}
			return nil, errors.Join(fmt.Errorf("create %s: %w", spec.ID, err), disposeErr)
		}
		charts = append(charts, c)
	}

	r.charts = charts
	r.current = rep
	return rep, disposeErr
}

// Dispose releases every chart and the overlay and forgets the current report.
func (r *Renderer) Dispose() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disposeLocked()
}

func (r *Renderer) disposeLocked() error {
	var errs []error
	if r.overlay != nil {
		errs = append(errs, r.overlay.Destroy())
		r.overlay = nil
	}
	for _, c := range r.charts {
		errs = append(errs, c.Destroy())
	}
	r.charts = nil
	r.current = nil
	return errors.Join(errs...)
}

// Maximize re-creates one chart of the current report as a focused overlay.
// The report's data is copied, never refetched or modified.
func (r *Renderer) Maximize(id ChartID) (Chart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil {
		return nil, ErrNothingRendered
	}
	spec, ok := r.current.Chart(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChart, id)
	}
	if r.overlay != nil {
		_ = r.overlay.Destroy()
		r.overlay = nil
	}
	spec.Overlay = true
	c, err := r.backend.NewChart(spec)
	if err != nil {
		return nil, fmt.Errorf("create overlay %s: %w", id, err)
	}
	r.overlay = c
	return c, nil
}

// CloseOverlay releases the overlay chart, if any.
func (r *Renderer) CloseOverlay() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.overlay == nil {
		return nil
	}
	err := r.overlay.Destroy()
	r.overlay = nil
	return err
}

// Current returns the most recent report, or nil.
func (r *Renderer) Current() *Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Live returns the number of chart handles currently owned, overlay included.
func (r *Renderer) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.charts)
	if r.overlay != nil {
		n++
	}
	return n
}
