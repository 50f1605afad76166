// ABOUTME: Client session state machine: select a file, submit once at a time, render the result.
// ABOUTME: The session owns every chart through its renderer and releases them before each submission.
package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/2389-research/mammoscope/predict"
	"github.com/2389-research/mammoscope/preview"
	"github.com/2389-research/mammoscope/report"
)

// State is the session's position in Idle → FileSelected → Submitting → {Displaying | Failed}.
type State int

const (
	Idle State = iota
	FileSelected
	Submitting
	Displaying
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case FileSelected:
		return "file_selected"
	case Submitting:
		return "submitting"
	case Displaying:
		return "displaying"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	// ErrInFlight rejects a transition while a submission is running.
	ErrInFlight = errors.New("a submission is already in flight")
	// ErrNoFile rejects a submission before a file has been selected.
	ErrNoFile = errors.New("no file selected")
)

// RenderError means a file or result could not be presented.
type RenderError struct {
	Op  string
	Err error
}

func (e *RenderError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *RenderError) Unwrap() error { return e.Err }

// Snapshot is a consistent copy of the session for front-ends.
type Snapshot struct {
	State    State
	FileName string
	Preview  *preview.Preview
	Err      error
	Result   *predict.Result
	Report   *report.Report
	Options  Options
}

// Session is the single owner of client-side state. All methods are safe for
// concurrent use.
type Session struct {
	predictor Predictor
	renderer  *report.Renderer
	maxW      int
	maxH      int

	mu       sync.Mutex
	state    State
	inFlight bool
	file     *Upload
	preview  *preview.Preview
	err      error
	result   *predict.Result
	report   *report.Report
	options  Options
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithPreviewBox sets the box previews are scaled to fit.
func WithPreviewBox(w, h int) SessionOption {
	return func(s *Session) { s.maxW, s.maxH = w, h }
}

// WithOptions sets the initial request options.
func WithOptions(o Options) SessionOption {
	return func(s *Session) { s.options = o }
}

// NewSession returns an idle session submitting through p and drawing charts on backend.
func NewSession(p Predictor, backend report.Backend, opts ...SessionOption) *Session {
	s := &Session{
		predictor: p,
		renderer:  report.NewRenderer(backend),
		maxW:      preview.DefaultMaxWidth,
		maxH:      preview.DefaultMaxHeight,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Renderer exposes the chart owner, for maximizing a chart of the current report.
func (s *Session) Renderer() *report.Renderer { return s.renderer }

// SetOptions replaces the flags sent with the next submission.
func (s *Session) SetOptions(o Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.options = o
}

// Select reads path and selects it.
func (s *Session) Select(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return s.rejectFile(&RenderError{Op: "read image", Err: err})
	}
	return s.SelectBytes(ctx, filepath.Base(path), data)
}

// SelectBytes decodes a preview of data on its own goroutine and selects the
// file. A file that cannot be decoded returns the session to Idle.
func (s *Session) SelectBytes(ctx context.Context, name string, data []byte) error {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return ErrInFlight
	}
	maxW, maxH := s.maxW, s.maxH
	s.mu.Unlock()

	type decoded struct {
		p   *preview.Preview
		err error
	}
	done := make(chan decoded, 1)
	go func() {
		p, err := preview.Decode(name, data, maxW, maxH)
		done <- decoded{p, err}
	}()

	var d decoded
	select {
	case d = <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if d.err != nil {
		return s.rejectFile(&RenderError{Op: "render preview", Err: d.err})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return ErrInFlight
	}
	s.file = &Upload{Name: name, Data: data}
	s.preview = d.p
	s.err = nil
	s.state = FileSelected
	return nil
}

func (s *Session) rejectFile(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return ErrInFlight
	}
	s.file = nil
	s.preview = nil
	s.err = err
	s.state = Idle
	return err
}

// Submit sends the selected file. Only one submission runs at a time; a
// concurrent call fails with ErrInFlight without touching the network. All
// charts are released before the request. On failure the last successful
// result is kept and drawn again.
func (s *Session) Submit(ctx context.Context) (*report.Report, error) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return nil, ErrInFlight
	}
	if s.file == nil {
		s.mu.Unlock()
		return nil, ErrNoFile
	}
	s.inFlight = true
	s.state = Submitting
	s.err = nil
	up := *s.file
	opts := s.options
	s.mu.Unlock()

	// A chart that fails to release is already unreachable; the next render starts clean.
	_ = s.renderer.Dispose()
	res, err := s.predictor.Predict(ctx, up, opts)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false

	if err != nil {
		s.state = Failed
		s.err = err
		if s.result != nil {
			if rep, rerr := s.renderer.Render(s.result); rerr == nil {
				s.report = rep
			}
		}
		return nil, err
	}

	rep, err := s.renderer.Render(res)
	if err != nil {
		s.state = Failed
		s.err = &RenderError{Op: "render result", Err: err}
		return nil, s.err
	}
	s.result = res
	s.report = rep
	s.state = Displaying
	return rep, nil
}

// Reset clears the file, preview, error, and result and releases every chart.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return ErrInFlight
	}
	s.file = nil
	s.preview = nil
	s.err = nil
	s.result = nil
	s.report = nil
	s.state = Idle
	return s.renderer.Dispose()
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a copy of the session for display.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		State:   s.state,
		Preview: s.preview,
		Err:     s.err,
		Result:  s.result,
		Report:  s.report,
		Options: s.options,
	}
	if s.file != nil {
		snap.FileName = s.file.Name
	}
	return snap
}
