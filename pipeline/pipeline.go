// ABOUTME: Parameterised prediction pipeline: stored artifact -> argv -> engine run -> typed result.
// ABOUTME: One generic implementation serves every engine command; mock mode short-circuits the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"github.com/2389-research/mammoscope/artifact"
	"github.com/2389-research/mammoscope/invoke"
	"github.com/2389-research/mammoscope/logging"
	"github.com/2389-research/mammoscope/predict"
)

// ErrMockDisabled is returned when a mock run is requested but the pipeline has no mock.
var ErrMockDisabled = errors.New("mock mode is disabled")

// Executor runs a resolved invocation. *invoke.Runner satisfies it.
type Executor interface {
	Run(ctx context.Context, spec *invoke.Spec) (*invoke.Result, error)
}

var _ Executor = (*invoke.Runner)(nil)

// Pipeline binds one command template to a decoder for its output.
type Pipeline[T any] struct {
	Name      string
	Template  invoke.Template
	Runner    Executor
	Decode    func(*invoke.Result) (*T, error)
	Mock      func() *T // nil disables mock runs
	MockDelay time.Duration
	Logger    log.Logger
}

// Trace records what happened during one run, for logs and debug diagnostics.
type Trace struct {
	ID       string
	Pipeline string
	Artifact string
	Mock     bool
	Argv     []string
	ExitCode int
	TimedOut bool
	Duration time.Duration
	Stderr   string
	Stdout   string
}

// Run executes the pipeline against a stored artifact. The Trace is always
// non-nil, even when an error is returned.
func (p *Pipeline[T]) Run(ctx context.Context, art *artifact.Artifact, mock bool) (*T, *Trace, error) {
	tr := &Trace{ID: uuid.NewString(), Pipeline: p.Name, Mock: mock}
	if art != nil {
		tr.Artifact = art.StorageName
	}
	logger := p.logger()
	start := time.Now()

	out, err := p.run(ctx, art, mock, tr)
	if tr.Duration == 0 {
		tr.Duration = time.Since(start)
	}

	kv := []any{
		"msg", "pipeline run",
		"pipeline", p.Name,
		"run_id", tr.ID,
		"artifact", tr.Artifact,
		"mock", mock,
		"exit_code", tr.ExitCode,
		"timed_out", tr.TimedOut,
		"duration", tr.Duration,
	}
	if err != nil {
		_ = level.Warn(logger).Log(append(kv, "err", err)...)
	} else {
		_ = level.Info(logger).Log(kv...)
	}
	return out, tr, err
}

func (p *Pipeline[T]) run(ctx context.Context, art *artifact.Artifact, mock bool, tr *Trace) (*T, error) {
	if art == nil {
		return nil, errors.New("no artifact to process")
	}
	if mock {
		if p.Mock == nil {
			return nil, ErrMockDisabled
		}
		if err := sleepCtx(ctx, p.MockDelay); err != nil {
			return nil, err
		}
		return p.Mock(), nil
	}

	spec, err := p.Template.Build(art.Path)
	if err != nil {
		return nil, fmt.Errorf("build %s invocation: %w", p.Name, err)
	}
	tr.Argv = spec.Argv()

	res, err := p.Runner.Run(ctx, spec)
	if err != nil {
		tr.ExitCode = -1
		return nil, err
	}
	tr.ExitCode = res.ExitCode
	tr.TimedOut = res.TimedOut
	tr.Duration = res.Duration
	tr.Stderr = predict.TailExcerpt(res.Stderr)
	tr.Stdout = predict.HeadExcerpt(res.Stdout)

	return p.Decode(res)
}

func (p *Pipeline[T]) logger() log.Logger {
	if p.Logger == nil {
		return logging.Nop()
	}
	return p.Logger
}

// Envelope turns a run outcome into the envelope sent to clients. Diagnostics
// are attached only when debug is set.
func Envelope[T any](res *T, tr *Trace, err error, debug bool) predict.Envelope[T] {
	env := predict.NewEnvelope(res, err)
	if debug && tr != nil {
		env = env.WithDiagnostics(tr.Diagnostics())
	}
	return env
}

// Diagnostics renders the trace as plain text for debug responses.
func (t *Trace) Diagnostics() string {
	if t == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "run: %s\n", t.ID)
	if t.Mock {
		b.WriteString("mode: mock\n")
		return b.String()
	}
	fmt.Fprintf(&b, "exit code: %d\n", t.ExitCode)
	if t.TimedOut {
		b.WriteString("timed out: true\n")
	}
	fmt.Fprintf(&b, "duration: %s\n", t.Duration.Round(time.Millisecond))
	b.WriteString("stderr:\n")
	b.WriteString(orEmpty(t.Stderr))
	b.WriteString("\nstdout (first 500 bytes):\n")
	b.WriteString(orEmpty(t.Stdout))
	b.WriteString("\ncommand:\n")
	b.WriteString(quoteArgv(t.Argv))
	return b.String()
}

func orEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(empty)"
	}
	return s
}

// quoteArgv renders argv for humans; it is never executed.
func quoteArgv(argv []string) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		if a == "" || strings.ContainsAny(a, " \t\n\"'\\$`;&|<>(){}*?") {
			parts[i] = strconv.Quote(a)
		} else {
			parts[i] = a
		}
	}
	return strings.Join(parts, " ")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
