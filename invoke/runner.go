// ABOUTME: Runner spawns the engine from a resolved Spec and captures its output streams.
// ABOUTME: Drains stdout and stderr concurrently, enforces the timeout, and kills the whole process group.
package invoke

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultMaxOutputBytes caps how much of each stream is kept in memory.
	DefaultMaxOutputBytes = 8 << 20
	// DefaultKillGrace is the wait between SIGTERM and SIGKILL on timeout.
	DefaultKillGrace = 2 * time.Second
)

// ErrLaunch is matched by every LaunchError.
var ErrLaunch = errors.New("engine launch failed")

// LaunchError reports that the program could not be started at all.
type LaunchError struct {
	Program string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("start %s: %v", e.Program, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrLaunch) true for any LaunchError.
func (e *LaunchError) Is(target error) bool { return target == ErrLaunch }

// Result holds the outcome of one invocation. Stdout and Stderr are complete
// (up to the capture cap) because Run only returns after both streams hit EOF.
type Result struct {
	ExitCode  int
	Stdout    []byte
	Stderr    []byte
	Duration  time.Duration
	TimedOut  bool
	Cancelled bool
	Truncated bool
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMaxOutputBytes caps the bytes kept per stream. Excess output is read and discarded.
func WithMaxOutputBytes(n int64) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.maxOutput = n
		}
	}
}

// WithKillGrace sets the delay between SIGTERM and SIGKILL when a run is stopped.
func WithKillGrace(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.killGrace = d
		}
	}
}

// Runner executes engine invocations on the local machine.
type Runner struct {
	maxOutput int64
	killGrace time.Duration
}

// NewRunner creates a Runner with default limits.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		maxOutput: DefaultMaxOutputBytes,
		killGrace: DefaultKillGrace,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts spec and waits for it to finish, time out, or be cancelled via ctx.
// A nil error means the process ran; its exit status is in the Result.
func (r *Runner) Run(ctx context.Context, spec *Spec) (*Result, error) {
	if spec == nil || spec.Program == "" {
		return nil, &LaunchError{Program: "", Err: errors.New("empty program")}
	}
	if spec.Timeout <= 0 {
		return nil, &LaunchError{Program: spec.Program, Err: errors.New("timeout must be positive")}
	}

	cmd := exec.Command(spec.Program, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = processEnv(spec.EnvPolicy, spec.Env)
	// Stdin left nil: the child reads from the null device.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &LaunchError{Program: spec.Program, Err: err}
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, &LaunchError{Program: spec.Program, Err: err}
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Program: spec.Program, Err: err}
	}

	stdout := &capture{limit: r.maxOutput}
	stderr := &capture{limit: r.maxOutput}

	var g errgroup.Group
	g.Go(func() error { return stdout.drain(stdoutPipe) })
	g.Go(func() error { return stderr.drain(stderrPipe) })

	done := make(chan exitStatus, 1)
	go func() {
		drainErr := g.Wait()
		// os/exec closes the pipes in Wait, so it must follow both drains.
		done <- exitStatus{drainErr: drainErr, waitErr: cmd.Wait()}
	}()

	timer := time.NewTimer(spec.Timeout)
	defer timer.Stop()

	// The deadline covers the whole run: an engine that closes its streams
	// and keeps running is still stopped when the timer fires.
	var st exitStatus
	timedOut, cancelled := false, false
	select {
	case st = <-done:
	case <-timer.C:
		timedOut = true
		st = r.stop(cmd, done)
	case <-ctx.Done():
		cancelled = true
		st = r.stop(cmd, done)
	}
	duration := time.Since(start)

	exitCode := 0
	if st.waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(st.waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}
	if st.drainErr != nil && !timedOut && !cancelled {
		return nil, fmt.Errorf("read engine output: %w", st.drainErr)
	}

	return &Result{
		ExitCode:  exitCode,
		Stdout:    stdout.buf.Bytes(),
		Stderr:    stderr.buf.Bytes(),
		Duration:  duration,
		TimedOut:  timedOut,
		Cancelled: cancelled,
		Truncated: stdout.truncated || stderr.truncated,
	}, nil
}

// exitStatus is what the wait goroutine reports once the streams are drained
// and the process has been reaped.
type exitStatus struct {
	drainErr error
	waitErr  error
}

// stop terminates the child's process group: SIGTERM, then SIGKILL after the
// grace period. It returns once the streams are drained and the process reaped.
func (r *Runner) stop(cmd *exec.Cmd, done <-chan exitStatus) exitStatus {
	// Setpgid makes the child the leader of its own group.
	pgid := cmd.Process.Pid
	signalGroup := func(sig syscall.Signal) {
		if err := syscall.Kill(-pgid, sig); err != nil {
			_ = cmd.Process.Signal(sig)
		}
	}

	signalGroup(syscall.SIGTERM)
	grace := time.NewTimer(r.killGrace)
	defer grace.Stop()

	select {
	case st := <-done:
		// Leader exited; make sure nothing in the group outlives us.
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
		return st
	case <-grace.C:
		signalGroup(syscall.SIGKILL)
		return <-done
	}
}

// capture accumulates up to limit bytes and discards the rest so the writer never blocks.
type capture struct {
	buf       bytes.Buffer
	limit     int64
	truncated bool
}

func (c *capture) drain(r io.Reader) error {
	n, err := io.Copy(&c.buf, io.LimitReader(r, c.limit))
	if err != nil {
		return err
	}
	if n < c.limit {
		return nil
	}
	discarded, err := io.Copy(io.Discard, r)
	if discarded > 0 {
		c.truncated = true
	}
	return err
}
