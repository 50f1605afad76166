// ABOUTME: Tests for the engine runner using small shell-script engines written to a temp dir.
// ABOUTME: Covers concurrent stream draining, exit codes, timeouts, cancellation, and output caps.
package invoke

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeEngine writes an executable shell script and returns its path.
func writeEngine(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write engine: %v", err)
	}
	return path
}

func specFor(program string, timeout time.Duration, args ...string) *Spec {
	return &Spec{Program: program, Args: args, Timeout: timeout, EnvPolicy: EnvPolicyInheritCore}
}

func TestRunCapturesStdoutAndStderr(t *testing.T) {
	engine := writeEngine(t, `echo '{"prediction":"Benign"}'; echo "warming up" >&2`)

	res, err := NewRunner().Run(context.Background(), specFor(engine, 5*time.Second))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("expected exit 0, got %d", res.ExitCode)
	}
	if got := string(res.Stdout); got != "{\"prediction\":\"Benign\"}\n" {
		t.Errorf("unexpected stdout %q", got)
	}
	if got := string(res.Stderr); got != "warming up\n" {
		t.Errorf("unexpected stderr %q", got)
	}
	if res.TimedOut || res.Cancelled || res.Truncated {
		t.Errorf("unexpected flags: %+v", res)
	}
}

func TestRunPassesImagePathAsSingleArgument(t *testing.T) {
	engine := writeEngine(t, `printf '%s|%s' "$#" "$1"`)
	path := "/tmp/my scan; echo pwned.png"

	res, err := NewRunner().Run(context.Background(), specFor(engine, 5*time.Second, path))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if got, want := string(res.Stdout), "1|"+path; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRunDrainsLargeStderrBeforeStdout(t *testing.T) {
	// A sequential reader would block here: the engine fills the stderr pipe
	// before writing anything to stdout.
	engine := writeEngine(t, `
head -c 600000 /dev/zero | tr '\0' 'e' >&2
head -c 600000 /dev/zero | tr '\0' 'o'
`)

	res, err := NewRunner().Run(context.Background(), specFor(engine, 20*time.Second))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.TimedOut {
		t.Fatal("run timed out; streams were not drained concurrently")
	}
	if len(res.Stderr) != 600000 || len(res.Stdout) != 600000 {
		t.Errorf("expected 600000 bytes on each stream, got stdout=%d stderr=%d", len(res.Stdout), len(res.Stderr))
	}
	if bytes.ContainsFunc(res.Stdout, func(r rune) bool { return r != 'o' }) {
		t.Error("stdout contains bytes from another stream")
	}
}

func TestRunNonZeroExit(t *testing.T) {
	engine := writeEngine(t, `echo "model file not found" >&2; exit 3`)

	res, err := NewRunner().Run(context.Background(), specFor(engine, 5*time.Second))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("expected exit 3, got %d", res.ExitCode)
	}
	if !strings.Contains(string(res.Stderr), "model file not found") {
		t.Errorf("stderr not captured: %q", res.Stderr)
	}
}

func TestRunTimeoutKeepsPartialOutput(t *testing.T) {
	engine := writeEngine(t, `echo "loading model"; echo "partial" >&2; sleep 30`)

	start := time.Now()
	res, err := NewRunner(WithKillGrace(200*time.Millisecond)).Run(
		context.Background(), specFor(engine, 300*time.Millisecond))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !res.TimedOut {
		t.Fatal("expected TimedOut")
	}
	if res.Cancelled {
		t.Error("timeout must not be reported as cancellation")
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("runner did not stop the engine promptly: %s", elapsed)
	}
	if !strings.Contains(string(res.Stdout), "loading model") {
		t.Errorf("expected partial stdout, got %q", res.Stdout)
	}
	if !strings.Contains(string(res.Stderr), "partial") {
		t.Errorf("expected partial stderr, got %q", res.Stderr)
	}
}

func TestRunTimeoutAfterStreamsClose(t *testing.T) {
	// Output is complete and both streams are closed, but the engine keeps running.
	engine := writeEngine(t, `echo '{}'; exec >&- 2>&-; sleep 5`)

	start := time.Now()
	res, err := NewRunner(WithKillGrace(200*time.Millisecond)).Run(
		context.Background(), specFor(engine, 300*time.Millisecond))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("timeout not enforced after the streams closed: %s", elapsed)
	}
	if !res.TimedOut {
		t.Error("expected TimedOut")
	}
	if strings.TrimSpace(string(res.Stdout)) != "{}" {
		t.Errorf("expected captured stdout, got %q", res.Stdout)
	}
}

func TestRunCancelAfterStreamsClose(t *testing.T) {
	engine := writeEngine(t, `exec >&- 2>&-; sleep 5`)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	res, err := NewRunner(WithKillGrace(200*time.Millisecond)).Run(ctx, specFor(engine, time.Minute))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("cancellation not honoured after the streams closed: %s", elapsed)
	}
	if !res.Cancelled || res.TimedOut {
		t.Errorf("expected Cancelled only, got %+v", res)
	}
}

func TestRunKillsIgnoringChild(t *testing.T) {
	// The engine ignores SIGTERM and leaves a grandchild holding the pipes.
	engine := writeEngine(t, `trap '' TERM; sleep 30 & wait`)

	start := time.Now()
	res, err := NewRunner(WithKillGrace(200*time.Millisecond)).Run(
		context.Background(), specFor(engine, 200*time.Millisecond))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !res.TimedOut {
		t.Error("expected TimedOut")
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("process group was not killed: %s", elapsed)
	}
}

func TestRunContextCancel(t *testing.T) {
	engine := writeEngine(t, `sleep 30`)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	res, err := NewRunner(WithKillGrace(100*time.Millisecond)).Run(ctx, specFor(engine, time.Minute))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !res.Cancelled {
		t.Error("expected Cancelled")
	}
	if res.TimedOut {
		t.Error("cancellation must not be reported as timeout")
	}
}

func TestRunLaunchError(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "no-such-engine")

	_, err := NewRunner().Run(context.Background(), specFor(missing, time.Second))
	if err == nil {
		t.Fatal("expected launch error")
	}
	if !errors.Is(err, ErrLaunch) {
		t.Errorf("expected ErrLaunch, got %v", err)
	}
	var le *LaunchError
	if !errors.As(err, &le) || le.Program != missing {
		t.Errorf("expected LaunchError for %s, got %v", missing, err)
	}
}

func TestRunRejectsInvalidSpec(t *testing.T) {
	r := NewRunner()
	if _, err := r.Run(context.Background(), nil); !errors.Is(err, ErrLaunch) {
		t.Errorf("nil spec: expected ErrLaunch, got %v", err)
	}
	if _, err := r.Run(context.Background(), &Spec{Program: "/bin/true"}); !errors.Is(err, ErrLaunch) {
		t.Errorf("zero timeout: expected ErrLaunch, got %v", err)
	}
}

func TestRunTruncatesOversizedOutput(t *testing.T) {
	engine := writeEngine(t, `head -c 5000 /dev/zero | tr '\0' 'x'; echo done >&2`)

	res, err := NewRunner(WithMaxOutputBytes(1024)).Run(context.Background(), specFor(engine, 5*time.Second))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(res.Stdout) != 1024 {
		t.Errorf("expected 1024 captured bytes, got %d", len(res.Stdout))
	}
	if !res.Truncated {
		t.Error("expected Truncated")
	}
	if res.ExitCode != 0 {
		t.Errorf("engine should exit cleanly after excess output is discarded, got %d", res.ExitCode)
	}
}

func TestRunEnvironmentPolicy(t *testing.T) {
	t.Setenv("MAMMOSCOPE_TEST_API_KEY", "sk-test")
	engine := writeEngine(t, `echo "key=${MAMMOSCOPE_TEST_API_KEY}"; echo "pp=${PYTHONPATH}"`)

	spec := specFor(engine, 5*time.Second)
	spec.Env = map[string]string{"PYTHONPATH": "/srv/woa"}

	res, err := NewRunner().Run(context.Background(), spec)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	out := string(res.Stdout)
	if !strings.Contains(out, "key=\n") {
		t.Errorf("sensitive variable leaked to engine: %q", out)
	}
	if !strings.Contains(out, "pp=/srv/woa") {
		t.Errorf("explicit env not applied: %q", out)
	}
}

func TestRunWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	engine := writeEngine(t, `pwd`)
	spec := specFor(engine, 5*time.Second)
	spec.Dir = dir

	res, err := NewRunner().Run(context.Background(), spec)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	got, _ := filepath.EvalSymlinks(strings.TrimSpace(string(res.Stdout)))
	want, _ := filepath.EvalSymlinks(dir)
	if got != want {
		t.Errorf("expected cwd %q, got %q", want, got)
	}
}
