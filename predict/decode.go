// ABOUTME: Decoder that turns a captured engine invocation into a typed result or a classified error.
// ABOUTME: Separates process failures from malformed output and schema violations, keeping only bounded excerpts.
package predict

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/2389-research/mammoscope/invoke"
)

// ExcerptBytes bounds how much raw engine output is retained for diagnostics.
const ExcerptBytes = 500

// Kind classifies a decode failure.
type Kind string

const (
	ProcessFailure  Kind = "process_failure"
	MalformedOutput Kind = "malformed_output"
	SchemaViolation Kind = "schema_violation"
)

// Sentinels for errors.Is. A timed-out run matches both ErrProcessFailure and ErrProcessTimeout.
var (
	ErrProcessFailure  = errors.New("engine process failed")
	ErrProcessTimeout  = errors.New("engine timed out")
	ErrMalformedOutput = errors.New("engine output is not valid JSON")
	ErrSchemaViolation = errors.New("engine output violates schema")
)

// DecodeError describes why an invocation did not yield a result.
type DecodeError struct {
	Kind      Kind
	ExitCode  int
	TimedOut  bool
	Cancelled bool
	Duration  time.Duration
	Stderr    string // tail excerpt
	Stdout    string // head excerpt
	Detail    string
	Err       error
}

func (e *DecodeError) Error() string {
	switch e.Kind {
	case ProcessFailure:
		switch {
		case e.TimedOut:
			return fmt.Sprintf("engine timed out after %s", e.Duration.Round(time.Millisecond))
		case e.Cancelled:
			return "engine run cancelled"
		}
		msg := fmt.Sprintf("engine exited with code %d", e.ExitCode)
		if s := strings.TrimSpace(e.Stderr); s != "" {
			msg += ": " + s
		}
		return msg
	case MalformedOutput:
		return "engine returned malformed output: " + e.Detail
	default:
		return "engine output violates schema: " + e.Detail
	}
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool {
	switch target {
	case ErrProcessFailure:
		return e.Kind == ProcessFailure
	case ErrProcessTimeout:
		return e.Kind == ProcessFailure && e.TimedOut
	case ErrMalformedOutput:
		return e.Kind == MalformedOutput
	case ErrSchemaViolation:
		return e.Kind == SchemaViolation
	}
	return false
}

// Decode validates a prediction invocation.
func Decode(res *invoke.Result) (*Result, error) {
	return decodeOutput[Result](res)
}

// decodeOutput is shared by every pipeline. T's UnmarshalJSON is expected to
// validate, returning schemaError for shape problems.
func decodeOutput[T any](res *invoke.Result) (*T, error) {
	if res == nil {
		return nil, &DecodeError{Kind: ProcessFailure, ExitCode: -1, Detail: "no invocation result"}
	}
	if res.TimedOut || res.Cancelled || res.ExitCode != 0 {
		de := &DecodeError{
			Kind:      ProcessFailure,
			ExitCode:  res.ExitCode,
			TimedOut:  res.TimedOut,
			Cancelled: res.Cancelled,
			Duration:  res.Duration,
			Stderr:    TailExcerpt(res.Stderr),
			Stdout:    HeadExcerpt(res.Stdout),
		}
		if res.Cancelled {
			de.Err = context.Canceled
		}
		return nil, de
	}

	fail := func(kind Kind, detail string, err error) (*T, error) {
		return nil, &DecodeError{
			Kind:     kind,
			ExitCode: res.ExitCode,
			Duration: res.Duration,
			Stderr:   TailExcerpt(res.Stderr),
			Stdout:   HeadExcerpt(res.Stdout),
			Detail:   detail,
			Err:      err,
		}
	}

	if res.Truncated {
		return fail(MalformedOutput, "output exceeded capture limit", nil)
	}
	if !isObject(res.Stdout) {
		if len(strings.TrimSpace(string(res.Stdout))) == 0 {
			return fail(MalformedOutput, "empty output", nil)
		}
		return fail(MalformedOutput, "output is not a JSON object", nil)
	}

	var out T
	if err := json.Unmarshal(res.Stdout, &out); err != nil {
		var se *schemaError
		var te *json.UnmarshalTypeError
		switch {
		case errors.As(err, &se):
			return fail(SchemaViolation, se.msg, err)
		case errors.As(err, &te):
			return fail(SchemaViolation, fmt.Sprintf("field %s has wrong type %s", te.Field, te.Value), err)
		default:
			return fail(MalformedOutput, err.Error(), err)
		}
	}
	return &out, nil
}

// HeadExcerpt returns at most ExcerptBytes from the start of b as valid UTF-8.
func HeadExcerpt(b []byte) string {
	if len(b) > ExcerptBytes {
		n := ExcerptBytes
		for n > 0 && !utf8.RuneStart(b[n]) {
			n--
		}
		b = b[:n]
	}
	return strings.ToValidUTF8(string(b), "�")
}

// TailExcerpt returns at most ExcerptBytes from the end of b as valid UTF-8.
// Engines report the fatal error last, so the tail is the useful part.
func TailExcerpt(b []byte) string {
	if len(b) > ExcerptBytes {
		start := len(b) - ExcerptBytes
		for start < len(b) && !utf8.RuneStart(b[start]) {
			start++
		}
		b = b[start:]
	}
	return strings.ToValidUTF8(string(b), "�")
}
