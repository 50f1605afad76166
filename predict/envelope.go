// ABOUTME: Uniform success/error wrapper returned for every prediction request.
// ABOUTME: Constructors guarantee ok is true exactly when a result is present and no error is set.
package predict

import (
	"errors"
	"strings"
)

// ErrInconsistentEnvelope is returned by Check when ok disagrees with result/error presence.
var ErrInconsistentEnvelope = errors.New("inconsistent response envelope")

// Envelope wraps one pipeline outcome. Result and Error are serialized as null
// when absent so clients can always read both keys.
type Envelope[T any] struct {
	OK          bool    `json:"ok"`
	Result      *T      `json:"result"`
	Error       *string `json:"error"`
	Diagnostics string  `json:"diagnostics,omitempty"`
}

// NewEnvelope builds an envelope from a pipeline outcome. An error always wins
// over a result; a nil result without an error is reported as a failure.
func NewEnvelope[T any](result *T, err error) Envelope[T] {
	if err != nil {
		return Failure[T](err.Error())
	}
	if result == nil {
		return Failure[T]("no result produced")
	}
	return Envelope[T]{OK: true, Result: result}
}

// Failure builds an error envelope.
func Failure[T any](msg string) Envelope[T] {
	if strings.TrimSpace(msg) == "" {
		msg = "request failed"
	}
	return Envelope[T]{Error: &msg}
}

// WithDiagnostics returns a copy carrying diagnostic text.
func (e Envelope[T]) WithDiagnostics(d string) Envelope[T] {
	e.Diagnostics = d
	return e
}

// Check verifies the ok/result/error invariant on an envelope received over the wire.
func (e Envelope[T]) Check() error {
	want := e.Result != nil && e.Error == nil
	if e.OK != want {
		return ErrInconsistentEnvelope
	}
	if !e.OK && e.Error == nil {
		return ErrInconsistentEnvelope
	}
	return nil
}

// Message returns the error text, or "" for a successful envelope.
func (e Envelope[T]) Message() string {
	if e.Error == nil {
		return ""
	}
	return *e.Error
}
