// ABOUTME: In-process Predictor that stores the upload and runs the pipeline without a server.
// ABOUTME: Failures surface as EnvelopeError, matching what the server would have sent.
package client

import (
	"bytes"
	"context"
	"errors"

	"github.com/2389-research/mammoscope/artifact"
	"github.com/2389-research/mammoscope/pipeline"
	"github.com/2389-research/mammoscope/predict"
)

// ErrCompareUnavailable is returned by Local.Compare when no compare pipeline is set.
var ErrCompareUnavailable = errors.New("compare pipeline not configured")

// Local runs predictions directly against a pipeline.
type Local struct {
	Store    *artifact.Store
	Pipeline *pipeline.Pipeline[predict.Result]
	// ComparePipeline is optional; Compare fails without it.
	ComparePipeline *pipeline.Pipeline[predict.Comparison]
}

var _ Predictor = (*Local)(nil)

// Predict stores up and runs the pipeline on it.
func (l *Local) Predict(ctx context.Context, up Upload, opts Options) (*predict.Result, error) {
	return runLocal(ctx, l.Store, l.Pipeline, up, opts)
}

// Compare stores up and runs the compare pipeline on it.
func (l *Local) Compare(ctx context.Context, up Upload, opts Options) (*predict.Comparison, error) {
	if l.ComparePipeline == nil {
		return nil, ErrCompareUnavailable
	}
	return runLocal(ctx, l.Store, l.ComparePipeline, up, opts)
}

func runLocal[T any](ctx context.Context, store *artifact.Store, p *pipeline.Pipeline[T], up Upload, opts Options) (*T, error) {
	art, err := store.Save(bytes.NewReader(up.Data), up.Name, int64(len(up.Data)))
	if err != nil {
		return nil, &EnvelopeError{Message: err.Error()}
	}
	res, tr, err := p.Run(ctx, art, opts.Mock)
	if err != nil {
		e := &EnvelopeError{Message: err.Error()}
		if opts.Debug {
			e.Diagnostics = tr.Diagnostics()
		}
		return nil, e
	}
	return res, nil
}
