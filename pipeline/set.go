// ABOUTME: Builds the configured pipelines (single prediction and model comparison) from Config.
// ABOUTME: Both share one runner and logger; mock availability follows mock.enabled.
package pipeline

import (
	"github.com/go-kit/log"

	"github.com/2389-research/mammoscope/config"
	"github.com/2389-research/mammoscope/invoke"
	"github.com/2389-research/mammoscope/logging"
	"github.com/2389-research/mammoscope/predict"
)

// Set holds every pipeline the front-ends can reach.
type Set struct {
	Predict *Pipeline[predict.Result]
	Compare *Pipeline[predict.Comparison]
}

// NewRunner builds the process runner from config limits.
func NewRunner(cfg config.Config) *invoke.Runner {
	return invoke.NewRunner(
		invoke.WithMaxOutputBytes(cfg.Runner.MaxOutputBytes),
		invoke.WithKillGrace(cfg.Runner.KillGrace),
	)
}

// FromConfig wires the predict and compare pipelines to exec.
func FromConfig(cfg config.Config, exec Executor, logger log.Logger) (*Set, error) {
	logger = logging.Component(logger, "pipeline")

	predictTmpl, err := cfg.Pipeline(config.PredictPipeline)
	if err != nil {
		return nil, err
	}
	compareTmpl, err := cfg.Pipeline(config.ComparePipeline)
	if err != nil {
		return nil, err
	}

	s := &Set{
		Predict: &Pipeline[predict.Result]{
			Name:      config.PredictPipeline,
			Template:  predictTmpl,
			Runner:    exec,
			Decode:    predict.Decode,
			MockDelay: cfg.Mock.Delay,
			Logger:    logger,
		},
		Compare: &Pipeline[predict.Comparison]{
			Name:      config.ComparePipeline,
			Template:  compareTmpl,
			Runner:    exec,
			Decode:    predict.DecodeComparison,
			MockDelay: cfg.Mock.Delay,
			Logger:    logger,
		},
	}
	if cfg.Mock.Enabled {
		s.Predict.Mock = predict.MockResult
		s.Compare.Mock = predict.MockComparison
	}
	return s, nil
}
