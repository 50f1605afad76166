// ABOUTME: Result type for the two-model comparison engine (WOA vs EWOA feature selection).
// ABOUTME: Decoded through the same validation path as single predictions.
package predict

import (
	"encoding/json"

	"github.com/2389-research/mammoscope/invoke"
)

// maxConfidence is the upper clip the comparison engine applies to confidence.
const maxConfidence = 2.0

// ModelOutcome is one model's verdict in a comparison run.
type ModelOutcome struct {
	Prediction    Class    `json:"Prediction"`
	Confidence    float64  `json:"Confidence"`
	DistanceRatio *float64 `json:"Distance Ratio,omitempty"`
	TopFeatures   []string `json:"Top Features"`
	ExecutionTime float64  `json:"Execution Time"`
}

// Comparison holds both model outcomes and the total engine runtime in seconds.
type Comparison struct {
	EWOA         ModelOutcome `json:"EWOA"`
	WOA          ModelOutcome `json:"WOA"`
	TotalRuntime float64      `json:"Total Runtime"`
}

type wireOutcome struct {
	Prediction    *string  `json:"Prediction"`
	Confidence    *float64 `json:"Confidence"`
	DistanceRatio *float64 `json:"Distance Ratio"`
	TopFeatures   []string `json:"Top Features"`
	ExecutionTime *float64 `json:"Execution Time"`
}

type wireComparison struct {
	EWOA         *wireOutcome `json:"EWOA"`
	WOA          *wireOutcome `json:"WOA"`
	TotalRuntime *float64     `json:"Total Runtime"`
}

func (c *Comparison) UnmarshalJSON(data []byte) error {
	if !isObject(data) {
		return schemaErrorf("comparison must be a JSON object")
	}
	var w wireComparison
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	ewoa, err := w.EWOA.outcome("EWOA")
	if err != nil {
		return err
	}
	woa, err := w.WOA.outcome("WOA")
	if err != nil {
		return err
	}
	if w.TotalRuntime == nil || *w.TotalRuntime < 0 {
		return schemaErrorf("missing or negative Total Runtime")
	}
	*c = Comparison{EWOA: ewoa, WOA: woa, TotalRuntime: *w.TotalRuntime}
	return nil
}

func (w *wireOutcome) outcome(model string) (ModelOutcome, error) {
	if w == nil {
		return ModelOutcome{}, schemaErrorf("missing %s outcome", model)
	}
	if w.Prediction == nil || !Class(*w.Prediction).Valid() {
		return ModelOutcome{}, schemaErrorf("%s prediction must be one of %s", model, classList())
	}
	if w.Confidence == nil || *w.Confidence < 0 || *w.Confidence > maxConfidence {
		return ModelOutcome{}, schemaErrorf("%s confidence missing or outside [0,%v]", model, maxConfidence)
	}
	if w.ExecutionTime == nil || *w.ExecutionTime < 0 {
		return ModelOutcome{}, schemaErrorf("%s execution time missing or negative", model)
	}
	return ModelOutcome{
		Prediction:    Class(*w.Prediction),
		Confidence:    *w.Confidence,
		DistanceRatio: w.DistanceRatio,
		TopFeatures:   w.TopFeatures,
		ExecutionTime: *w.ExecutionTime,
	}, nil
}

// Agree reports whether both models reached the same class.
func (c *Comparison) Agree() bool {
	return c.EWOA.Prediction == c.WOA.Prediction
}

// DecodeComparison validates a comparison invocation.
func DecodeComparison(res *invoke.Result) (*Comparison, error) {
	return decodeOutput[Comparison](res)
}
