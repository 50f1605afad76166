// ABOUTME: Pure report model derived from a prediction: banner, chart datasets, feature table, CSV.
// ABOUTME: Build is deterministic so the same result always yields the same report and CSV bytes.
package report

import (
	"errors"
	"fmt"

	"github.com/2389-research/mammoscope/predict"
)

// ChartID names a chart slot. The same IDs are used by the web page and the overlay.
type ChartID string

const (
	ProbabilityChart ChartID = "probability-chart"
	AbnormalityChart ChartID = "abnormality-chart"
	SignatureChart   ChartID = "feature-signature-chart"
)

// ChartIDs lists every chart in render order.
var ChartIDs = []ChartID{ProbabilityChart, AbnormalityChart, SignatureChart}

// ChartKind selects how a backend draws a dataset.
type ChartKind string

const (
	Pie   ChartKind = "pie"
	Bar   ChartKind = "bar"
	Radar ChartKind = "radar"
)

// Tone keys the banner color to the predicted class.
type Tone string

const (
	ToneWarning Tone = "warning"
	ToneSuccess Tone = "success"
)

// ErrNoResult is returned when there is nothing to render.
var ErrNoResult = errors.New("no prediction result to render")

// ChartSpec is the backend-independent description of one chart.
type ChartSpec struct {
	ID      ChartID   `json:"id"`
	Kind    ChartKind `json:"kind"`
	Title   string    `json:"title"`
	Labels  []string  `json:"labels"`
	Values  []float64 `json:"values"`
	Max     float64   `json:"max,omitempty"` // axis maximum; 0 means auto
	Overlay bool      `json:"overlay,omitempty"`
}

// Banner is the headline classification.
type Banner struct {
	Class      predict.Class `json:"class"`
	Tone       Tone          `json:"tone"`
	Confidence float64       `json:"confidence"`
}

// FeatureRow is one line of the ranked contribution table.
type FeatureRow struct {
	Rank    int     `json:"rank"`
	Name    string  `json:"name"`
	Weight  float64 `json:"weight"`
	Percent string  `json:"percent"`
}

// Report is everything a front-end needs to present one result.
type Report struct {
	Result   *predict.Result `json:"-"`
	Banner   Banner          `json:"banner"`
	Charts   []ChartSpec     `json:"charts"`
	Features []FeatureRow    `json:"features"`
	CSV      []byte          `json:"-"`
}

// Chart returns a copy of the chart with the given id.
func (r *Report) Chart(id ChartID) (ChartSpec, bool) {
	for _, c := range r.Charts {
		if c.ID == id {
			c.Labels = append([]string(nil), c.Labels...)
			c.Values = append([]float64(nil), c.Values...)
			return c, true
		}
	}
	return ChartSpec{}, false
}

// signatureMetric is one radar axis with the value used when the engine omits it.
type signatureMetric struct {
	Label    string
	Key      string
	Fallback float64
}

var signatureMetrics = []signatureMetric{
	{"GLCM Contrast", "glcm_contrast", 0.2},
	{"GLCM Correlation", "glcm_correlation", 0.4},
	{"Texture Variance", "texture_variance", 0.3},
	{"Asymmetry", "asymmetry", 0.45},
	{"Circularity", "shape_circularity", 0.45},
}

// Build derives a report from res without modifying it.
func Build(res *predict.Result) (*Report, error) {
	if res == nil {
		return nil, ErrNoResult
	}
	if !res.FinalPrediction.Valid() {
		return nil, fmt.Errorf("unknown class %q", res.FinalPrediction)
	}

	rep := &Report{
		Result: res,
		Banner: Banner{
			Class:      res.FinalPrediction,
			Tone:       toneFor(res.FinalPrediction),
			Confidence: res.Probabilities.Of(res.FinalPrediction),
		},
		Charts: []ChartSpec{
			probabilityChart(res),
			abnormalityChart(res),
			signatureChart(res),
		},
		Features: featureRows(res),
	}
	rep.CSV = CSV(res)
	return rep, nil
}

func toneFor(c predict.Class) Tone {
	if c == predict.Malignant {
		return ToneWarning
	}
	return ToneSuccess
}

func probabilityChart(res *predict.Result) ChartSpec {
	spec := ChartSpec{ID: ProbabilityChart, Kind: Pie, Title: "Class Probabilities", Max: 1}
	for _, c := range predict.Classes {
		spec.Labels = append(spec.Labels, string(c))
		spec.Values = append(spec.Values, res.Probabilities.Of(c))
	}
	return spec
}

func abnormalityChart(res *predict.Result) ChartSpec {
	spec := ChartSpec{ID: AbnormalityChart, Kind: Bar, Title: "Abnormality Scores"}
	for _, s := range res.AbnormalityScores.Ranked() {
		spec.Labels = append(spec.Labels, s.Name)
		spec.Values = append(spec.Values, s.Value)
	}
	return spec
}

func signatureChart(res *predict.Result) ChartSpec {
	spec := ChartSpec{ID: SignatureChart, Kind: Radar, Title: "Feature Signature", Max: 1}
	for _, m := range signatureMetrics {
		spec.Labels = append(spec.Labels, m.Label)
		spec.Values = append(spec.Values, signatureValue(res, m))
	}
	return spec
}

// signatureValue looks in abnormality scores first, then contributors, then falls back.
func signatureValue(res *predict.Result, m signatureMetric) float64 {
	if v, ok := res.AbnormalityScores.Lookup(m.Key); ok {
		return v
	}
	if v, ok := res.Contributor(m.Key); ok {
		return v
	}
	return m.Fallback
}

func featureRows(res *predict.Result) []FeatureRow {
	rows := make([]FeatureRow, 0, len(res.TopFeatureContributors))
	for i, c := range res.TopFeatureContributors {
		rows = append(rows, FeatureRow{
			Rank:    i + 1,
			Name:    c.Name,
			Weight:  c.Weight,
			Percent: Percent(c.Weight),
		})
	}
	return rows
}

// Percent formats a [0,1] fraction as a one-decimal percentage.
func Percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}
