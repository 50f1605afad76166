// ABOUTME: View models for the results section, derived from a report.Report.
// ABOUTME: Chart datasets are serialized to JSON attributes that the client script draws from.
package web

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/2389-research/mammoscope/predict"
	"github.com/2389-research/mammoscope/report"
)

// ChartView is one chart slot; Data is the ChartSpec as JSON.
type ChartView struct {
	ID    report.ChartID
	Title string
	Data  string
}

// BarRow is a labelled value with a bar width for the no-script tables.
type BarRow struct {
	Label string
	Text  string
	Width string
}

// ResultsView is everything the results template needs.
type ResultsView struct {
	Banner                 report.Banner
	Charts                 []ChartView
	Probabilities          []BarRow
	AbnormalityType        string
	Scores                 []BarRow
	Tissue                 *predict.Tissue
	ClassExplanation       []string
	AbnormalityExplanation []string
	Features               []report.FeatureRow
}

func newResultsView(rep *report.Report) (*ResultsView, error) {
	res := rep.Result
	v := &ResultsView{
		Banner:   rep.Banner,
		Tissue:   res.BackgroundTissue,
		Features: rep.Features,
	}
	if res.AbnormalityType != nil {
		v.AbnormalityType = *res.AbnormalityType
	}
	if res.Explanation != nil {
		v.ClassExplanation = res.Explanation.Class
		v.AbnormalityExplanation = res.Explanation.Abnormality
	}

	for _, spec := range rep.Charts {
		data, err := json.Marshal(spec)
		if err != nil {
			return nil, fmt.Errorf("encode chart %s: %w", spec.ID, err)
		}
		v.Charts = append(v.Charts, ChartView{ID: spec.ID, Title: spec.Title, Data: string(data)})
	}

	for _, c := range predict.Classes {
		p := res.Probabilities.Of(c)
		v.Probabilities = append(v.Probabilities, BarRow{Label: string(c), Text: report.Percent(p), Width: width(p, 1)})
	}
	ranked := res.AbnormalityScores.Ranked()
	top := 0.0
	for _, s := range ranked {
		top = math.Max(top, math.Abs(s.Value))
	}
	for _, s := range ranked {
		v.Scores = append(v.Scores, BarRow{Label: s.Name, Text: fmt.Sprintf("%.3f", s.Value), Width: width(s.Value, top)})
	}
	return v, nil
}

func width(v, limit float64) string {
	if limit <= 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", math.Max(0, math.Min(1, v/limit))*100)
}
