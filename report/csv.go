// ABOUTME: CSV export of a prediction in a fixed category order with CRLF line endings.
// ABOUTME: Values containing a comma, quote, or line break are quoted with inner quotes doubled.
package report

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/2389-research/mammoscope/predict"
)

const csvHeader = "Category,Parameter,Value"

// CSV renders res as Category,Parameter,Value rows:
// Prediction, Probability per class, Abnormality, Abnormality Score per metric in
// engine order, Background (code, text, explanation), Explanation (class,
// abnormality), then Feature Contribution per contributor.
func CSV(res *predict.Result) []byte {
	var b bytes.Buffer
	row := func(category, param, value string) {
		b.WriteString(csvField(category))
		b.WriteByte(',')
		b.WriteString(csvField(param))
		b.WriteByte(',')
		b.WriteString(csvField(value))
		b.WriteString("\r\n")
	}

	b.WriteString(csvHeader + "\r\n")
	row("Prediction", "final_prediction", string(res.FinalPrediction))
	for _, c := range predict.Classes {
		row("Probability", string(c), formatFloat(res.Probabilities.Of(c)))
	}
	row("Abnormality", "type", deref(res.AbnormalityType))
	for _, s := range res.AbnormalityScores {
		row("Abnormality Score", s.Name, formatFloat(s.Value))
	}

	var tissue predict.Tissue
	if res.BackgroundTissue != nil {
		tissue = *res.BackgroundTissue
	}
	row("Background", "code", tissue.Code)
	row("Background", "text", tissue.Text)
	row("Background", "explanation", tissue.Explain)

	var expl predict.Explanation
	if res.Explanation != nil {
		expl = *res.Explanation
	}
	row("Explanation", "class", strings.Join(expl.Class, "; "))
	row("Explanation", "abnormality", strings.Join(expl.Abnormality, "; "))

	for _, c := range res.TopFeatureContributors {
		row("Feature Contribution", c.Name, formatFloat(c.Weight))
	}
	return b.Bytes()
}

// Filename returns the download name for a CSV exported at t.
func Filename(t time.Time) string {
	return "prediction_results_" + t.UTC().Format("2006-01-02T15-04-05") + ".csv"
}

func csvField(s string) string {
	if !strings.ContainsAny(s, ",\"\n\r") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// formatFloat uses the shortest representation that round-trips.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
