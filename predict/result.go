// ABOUTME: Typed prediction result returned by the engine, with explicit optional fields.
// ABOUTME: Unmarshalling validates the whole document, so a Result is either complete or absent.
package predict

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"
)

// Class is the engine's final classification.
type Class string

const (
	Benign    Class = "Benign"
	Malignant Class = "Malignant"
)

// Classes lists every class in display order.
var Classes = []Class{Benign, Malignant}

// Valid reports whether c is one of the known classes.
func (c Class) Valid() bool {
	return c == Benign || c == Malignant
}

// probabilityTolerance bounds how far the class probabilities may sum away from 1.
const probabilityTolerance = 1e-3

// Probabilities holds one probability per class.
type Probabilities struct {
	Benign    float64 `json:"Benign"`
	Malignant float64 `json:"Malignant"`
}

// Of returns the probability assigned to c.
func (p Probabilities) Of(c Class) float64 {
	if c == Malignant {
		return p.Malignant
	}
	return p.Benign
}

// Score is one named abnormality metric. Values are not normalized by the engine.
type Score struct {
	Name  string
	Value float64
}

// Scores keeps the engine's key order, which a Go map would lose.
type Scores []Score

// Lookup returns the value for name.
func (s Scores) Lookup(name string) (float64, bool) {
	for _, sc := range s {
		if sc.Name == name {
			return sc.Value, true
		}
	}
	return 0, false
}

// Ranked returns a copy sorted by value, highest first. Ties keep engine order.
func (s Scores) Ranked() Scores {
	out := slices.Clone(s)
	slices.SortStableFunc(out, func(a, b Score) int {
		switch {
		case a.Value > b.Value:
			return -1
		case a.Value < b.Value:
			return 1
		}
		return 0
	})
	return out
}

func (s Scores) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, sc := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(sc.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(sc.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (s *Scores) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		*s = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return schemaErrorf("abnormality_scores must be an object")
	}
	out := Scores{}
	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name := tok.(string)
		var v *float64
		if err := dec.Decode(&v); err != nil {
			return schemaErrorf("abnormality_scores[%q] must be a number", name)
		}
		if v == nil {
			return schemaErrorf("abnormality_scores[%q] is null", name)
		}
		if seen[name] {
			return schemaErrorf("abnormality_scores has duplicate key %q", name)
		}
		seen[name] = true
		out = append(out, Score{Name: name, Value: *v})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*s = out
	return nil
}

// Tissue describes the background breast tissue density.
type Tissue struct {
	Code    string `json:"code"`
	Text    string `json:"text"`
	Explain string `json:"explain"`
}

// Explanation carries the engine's free-text reasoning lines.
type Explanation struct {
	Class       []string `json:"class"`
	Abnormality []string `json:"abnormality"`
}

// Contribution is one feature's weight toward the classification.
// On the wire it is a two-element array: ["name", weight].
type Contribution struct {
	Name   string
	Weight float64
}

func (c Contribution) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{c.Name, c.Weight})
}

func (c *Contribution) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return schemaErrorf("feature contribution must be a [name, weight] pair")
	}
	if len(pair) != 2 {
		return schemaErrorf("feature contribution has %d elements, want 2", len(pair))
	}
	if err := json.Unmarshal(pair[0], &c.Name); err != nil {
		return schemaErrorf("feature contribution name must be a string")
	}
	var w *float64
	if err := json.Unmarshal(pair[1], &w); err != nil || w == nil {
		return schemaErrorf("feature contribution %q weight must be a number", c.Name)
	}
	c.Weight = *w
	return nil
}

// Result is a validated engine prediction. FinalPrediction and Probabilities
// are always set; everything else is nil when the engine omitted it.
type Result struct {
	FinalPrediction        Class          `json:"final_prediction"`
	Probabilities          Probabilities  `json:"probabilities"`
	AbnormalityType        *string        `json:"abnormality_type,omitempty"`
	AbnormalityScores      Scores         `json:"abnormality_scores,omitempty"`
	BackgroundTissue       *Tissue        `json:"background_tissue,omitempty"`
	Explanation            *Explanation   `json:"explanation,omitempty"`
	TopFeatureContributors []Contribution `json:"top_feature_contributors,omitempty"`
}

// wireResult mirrors the engine JSON with every field optional so presence can be checked.
type wireResult struct {
	FinalPrediction        *string             `json:"final_prediction"`
	Probabilities          map[string]*float64 `json:"probabilities"`
	AbnormalityType        *string             `json:"abnormality_type"`
	AbnormalityScores      Scores              `json:"abnormality_scores"`
	BackgroundTissue       *Tissue             `json:"background_tissue"`
	Explanation            *Explanation        `json:"explanation"`
	TopFeatureContributors []Contribution      `json:"top_feature_contributors"`
}

// UnmarshalJSON decodes and validates. On error r is left untouched.
func (r *Result) UnmarshalJSON(data []byte) error {
	if !isObject(data) {
		return schemaErrorf("result must be a JSON object")
	}
	var w wireResult
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	if w.FinalPrediction == nil {
		return schemaErrorf("missing final_prediction")
	}
	class := Class(*w.FinalPrediction)
	if !class.Valid() {
		return schemaErrorf("final_prediction %q is not one of %s", *w.FinalPrediction, classList())
	}

	probs, err := validateProbabilities(w.Probabilities)
	if err != nil {
		return err
	}

	contributors := slices.Clone(w.TopFeatureContributors)
	for _, c := range contributors {
		if !inUnitRange(c.Weight) {
			return schemaErrorf("feature contribution %q weight %v outside [0,1]", c.Name, c.Weight)
		}
	}
	slices.SortStableFunc(contributors, func(a, b Contribution) int {
		switch {
		case a.Weight > b.Weight:
			return -1
		case a.Weight < b.Weight:
			return 1
		}
		return 0
	})

	*r = Result{
		FinalPrediction:        class,
		Probabilities:          probs,
		AbnormalityType:        w.AbnormalityType,
		AbnormalityScores:      w.AbnormalityScores,
		BackgroundTissue:       w.BackgroundTissue,
		Explanation:            w.Explanation,
		TopFeatureContributors: contributors,
	}
	return nil
}

// Contributor returns the weight for a named feature contributor.
func (r *Result) Contributor(name string) (float64, bool) {
	for _, c := range r.TopFeatureContributors {
		if c.Name == name {
			return c.Weight, true
		}
	}
	return 0, false
}

func validateProbabilities(m map[string]*float64) (Probabilities, error) {
	if m == nil {
		return Probabilities{}, schemaErrorf("missing probabilities")
	}
	if len(m) != len(Classes) {
		return Probabilities{}, schemaErrorf("probabilities must have exactly the keys %s", classList())
	}
	var p Probabilities
	for _, c := range Classes {
		v, ok := m[string(c)]
		if !ok || v == nil {
			return Probabilities{}, schemaErrorf("probabilities missing %s", c)
		}
		if !inUnitRange(*v) {
			return Probabilities{}, schemaErrorf("probability for %s is %v, outside [0,1]", c, *v)
		}
		if c == Benign {
			p.Benign = *v
		} else {
			p.Malignant = *v
		}
	}
	if sum := p.Benign + p.Malignant; math.Abs(sum-1) > probabilityTolerance {
		return Probabilities{}, schemaErrorf("probabilities sum to %v, want 1", sum)
	}
	return p, nil
}

func inUnitRange(v float64) bool {
	return v >= 0 && v <= 1
}

func isObject(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func classList() string {
	names := make([]string, len(Classes))
	for i, c := range Classes {
		names[i] = string(c)
	}
	return "{" + strings.Join(names, ", ") + "}"
}

// schemaError marks a well-formed document that does not match the result schema.
type schemaError struct{ msg string }

func (e *schemaError) Error() string { return e.msg }

func schemaErrorf(format string, args ...any) error {
	return &schemaError{msg: fmt.Sprintf(format, args...)}
}
