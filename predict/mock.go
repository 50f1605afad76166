// ABOUTME: Canned prediction used when a request asks for mock mode.
// ABOUTME: Lets front-ends be exercised without the engine installed.
package predict

// MockResult returns a fresh copy of the canned result on every call.
func MockResult() *Result {
	abnormality := "Mass with Spiculation"
	return &Result{
		FinalPrediction: Malignant,
		Probabilities:   Probabilities{Benign: 0.234, Malignant: 0.766},
		AbnormalityType: &abnormality,
		AbnormalityScores: Scores{
			{Name: "glcm_contrast", Value: 0.206},
			{Name: "glcm_correlation", Value: 4.25},
			{Name: "texture_variance", Value: 1.89},
		},
		Explanation: &Explanation{
			Class:       []string{"High texture variance and GLCM contrast contributed..."},
			Abnormality: []string{"Features consistent with a spiculated mass."},
		},
		BackgroundTissue: &Tissue{
			Code:    "C",
			Text:    "Heterogeneously Dense",
			Explain: "May obscure small masses.",
		},
		TopFeatureContributors: []Contribution{
			{Name: "glcm_correlation", Weight: 0.45},
			{Name: "texture_variance", Weight: 0.30},
			{Name: "glcm_contrast", Weight: 0.15},
			{Name: "shape_circularity", Weight: 0.05},
			{Name: "asymmetry", Weight: 0.02},
		},
	}
}

// MockComparison returns a canned model comparison.
func MockComparison() *Comparison {
	ratioE, ratioW := 0.8123, 0.9471
	return &Comparison{
		EWOA: ModelOutcome{
			Prediction:    Malignant,
			Confidence:    1.231,
			DistanceRatio: &ratioE,
			TopFeatures:   []string{"glcm_correlation", "texture_variance", "glcm_contrast"},
			ExecutionTime: 0.412,
		},
		WOA: ModelOutcome{
			Prediction:    Malignant,
			Confidence:    1.056,
			DistanceRatio: &ratioW,
			TopFeatures:   []string{"texture_variance", "glcm_contrast", "asymmetry"},
			ExecutionTime: 0.398,
		},
		TotalRuntime: 0.955,
	}
}
