// ABOUTME: Response formatting: one envelope per pipeline outcome, delivered as JSON or as the page.
// ABOUTME: Diagnostics are attached only when debug is enabled in config or requested with ?debug.
package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-kit/log/level"

	"github.com/2389-research/mammoscope/artifact"
	"github.com/2389-research/mammoscope/predict"
	"github.com/2389-research/mammoscope/report"
)

// Kind selects how an envelope is delivered.
type Kind int

const (
	// Interactive responses are the JSON envelope itself.
	Interactive Kind = iota
	// InitialRender responses are the full page with the envelope embedded.
	InitialRender
)

func (k Kind) String() string {
	if k == Interactive {
		return "interactive"
	}
	return "initial_render"
}

func writeEnvelope[T any](w http.ResponseWriter, status int, env predict.Envelope[T]) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

// deliverPrediction writes env in the form the submission asked for.
func (s *Server) deliverPrediction(w http.ResponseWriter, sub *submission, status int, env predict.Envelope[predict.Result]) {
	if sub.kind == Interactive {
		writeEnvelope(w, status, env)
		return
	}

	raw, err := json.Marshal(env)
	if err != nil {
		_ = level.Error(s.logger).Log("msg", "encode envelope", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	data := PageData{
		Title:       "Prediction",
		Envelope:    string(raw),
		Error:       env.Message(),
		Diagnostics: env.Diagnostics,
		MockEnabled: s.pipelines.Predict.Mock != nil,
	}
	if sub.art != nil {
		data.ImageURL = uploadURL(sub.art)
		data.PreviewURL = data.ImageURL + "/preview.png"
	}
	if env.OK {
		rep, err := report.Build(env.Result)
		if err == nil {
			data.Results, err = newResultsView(rep)
		}
		if err != nil {
			_ = level.Error(s.logger).Log("msg", "build report", "err", err)
			data.Error = "could not render the result"
		}
	}
	s.renderPage(w, status, data)
}

func (s *Server) renderPage(w http.ResponseWriter, status int, data PageData) {
	if err := s.templates.Render(w, status, "index.html", data); err != nil {
		_ = level.Error(s.logger).Log("msg", "render page", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func uploadURL(art *artifact.Artifact) string {
	return "/uploads/" + art.StorageName
}

// isMaxBytesError checks whether err came from an http.MaxBytesReader limit.
func isMaxBytesError(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
