// ABOUTME: Tests for the HTTP client against httptest servers.
// ABOUTME: Covers request shape, envelope validation, and the transport/envelope error split.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/2389-research/mammoscope/predict"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestPredictSendsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL)
		}
		if !r.URL.Query().Has("debug") {
			t.Error("debug flag not sent")
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse: %v", err)
			return
		}
		if r.FormValue("ajax") != "1" || r.FormValue("mock") != "1" {
			t.Errorf("unexpected fields %v", r.MultipartForm.Value)
		}
		f, h, err := r.FormFile("image")
		if err != nil {
			t.Errorf("image: %v", err)
			return
		}
		data, _ := io.ReadAll(f)
		if h.Filename != "scan.png" || string(data) != "pixels" {
			t.Errorf("unexpected file %q %q", h.Filename, data)
		}
		writeJSON(w, http.StatusOK, predict.NewEnvelope(predict.MockResult(), nil))
	}))
	defer srv.Close()

	res, err := New(srv.URL+"/").Predict(context.Background(), Upload{Name: "scan.png", Data: []byte("pixels")}, Options{Mock: true, Debug: true})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if diff := cmp.Diff(predict.MockResult(), res); diff != "" {
		t.Errorf("result (-want +got):\n%s", diff)
	}
}

func TestPredictEnvelopeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env := predict.Failure[predict.Result]("engine exited with code 1: model not found").WithDiagnostics("exit code: 1")
		writeJSON(w, http.StatusOK, env)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Predict(context.Background(), Upload{Name: "a.png", Data: []byte("x")}, Options{})
	var envErr *EnvelopeError
	if !errors.As(err, &envErr) {
		t.Fatalf("expected EnvelopeError, got %T %v", err, err)
	}
	if envErr.Message != "engine exited with code 1: model not found" || envErr.Diagnostics != "exit code: 1" {
		t.Errorf("unexpected envelope error %+v", envErr)
	}
}

func TestPredictTransportErrors(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
		wantMsg    string
	}{
		{
			name: "html error page",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				w.WriteHeader(http.StatusBadGateway)
				io.WriteString(w, "<h1>Bad Gateway</h1>")
			},
			wantStatus: http.StatusBadGateway,
		},
		{
			name: "html with 200",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				io.WriteString(w, "<html></html>")
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "truncated json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				io.WriteString(w, `{"ok":tr`)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "inconsistent envelope",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				io.WriteString(w, `{"ok":true,"result":null,"error":null}`)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "invalid result",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				io.WriteString(w, `{"ok":true,"result":{"final_prediction":"Unknown"},"error":null}`)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "oversized upload",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusRequestEntityTooLarge, predict.Failure[predict.Result]("upload exceeds the 10 byte limit"))
			},
			wantStatus: http.StatusRequestEntityTooLarge,
			wantMsg:    "upload exceeds the 10 byte limit",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := New(srv.URL).Predict(context.Background(), Upload{Name: "a.png", Data: []byte("x")}, Options{})
			var tErr *TransportError
			if !errors.As(err, &tErr) {
				t.Fatalf("expected TransportError, got %T %v", err, err)
			}
			if tErr.Status != tt.wantStatus {
				t.Errorf("status = %d, want %d", tErr.Status, tt.wantStatus)
			}
			if tErr.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", tErr.Message, tt.wantMsg)
			}
		})
	}
}

func TestPredictNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url).Predict(context.Background(), Upload{Name: "a.png", Data: []byte("x")}, Options{})
	var tErr *TransportError
	if !errors.As(err, &tErr) || tErr.Status != 0 {
		t.Fatalf("expected TransportError without status, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "transport error: ") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestCompare(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/compare" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		r.ParseMultipartForm(1 << 20)
		if r.FormValue("ajax") != "" {
			t.Error("compare is always JSON; ajax flag is not sent")
		}
		writeJSON(w, http.StatusOK, predict.NewEnvelope(predict.MockComparison(), nil))
	}))
	defer srv.Close()

	cmpRes, err := New(srv.URL).Compare(context.Background(), Upload{Name: "a.png", Data: []byte("x")}, Options{})
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if !cmpRes.Agree() {
		t.Error("mock comparison should agree")
	}
}

func TestTransportErrorMessage(t *testing.T) {
	tests := []struct {
		err  *TransportError
		want string
	}{
		{&TransportError{Status: 413, Message: "too big"}, "transport error (status 413): too big"},
		{&TransportError{Status: 200, Err: errNotJSON}, "transport error (status 200): response is not JSON"},
		{&TransportError{}, "transport error"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}
