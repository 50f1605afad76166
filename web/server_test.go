// ABOUTME: Tests for the mammoscope HTTP server and chi router.
// ABOUTME: Covers the upload scenarios, envelope delivery, uploads, report export, and pruning.
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/image/tiff"

	"github.com/2389-research/mammoscope/artifact"
	"github.com/2389-research/mammoscope/config"
	"github.com/2389-research/mammoscope/invoke"
	"github.com/2389-research/mammoscope/logging"
	"github.com/2389-research/mammoscope/pipeline"
	"github.com/2389-research/mammoscope/predict"
)

const benignOutput = `{"final_prediction":"Benign","probabilities":{"Benign":0.9,"Malignant":0.1},` +
	`"abnormality_type":"Calcification","abnormality_scores":{"glcm_contrast":0.12,"texture_variance":0.4},` +
	`"explanation":{"class":["**Low** texture variance"],"abnormality":["<b>bold</b> claim"]},` +
	`"top_feature_contributors":[["glcm_contrast",0.25],["texture_variance",0.6]]}`

type countingExecutor struct {
	calls atomic.Int32
	inner pipeline.Executor
}

func (c *countingExecutor) Run(ctx context.Context, spec *invoke.Spec) (*invoke.Result, error) {
	c.calls.Add(1)
	return c.inner.Run(ctx, spec)
}

type testServer struct {
	*Server
	exec  *countingExecutor
	store *artifact.Store
}

func writeEngine(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func engineEmitting(t *testing.T, stdout string) string {
	t.Helper()
	return writeEngine(t, "cat <<'JSON'\n"+stdout+"\nJSON")
}

// newTestServer builds a server whose pipelines run engine. mutate may adjust config.
func newTestServer(t *testing.T, engine string, mutate func(*config.Config)) *testServer {
	t.Helper()
	cfg := config.Default()
	cfg.Mock.Delay = 0
	cfg.Server.MaxUploadBytes = 1 << 20
	if mutate != nil {
		mutate(&cfg)
	}

	store, err := artifact.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	exec := &countingExecutor{inner: invoke.NewRunner()}
	set := &pipeline.Set{
		Predict: &pipeline.Pipeline[predict.Result]{
			Name: config.PredictPipeline,
			Template: invoke.Template{
				Name:    config.PredictPipeline,
				Program: engine,
				Args:    []string{"--model", "/models/model.json", "--image", "{image}"},
				Timeout: 5 * time.Second,
			},
			Runner: exec,
			Decode: predict.Decode,
		},
		Compare: &pipeline.Pipeline[predict.Comparison]{
			Name: config.ComparePipeline,
			Template: invoke.Template{
				Name:    config.ComparePipeline,
				Program: engine,
				Args:    []string{"--image", "{image}"},
				Timeout: 5 * time.Second,
			},
			Runner: exec,
			Decode: predict.DecodeComparison,
		},
	}
	if cfg.Mock.Enabled {
		set.Predict.Mock = predict.MockResult
		set.Compare.Mock = predict.MockComparison
	}

	srv, err := NewServer(cfg, store, set, logging.Nop())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return &testServer{Server: srv, exec: exec, store: store}
}

func uploadRequest(t *testing.T, target string, fields map[string]string, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("image", filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(content)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeEnvelope[T any](t *testing.T, rec *httptest.ResponseRecorder) predict.Envelope[T] {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Fatalf("expected JSON content type, got %q (body %q)", ct, rec.Body.String())
	}
	var env predict.Envelope[T]
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v\n%s", err, rec.Body.String())
	}
	if err := env.Check(); err != nil {
		t.Fatalf("envelope invariant broken: %v\n%s", err, rec.Body.String())
	}
	return env
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	return len(entries)
}

func TestServerHealth(t *testing.T) {
	srv := newTestServer(t, "exit 0", nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status %q, got %q", "ok", body["status"])
	}
}

func TestServerIndex(t *testing.T) {
	srv := newTestServer(t, "exit 0", nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	doc, err := goquery.NewDocumentFromReader(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	if env, _ := doc.Find("#bootstrap").Attr("data-envelope"); env != "null" {
		t.Errorf("expected empty envelope, got %q", env)
	}
	if doc.Find("#file-input").Length() != 1 {
		t.Error("upload form missing")
	}
	if doc.Find("#mock-input").Length() != 1 {
		t.Error("mock toggle should be offered when mock mode is enabled")
	}
	if doc.Find("#results-placeholder").Length() != 1 {
		t.Error("results placeholder missing")
	}
}

// A mock request never starts the engine, even one that would fail.
func TestPredictMockInteractive(t *testing.T) {
	srv := newTestServer(t, "exit 3", nil)

	req := uploadRequest(t, "/", map[string]string{"ajax": "1", "mock": "1"}, "scan.png", []byte("png bytes"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope[predict.Result](t, rec)
	if !env.OK || env.Result.FinalPrediction != predict.Malignant {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if diff := cmp.Diff(predict.Probabilities{Benign: 0.234, Malignant: 0.766}, env.Result.Probabilities); diff != "" {
		t.Errorf("probabilities (-want +got):\n%s", diff)
	}
	if srv.exec.calls.Load() != 0 {
		t.Error("mock mode must not invoke the engine")
	}
	if countFiles(t, srv.store.Dir()) != 1 {
		t.Error("mock mode still stores the artifact")
	}
}

func TestPredictMockDisabled(t *testing.T) {
	srv := newTestServer(t, "exit 3", func(c *config.Config) { c.Mock.Enabled = false })

	req := uploadRequest(t, "/", map[string]string{"ajax": "1", "mock": "1"}, "scan.png", []byte("png bytes"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	env := decodeEnvelope[predict.Result](t, rec)
	if env.OK || !strings.Contains(env.Message(), "mock mode is disabled") {
		t.Errorf("expected mock-disabled failure, got %+v", env)
	}
}

// An empty upload is rejected before anything is stored or run.
func TestPredictEmptyUpload(t *testing.T) {
	srv := newTestServer(t, "exit 0", nil)

	req := uploadRequest(t, "/", map[string]string{"ajax": "1"}, "empty.png", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	env := decodeEnvelope[predict.Result](t, rec)
	if env.OK || !strings.Contains(env.Message(), "empty") {
		t.Errorf("unexpected envelope %+v", env)
	}
	if srv.exec.calls.Load() != 0 {
		t.Error("no process may be invoked for an empty upload")
	}
	if countFiles(t, srv.store.Dir()) != 0 {
		t.Error("empty upload left a file behind")
	}
}

// A non-zero exit becomes a failure envelope carrying the engine's stderr.
func TestPredictEngineFailure(t *testing.T) {
	srv := newTestServer(t, writeEngine(t, "echo 'model not found' >&2; exit 1"), nil)

	req := uploadRequest(t, "/", map[string]string{"ajax": "1"}, "scan.png", []byte("png bytes"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("engine failures are delivered in a 200 envelope, got %d", rec.Code)
	}
	env := decodeEnvelope[predict.Result](t, rec)
	if env.OK || env.Result != nil {
		t.Fatalf("expected failure envelope, got %+v", env)
	}
	for _, want := range []string{"code 1", "model not found"} {
		if !strings.Contains(env.Message(), want) {
			t.Errorf("error %q missing %q", env.Message(), want)
		}
	}
	if env.Diagnostics != "" {
		t.Error("diagnostics must not leak without debug")
	}
	if !strings.Contains(rec.Body.String(), `"result":null`) {
		t.Errorf("result must be serialized as null: %s", rec.Body.String())
	}
}

// Output that is not a result document is reported as malformed.
func TestPredictMalformedOutput(t *testing.T) {
	srv := newTestServer(t, writeEngine(t, "echo 'Traceback: everything is fine'"), nil)

	req := uploadRequest(t, "/", map[string]string{"ajax": "1"}, "scan.png", []byte("png bytes"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	env := decodeEnvelope[predict.Result](t, rec)
	if env.OK || !strings.Contains(env.Message(), "malformed") {
		t.Errorf("expected malformed-output failure, got %+v", env)
	}
}

func TestPredictDebugDiagnostics(t *testing.T) {
	srv := newTestServer(t, writeEngine(t, "echo 'model not found' >&2; exit 1"), nil)

	req := uploadRequest(t, "/?debug", map[string]string{"ajax": "1"}, "scan.png", []byte("png bytes"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	env := decodeEnvelope[predict.Result](t, rec)
	for _, want := range []string{"exit code: 1", "model not found", "--image", "command:"} {
		if !strings.Contains(env.Diagnostics, want) {
			t.Errorf("diagnostics missing %q:\n%s", want, env.Diagnostics)
		}
	}
}

func TestPredictDebugFromConfig(t *testing.T) {
	srv := newTestServer(t, engineEmitting(t, benignOutput), func(c *config.Config) { c.Debug = true })

	req := uploadRequest(t, "/", map[string]string{"ajax": "1"}, "scan.png", []byte("png bytes"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	env := decodeEnvelope[predict.Result](t, rec)
	if !env.OK || !strings.Contains(env.Diagnostics, "exit code: 0") {
		t.Errorf("expected diagnostics on success with debug config, got %+v", env)
	}
}

func TestPredictHostileFilename(t *testing.T) {
	srv := newTestServer(t, engineEmitting(t, benignOutput), nil)

	req := uploadRequest(t, "/", map[string]string{"ajax": "1"}, "../../etc/passwd; rm -rf $HOME.png", []byte("png bytes"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	env := decodeEnvelope[predict.Result](t, rec)
	if !env.OK {
		t.Fatalf("expected success, got %q", env.Message())
	}
	entries, _ := os.ReadDir(srv.store.Dir())
	if len(entries) != 1 {
		t.Fatalf("expected exactly one stored file, got %d", len(entries))
	}
	if !artifact.ValidStorageName(entries[0].Name()) {
		t.Errorf("stored name %q is not safe", entries[0].Name())
	}
}

func TestPredictInitialRender(t *testing.T) {
	srv := newTestServer(t, engineEmitting(t, benignOutput), nil)

	req := uploadRequest(t, "/", nil, "scan.png", []byte("png bytes"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("expected HTML, got %q", ct)
	}

	doc, err := goquery.NewDocumentFromReader(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	boot := doc.Find("#bootstrap")
	raw, _ := boot.Attr("data-envelope")
	var env predict.Envelope[predict.Result]
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("embedded envelope: %v", err)
	}
	if !env.OK || env.Result.FinalPrediction != predict.Benign {
		t.Errorf("unexpected embedded envelope %+v", env)
	}

	imageURL, _ := boot.Attr("data-image")
	if !strings.HasPrefix(imageURL, "/uploads/img_") {
		t.Errorf("unexpected image url %q", imageURL)
	}
	if src, _ := doc.Find("#image-preview-wrapper img").Attr("src"); src != imageURL+"/preview.png" {
		t.Errorf("preview should show the PNG rendering of the upload, got %q", src)
	}

	banner := doc.Find("#prediction-banner")
	if !banner.HasClass("success") || !strings.Contains(banner.Text(), "Benign") {
		t.Errorf("unexpected banner %q", banner.Text())
	}
	if n := doc.Find("[data-chart]").Length(); n != 3 {
		t.Errorf("expected 3 chart slots, got %d", n)
	}
	// Contributors arrive sorted descending.
	if first := doc.Find("#features tr").Eq(1).Find("td").Eq(1).Text(); first != "texture_variance" {
		t.Errorf("expected top contributor texture_variance, got %q", first)
	}
	if html, _ := doc.Find("#explanation").Html(); !strings.Contains(html, "<strong>Low</strong>") {
		t.Errorf("explanation markdown not rendered: %s", html)
	}
	if strings.Contains(doc.Find("#explanation").Text(), "<b>") || doc.Find("#explanation b").Length() != 0 {
		t.Error("raw HTML from the engine must not be rendered")
	}
	if doc.Find("#error-container").AttrOr("hidden", "missing") == "missing" {
		t.Error("error container should stay hidden on success")
	}
}

func TestPredictInitialRenderFailure(t *testing.T) {
	srv := newTestServer(t, writeEngine(t, "echo 'model not found' >&2; exit 1"), nil)

	req := uploadRequest(t, "/", nil, "scan.png", []byte("png bytes"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	doc, err := goquery.NewDocumentFromReader(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	if msg := doc.Find("#error-container").Text(); !strings.Contains(msg, "model not found") {
		t.Errorf("error not shown: %q", msg)
	}
	if doc.Find("#prediction-banner").Length() != 0 {
		t.Error("no results should render on failure")
	}
}

func TestPredictOversizedUpload(t *testing.T) {
	srv := newTestServer(t, "exit 0", func(c *config.Config) { c.Server.MaxUploadBytes = 1024 })

	req := uploadRequest(t, "/", nil, "big.png", bytes.Repeat([]byte("x"), 8192))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
	env := decodeEnvelope[predict.Result](t, rec)
	if env.OK || !strings.Contains(env.Message(), "1024") {
		t.Errorf("unexpected envelope %+v", env)
	}
	if srv.exec.calls.Load() != 0 {
		t.Error("engine must not run for a rejected upload")
	}
}

func TestPredictMalformedMultipart(t *testing.T) {
	srv := newTestServer(t, "exit 0", nil)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("not multipart"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	decodeEnvelope[predict.Result](t, rec)
}

func TestPredictMissingImage(t *testing.T) {
	srv := newTestServer(t, "exit 0", nil)

	req := uploadRequest(t, "/", map[string]string{"ajax": "1"}, "", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	env := decodeEnvelope[predict.Result](t, rec)
	if env.Message() != "no image uploaded" {
		t.Errorf("unexpected error %q", env.Message())
	}
}

func TestCompare(t *testing.T) {
	out := `{"EWOA":{"Prediction":"Benign","Confidence":1.1,"Distance Ratio":0.8,"Top Features":["a"],"Execution Time":0.2},` +
		`"WOA":{"Prediction":"Malignant","Confidence":0.9,"Distance Ratio":null,"Top Features":["b"],"Execution Time":0.3},` +
		`"Total Runtime":0.5}`
	srv := newTestServer(t, engineEmitting(t, out), nil)

	req := uploadRequest(t, "/compare", nil, "scan.png", []byte("png bytes"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	env := decodeEnvelope[predict.Comparison](t, rec)
	if !env.OK {
		t.Fatalf("expected success, got %q", env.Message())
	}
	if env.Result.Agree() || env.Result.WOA.DistanceRatio != nil || env.Result.TotalRuntime != 0.5 {
		t.Errorf("unexpected comparison %+v", env.Result)
	}
}

func TestCompareMock(t *testing.T) {
	srv := newTestServer(t, "exit 9", nil)

	req := uploadRequest(t, "/compare", map[string]string{"mock": "1"}, "scan.png", []byte("png bytes"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	env := decodeEnvelope[predict.Comparison](t, rec)
	if diff := cmp.Diff(predict.MockComparison(), env.Result); diff != "" {
		t.Errorf("mock comparison (-want +got):\n%s", diff)
	}
}

func TestServeUpload(t *testing.T) {
	srv := newTestServer(t, "exit 0", nil)
	art, err := srv.store.Save(strings.NewReader("image bytes"), "scan.png", 11)
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/"+art.StorageName, nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "image bytes" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("nosniff header missing")
	}

	for _, name := range []string{"img_missing-scan.png", "..%2F..%2Fetc%2Fpasswd", "notes.txt"} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/"+name, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", name, rec.Code)
		}
	}
}

func tiffBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}
	var buf bytes.Buffer
	if err := tiff.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func decodePNG(t *testing.T, rec *httptest.ResponseRecorder) image.Image {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("expected image/png, got %q", ct)
	}
	img, err := png.Decode(rec.Body)
	if err != nil {
		t.Fatalf("response is not a PNG: %v", err)
	}
	return img
}

func TestPreviewRendersTIFF(t *testing.T) {
	srv := newTestServer(t, "exit 0", nil)

	req := uploadRequest(t, "/preview", nil, "scan.tif", tiffBytes(t, 1800, 400))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	img := decodePNG(t, rec)
	if b := img.Bounds(); b.Dx() != 900 || b.Dy() != 200 {
		t.Errorf("preview should be scaled to fit 900x400, got %dx%d", b.Dx(), b.Dy())
	}
	if countFiles(t, srv.store.Dir()) != 0 {
		t.Error("a preview must not store the upload")
	}
	if srv.exec.calls.Load() != 0 {
		t.Error("a preview must not invoke the engine")
	}
}

func TestPreviewRejectsUnreadableImage(t *testing.T) {
	srv := newTestServer(t, "exit 0", nil)

	tests := []struct {
		name string
		req  *http.Request
		want int
	}{
		{"not an image", uploadRequest(t, "/preview", nil, "notes.txt", []byte("hello")), http.StatusUnprocessableEntity},
		{"no file", uploadRequest(t, "/preview", nil, "", nil), http.StatusBadRequest},
		{"too large", uploadRequest(t, "/preview", nil, "big.tif", bytes.Repeat([]byte("x"), 2<<20)), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, tt.req)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestServeUploadPreview(t *testing.T) {
	srv := newTestServer(t, "exit 0", nil)
	data := tiffBytes(t, 64, 32)
	art, err := srv.store.Save(bytes.NewReader(data), "scan.tiff", int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/"+art.StorageName+"/preview.png", nil))
	img := decodePNG(t, rec)
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 32 {
		t.Errorf("small images are served at full size, got %dx%d", b.Dx(), b.Dy())
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/img_missing-scan.tiff/preview.png", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for a missing upload, got %d", rec.Code)
	}
}

func postResult(t *testing.T, srv *testServer, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestReportFragment(t *testing.T) {
	srv := newTestServer(t, "exit 0", nil)
	body, _ := json.Marshal(predict.MockResult())

	rec := postResult(t, srv, "/report", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	doc, err := goquery.NewDocumentFromReader(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !doc.Find("#prediction-banner").HasClass("warning") {
		t.Error("malignant banner should use the warning tone")
	}
	if doc.Find("#bootstrap").Length() != 0 {
		t.Error("fragment must not include the page layout")
	}
	ids := doc.Find("[data-chart]").Map(func(_ int, s *goquery.Selection) string {
		id, _ := s.Attr("id")
		return id
	})
	if diff := cmp.Diff([]string{"probability-chart", "abnormality-chart", "feature-signature-chart"}, ids); diff != "" {
		t.Errorf("chart slots (-want +got):\n%s", diff)
	}
}

func TestReportRejectsInvalidResult(t *testing.T) {
	srv := newTestServer(t, "exit 0", nil)
	for _, body := range []string{
		`{"final_prediction":"Maybe","probabilities":{"Benign":0.5,"Malignant":0.5}}`,
		`{"final_prediction":"Benign","probabilities":{"Benign":0.5,"Malignant":0.7}}`,
		`not json`,
	} {
		rec := postResult(t, srv, "/report", []byte(body))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestReportCSV(t *testing.T) {
	srv := newTestServer(t, "exit 0", nil)
	srv.now = func() time.Time { return time.Date(2026, 10, 18, 9, 5, 7, 0, time.UTC) }
	body, _ := json.Marshal(predict.MockResult())

	first := postResult(t, srv, "/report.csv", body)
	second := postResult(t, srv, "/report.csv", body)
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", first.Code)
	}
	if got := first.Header().Get("Content-Disposition"); got != `attachment; filename="prediction_results_2026-10-18T09-05-07.csv"` {
		t.Errorf("unexpected disposition %q", got)
	}
	if !strings.HasPrefix(first.Body.String(), "Category,Parameter,Value\r\nPrediction,final_prediction,Malignant\r\n") {
		t.Errorf("unexpected CSV:\n%s", first.Body.String())
	}
	if !bytes.Equal(first.Body.Bytes(), second.Body.Bytes()) {
		t.Error("CSV export is not deterministic")
	}
}

func TestReportPrint(t *testing.T) {
	srv := newTestServer(t, "exit 0", nil)
	body, _ := json.Marshal(predict.MockResult())

	rec := postResult(t, srv, "/report/print", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Mammogram Prediction Report") {
		t.Error("print document missing title")
	}
}

func TestStaticAssets(t *testing.T) {
	srv := newTestServer(t, "exit 0", nil)
	for _, path := range []string{"/static/css/app.css", "/static/js/app.js"} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.Len() == 0 {
			t.Errorf("%s: status %d, %d bytes", path, rec.Code, rec.Body.Len())
		}
	}
}

func TestPruneUploads(t *testing.T) {
	srv := newTestServer(t, "exit 0", nil)
	if _, err := srv.store.Save(strings.NewReader("image"), "old.png", 5); err != nil {
		t.Fatal(err)
	}

	// Age comes from the time encoded in the storage name, not the file mtime.
	srv.pruneUploads(time.Hour)
	if countFiles(t, srv.store.Dir()) != 1 {
		t.Error("a fresh artifact must not be pruned")
	}
	srv.pruneUploads(-time.Hour)
	if countFiles(t, srv.store.Dir()) != 0 {
		t.Error("expired artifact should be removed")
	}
}

func TestNewServerRequiresPipelines(t *testing.T) {
	store, _ := artifact.NewStore(t.TempDir())
	if _, err := NewServer(config.Default(), store, &pipeline.Set{}, logging.Nop()); err == nil {
		t.Error("expected error without a predict pipeline")
	}
	if _, err := NewServer(config.Default(), nil, &pipeline.Set{}, logging.Nop()); err == nil {
		t.Error("expected error without a store")
	}
}
