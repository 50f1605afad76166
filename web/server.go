// ABOUTME: mammoscope HTTP server: upload, predict, compare, and report rendering behind a chi router.
// ABOUTME: Each prediction POST stores one artifact and runs one synchronous engine invocation bounded by its timeout.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/2389-research/mammoscope/artifact"
	"github.com/2389-research/mammoscope/config"
	"github.com/2389-research/mammoscope/logging"
	"github.com/2389-research/mammoscope/pipeline"
	"github.com/2389-research/mammoscope/predict"
	"github.com/2389-research/mammoscope/preview"
	"github.com/2389-research/mammoscope/report"
)

const (
	// multipartMemory is how much of a multipart body is held in memory before
	// spilling to temp files.
	multipartMemory = 8 << 20
	// maxResultBytes bounds result documents posted back for rendering and export.
	maxResultBytes = 1 << 20
	// minPruneInterval keeps the janitor from spinning on tiny retentions.
	minPruneInterval = time.Minute
)

// Server is the mammoscope HTTP server.
type Server struct {
	cfg       config.Config
	store     *artifact.Store
	pipelines *pipeline.Set
	templates *TemplateEngine
	router    chi.Router
	logger    log.Logger
	now       func() time.Time
}

// NewServer creates a Server serving the given pipelines and storing uploads in store.
func NewServer(cfg config.Config, store *artifact.Store, pipelines *pipeline.Set, logger log.Logger) (*Server, error) {
	if store == nil {
		return nil, errors.New("artifact store must not be nil")
	}
	if pipelines == nil || pipelines.Predict == nil {
		return nil, errors.New("predict pipeline must be configured")
	}

	tmpl, err := NewTemplateEngine()
	if err != nil {
		return nil, fmt.Errorf("initializing templates: %w", err)
	}

	s := &Server{
		cfg:       cfg,
		store:     store,
		pipelines: pipelines,
		templates: tmpl,
		logger:    logging.Component(logger, "web"),
		now:       time.Now,
	}
	s.router = s.buildRouter()
	return s, nil
}

// ServeHTTP delegates to the chi router, satisfying http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on the configured address until ctx is cancelled,
// pruning expired uploads in the background. WriteTimeout is sized to outlive
// the slowest pipeline.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      s.writeTimeout(),
		IdleTimeout:       2 * time.Minute,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.pruneLoop(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	_ = level.Info(s.logger).Log("msg", "listening", "addr", s.cfg.Server.Addr, "uploads", s.store.Dir())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) writeTimeout() time.Duration {
	longest := s.pipelines.Predict.Template.Timeout
	if s.pipelines.Compare != nil && s.pipelines.Compare.Template.Timeout > longest {
		longest = s.pipelines.Compare.Template.Timeout
	}
	return longest + s.cfg.Runner.KillGrace + 30*time.Second
}

func (s *Server) pruneLoop(ctx context.Context) {
	retention := s.cfg.Uploads.Retention
	if retention <= 0 {
		return
	}
	interval := max(retention/4, minPruneInterval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s.pruneUploads(retention)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) pruneUploads(retention time.Duration) {
	n, err := s.store.Prune(retention)
	if err != nil {
		_ = level.Warn(s.logger).Log("msg", "prune uploads", "err", err)
		return
	}
	if n > 0 {
		_ = level.Info(s.logger).Log("msg", "pruned uploads", "removed", n)
	}
}

// buildRouter constructs the chi router with all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Post("/", s.handlePredict)
	if s.pipelines.Compare != nil {
		r.Post("/compare", s.handleCompare)
	}
	r.Get("/health", s.handleHealth)
	r.Get("/uploads/{name}", s.handleUpload)
	r.Get("/uploads/{name}/preview.png", s.handleUploadPreview)
	r.Post("/preview", s.handlePreview)

	r.Post("/report", s.handleReport)
	r.Post("/report/print", s.handleReportPrint)
	r.Post("/report.csv", s.handleReportCSV)

	staticFS, err := fs.Sub(StaticFS, "static")
	if err != nil {
		_ = level.Warn(s.logger).Log("msg", "static sub-FS unavailable", "err", err)
	} else {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))
	}

	return r
}

// handleIndex renders the empty upload page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, http.StatusOK, PageData{
		Title:       "Analyze",
		Envelope:    "null",
		MockEnabled: s.pipelines.Predict.Mock != nil,
	})
}

// handleHealth returns a JSON health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// submission is one parsed upload request.
type submission struct {
	art   *artifact.Artifact
	kind  Kind
	mock  bool
	debug bool
}

// requestError is a failure detected before any pipeline runs.
type requestError struct {
	status int
	msg    string
}

// receive parses the multipart body and stores the image. A body that cannot
// be parsed is always answered as Interactive since its flags are unreadable.
func (s *Server) receive(w http.ResponseWriter, r *http.Request) (*submission, *requestError) {
	sub := &submission{
		kind:  InitialRender,
		debug: s.cfg.Debug || r.URL.Query().Has("debug"),
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		sub.kind = Interactive
		if isMaxBytesError(err) {
			return sub, &requestError{
				status: http.StatusRequestEntityTooLarge,
				msg:    fmt.Sprintf("upload exceeds the %d byte limit", s.cfg.Server.MaxUploadBytes),
			}
		}
		return sub, &requestError{status: http.StatusBadRequest, msg: "malformed upload request"}
	}

	if formFlag(r, "ajax") {
		sub.kind = Interactive
	}
	sub.mock = formFlag(r, "mock")

	f, h, err := r.FormFile("image")
	if err != nil {
		return sub, &requestError{status: http.StatusBadRequest, msg: "no image uploaded"}
	}
	defer f.Close()

	art, err := s.store.Save(f, h.Filename, h.Size)
	if err != nil {
		var upErr *artifact.UploadError
		if errors.As(err, &upErr) && upErr.Reason != artifact.WriteFailure {
			return sub, &requestError{status: http.StatusBadRequest, msg: err.Error()}
		}
		_ = level.Error(s.logger).Log("msg", "store upload", "name", h.Filename, "err", err)
		return sub, &requestError{status: http.StatusInternalServerError, msg: "could not store upload"}
	}
	sub.art = art
	return sub, nil
}

// formFlag treats any value other than empty or "0" as set.
func formFlag(r *http.Request, key string) bool {
	v := r.FormValue(key)
	return v != "" && v != "0"
}

// handlePredict runs the predict pipeline on one uploaded image.
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	sub, reqErr := s.receive(w, r)
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}
	if reqErr != nil {
		s.deliverPrediction(w, sub, reqErr.status, predict.Failure[predict.Result](reqErr.msg))
		return
	}

	res, tr, err := s.pipelines.Predict.Run(r.Context(), sub.art, sub.mock)
	s.deliverPrediction(w, sub, http.StatusOK, pipeline.Envelope(res, tr, err, sub.debug))
}

// handleCompare runs the model comparison pipeline. It always answers with JSON.
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	sub, reqErr := s.receive(w, r)
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}
	if reqErr != nil {
		writeEnvelope(w, reqErr.status, predict.Failure[predict.Comparison](reqErr.msg))
		return
	}

	res, tr, err := s.pipelines.Compare.Run(r.Context(), sub.art, sub.mock)
	writeEnvelope(w, http.StatusOK, pipeline.Envelope(res, tr, err, sub.debug))
}

// handleUpload serves a stored artifact back to the page that uploaded it.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	f, err := s.store.Open(name)
	if err != nil {
		if !errors.Is(err, artifact.ErrNotFound) && !errors.Is(err, artifact.ErrInvalidName) {
			_ = level.Warn(s.logger).Log("msg", "open upload", "name", name, "err", err)
		}
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// handleUploadPreview serves a stored artifact as a scaled PNG, so formats
// browsers cannot decode (TIFF) still show in the page.
func (s *Server) handleUploadPreview(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	f, err := s.store.Open(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.cfg.Server.MaxUploadBytes))
	if err != nil {
		_ = level.Warn(s.logger).Log("msg", "read upload", "name", name, "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	s.servePreview(w, name, data)
}

// handlePreview renders a posted image as a scaled PNG without storing it.
// The page falls back to it when the browser cannot decode a selected file.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isMaxBytesError(err) {
			http.Error(w, "upload too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "malformed upload request", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	f, h, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "no image uploaded", http.StatusBadRequest)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		http.Error(w, "malformed upload request", http.StatusBadRequest)
		return
	}
	s.servePreview(w, h.Filename, data)
}

func (s *Server) servePreview(w http.ResponseWriter, name string, data []byte) {
	p, err := preview.Decode(name, data, preview.DefaultMaxWidth, preview.DefaultMaxHeight)
	if err != nil {
		http.Error(w, fmt.Sprintf("could not read or render image: %v", err), http.StatusUnprocessableEntity)
		return
	}
	png, err := preview.EncodePNG(p.Scaled)
	if err != nil {
		_ = level.Error(s.logger).Log("msg", "encode preview", "name", name, "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// handleReport renders the results fragment for a posted result document.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.decodeReport(w, r)
	if !ok {
		return
	}
	view, err := newResultsView(rep)
	if err != nil {
		_ = level.Error(s.logger).Log("msg", "build results view", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if err := s.templates.RenderStandalone(w, "results.html", view); err != nil {
		_ = level.Error(s.logger).Log("msg", "render results", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// handleReportCSV exports a posted result document as CSV.
func (s *Server) handleReportCSV(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.decodeReport(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename(s.now())))
	w.WriteHeader(http.StatusOK)
	w.Write(rep.CSV)
}

// handleReportPrint returns the standalone printable document.
func (s *Server) handleReportPrint(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.decodeReport(w, r)
	if !ok {
		return
	}
	html, err := report.PrintHTML(rep, s.now())
	if err != nil {
		_ = level.Error(s.logger).Log("msg", "render print view", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(html)
}

// decodeReport reads and validates a result document from the request body.
// It writes the error response itself and reports whether the caller should continue.
func (s *Server) decodeReport(w http.ResponseWriter, r *http.Request) (*report.Report, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxResultBytes)
	var res predict.Result
	if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
		if isMaxBytesError(err) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return nil, false
		}
		http.Error(w, fmt.Sprintf("invalid result: %v", err), http.StatusBadRequest)
		return nil, false
	}
	rep, err := report.Build(&res)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid result: %v", err), http.StatusBadRequest)
		return nil, false
	}
	return rep, true
}
