package web

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/triad/internal/config"
	"github.com/dshills/triad/internal/engine"
	"github.com/dshills/triad/internal/output"
	"github.com/dshills/triad/internal/pipeline"
	"github.com/dshills/triad/internal/review"
)

//go:embed templates/*.html
var templateFS embed.FS

// MaxUploadBytes caps the size of an uploaded code file.
const MaxUploadBytes = 1 << 20

// AllowedExtensions lists the upload file types accepted by the form.
var AllowedExtensions = []string{".txt", ".diff", ".patch", ".py", ".js", ".ts", ".java", ".go"}

const defaultMaxReports = 32

// Options configures a Server.
type Options struct {
	Engine *engine.Engine
	// Config is the process configuration. Form values are applied to a copy.
	Config   config.Config
	Logger   *slog.Logger
	Gatherer prometheus.Gatherer
	// MaxReports bounds how many finished reports stay downloadable.
	MaxReports int
}

// Server serves the browser form.
type Server struct {
	engine   *engine.Engine
	base     config.Config
	logger   *slog.Logger
	gatherer prometheus.Gatherer
	tmpl     *template.Template

	running sync.Mutex
	reports *reportStore
}

// New creates a Server.
func New(opts Options) (*Server, error) {
	if opts.Engine == nil {
		return nil, errors.New("web: engine is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	limit := opts.MaxReports
	if limit <= 0 {
		limit = defaultMaxReports
	}

	tmpl, err := template.New("").Funcs(template.FuncMap{
		"riskClass": riskClass,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}

	return &Server{
		engine:   opts.Engine,
		base:     opts.Config,
		logger:   logger,
		gatherer: gatherer,
		tmpl:     tmpl,
		reports:  newReportStore(limit),
	}, nil
}

// Router returns an http.Handler for all routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.index)
	mux.HandleFunc("POST /review", s.review)
	mux.HandleFunc("GET /reports/{id}", s.download)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok\n")
	})

	return s.logRequests(mux)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("web server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.logger.Info("web server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

type formData struct {
	Error        string
	Models       []string
	Model        string
	HasAPIKey    bool
	HasSerperKey bool
	Extensions   string
	Accept       string
	MaxKiB       int
}

func (s *Server) formData(errMsg string) formData {
	return formData{
		Error:        errMsg,
		Models:       config.Models,
		Model:        s.base.Model,
		HasAPIKey:    s.base.APIKey != "",
		HasSerperKey: s.base.SerperAPIKey != "",
		Extensions:   strings.Join(AllowedExtensions, " "),
		Accept:       strings.Join(AllowedExtensions, ","),
		MaxKiB:       MaxUploadBytes >> 10,
	}
}

func (s *Server) index(w http.ResponseWriter, _ *http.Request) {
	s.render(w, http.StatusOK, "index", s.formData(""))
}

type stageView struct {
	Heading string
	Status  string
}

type resultData struct {
	Stages []stageView
	Error  string
	Report *output.Report
	Raw    map[string]string
}

func stageViews(status string) []stageView {
	return []stageView{
		{output.HeadingQuality, status},
		{output.HeadingSecurity, status},
		{output.HeadingDecision, status},
	}
}

func (s *Server) review(w http.ResponseWriter, r *http.Request) {
	if !s.running.TryLock() {
		s.render(w, http.StatusConflict, "index", s.formData("A review is already running. Try again when it finishes."))
		return
	}
	defer s.running.Unlock()

	cfg, req, status, err := s.parseSubmission(w, r)
	if err != nil {
		s.logger.Warn("rejected review submission", "error", err, "status", status)
		s.render(w, status, "index", s.formData(err.Error()))
		return
	}

	s.logger.Info("review submitted", "source", req.Source, "bytes", len(req.Code), "model", cfg.Model)
	// A client that disconnects mid-run does not abort the stages.
	report, err := s.engine.Review(context.WithoutCancel(r.Context()), cfg, req, nil)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, engine.ErrRunInProgress):
			s.render(w, http.StatusConflict, "index", s.formData("A review is already running. Try again when it finishes."))
			return
		case config.IsMissing(err):
			s.render(w, http.StatusBadRequest, "index", s.formData(err.Error()))
			return
		case engine.IsInputError(err):
			status = http.StatusBadRequest
		}
		s.logger.Error("review failed", "error", err)
		s.render(w, status, "result", resultData{Stages: stageViews("failed"), Error: err.Error()})
		return
	}

	s.reports.put(report)
	s.render(w, http.StatusOK, "result", resultData{
		Stages: stageViews("complete"),
		Report: report,
		Raw: map[string]string{
			"quality":  report.Raw(pipeline.StageQuality),
			"security": report.Raw(pipeline.StageSecurity),
			"decision": report.Raw(pipeline.StageDecision),
		},
	})
}

// parseSubmission validates the form and returns the per-run configuration
// and request. The returned status is meaningful only when err is non-nil.
func (s *Server) parseSubmission(w http.ResponseWriter, r *http.Request) (config.Config, pipeline.Request, int, error) {
	// Allow headroom for the other form fields and multipart framing.
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes+64<<10)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return config.Config{}, pipeline.Request{}, http.StatusRequestEntityTooLarge,
				fmt.Errorf("upload exceeds %d KiB", MaxUploadBytes>>10)
		}
		return config.Config{}, pipeline.Request{}, http.StatusBadRequest, fmt.Errorf("invalid form: %w", err)
	}

	cfg := s.base
	if m := r.FormValue("model"); m != "" {
		if !slices.Contains(config.Models, m) {
			return cfg, pipeline.Request{}, http.StatusBadRequest, fmt.Errorf("unsupported model %q", m)
		}
		switched, err := cfg.WithModel(m)
		if err != nil {
			return cfg, pipeline.Request{}, http.StatusBadRequest, err
		}
		cfg = switched
	}
	// Form keys are applied after the model so they are never re-resolved.
	if v := strings.TrimSpace(r.FormValue("api_key")); v != "" {
		_ = config.SetField(&cfg, "api_key", v)
	}
	if v := strings.TrimSpace(r.FormValue("serper_api_key")); v != "" {
		cfg.SerperAPIKey = v
	}

	file, header, err := r.FormFile("code_file")
	if err != nil {
		return cfg, pipeline.Request{}, http.StatusBadRequest, errors.New("a code file is required")
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if !AllowedExtension(name) {
		return cfg, pipeline.Request{}, http.StatusBadRequest,
			fmt.Errorf("file type not allowed: %s (allowed: %s)", name, strings.Join(AllowedExtensions, " "))
	}
	if header.Size > MaxUploadBytes {
		return cfg, pipeline.Request{}, http.StatusRequestEntityTooLarge,
			fmt.Errorf("upload exceeds %d KiB", MaxUploadBytes>>10)
	}
	data, err := io.ReadAll(io.LimitReader(file, MaxUploadBytes+1))
	if err != nil {
		return cfg, pipeline.Request{}, http.StatusBadRequest, fmt.Errorf("reading upload: %w", err)
	}
	if len(data) > MaxUploadBytes {
		return cfg, pipeline.Request{}, http.StatusRequestEntityTooLarge,
			fmt.Errorf("upload exceeds %d KiB", MaxUploadBytes>>10)
	}
	// Undecodable bytes become U+FFFD rather than failing the upload.
	req := pipeline.Request{Code: strings.ToValidUTF8(string(data), "\uFFFD"), Source: name}
	if err := req.Validate(); err != nil {
		return cfg, req, http.StatusBadRequest, errors.New("uploaded file is empty")
	}
	return cfg, req, 0, nil
}

// AllowedExtension reports whether name has an accepted upload extension.
func AllowedExtension(name string) bool {
	return slices.Contains(AllowedExtensions, strings.ToLower(filepath.Ext(name)))
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	report, ok := s.reports.get(id)
	if !ok {
		http.Error(w, "report not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "triad-review-"+id+".txt"))
	_, _ = io.WriteString(w, report.PlainText())
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.Error("rendering template", "template", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func riskClass(level string) string {
	if level == "" || level == review.Unknown {
		return "risk-unknown"
	}
	return "risk-" + review.ClassifySeverity(level).String()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			"method", r.Method, "path", r.URL.Path,
			"status", rec.status, "duration", time.Since(start))
	})
}

// reportStore keeps the most recent reports for download.
type reportStore struct {
	mu    sync.Mutex
	limit int
	order []string
	byID  map[string]*output.Report
}

func newReportStore(limit int) *reportStore {
	return &reportStore{limit: limit, byID: make(map[string]*output.Report)}
}

func (rs *reportStore) put(r *output.Report) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if _, ok := rs.byID[r.RunID]; !ok {
		rs.order = append(rs.order, r.RunID)
	}
	rs.byID[r.RunID] = r
	for len(rs.order) > rs.limit {
		delete(rs.byID, rs.order[0])
		rs.order = rs.order[1:]
	}
}

func (rs *reportStore) get(id string) (*output.Report, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	r, ok := rs.byID[id]
	return r, ok
}
