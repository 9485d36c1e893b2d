package web

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/triad/internal/config"
	"github.com/dshills/triad/internal/engine"
	"github.com/dshills/triad/internal/output"
	"github.com/dshills/triad/internal/pipeline"
	"github.com/dshills/triad/internal/providers"
)

func personaModel() *providers.MockChatModel {
	return &providers.MockChatModel{Handler: func(messages []providers.Message, _ []providers.ToolSpec) (providers.ChatOut, error) {
		system := messages[0].Content
		switch {
		case strings.Contains(system, "You are Senior Developer."):
			return providers.ChatOut{Text: `{"critical_issues":["eval on user input"],"minor_issues":[],"reasoning":"risky"}`}, nil
		case strings.Contains(system, "You are Security Engineer."):
			return providers.ChatOut{Text: `{"security_vulnerabilities":[{"description":"code injection","risk_level":"Critical"}],"blocking":true,"highest_risk":"Critical","security_recommendations":["remove eval"]}`}, nil
		default:
			return providers.ChatOut{Text: "Decision: Request Changes"}, nil
		}
	}}
}

type fixture struct {
	srv     *Server
	handler http.Handler
	model   *providers.MockChatModel
	cfg     config.Config
}

func setupServer(t *testing.T, cfg config.Config, model *providers.MockChatModel) *fixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	eng := engine.New(
		engine.WithModelFactory(func(config.Config) (providers.ChatModel, error) { return model, nil }),
		engine.WithMetrics(pipeline.NewMetrics(reg)),
	)
	srv, err := New(Options{Engine: eng, Config: cfg, Gatherer: reg})
	require.NoError(t, err)
	return &fixture{srv: srv, handler: srv.Router(), model: model, cfg: cfg}
}

func keyedConfig() config.Config {
	cfg := config.Default()
	cfg.APIKey = "server-key"
	cfg.SerperAPIKey = "server-serper"
	return cfg
}

func multipartBody(t *testing.T, fields map[string]string, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("code_file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (f *fixture) submit(t *testing.T, fields map[string]string, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, fields, filename, content)
	req := httptest.NewRequest(http.MethodPost, "/review", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func (f *fixture) get(path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestIndex(t *testing.T) {
	f := setupServer(t, config.Default(), personaModel())
	w := f.get("/")

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Triad Code Review")
	for _, m := range config.Models {
		assert.Contains(t, body, m)
	}
	assert.Contains(t, body, `accept=".txt,.diff,.patch,.py,.js,.ts,.java,.go"`)
	assert.Contains(t, body, "disabled")
}

func TestHealthz(t *testing.T) {
	f := setupServer(t, config.Default(), personaModel())
	w := f.get("/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok\n", w.Body.String())
}

var reportLink = regexp.MustCompile(`/reports/([0-9A-Z]+)`)

func TestReview_SuccessAndDownload(t *testing.T) {
	f := setupServer(t, keyedConfig(), personaModel())

	w := f.submit(t, map[string]string{"model": "openai/gpt-4o-mini"}, "app.py", []byte("eval(input())\n"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := w.Body.String()
	assert.Equal(t, 3, strings.Count(body, `class="stage complete"`))
	assert.Contains(t, body, "eval on user input")
	assert.Contains(t, body, "code injection")
	assert.Contains(t, body, "BLOCK")
	assert.Contains(t, body, "Request Changes")

	m := reportLink.FindStringSubmatch(body)
	require.Len(t, m, 2)

	dl := f.get("/reports/" + m[1])
	assert.Equal(t, http.StatusOK, dl.Code)
	assert.Contains(t, dl.Header().Get("Content-Disposition"), "attachment")
	assert.True(t, strings.HasPrefix(dl.Body.String(), "=== QUALITY ANALYSIS ===\n"))
	assert.Contains(t, dl.Body.String(), "\n\n=== FINAL DECISION ===\nDecision: Request Changes")
}

func TestReview_FormCredentialsDoNotMutateConfig(t *testing.T) {
	f, seen := capturingServer(t, config.Default())

	w := f.submit(t, map[string]string{"api_key": "form-key", "serper_api_key": "form-serper"}, "main.go", []byte("package main\n"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.Len(t, *seen, 1)
	assert.Equal(t, "form-key", (*seen)[0].APIKey)
	assert.Equal(t, "form-serper", (*seen)[0].SerperAPIKey)
	assert.Empty(t, f.srv.base.APIKey)
	assert.Empty(t, f.srv.base.SerperAPIKey)
}

// capturingServer records the configuration of every run that reaches the
// model factory.
func capturingServer(t *testing.T, base config.Config) (*fixture, *[]config.Config) {
	t.Helper()
	var seen []config.Config
	model := personaModel()
	eng := engine.New(engine.WithModelFactory(func(cfg config.Config) (providers.ChatModel, error) {
		seen = append(seen, cfg)
		return model, nil
	}))
	srv, err := New(Options{Engine: eng, Config: base, Gatherer: prometheus.NewRegistry()})
	require.NoError(t, err)
	return &fixture{srv: srv, handler: srv.Router(), model: model, cfg: base}, &seen
}

func TestReview_ModelSwitchDoesNotReuseProviderKey(t *testing.T) {
	for _, name := range []string{"TRIAD_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GOOGLE_API_KEY", "TRIAD_MODEL", "MODEL", "TRIAD_SERPER_API_KEY"} {
		t.Setenv(name, "")
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("GEMINI_API_KEY", "gemini-secret")
	t.Setenv("SERPER_API_KEY", "serper-secret")

	base, err := config.Load(nil)
	require.NoError(t, err)
	require.Equal(t, "gemini-secret", base.APIKey)
	f, seen := capturingServer(t, base)

	w := f.submit(t, map[string]string{"model": "openai/gpt-4o-mini"}, "main.go", []byte("package main\n"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "OPENAI_API_KEY")
	assert.Empty(t, *seen)
	assert.Empty(t, f.model.Calls())

	t.Setenv("OPENAI_API_KEY", "openai-secret")
	w = f.submit(t, map[string]string{"model": "openai/gpt-4o-mini"}, "main.go", []byte("package main\n"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, *seen, 1)
	assert.Equal(t, "openai-secret", (*seen)[0].APIKey)

	w = f.submit(t, map[string]string{"model": "anthropic/claude-sonnet-4-20250514", "api_key": "typed-key"}, "main.go", []byte("package main\n"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, *seen, 2)
	assert.Equal(t, "typed-key", (*seen)[1].APIKey)

	w = f.submit(t, nil, "main.go", []byte("package main\n"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, *seen, 3)
	assert.Equal(t, "gemini-secret", (*seen)[2].APIKey)
}

func TestReview_InvalidUTF8IsReplaced(t *testing.T) {
	f := setupServer(t, keyedConfig(), personaModel())

	w := f.submit(t, nil, "legacy.py", []byte("print('caf\xe9')\n"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var found bool
	for _, call := range f.model.Calls() {
		for _, m := range call.Messages {
			if strings.Contains(m.Content, "print('caf\uFFFD')") {
				found = true
			}
		}
	}
	assert.True(t, found, "the model should receive the upload with U+FFFD in place of the bad byte")
}

func TestReview_ClientDisconnectDoesNotCancelRun(t *testing.T) {
	f := setupServer(t, keyedConfig(), personaModel())

	body, ct := multipartBody(t, nil, "app.py", []byte("eval(input())\n"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/review", body).WithContext(ctx)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 3, strings.Count(w.Body.String(), `class="stage complete"`))
	assert.NotEmpty(t, f.model.Calls())
}

func TestReview_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.Config
		fields   map[string]string
		filename string
		content  []byte
		status   int
		message  string
	}{
		{"disallowed extension", keyedConfig(), nil, "tool.exe", []byte("MZ"), http.StatusBadRequest, "file type not allowed"},
		{"no file", keyedConfig(), nil, "", nil, http.StatusBadRequest, "a code file is required"},
		{"oversized", keyedConfig(), nil, "big.txt", bytes.Repeat([]byte("a"), MaxUploadBytes+10), http.StatusRequestEntityTooLarge, "upload exceeds"},
		{"empty file", keyedConfig(), nil, "empty.go", []byte("  \n"), http.StatusBadRequest, "uploaded file is empty"},
		{"unknown model", keyedConfig(), map[string]string{"model": "openai/gpt-9"}, "a.go", []byte("package a"), http.StatusBadRequest, "unsupported model"},
		{"missing keys", config.Default(), nil, "a.go", []byte("package a"), http.StatusBadRequest, "missing required configuration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupServer(t, tt.cfg, personaModel())
			w := f.submit(t, tt.fields, tt.filename, tt.content)
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.message)
			assert.Empty(t, f.model.Calls(), "model must not be called")
		})
	}
}

func TestReview_ConcurrentSubmissionConflict(t *testing.T) {
	f := setupServer(t, keyedConfig(), personaModel())

	f.srv.running.Lock()
	defer f.srv.running.Unlock()

	w := f.submit(t, nil, "a.go", []byte("package a"))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already running")
}

func TestReview_StageFailure(t *testing.T) {
	model := &providers.MockChatModel{Err: errors.New("provider unavailable")}
	f := setupServer(t, keyedConfig(), model)

	w := f.submit(t, nil, "a.go", []byte("package a"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 3, strings.Count(w.Body.String(), `class="stage failed"`))
	assert.Contains(t, w.Body.String(), "provider unavailable")
	assert.NotContains(t, w.Body.String(), "/reports/")
}

func TestDownload_NotFound(t *testing.T) {
	f := setupServer(t, keyedConfig(), personaModel())
	w := f.get("/reports/01NOPE")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := setupServer(t, keyedConfig(), personaModel())
	w := f.submit(t, nil, "a.go", []byte("package a"))
	require.Equal(t, http.StatusOK, w.Code)

	m := f.get("/metrics")
	assert.Equal(t, http.StatusOK, m.Code)
	assert.Contains(t, m.Body.String(), `triad_runs_total{status="success"} 1`)
}

func TestAllowedExtension(t *testing.T) {
	for _, name := range []string{"a.txt", "b.DIFF", "c.patch", "d.py", "e.js", "f.ts", "g.java", "h.go"} {
		assert.True(t, AllowedExtension(name), name)
	}
	for _, name := range []string{"a.exe", "b", "c.tsx", "d.go.bak"} {
		assert.False(t, AllowedExtension(name), name)
	}
}

func TestReportStore_Evicts(t *testing.T) {
	rs := newReportStore(2)
	for _, id := range []string{"a", "b", "c"} {
		rs.put(&output.Report{RunID: id})
	}
	_, ok := rs.get("a")
	assert.False(t, ok)
	_, ok = rs.get("c")
	assert.True(t, ok)
}
