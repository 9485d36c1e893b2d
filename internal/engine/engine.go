package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/triad/internal/agent"
	"github.com/dshills/triad/internal/config"
	"github.com/dshills/triad/internal/output"
	"github.com/dshills/triad/internal/pipeline"
	"github.com/dshills/triad/internal/providers"
	"github.com/dshills/triad/internal/redact"
	"github.com/dshills/triad/internal/tools"
)

// ErrRunInProgress is returned when a review is requested while another is
// executing on the same engine.
var ErrRunInProgress = pipeline.ErrRunInProgress

// ModelFactory constructs the chat model for a configuration.
type ModelFactory func(cfg config.Config) (providers.ChatModel, error)

// DefaultModelFactory builds the provider adapter named by cfg.Model.
func DefaultModelFactory(cfg config.Config) (providers.ChatModel, error) {
	return providers.New(cfg.Model, cfg.ProviderOptions())
}

// Engine turns a configuration and a request into a finished report. Each
// review builds its own model, tools and executor from the configuration it
// is given, so callers may vary credentials per run.
type Engine struct {
	newModel  ModelFactory
	toolOpts  []tools.Option
	logger    *slog.Logger
	metrics   *pipeline.Metrics
	tracer    trace.Tracer
	redactFor []string

	mu sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithModelFactory replaces the provider constructor.
func WithModelFactory(f ModelFactory) Option { return func(e *Engine) { e.newModel = f } }

// WithToolOptions passes options to the search and scrape tools.
func WithToolOptions(opts ...tools.Option) Option {
	return func(e *Engine) { e.toolOpts = append(e.toolOpts, opts...) }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithMetrics records pipeline metrics.
func WithMetrics(m *pipeline.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// WithTracer sets the tracer handed to each executor.
func WithTracer(t trace.Tracer) Option { return func(e *Engine) { e.tracer = t } }

// New creates an engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		newModel:  DefaultModelFactory,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		redactFor: redact.DefaultPaths,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Review validates cfg, optionally redacts the code, and runs the three
// stage pipeline. obs may be nil.
func (e *Engine) Review(ctx context.Context, cfg config.Config, req pipeline.Request, obs pipeline.Observer) (*output.Report, error) {
	if !e.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer e.mu.Unlock()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if cfg.Redact {
		res := redact.Content(req.Code, req.Source, e.redactFor)
		if res.Withheld || res.Total() > 0 {
			e.logger.Info("redacted submitted code",
				"source", req.Source, "replacements", res.Total(),
				"kinds", res.Kinds(), "withheld", res.Withheld)
		}
		req.Code = res.Text
	}

	model, err := e.newModel(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating %s model: %w", cfg.Model, err)
	}
	search, scrape := tools.Provision(cfg.SerperAPIKey, e.toolOpts...)
	graph, err := pipeline.Build(agent.NewRegistry(search, scrape))
	if err != nil {
		return nil, err
	}

	opts := []pipeline.Option{
		pipeline.WithMaxIterations(cfg.MaxIterations),
		pipeline.WithLogger(e.logger),
		pipeline.WithMetrics(e.metrics),
	}
	if obs != nil {
		opts = append(opts, pipeline.WithObserver(obs))
	}
	if e.tracer != nil {
		opts = append(opts, pipeline.WithTracer(e.tracer))
	}

	run, err := pipeline.NewExecutor(model, opts...).Run(ctx, graph, req)
	if err != nil {
		return nil, err
	}
	return output.NewReport(run, cfg.Model), nil
}

// IsInputError reports whether err was caused by the request rather than
// configuration or execution.
func IsInputError(err error) bool {
	return errors.Is(err, pipeline.ErrEmptyRequest)
}
