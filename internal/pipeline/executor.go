package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"text/template"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/triad/internal/agent"
	"github.com/dshills/triad/internal/providers"
)

// ErrRunInProgress is returned when Run is called while another run on the
// same executor is still executing.
var ErrRunInProgress = errors.New("a review run is already in progress")

// StageError reports the stage whose failure aborted a run.
type StageError struct {
	Stage StageName
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Executor runs a stage graph against one chat model.
type Executor struct {
	model         providers.ChatModel
	maxIterations int
	logger        *slog.Logger
	observer      Observer
	metrics       *Metrics
	tracer        trace.Tracer

	mu sync.Mutex
}

// Option configures an Executor.
type Option func(*Executor)

// WithMaxIterations bounds each agent's tool loop.
func WithMaxIterations(n int) Option { return func(e *Executor) { e.maxIterations = n } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(e *Executor) { e.logger = l } }

// WithObserver sets the progress observer.
func WithObserver(o Observer) Option { return func(e *Executor) { e.observer = o } }

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option { return func(e *Executor) { e.metrics = m } }

// WithTracer sets the OpenTelemetry tracer. The global provider is used by
// default.
func WithTracer(t trace.Tracer) Option { return func(e *Executor) { e.tracer = t } }

// NewExecutor creates an executor for model.
func NewExecutor(model providers.ChatModel, opts ...Option) *Executor {
	e := &Executor{
		model:         model,
		maxIterations: agent.DefaultMaxIterations,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		observer:      NopObserver{},
		tracer:        otel.Tracer("github.com/dshills/triad/internal/pipeline"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes every stage of g for req. Independent stages run
// concurrently; a stage starts only after all of its dependencies finished.
// The run is atomic: if any stage fails, Run returns nil and a *StageError
// and no later stage is executed.
func (e *Executor) Run(ctx context.Context, g *Graph, req Request) (*Run, error) {
	if !e.mu.TryLock() {
		e.metrics.countRun("rejected")
		return nil, ErrRunInProgress
	}
	defer e.mu.Unlock()

	run := &Run{ID: NewRunID(), Request: req, Started: time.Now()}
	log := e.logger.With("run_id", run.ID)

	ctx, span := e.tracer.Start(ctx, "triad.run", trace.WithAttributes(
		attribute.String("triad.run_id", run.ID),
		attribute.String("triad.source", req.Source),
		attribute.Int("triad.code_bytes", len(req.Code)),
		attribute.String("triad.model", e.model.Name()),
	))
	defer span.End()

	log.Info("review run started", "source", req.Source, "bytes", len(req.Code))
	results, err := e.execute(ctx, run.ID, g, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.metrics.countRun("error")
		e.observer.RunFailed(run.ID, err)
		log.Error("review run failed", "error", err)
		return nil, err
	}

	run.Results = results
	run.Finished = time.Now()
	e.metrics.countRun("success")
	log.Info("review run finished", "duration", run.Finished.Sub(run.Started))
	return run, nil
}

func (e *Executor) execute(ctx context.Context, runID string, g *Graph, req Request) ([]StageResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid stage graph: %w", err)
	}
	levels, err := g.Levels()
	if err != nil {
		return nil, err
	}

	prompts := make(map[StageName]string, len(g.stages))
	for _, st := range g.stages {
		p, err := renderInstruction(st, req)
		if err != nil {
			return nil, &StageError{Stage: st.Name, Err: err}
		}
		prompts[st.Name] = p
	}

	var mu sync.Mutex
	done := make(map[StageName]StageResult, len(g.stages))

	for _, level := range levels {
		eg, lctx := errgroup.WithContext(ctx)
		for _, st := range level {
			upstream := make([]agent.ContextItem, 0, len(st.DependsOn))
			for _, dep := range st.DependsOn {
				depStage, _ := g.Stage(dep)
				upstream = append(upstream, agent.ContextItem{Title: depStage.Title, Output: done[dep].Raw})
			}
			task := agent.Task{Instruction: prompts[st.Name], ExpectedOutput: st.ExpectedOutput, Context: upstream}

			eg.Go(func() error {
				res, err := e.runStage(lctx, runID, st, task)
				if err != nil {
					return &StageError{Stage: st.Name, Err: err}
				}
				mu.Lock()
				done[st.Name] = res
				mu.Unlock()
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
	}

	results := make([]StageResult, 0, len(g.stages))
	for _, st := range g.stages {
		results = append(results, done[st.Name])
	}
	return results, nil
}

func (e *Executor) runStage(ctx context.Context, runID string, st Stage, task agent.Task) (StageResult, error) {
	ctx, span := e.tracer.Start(ctx, "triad.stage", trace.WithAttributes(
		attribute.String("triad.stage", string(st.Name)),
		attribute.String("triad.agent", st.Agent.Role),
	))
	defer span.End()

	e.observer.StageStarted(runID, st)
	start := time.Now()

	runner := &agent.Runner{
		Model:         e.model,
		MaxIterations: e.maxIterations,
		Logger:        e.logger.With("run_id", runID, "stage", string(st.Name)),
		OnToolCall:    e.metrics.countToolCall,
	}
	out, err := runner.Run(ctx, st.Agent, task)
	elapsed := time.Since(start)
	e.metrics.observeStage(st.Name, elapsed.Seconds(), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.observer.StageFailed(runID, st, err)
		return StageResult{}, err
	}

	span.SetAttributes(
		attribute.Int("triad.tool_calls", out.ToolCalls),
		attribute.Int("triad.tokens_used", out.TokensUsed),
	)
	res := StageResult{
		Stage:      st.Name,
		Agent:      st.Agent.Role,
		Raw:        out.Text,
		Duration:   elapsed,
		ToolCalls:  out.ToolCalls,
		TokensUsed: out.TokensUsed,
	}
	e.observer.StageFinished(runID, res)
	return res, nil
}

func renderInstruction(st Stage, req Request) (string, error) {
	tmpl, err := template.New(string(st.Name)).Option("missingkey=error").Parse(st.Instruction)
	if err != nil {
		return "", fmt.Errorf("parsing instruction: %w", err)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, req); err != nil {
		return "", fmt.Errorf("rendering instruction: %w", err)
	}
	return b.String(), nil
}
