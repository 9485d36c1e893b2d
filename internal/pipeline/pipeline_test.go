package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/dshills/triad/internal/agent"
	"github.com/dshills/triad/internal/providers"
	"github.com/dshills/triad/internal/review"
)

const (
	cleanQuality  = `{"critical_issues": [], "minor_issues": [], "reasoning": "Trivial function."}`
	cleanSecurity = "```json\n{\"security_vulnerabilities\": [], \"blocking\": false, \"highest_risk\": \"Low\", \"security_recommendations\": []}\n```"
	secretFinding = `{"security_vulnerabilities":[{"description":"hardcoded secret","risk_level":"Critical"}],"blocking":true,"highest_risk":"Critical","security_recommendations":["use a secret manager"]}`
)

// roleModel answers according to the persona in the system prompt.
func roleModel(answers map[string]providers.ChatOut, errs map[string]error) *providers.MockChatModel {
	return &providers.MockChatModel{Handler: func(messages []providers.Message, _ []providers.ToolSpec) (providers.ChatOut, error) {
		system := messages[0].Content
		for role, err := range errs {
			if strings.Contains(system, "You are "+role+".") {
				return providers.ChatOut{}, err
			}
		}
		for role, out := range answers {
			if strings.Contains(system, "You are "+role+".") {
				return out, nil
			}
		}
		return providers.ChatOut{}, errors.New("unexpected persona")
	}}
}

func buildGraph(t *testing.T) *Graph {
	t.Helper()
	g, err := Build(agent.NewRegistry(nil, nil))
	require.NoError(t, err)
	return g
}

func TestBuild_Shape(t *testing.T) {
	g := buildGraph(t)

	stages := g.Stages()
	require.Len(t, stages, 3)
	assert.Equal(t, StageQuality, stages[0].Name)
	assert.Equal(t, StageSecurity, stages[1].Name)
	assert.Equal(t, StageDecision, stages[2].Name)

	assert.Empty(t, stages[0].DependsOn)
	assert.Empty(t, stages[1].DependsOn)
	assert.ElementsMatch(t, []StageName{StageQuality, StageSecurity}, stages[2].DependsOn)

	assert.Equal(t, "Senior Developer", stages[0].Agent.Role)
	assert.Equal(t, "Security Engineer", stages[1].Agent.Role)
	assert.Equal(t, "Tech Lead", stages[2].Agent.Role)

	levels, err := g.Levels()
	require.NoError(t, err)
	require.Len(t, levels, 2)
	assert.Equal(t, []StageName{StageQuality, StageSecurity}, names(levels[0]))
	assert.Equal(t, []StageName{StageDecision}, names(levels[1]))
}

func names(stages []Stage) []StageName {
	out := make([]StageName, 0, len(stages))
	for _, s := range stages {
		out = append(out, s.Name)
	}
	return out
}

func TestValidate_Rejects(t *testing.T) {
	q := Stage{Name: StageQuality}
	s := Stage{Name: StageSecurity}
	d := Stage{Name: StageDecision, DependsOn: []StageName{StageQuality, StageSecurity}}

	tests := []struct {
		name   string
		stages []Stage
		want   string
	}{
		{"cycle", []Stage{{Name: StageQuality, DependsOn: []StageName{StageDecision}}, s, d}, "cycle"},
		{"unknown dependency", []Stage{q, {Name: StageSecurity, DependsOn: []StageName{"lint"}}, d}, "unknown stage"},
		{"duplicate", []Stage{q, q, s, d}, "duplicate"},
		{"missing decision", []Stage{q, s}, "missing stage"},
		{"decision on one root", []Stage{q, s, {Name: StageDecision, DependsOn: []StageName{StageQuality}}}, "exactly"},
		{"reviewers coupled", []Stage{q, {Name: StageSecurity, DependsOn: []StageName{StageQuality}}, d}, "must not depend"},
		{"unnamed", []Stage{{}, s, d}, "no name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewGraph(tt.stages...).Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	assert.ErrorIs(t, NewGraph(Stage{Name: "a", DependsOn: []StageName{"b"}}, Stage{Name: "b", DependsOn: []StageName{"a"}}).Validate(), ErrCycle)
}

func TestExecutor_CleanRun(t *testing.T) {
	model := roleModel(map[string]providers.ChatOut{
		"Senior Developer":  {Text: cleanQuality},
		"Security Engineer": {Text: cleanSecurity},
		"Tech Lead":         {Text: "Final decision: Approved. No changes required."},
	}, nil)

	run, err := NewExecutor(model).Run(context.Background(), buildGraph(t), Request{Code: "def f(): pass", Source: "test"})
	require.NoError(t, err)
	require.Len(t, run.Results, 3)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, []StageName{StageQuality, StageSecurity, StageDecision},
		[]StageName{run.Results[0].Stage, run.Results[1].Stage, run.Results[2].Stage})

	in := review.Interpret(run.Raw(StageQuality), run.Raw(StageSecurity), run.Raw(StageDecision))
	assert.Equal(t, review.GatePass, in.Summary.Gate.Value)
	assert.Equal(t, "0", in.Summary.CriticalCount.Value)
	assert.Equal(t, review.Approved, in.Disposition)

	// The decision stage sees the code and both upstream outputs.
	var decisionPrompt string
	for _, c := range model.Calls() {
		if strings.Contains(c.Messages[0].Content, "You are Tech Lead.") {
			decisionPrompt = c.Messages[1].Content
		}
	}
	assert.Contains(t, decisionPrompt, "def f(): pass")
	assert.Contains(t, decisionPrompt, "### Analyze Code Quality\n"+cleanQuality)
	assert.Contains(t, decisionPrompt, "### Review Security\n")
	assert.Contains(t, decisionPrompt, `"blocking": false`)
}

func TestExecutor_BlockingSecurity(t *testing.T) {
	model := roleModel(map[string]providers.ChatOut{
		"Senior Developer":  {Text: cleanQuality},
		"Security Engineer": {Text: secretFinding},
		"Tech Lead":         {Text: "Decision: Request Changes"},
	}, nil)

	run, err := NewExecutor(model).Run(context.Background(), buildGraph(t), Request{Code: `API_KEY = "sk-123"`})
	require.NoError(t, err)

	in := review.Interpret(run.Raw(StageQuality), run.Raw(StageSecurity), run.Raw(StageDecision))
	assert.Equal(t, review.GateBlock, in.Summary.Gate.Value)
	assert.Equal(t, "Critical", in.Summary.HighestRisk.Value)
	assert.Equal(t, review.RequestChanges, in.Disposition)
}

func TestExecutor_ProseQuality(t *testing.T) {
	model := roleModel(map[string]providers.ChatOut{
		"Senior Developer":  {Text: "The function is fine but lacks a docstring."},
		"Security Engineer": {Text: cleanSecurity},
		"Tech Lead":         {Text: "Decision: Approved with conditions"},
	}, nil)

	run, err := NewExecutor(model).Run(context.Background(), buildGraph(t), Request{Code: "def f(): pass"})
	require.NoError(t, err)
	require.Len(t, run.Results, 3)

	in := review.Interpret(run.Raw(StageQuality), run.Raw(StageSecurity), run.Raw(StageDecision))
	assert.False(t, in.Quality.OK())
	assert.Nil(t, in.QualityView)
	assert.Equal(t, review.Unknown, in.Summary.CriticalCount.Value)
	assert.NotEmpty(t, run.Raw(StageDecision))
}

type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) add(s string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, s)
}

func (o *recordingObserver) StageStarted(_ string, st Stage)         { o.add("start:" + string(st.Name)) }
func (o *recordingObserver) StageFinished(_ string, r StageResult)   { o.add("done:" + string(r.Stage)) }
func (o *recordingObserver) StageFailed(_ string, st Stage, _ error) { o.add("fail:" + string(st.Name)) }
func (o *recordingObserver) RunFailed(string, error)                 { o.add("run-failed") }

func TestExecutor_SecurityFailureIsAtomic(t *testing.T) {
	quota := errors.New("quota exceeded")
	model := roleModel(map[string]providers.ChatOut{
		"Senior Developer": {Text: cleanQuality},
		"Tech Lead":        {Text: "Approved"},
	}, map[string]error{"Security Engineer": quota})
	obs := &recordingObserver{}

	run, err := NewExecutor(model, WithObserver(obs)).Run(context.Background(), buildGraph(t), Request{Code: "x = 1"})
	require.Error(t, err)
	assert.Nil(t, run)
	assert.ErrorIs(t, err, quota)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageSecurity, se.Stage)

	for _, c := range model.Calls() {
		assert.NotContains(t, c.Messages[0].Content, "You are Tech Lead.", "decision must not run after a failure")
	}
	assert.Contains(t, obs.events, "fail:security")
	assert.Contains(t, obs.events, "run-failed")
	assert.NotContains(t, obs.events, "start:decision")
}

func TestExecutor_EmptyRequest(t *testing.T) {
	model := &providers.MockChatModel{}
	_, err := NewExecutor(model).Run(context.Background(), buildGraph(t), Request{Code: "  \n"})
	assert.ErrorIs(t, err, ErrEmptyRequest)
	assert.Empty(t, model.Calls())
}

func TestExecutor_SingleFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 3)
	model := &providers.MockChatModel{Handler: func([]providers.Message, []providers.ToolSpec) (providers.ChatOut, error) {
		started <- struct{}{}
		<-release
		return providers.ChatOut{Text: "{}"}, nil
	}}
	e := NewExecutor(model)
	g := buildGraph(t)

	errc := make(chan error, 1)
	go func() {
		_, err := e.Run(context.Background(), g, Request{Code: "a"})
		errc <- err
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first run never started")
	}
	_, err := e.Run(context.Background(), g, Request{Code: "b"})
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(release)
	require.NoError(t, <-errc)
}

func TestExecutor_MetricsAndSpans(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	search := &stubTool{name: "search_owasp"}
	reg2 := agent.NewRegistry(search, nil)
	g, err := Build(reg2)
	require.NoError(t, err)

	securityTurns := 0
	model := &providers.MockChatModel{Handler: func(messages []providers.Message, _ []providers.ToolSpec) (providers.ChatOut, error) {
		if strings.Contains(messages[0].Content, "You are Security Engineer.") {
			securityTurns++
			if securityTurns == 1 {
				return providers.ChatOut{ToolCalls: []providers.ToolCall{{ID: "1", Name: "search_owasp", Input: map[string]any{"query": "x"}}}}, nil
			}
			return providers.ChatOut{Text: cleanSecurity}, nil
		}
		return providers.ChatOut{Text: cleanQuality}, nil
	}}

	_, err = NewExecutor(model, WithMetrics(metrics), WithTracer(tp.Tracer("test"))).
		Run(context.Background(), g, Request{Code: "x"})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.toolCalls.WithLabelValues("search_owasp", "success")))
	assert.Equal(t, 3, testutil.CollectAndCount(metrics.stageDuration))

	spans := exporter.GetSpans()
	assert.Len(t, spans, 4)
	var runSpans int
	for _, s := range spans {
		if s.Name == "triad.run" {
			runSpans++
		}
	}
	assert.Equal(t, 1, runSpans)
}

type stubTool struct{ name string }

func (s *stubTool) Name() string { return s.name }
func (s *stubTool) Spec() providers.ToolSpec {
	return providers.ToolSpec{Name: s.name}
}
func (s *stubTool) Call(context.Context, map[string]any) (string, error) { return "ok", nil }

func TestNewRunID_Unique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewRunID()
		assert.Len(t, id, 26)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestRenderInstruction_CodeIsData(t *testing.T) {
	out, err := renderInstruction(Stage{Name: StageQuality, Instruction: qualityInstruction}, Request{Code: "x := {{.Secret}}"})
	require.NoError(t, err)
	assert.Contains(t, out, "x := {{.Secret}}")
}
