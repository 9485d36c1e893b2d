package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records pipeline execution metrics. A nil *Metrics records
// nothing.
//
// Metrics exposed (namespace "triad"):
//   - stage_duration_seconds (histogram): labels stage, status (success/error)
//   - runs_total (counter): labels status (success/error/rejected)
//   - tool_calls_total (counter): labels tool, status (success/error)
type Metrics struct {
	stageDuration *prometheus.HistogramVec
	runs          *prometheus.CounterVec
	toolCalls     *prometheus.CounterVec
}

// NewMetrics creates and registers the pipeline metrics with registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "triad",
			Name:      "stage_duration_seconds",
			Help:      "Wall-clock duration of each review stage, including tool calls",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80, 160, 320},
		}, []string{"stage", "status"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "triad",
			Name:      "runs_total",
			Help:      "Review runs by outcome",
		}, []string{"status"}),
		toolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "triad",
			Name:      "tool_calls_total",
			Help:      "Agent tool invocations by tool and outcome",
		}, []string{"tool", "status"}),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (m *Metrics) observeStage(stage StageName, seconds float64, err error) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(string(stage), status(err)).Observe(seconds)
}

func (m *Metrics) countRun(outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) countToolCall(tool string, err error) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, status(err)).Inc()
}
