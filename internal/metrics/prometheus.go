package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StepsTotal counts routed steps.
	// Labels: state (Start, ModelResponded, ToolResponded), action (InvokeModel, InvokeTool, Finish, error)
	StepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "buildfile_agent",
			Subsystem: "orchestrator",
			Name:      "steps_total",
			Help:      "Total number of orchestration steps by state and resulting action",
		},
		[]string{"state", "action"},
	)

	// FinishesTotal counts terminal steps.
	// Labels: reason (completed, malformed_response, unknown_tool, missing_params)
	FinishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "buildfile_agent",
			Subsystem: "orchestrator",
			Name:      "finishes_total",
			Help:      "Total number of finished conversations by reason",
		},
		[]string{"reason"},
	)

	// ToolOutputTruncations counts tool results cut to the forwarding cap.
	ToolOutputTruncations = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "buildfile_agent",
			Subsystem: "orchestrator",
			Name:      "tool_output_truncations_total",
			Help:      "Total number of tool results truncated before being forwarded to the model",
		},
	)

	// FilesFetched counts per-path fetch outcomes.
	// Labels: result (ok, error, rejected)
	FilesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "buildfile_agent",
			Subsystem: "github",
			Name:      "files_fetched_total",
			Help:      "Total number of repository files fetched by result",
		},
		[]string{"result"},
	)

	// ModelCallDuration tracks model invocation latency.
	// Labels: result (success, error)
	ModelCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "buildfile_agent",
			Subsystem: "model",
			Name:      "call_duration_seconds",
			Help:      "Duration of model invocations in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"result"},
	)
)

// ObserveStep records one routed step.
func ObserveStep(state, action, reason string, truncated bool) {
	StepsTotal.WithLabelValues(state, action).Inc()
	if reason != "" {
		FinishesTotal.WithLabelValues(reason).Inc()
	}
	if truncated {
		ToolOutputTruncations.Inc()
	}
}

// ObserveFetch records one per-path fetch outcome.
func ObserveFetch(result string) {
	FilesFetched.WithLabelValues(result).Inc()
}

// ObserveModelCall records a model invocation.
func ObserveModelCall(d time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	ModelCallDuration.WithLabelValues(result).Observe(d.Seconds())
}
