package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bantai/bantai"
)

// Recorder implements bantai.MetricsRecorder. Its two Prometheus
// collectors are named and labeled after the teacher's
// http.Metrics.PolicyEvaluations/RequestDuration pair.
type Recorder struct {
	evaluationsTotal *prometheus.CounterVec
	ruleDuration     *prometheus.HistogramVec
	tracer           trace.Tracer
}

// NewRecorder registers its collectors with reg and uses tracer for
// evaluation spans. Pass metrics.Tracer(providers.TracerProvider) (or
// nil for a no-op tracer) as tracer.
func NewRecorder(reg prometheus.Registerer, tracer trace.Tracer) *Recorder {
	if tracer == nil {
		tracer = Tracer(nil)
	}
	return &Recorder{
		evaluationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bantai",
				Name:      "policy_evaluations_total",
				Help:      "Total policy evaluations, by policy and decision",
			},
			[]string{"policy", "decision"},
		),
		ruleDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "bantai",
				Name:      "rule_duration_seconds",
				Help:      "Rule evaluation duration in seconds, by rule and decision",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"rule", "decision"},
		),
		tracer: tracer,
	}
}

// EvaluationStarted implements bantai.MetricsRecorder.
func (r *Recorder) EvaluationStarted(ctx context.Context, policyID, policyName string) (context.Context, func(bantai.Kind, int64)) {
	spanCtx, span := r.tracer.Start(ctx, "bantai.evaluatePolicy",
		trace.WithAttributes(
			attribute.String("bantai.policy.id", policyID),
			attribute.String("bantai.policy.name", policyName),
		),
	)

	return spanCtx, func(decision bantai.Kind, durationMs int64) {
		r.evaluationsTotal.WithLabelValues(policyName, decision.String()).Inc()
		span.SetAttributes(
			attribute.String("bantai.decision", decision.String()),
			attribute.Int64("bantai.duration_ms", durationMs),
		)
		if decision == bantai.KindDeny {
			span.SetStatus(codes.Error, "policy denied")
		}
		span.End()
	}
}

// RuleEvaluated implements bantai.MetricsRecorder.
func (r *Recorder) RuleEvaluated(_, ruleName string, decision bantai.Kind, durationMs int64) {
	r.ruleDuration.WithLabelValues(ruleName, decision.String()).Observe(float64(durationMs) / 1000)
}

var _ bantai.MetricsRecorder = (*Recorder)(nil)
