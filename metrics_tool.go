package bantai

import "context"

// ToolMetrics is the well-known Context.Tools key the metrics extension
// registers its recorder under. As with ToolAudit and ToolRateLimit,
// the interface lives here so EvaluatePolicy can discover it without
// the root package importing the metrics package.
const ToolMetrics = "metrics"

// MetricsRecorder is implemented by the metrics extension's tool. It is
// purely observational: nothing it does can change a PolicyResult, per
// spec.md's "these are purely observational" carve-out for the engine's
// own internals.
type MetricsRecorder interface {
	// EvaluationStarted is called once per EvaluatePolicy call, before
	// the first rule runs. It returns a context (for tracing span
	// propagation, if the implementation creates one) and a function to
	// call exactly once, with the final decision and total duration,
	// when the evaluation completes.
	EvaluationStarted(ctx context.Context, policyID, policyName string) (context.Context, func(decision Kind, durationMs int64))

	// RuleEvaluated is called once per rule, after its Result and hook
	// have both run.
	RuleEvaluated(ruleID, ruleName string, decision Kind, durationMs int64)
}
