package bantai

import (
	"context"
	"fmt"

	"github.com/bantai/bantai/internal/clock"
	"github.com/bantai/bantai/internal/idgen"
	"github.com/bantai/bantai/schema"
)

// EvalOption configures a single EvaluatePolicy call.
type EvalOption func(*evalConfig)

type evalConfig struct {
	strategy    Strategy
	strategySet bool
	traceID     string
	requestID   string
	clock       clock.Clock
}

// WithStrategy overrides the policy's DefaultStrategy for this call only.
func WithStrategy(s Strategy) EvalOption {
	return func(c *evalConfig) {
		c.strategy = s
		c.strategySet = true
	}
}

// WithTrace attaches trace/request identifiers, consumed by the audit
// extension's recorder when present.
func WithTrace(traceID, requestID string) EvalOption {
	return func(c *evalConfig) {
		c.traceID = traceID
		c.requestID = requestID
	}
}

// WithClock overrides the clock used for rule-duration measurement,
// primarily for tests.
func WithClock(c clock.Clock) EvalOption {
	return func(cfg *evalConfig) { cfg.clock = c }
}

// EvaluatePolicy executes policy against input and aggregates rule
// results into a PolicyResult. Rules run sequentially, in declaration
// order, on the calling goroutine; the evaluator never reorders or
// parallelizes them.
func EvaluatePolicy(ctx context.Context, p Policy, input map[string]any, opts ...EvalOption) (PolicyResult, error) {
	cfg := evalConfig{strategy: p.DefaultStrategy, clock: clock.Default}
	for _, opt := range opts {
		opt(&cfg)
	}
	now := clock.OrDefault(cfg.clock)

	parsed, err := schema.Parse(p.Context.Schema, input, p.Context.Defaults, false)
	if err != nil {
		return PolicyResult{}, err
	}

	var recorder AuditRecorder
	if factory, ok := p.Context.Tool(ToolAudit); ok {
		if f, ok := factory.(AuditRecorderFactory); ok {
			evaluationID := idgen.New(idgen.NamespaceEvaluation)
			recorder = f.NewRecorder(p.ID, p.Name, p.Version, evaluationID, cfg.traceID, cfg.requestID)
		}
	}

	var metricsRecorder MetricsRecorder
	var metricsEnd func(Kind, int64)
	if m, ok := p.Context.Tool(ToolMetrics); ok {
		if mr, ok := m.(MetricsRecorder); ok {
			metricsRecorder = mr
			ctx, metricsEnd = mr.EvaluationStarted(ctx, p.ID, p.Name)
		}
	}

	var rootEventID string
	var tailEventID string
	policyStart := now()
	if recorder != nil {
		rootEventID, err = recorder.PolicyStart()
		if err != nil {
			return PolicyResult{}, err
		}
		tailEventID = rootEventID
	}

	ruleCtx := RuleContext{Tools: p.Context.Tools, Clock: cfg.clock}

	evaluatedRules := make([]EvaluatedRule, 0, len(p.Rules))
	violatedRules := make([]EvaluatedRule, 0, len(p.Rules))

ruleLoop:
	for _, rule := range p.Rules {
		var ruleStartID string
		ruleStart := now()
		if recorder != nil {
			ruleStartID, err = recorder.RuleStart(rootEventID, rule.ID, rule.Name)
			if err != nil {
				return PolicyResult{}, err
			}
		}

		result, warning := runRule(ctx, rule, parsed, ruleCtx)
		ruleDurationMs := now().Sub(ruleStart).Milliseconds()

		if recorder != nil {
			if err := recorder.RuleDecision(ruleStartID, rule.ID, rule.Name, result.Kind, result.Reason, result.Meta); err != nil {
				return PolicyResult{}, err
			}
			ruleEndID, err := recorder.RuleEnd(ruleStartID, rule.ID, rule.Name, ruleDurationMs)
			if err != nil {
				return PolicyResult{}, err
			}
			tailEventID = ruleEndID
		}
		if metricsRecorder != nil {
			metricsRecorder.RuleEvaluated(rule.ID, rule.Name, result.Kind, ruleDurationMs)
		}

		entry := EvaluatedRule{RuleID: rule.ID, RuleName: rule.Name, Result: result, Warning: warning}
		evaluatedRules = append(evaluatedRules, entry)

		switch result.Kind {
		case KindAllow:
			// continue
		case KindSkip:
			// never a violation
		case KindDeny:
			violatedRules = append(violatedRules, entry)
			if cfg.strategy == StrategyPreemptive {
				break ruleLoop
			}
		}
	}

	decision := KindAllow
	reason := ReasonPolicyEnforced
	if len(violatedRules) > 0 {
		decision = KindDeny
		reason = ReasonPolicyViolated
	}

	totalMs := now().Sub(policyStart).Milliseconds()

	if recorder != nil {
		// policy.decision and policy.end are parented to the last emitted
		// event (the final rule.end, or policy.start itself when no rules
		// ran) rather than back to policy.start, so the root event's
		// children are exactly the rule.start events: spec.md's S6 tree
		// shape ("one root and two children" for a two-rule policy).
		if err := recorder.PolicyDecision(tailEventID, decision, reason); err != nil {
			return PolicyResult{}, err
		}
		if err := recorder.PolicyEnd(tailEventID, totalMs); err != nil {
			return PolicyResult{}, err
		}
	}
	if metricsEnd != nil {
		metricsEnd(decision, totalMs)
	}

	return PolicyResult{
		Decision:       decision,
		Reason:         reason,
		Strategy:       cfg.strategy,
		EvaluatedRules: evaluatedRules,
		ViolatedRules:  violatedRules,
	}, nil
}

// runRule invokes rule.Evaluate with panic/error recovery, then its
// matching hook. It never returns a Go error: evaluator failures are
// folded into the returned Result (per spec.md section 7). A hook that
// returns an error is non-fatal, surfaced as warning alongside the rule's
// own Result rather than overriding it; a hook that panics is recovered
// and turns the rule's Result into a synthetic deny with meta["error"].
func runRule(ctx context.Context, rule Rule, input schema.ParsedInput, ruleCtx RuleContext) (result Result, warning string) {
	result = invokeEvaluate(ctx, rule, input, ruleCtx)

	defer func() {
		if r := recover(); r != nil {
			hook := "onDeny"
			if result.Kind == KindAllow {
				hook = "onAllow"
			}
			hookErr := &HookError{RuleID: rule.ID, Hook: hook, Err: fmt.Errorf("panic: %v", r)}
			result = Deny(ResultOpts{Reason: hookErr.Error()}).withMeta("error", hookErr.Error())
			warning = ""
		}
	}()
	warning, _ = rule.runHook(ctx, input, ruleCtx, result)
	return result, warning
}

// invokeEvaluate calls rule.Evaluate, recovering a panic and converting
// either a panic or a returned error into a synthetic deny with
// meta["error"] set, so that rule.Evaluate is effectively total from the
// evaluator's point of view.
func invokeEvaluate(ctx context.Context, rule Rule, input schema.ParsedInput, ruleCtx RuleContext) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			err := &RuleError{RuleID: rule.ID, Err: fmt.Errorf("panic: %v", r)}
			result = Deny(ResultOpts{Reason: err.Error()}).withMeta("error", err.Error())
		}
	}()

	r, err := rule.Evaluate(ctx, input, ruleCtx)
	if err != nil {
		ruleErr := &RuleError{RuleID: rule.ID, Err: err}
		return Deny(ResultOpts{Reason: ruleErr.Error()}).withMeta("error", ruleErr.Error())
	}
	return r
}
