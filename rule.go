package bantai

import (
	"context"
	"fmt"
	"time"

	"github.com/bantai/bantai/internal/clock"
	"github.com/bantai/bantai/internal/idgen"
	"github.com/bantai/bantai/schema"
)

// RuleVersion is the version tag stamped onto every Rule.
const RuleVersion = "v1"

// RuleContext is the per-call environment a rule evaluator and its hooks
// see: a read-only view of the bound Context's tools and an injectable
// clock.
type RuleContext struct {
	Tools map[string]any
	Clock clock.Clock
}

// Tool returns the tool registered under name, and whether it was present.
func (rc RuleContext) Tool(name string) (any, bool) {
	v, ok := rc.Tools[name]
	return v, ok
}

// Now returns the current time from the rule's injected clock.
func (rc RuleContext) Now() time.Time {
	return clock.OrDefault(rc.Clock)()
}

// RuleFunc is a named asynchronous predicate bound to a Context. It must
// be total: a panic is recovered by EvaluatePolicy and converted to a
// RuleError, and a returned error is likewise converted rather than
// propagated.
type RuleFunc func(ctx context.Context, input schema.ParsedInput, ruleCtx RuleContext) (Result, error)

// Hook runs after a rule's evaluator returns, selected by the Result it
// produced.
type Hook func(ctx context.Context, input schema.ParsedInput, ruleCtx RuleContext, result Result) error

// Rule is a named predicate bound to a Context, plus optional hooks that
// run after the verdict but before policy aggregation.
type Rule struct {
	ID       string
	Name     string
	Version  string
	Context  Context
	Evaluate RuleFunc
	OnAllow  Hook
	OnDeny   Hook
}

// RuleOption configures DefineRule.
type RuleOption func(*Rule)

// WithOnAllow attaches a hook that runs only when the rule's result is
// KindAllow.
func WithOnAllow(h Hook) RuleOption {
	return func(r *Rule) { r.OnAllow = h }
}

// WithOnDeny attaches a hook that runs only when the rule's result is
// KindDeny.
func WithOnDeny(h Hook) RuleOption {
	return func(r *Rule) { r.OnDeny = h }
}

// DefineRule normalizes name into id "rule:<slug>" (lowercase,
// non-alphanumeric runs collapsed to a single dash) and stores evaluate
// and any hooks by value without executing them.
func DefineRule(ctx Context, name string, evaluate RuleFunc, opts ...RuleOption) (Rule, error) {
	if name == "" {
		return Rule{}, fmt.Errorf("bantai: rule name must not be empty")
	}
	if evaluate == nil {
		return Rule{}, fmt.Errorf("bantai: rule %q: evaluate must not be nil", name)
	}

	r := Rule{
		ID:       "rule:" + idgen.Slugify(name),
		Name:     name,
		Version:  RuleVersion,
		Context:  ctx,
		Evaluate: evaluate,
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r, nil
}

// runHook runs the hook matching result.Kind, if any. A hook failure is
// non-fatal: runHook returns the failure's message as warning rather than
// propagating it, so the caller can keep result and surface the message
// via EvaluatedRule.Warning. KindSkip never runs a hook.
func (r Rule) runHook(ctx context.Context, input schema.ParsedInput, ruleCtx RuleContext, result Result) (warning string, err error) {
	var hook Hook
	var name string
	switch result.Kind {
	case KindAllow:
		hook, name = r.OnAllow, "onAllow"
	case KindDeny:
		hook, name = r.OnDeny, "onDeny"
	default:
		return "", nil
	}
	if hook == nil {
		return "", nil
	}
	if hookErr := hook(ctx, input, ruleCtx, result); hookErr != nil {
		wrapped := &HookError{RuleID: r.ID, Hook: name, Err: hookErr}
		return wrapped.Error(), wrapped
	}
	return "", nil
}
