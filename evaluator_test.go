package bantai

import (
	"context"
	"errors"
	"testing"

	"github.com/bantai/bantai/schema"
)

func fixedResultRule(ctx Context, name string, kind Kind) Rule {
	r, err := DefineRule(ctx, name, func(context.Context, schema.ParsedInput, RuleContext) (Result, error) {
		return Result{Kind: kind, Reason: name}, nil
	})
	if err != nil {
		panic(err)
	}
	return r
}

func TestEvaluatePolicy_PreemptiveStopsAtFirstDeny(t *testing.T) {
	t.Parallel()

	ctx, _ := DefineContext(schema.Record{}, ContextOptions{})
	r1 := fixedResultRule(ctx, "r1", KindAllow)
	r2 := fixedResultRule(ctx, "r2", KindDeny)
	r3 := fixedResultRule(ctx, "r3", KindAllow)

	p, err := DefinePolicy(ctx, "p", []Rule{r1, r2, r3})
	if err != nil {
		t.Fatalf("DefinePolicy() error: %v", err)
	}

	result, err := EvaluatePolicy(context.Background(), p, map[string]any{})
	if err != nil {
		t.Fatalf("EvaluatePolicy() error: %v", err)
	}
	if result.Decision != KindDeny {
		t.Fatalf("Decision = %v, want KindDeny", result.Decision)
	}
	if len(result.EvaluatedRules) != 2 {
		t.Errorf("len(EvaluatedRules) = %d, want 2 (r3 must not run)", len(result.EvaluatedRules))
	}
	if len(result.ViolatedRules) != 1 || result.ViolatedRules[0].RuleName != "r2" {
		t.Errorf("ViolatedRules = %+v, want exactly r2", result.ViolatedRules)
	}
}

func TestEvaluatePolicy_ExhaustiveRunsEveryRule(t *testing.T) {
	t.Parallel()

	ctx, _ := DefineContext(schema.Record{}, ContextOptions{})
	r1 := fixedResultRule(ctx, "r1", KindDeny)
	r2 := fixedResultRule(ctx, "r2", KindDeny)
	r3 := fixedResultRule(ctx, "r3", KindAllow)

	p, err := DefinePolicy(ctx, "p", []Rule{r1, r2, r3}, WithDefaultStrategy(StrategyExhaustive))
	if err != nil {
		t.Fatalf("DefinePolicy() error: %v", err)
	}

	result, err := EvaluatePolicy(context.Background(), p, map[string]any{})
	if err != nil {
		t.Fatalf("EvaluatePolicy() error: %v", err)
	}
	if len(result.EvaluatedRules) != 3 {
		t.Errorf("len(EvaluatedRules) = %d, want 3", len(result.EvaluatedRules))
	}
	if len(result.ViolatedRules) != 2 {
		t.Errorf("len(ViolatedRules) = %d, want 2", len(result.ViolatedRules))
	}
}

func TestEvaluatePolicy_SkipNeverViolatesOrBlocksLaterRules(t *testing.T) {
	t.Parallel()

	ctx, _ := DefineContext(schema.Record{}, ContextOptions{})
	r1 := fixedResultRule(ctx, "r1", KindSkip)
	r2 := fixedResultRule(ctx, "r2", KindAllow)

	p, err := DefinePolicy(ctx, "p", []Rule{r1, r2})
	if err != nil {
		t.Fatalf("DefinePolicy() error: %v", err)
	}

	result, err := EvaluatePolicy(context.Background(), p, map[string]any{})
	if err != nil {
		t.Fatalf("EvaluatePolicy() error: %v", err)
	}
	if result.Decision != KindAllow {
		t.Errorf("Decision = %v, want KindAllow", result.Decision)
	}
	if len(result.ViolatedRules) != 0 {
		t.Errorf("ViolatedRules = %+v, want empty", result.ViolatedRules)
	}
	if len(result.EvaluatedRules) != 2 {
		t.Errorf("len(EvaluatedRules) = %d, want 2", len(result.EvaluatedRules))
	}
}

func TestEvaluatePolicy_SchemaFailureRunsNoRules(t *testing.T) {
	t.Parallel()

	ctx, _ := DefineContext(schema.Record{"userId": schema.String()}, ContextOptions{})
	called := false
	r, err := DefineRule(ctx, "r1", func(context.Context, schema.ParsedInput, RuleContext) (Result, error) {
		called = true
		return Allow(ResultOpts{}), nil
	})
	if err != nil {
		t.Fatalf("DefineRule() error: %v", err)
	}
	p, err := DefinePolicy(ctx, "p", []Rule{r})
	if err != nil {
		t.Fatalf("DefinePolicy() error: %v", err)
	}

	_, err = EvaluatePolicy(context.Background(), p, map[string]any{})
	if err == nil {
		t.Fatal("EvaluatePolicy() error = nil, want schema validation error")
	}
	if called {
		t.Error("rule evaluator ran despite schema validation failure")
	}
}

func TestEvaluatePolicy_RulePanicBecomesDeny(t *testing.T) {
	t.Parallel()

	ctx, _ := DefineContext(schema.Record{}, ContextOptions{})
	r, err := DefineRule(ctx, "panics", func(context.Context, schema.ParsedInput, RuleContext) (Result, error) {
		panic("boom")
	})
	if err != nil {
		t.Fatalf("DefineRule() error: %v", err)
	}
	p, err := DefinePolicy(ctx, "p", []Rule{r})
	if err != nil {
		t.Fatalf("DefinePolicy() error: %v", err)
	}

	result, err := EvaluatePolicy(context.Background(), p, map[string]any{})
	if err != nil {
		t.Fatalf("EvaluatePolicy() error: %v", err)
	}
	if result.Decision != KindDeny {
		t.Fatalf("Decision = %v, want KindDeny after panic", result.Decision)
	}
	if _, ok := result.ViolatedRules[0].Result.Meta["error"]; !ok {
		t.Error("violated rule Meta missing \"error\" key after panic recovery")
	}
}

func TestEvaluatePolicy_RuleErrorBecomesDeny(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	ctx, _ := DefineContext(schema.Record{}, ContextOptions{})
	r, err := DefineRule(ctx, "errors", func(context.Context, schema.ParsedInput, RuleContext) (Result, error) {
		return Result{}, boom
	})
	if err != nil {
		t.Fatalf("DefineRule() error: %v", err)
	}
	p, err := DefinePolicy(ctx, "p", []Rule{r})
	if err != nil {
		t.Fatalf("DefinePolicy() error: %v", err)
	}

	result, err := EvaluatePolicy(context.Background(), p, map[string]any{})
	if err != nil {
		t.Fatalf("EvaluatePolicy() error: %v", err)
	}
	if result.Decision != KindDeny {
		t.Fatalf("Decision = %v, want KindDeny after rule error", result.Decision)
	}
}

func TestThrowPolicyViolationErrorOnDeny(t *testing.T) {
	t.Parallel()

	ctx, _ := DefineContext(schema.Record{}, ContextOptions{})
	p, _ := DefinePolicy(ctx, "p", nil)

	if err := ThrowPolicyViolationErrorOnDeny(PolicyResult{Decision: KindAllow}, p, ""); err != nil {
		t.Errorf("ThrowPolicyViolationErrorOnDeny() on allow = %v, want nil", err)
	}

	result := PolicyResult{Decision: KindDeny, ViolatedRules: []EvaluatedRule{{RuleName: "r1"}}}
	err := ThrowPolicyViolationErrorOnDeny(result, p, "denied")
	if err == nil {
		t.Fatal("ThrowPolicyViolationErrorOnDeny() on deny = nil, want *PolicyViolationError")
	}
	var violation *PolicyViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("error type = %T, want *PolicyViolationError", err)
	}
	if violation.Prettify() == "" {
		t.Error("Prettify() = \"\", want non-empty summary")
	}
}
