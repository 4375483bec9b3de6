package bantai

import (
	"context"
	"errors"
	"testing"

	"github.com/bantai/bantai/schema"
)

func TestDefineRule_RejectsEmptyNameOrNilEvaluate(t *testing.T) {
	t.Parallel()

	ctx, _ := DefineContext(schema.Record{}, ContextOptions{})
	noop := func(context.Context, schema.ParsedInput, RuleContext) (Result, error) {
		return Allow(ResultOpts{}), nil
	}

	if _, err := DefineRule(ctx, "", noop); err == nil {
		t.Error("DefineRule() with empty name: error = nil, want error")
	}
	if _, err := DefineRule(ctx, "r1", nil); err == nil {
		t.Error("DefineRule() with nil evaluate: error = nil, want error")
	}
}

func TestDefineRule_SlugifiesID(t *testing.T) {
	t.Parallel()

	ctx, _ := DefineContext(schema.Record{}, ContextOptions{})
	noop := func(context.Context, schema.ParsedInput, RuleContext) (Result, error) {
		return Allow(ResultOpts{}), nil
	}

	r, err := DefineRule(ctx, "Max Requests Per Minute!", noop)
	if err != nil {
		t.Fatalf("DefineRule() error: %v", err)
	}
	if r.ID != "rule:max-requests-per-minute" {
		t.Errorf("ID = %q, want %q", r.ID, "rule:max-requests-per-minute")
	}
	if r.Version != RuleVersion {
		t.Errorf("Version = %q, want %q", r.Version, RuleVersion)
	}
}

func TestRunHook_RunsOnAllowOnlyOnAllowResult(t *testing.T) {
	t.Parallel()

	ctx, _ := DefineContext(schema.Record{}, ContextOptions{})
	allowAlways := func(context.Context, schema.ParsedInput, RuleContext) (Result, error) {
		return Allow(ResultOpts{}), nil
	}

	var onAllowCalled, onDenyCalled bool
	r, err := DefineRule(ctx, "r1", allowAlways,
		WithOnAllow(func(context.Context, schema.ParsedInput, RuleContext, Result) error {
			onAllowCalled = true
			return nil
		}),
		WithOnDeny(func(context.Context, schema.ParsedInput, RuleContext, Result) error {
			onDenyCalled = true
			return nil
		}),
	)
	if err != nil {
		t.Fatalf("DefineRule() error: %v", err)
	}

	if _, err := r.runHook(context.Background(), schema.ParsedInput{}, RuleContext{}, Allow(ResultOpts{})); err != nil {
		t.Fatalf("runHook() error: %v", err)
	}
	if !onAllowCalled || onDenyCalled {
		t.Errorf("onAllowCalled=%v onDenyCalled=%v, want true/false", onAllowCalled, onDenyCalled)
	}
}

func TestRunHook_SkipNeverRunsAHook(t *testing.T) {
	t.Parallel()

	ctx, _ := DefineContext(schema.Record{}, ContextOptions{})
	noop := func(context.Context, schema.ParsedInput, RuleContext) (Result, error) {
		return Skip(ResultOpts{}), nil
	}

	called := false
	r, err := DefineRule(ctx, "r1", noop, WithOnAllow(func(context.Context, schema.ParsedInput, RuleContext, Result) error {
		called = true
		return nil
	}))
	if err != nil {
		t.Fatalf("DefineRule() error: %v", err)
	}

	if _, err := r.runHook(context.Background(), schema.ParsedInput{}, RuleContext{}, Skip(ResultOpts{})); err != nil {
		t.Fatalf("runHook() error: %v", err)
	}
	if called {
		t.Error("hook ran for a skipped result, want no hook invocation")
	}
}

func TestRunHook_WrapsFailureAsHookError(t *testing.T) {
	t.Parallel()

	ctx, _ := DefineContext(schema.Record{}, ContextOptions{})
	noop := func(context.Context, schema.ParsedInput, RuleContext) (Result, error) {
		return Deny(ResultOpts{}), nil
	}
	boom := errors.New("boom")

	r, err := DefineRule(ctx, "r1", noop, WithOnDeny(func(context.Context, schema.ParsedInput, RuleContext, Result) error {
		return boom
	}))
	if err != nil {
		t.Fatalf("DefineRule() error: %v", err)
	}

	_, err = r.runHook(context.Background(), schema.ParsedInput{}, RuleContext{}, Deny(ResultOpts{}))
	if err == nil {
		t.Fatal("runHook() error = nil, want HookError")
	}
	var hookErr *HookError
	if !errors.As(err, &hookErr) {
		t.Fatalf("runHook() error type = %T, want *HookError", err)
	}
	if !errors.Is(err, boom) {
		t.Error("errors.Is(err, boom) = false, want true (Unwrap should expose the cause)")
	}
}
