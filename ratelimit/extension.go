package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bantai/bantai"
	"github.com/bantai/bantai/schema"
	"github.com/bantai/bantai/storage"
)

// With returns a copy of parent whose Tools map exposes adapter under
// bantai.ToolRateLimit, so rules built with DefineRule in that context
// (or any context composed from it) can look up the same storage
// backend. Grounded on the teacher's pattern of injecting a
// ratelimit.RateLimiter as a tool dependency into the policy context.
func With(parent bantai.Context, adapter storage.Adapter) (bantai.Context, error) {
	ext, err := bantai.DefineContext(schema.Record{}, bantai.ContextOptions{
		Tools: map[string]any{bantai.ToolRateLimit: adapter},
	})
	if err != nil {
		return bantai.Context{}, err
	}
	return bantai.ComposeContext(parent, ext)
}

// currentLimitKey is the RuleContext.Tools key DefineRule's wrapped
// evaluator injects for the duration of one call, exposing the pre-check
// Result to the caller's evaluate function via CurrentLimit.
const currentLimitKey = "ratelimit:currentLimit"

// CurrentLimit returns the rate-limit check Result that gated entry into
// evaluate, when called from inside a RuleFunc built by DefineRule. It
// lets the caller's business logic branch on remaining capacity (e.g. to
// pick a cheaper code path near the limit) without itself touching
// storage.
func CurrentLimit(ruleCtx bantai.RuleContext) (Result, bool) {
	v, ok := ruleCtx.Tool(currentLimitKey)
	if !ok {
		return Result{}, false
	}
	r, ok := v.(Result)
	return r, ok
}

// DefineRule builds the two-phase rate-limit rule of spec.md section 4.7:
// a pre-check against the storage adapter registered by With, then —
// only if the check allows it — evaluate runs to decide the rule's own
// verdict. Capacity is consumed only when the overall result is
// KindAllow (an OnAllow hook passed in opts, if any, still runs; the
// commit this function attaches runs after it). A Skip or Deny from evaluate
// therefore never consumes capacity, matching spec.md's "Skip bypasses
// commit" scenario.
//
// The storage key is "rules:<name>:<logicalKey>" (spec.md section 6),
// where logicalKey is cfg.KeyFunc(input), or "unknown-key" when
// cfg.KeyFunc is nil.
func DefineRule(ctx bantai.Context, name string, evaluate bantai.RuleFunc, cfg Config, opts ...bantai.RuleOption) (bantai.Rule, error) {
	if evaluate == nil {
		return bantai.Rule{}, fmt.Errorf("ratelimit: evaluate must not be nil")
	}

	wrappedEvaluate := func(evalCtx context.Context, input schema.ParsedInput, ruleCtx bantai.RuleContext) (bantai.Result, error) {
		adapter, key, err := resolve(ruleCtx, input, cfg, name)
		if err != nil {
			return bantai.Result{}, err
		}

		now := ruleCtx.Now()
		checkResult, err := check(evalCtx, adapter, key, cfg, now)
		if err != nil {
			if denied, ok := transientDeny(err); ok {
				return denied, nil
			}
			return bantai.Result{}, err
		}
		if !checkResult.Allowed {
			return bantai.Deny(bantai.ResultOpts{
				Reason: "rate limit exceeded",
				Meta:   limitMeta(checkResult),
			}), nil
		}

		augmented := ruleCtx
		augmented.Tools = augmentTools(ruleCtx.Tools, currentLimitKey, checkResult)

		result, err := evaluate(evalCtx, input, augmented)
		if err != nil {
			return result, err
		}
		result.Meta = mergeMeta(limitMeta(checkResult), result.Meta)
		return result, nil
	}

	var userHooks bantai.Rule
	for _, opt := range opts {
		opt(&userHooks)
	}

	commit := func(evalCtx context.Context, input schema.ParsedInput, ruleCtx bantai.RuleContext, result bantai.Result) error {
		var hookErr error
		if userHooks.OnAllow != nil {
			hookErr = userHooks.OnAllow(evalCtx, input, ruleCtx, result)
		}
		adapter, key, err := resolve(ruleCtx, input, cfg, name)
		if err != nil {
			return err
		}
		now := ruleCtx.Now()
		_, err = increment(evalCtx, adapter, key, cfg, now)
		if err != nil {
			if _, ok := transientDeny(err); ok {
				// Storage became unavailable between check and commit;
				// the rule already allowed this event, so there is
				// nothing left to fail closed on here.
				return hookErr
			}
			return err
		}
		return hookErr
	}

	ruleOpts := append(append([]bantai.RuleOption{}, opts...), bantai.WithOnAllow(commit))
	return bantai.DefineRule(ctx, name, wrappedEvaluate, ruleOpts...)
}

// resolve looks up the storage.Adapter registered by With and derives
// this call's storage key from cfg and input.
func resolve(ruleCtx bantai.RuleContext, input schema.ParsedInput, cfg Config, ruleName string) (storage.Adapter, string, error) {
	adapterAny, ok := ruleCtx.Tool(bantai.ToolRateLimit)
	if !ok {
		return nil, "", fmt.Errorf("ratelimit: no storage adapter registered under %q; call ratelimit.With first", bantai.ToolRateLimit)
	}
	adapter, ok := adapterAny.(storage.Adapter)
	if !ok {
		return nil, "", fmt.Errorf("ratelimit: tool %q is not a storage.Adapter", bantai.ToolRateLimit)
	}

	logicalKey := unknownKey
	if cfg.KeyFunc != nil {
		rawKey, err := cfg.KeyFunc(input)
		if err != nil {
			return nil, "", fmt.Errorf("ratelimit: derive key: %w", err)
		}
		logicalKey = rawKey
	}
	return adapter, FormatKey(ruleName, logicalKey), nil
}

// check reports whether an event would be allowed, without consuming any
// capacity.
func check(ctx context.Context, adapter storage.Adapter, key string, cfg Config, now time.Time) (Result, error) {
	switch cfg.Algorithm {
	case FixedWindow:
		return checkFixedWindow(ctx, adapter, key, cfg, now)
	case SlidingWindow:
		return checkSlidingWindow(ctx, adapter, key, cfg, now)
	case TokenBucket:
		return checkTokenBucket(ctx, adapter, key, cfg, now)
	default:
		return Result{}, fmt.Errorf("ratelimit: unknown algorithm %q", cfg.Algorithm)
	}
}

// increment commits cfg.Cost units of capacity against key.
func increment(ctx context.Context, adapter storage.Adapter, key string, cfg Config, now time.Time) (Result, error) {
	switch cfg.Algorithm {
	case FixedWindow:
		return incrementFixedWindow(ctx, adapter, key, cfg, now)
	case SlidingWindow:
		return incrementSlidingWindow(ctx, adapter, key, cfg, now)
	case TokenBucket:
		return incrementTokenBucket(ctx, adapter, key, cfg, now)
	default:
		return Result{}, fmt.Errorf("ratelimit: unknown algorithm %q", cfg.Algorithm)
	}
}

// transientDeny converts a storage.TransientError into the fail-closed
// deny spec.md section 5 mandates; ok is false for any other error.
func transientDeny(err error) (bantai.Result, bool) {
	var transient *storage.TransientError
	if !errors.As(err, &transient) {
		return bantai.Result{}, false
	}
	return bantai.Deny(bantai.ResultOpts{
		Reason: "rate limit storage unavailable, failing closed",
		Meta:   map[string]any{"error": err.Error(), "transient": true},
	}), true
}

func limitMeta(r Result) map[string]any {
	return map[string]any{
		"remaining":  r.Remaining,
		"retryAfter": r.RetryAfter.String(),
		"resetAfter": r.ResetAfter.String(),
	}
}

func mergeMeta(base, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

func augmentTools(tools map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(tools)+1)
	for k, v := range tools {
		out[k] = v
	}
	out[key] = value
	return out
}
