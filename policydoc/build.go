package policydoc

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bantai/bantai"
	"github.com/bantai/bantai/ratelimit"
	"github.com/bantai/bantai/schema"
	"github.com/bantai/bantai/storage"
)

// Build turns a validated Document into a bantai.Context and bantai.Policy.
// adapter is used by any rateLimit rules the document declares; it may be
// nil if the document declares none. logger is used by "log" on_deny
// hooks; a nil logger falls back to slog.Default().
func Build(doc Document, adapter storage.Adapter, logger *slog.Logger) (bantai.Context, bantai.Policy, error) {
	if err := doc.Validate(); err != nil {
		return bantai.Context{}, bantai.Policy{}, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	rec := make(schema.Record, len(doc.Fields))
	for name, f := range doc.Fields {
		field, err := buildField(f)
		if err != nil {
			return bantai.Context{}, bantai.Policy{}, fmt.Errorf("policydoc: field %q: %w", name, err)
		}
		rec[name] = field
	}

	ctx, err := bantai.DefineContext(rec, bantai.ContextOptions{})
	if err != nil {
		return bantai.Context{}, bantai.Policy{}, err
	}

	needsRateLimit := false
	for _, rd := range doc.Rules {
		if rd.Kind == "rateLimit" {
			needsRateLimit = true
		}
	}
	if needsRateLimit {
		if adapter == nil {
			return bantai.Context{}, bantai.Policy{}, fmt.Errorf("policydoc: document declares a rateLimit rule but no storage adapter was supplied")
		}
		ctx, err = ratelimit.With(ctx, adapter)
		if err != nil {
			return bantai.Context{}, bantai.Policy{}, err
		}
	}

	rules := make([]bantai.Rule, 0, len(doc.Rules))
	for _, rd := range doc.Rules {
		rule, err := buildRule(ctx, rd, logger)
		if err != nil {
			return bantai.Context{}, bantai.Policy{}, fmt.Errorf("policydoc: rule %q: %w", rd.Name, err)
		}
		rules = append(rules, rule)
	}

	opts := []bantai.PolicyOption{}
	if doc.Strategy == "exhaustive" {
		opts = append(opts, bantai.WithDefaultStrategy(bantai.StrategyExhaustive))
	}

	policy, err := bantai.DefinePolicy(ctx, doc.Name, rules, opts...)
	if err != nil {
		return bantai.Context{}, bantai.Policy{}, err
	}
	return ctx, policy, nil
}

func buildField(f Field) (schema.Field, error) {
	var field schema.Field
	switch f.Type {
	case "string":
		field = schema.String()
	case "int":
		field = schema.Int()
	case "float":
		field = schema.Float()
	case "bool":
		field = schema.Bool()
	case "enum":
		field = schema.Enum(f.Values...)
	default:
		return schema.Field{}, fmt.Errorf("unknown field type %q", f.Type)
	}
	if f.Optional {
		field = schema.Optional(field)
	}
	return field, nil
}

func buildRule(ctx bantai.Context, rd RuleDoc, logger *slog.Logger) (bantai.Rule, error) {
	switch rd.Kind {
	case "compare":
		return buildCompareRule(ctx, rd, logger)
	case "rateLimit":
		return buildRateLimitRule(ctx, rd)
	default:
		return bantai.Rule{}, fmt.Errorf("unknown rule kind %q", rd.Kind)
	}
}

func buildCompareRule(ctx bantai.Context, rd RuleDoc, logger *slog.Logger) (bantai.Rule, error) {
	evaluate := func(_ context.Context, input schema.ParsedInput, _ bantai.RuleContext) (bantai.Result, error) {
		actual, present := input.Get(rd.Field)
		if !present {
			return bantai.Skip(bantai.ResultOpts{Reason: fmt.Sprintf("field %q absent", rd.Field)}), nil
		}
		ok, err := compare(actual, rd.Op, rd.Value)
		if err != nil {
			return bantai.Result{}, err
		}
		if ok {
			return bantai.Allow(bantai.ResultOpts{Reason: fmt.Sprintf("%s %s %v holds", rd.Field, rd.Op, rd.Value)}), nil
		}
		return bantai.Deny(bantai.ResultOpts{Reason: fmt.Sprintf("%s %s %v does not hold", rd.Field, rd.Op, rd.Value)}), nil
	}

	var ruleOpts []bantai.RuleOption
	if rd.OnDeny == "log" {
		ruleOpts = append(ruleOpts, bantai.WithOnDeny(func(_ context.Context, input schema.ParsedInput, _ bantai.RuleContext, result bantai.Result) error {
			logger.Warn("rule denied", "rule", rd.Name, "reason", result.Reason)
			return nil
		}))
	}

	return bantai.DefineRule(ctx, rd.Name, evaluate, ruleOpts...)
}

func buildRateLimitRule(ctx bantai.Context, rd RuleDoc) (bantai.Rule, error) {
	period, err := ratelimit.ParsePeriod(rd.Period)
	if err != nil {
		return bantai.Rule{}, err
	}
	keyField := rd.KeyField
	cfg := ratelimit.Config{
		Algorithm: rd.Algorithm,
		Limit:     rd.Limit,
		Period:    period,
		Cost:      rd.Cost,
		KeyFunc: func(input map[string]any) (string, error) {
			v, ok := input[keyField]
			if !ok {
				return "", fmt.Errorf("key field %q absent from input", keyField)
			}
			return fmt.Sprintf("%v", v), nil
		},
	}

	// A declarative rateLimit rule has no business logic of its own: its
	// verdict is exactly the rate-limit check's verdict, so the passed-in
	// evaluate is a no-op that ratelimit.DefineRule only reaches once the
	// check has already allowed the event.
	passthrough := func(context.Context, schema.ParsedInput, bantai.RuleContext) (bantai.Result, error) {
		return bantai.Allow(bantai.ResultOpts{Reason: "within rate limit"}), nil
	}
	return ratelimit.DefineRule(ctx, rd.Name, passthrough, cfg)
}

// compare evaluates actual op expected for the op names Document.Validate
// restricts RuleDoc.Op to. Numeric comparisons coerce both sides to
// float64; "eq"/"ne" also support direct string equality.
func compare(actual any, op string, expected any) (bool, error) {
	if op == "eq" || op == "ne" {
		if as, ok := actual.(string); ok {
			es, ok := expected.(string)
			if ok {
				if op == "eq" {
					return as == es, nil
				}
				return as != es, nil
			}
		}
	}

	a, aok := toFloat(actual)
	e, eok := toFloat(expected)
	if !aok || !eok {
		return false, fmt.Errorf("cannot compare %v (%T) to %v (%T)", actual, actual, expected, expected)
	}

	switch op {
	case "eq":
		return a == e, nil
	case "ne":
		return a != e, nil
	case "lt":
		return a < e, nil
	case "lte":
		return a <= e, nil
	case "gt":
		return a > e, nil
	case "gte":
		return a >= e, nil
	default:
		return false, fmt.Errorf("unknown comparison operator %q", op)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}
