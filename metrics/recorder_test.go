package metrics_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/bantai/bantai"
	"github.com/bantai/bantai/metrics"
	"github.com/bantai/bantai/schema"
)

func fixedResultRule(ctx bantai.Context, name string, kind bantai.Kind) bantai.Rule {
	r, err := bantai.DefineRule(ctx, name, func(context.Context, schema.ParsedInput, bantai.RuleContext) (bantai.Result, error) {
		return bantai.Result{Kind: kind}, nil
	})
	if err != nil {
		panic(err)
	}
	return r
}

func TestRecorder_EvaluatePolicy_IncrementsEvaluationCounter(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(reg, nil)

	ctx, _ := bantai.DefineContext(schema.Record{}, bantai.ContextOptions{})
	ctx, err := metrics.With(ctx, recorder)
	if err != nil {
		t.Fatalf("metrics.With() error: %v", err)
	}
	r1 := fixedResultRule(ctx, "r1", bantai.KindDeny)
	p, err := bantai.DefinePolicy(ctx, "p", []bantai.Rule{r1})
	if err != nil {
		t.Fatalf("DefinePolicy() error: %v", err)
	}

	if _, err := bantai.EvaluatePolicy(context.Background(), p, map[string]any{}); err != nil {
		t.Fatalf("EvaluatePolicy() error: %v", err)
	}

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}

	var found *dto.MetricFamily
	for _, mf := range metricFamilies {
		if mf.GetName() == "bantai_policy_evaluations_total" {
			found = mf
		}
	}
	if found == nil {
		t.Fatal("bantai_policy_evaluations_total metric not registered")
	}
	if len(found.Metric) != 1 || found.Metric[0].Counter.GetValue() != 1 {
		t.Errorf("evaluations_total metric = %+v, want exactly one sample with value 1", found.Metric)
	}
}

func TestRecorder_EvaluatePolicy_ObservesRuleDuration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(reg, nil)

	ctx, _ := bantai.DefineContext(schema.Record{}, bantai.ContextOptions{})
	ctx, err := metrics.With(ctx, recorder)
	if err != nil {
		t.Fatalf("metrics.With() error: %v", err)
	}
	r1 := fixedResultRule(ctx, "r1", bantai.KindAllow)
	p, err := bantai.DefinePolicy(ctx, "p", []bantai.Rule{r1})
	if err != nil {
		t.Fatalf("DefinePolicy() error: %v", err)
	}

	if _, err := bantai.EvaluatePolicy(context.Background(), p, map[string]any{}); err != nil {
		t.Fatalf("EvaluatePolicy() error: %v", err)
	}

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	var found bool
	for _, mf := range metricFamilies {
		if mf.GetName() == "bantai_rule_duration_seconds" {
			found = true
			if len(mf.Metric) != 1 || mf.Metric[0].Histogram.GetSampleCount() != 1 {
				t.Errorf("rule_duration_seconds histogram = %+v, want exactly one observation", mf.Metric)
			}
		}
	}
	if !found {
		t.Fatal("bantai_rule_duration_seconds metric not registered")
	}
}
