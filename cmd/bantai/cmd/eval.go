package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bantai/bantai"
	"github.com/bantai/bantai/audit"
	"github.com/bantai/bantai/metrics"
	"github.com/bantai/bantai/policydoc"
	"github.com/bantai/bantai/storage"
)

var (
	evalPolicyPath string
	evalInputPath  string
	evalExplain    bool
	evalStateDir   string
	evalMetrics    bool
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate a policy document against an input document",
	Long: `Loads a policy document (YAML) and an input document (JSON), evaluates
the input against the policy, and prints the resulting verdict.

Example:
  bantai eval --policy policy.yaml --input input.json --explain`,
	RunE: runEval,
}

func init() {
	evalCmd.Flags().StringVar(&evalPolicyPath, "policy", "", "path to the policy YAML document (required)")
	evalCmd.Flags().StringVar(&evalInputPath, "input", "", "path to the input JSON document (required)")
	evalCmd.Flags().BoolVar(&evalExplain, "explain", false, "print the audit explain tree alongside the verdict")
	evalCmd.Flags().StringVar(&evalStateDir, "state", "", "directory for durable rate-limit state (default: in-memory, not persisted)")
	evalCmd.Flags().BoolVar(&evalMetrics, "metrics", false, "print OpenTelemetry trace spans to stdout and record Prometheus metrics in the default registry")
	_ = evalCmd.MarkFlagRequired("policy")
	_ = evalCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(evalCmd)
}

func runEval(_ *cobra.Command, _ []string) error {
	doc, err := policydoc.Load(evalPolicyPath)
	if err != nil {
		return err
	}

	inputBytes, err := os.ReadFile(evalInputPath)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	var input map[string]any
	if err := json.Unmarshal(inputBytes, &input); err != nil {
		return fmt.Errorf("parse input as JSON: %w", err)
	}

	adapter, closeAdapter, err := openAdapter(evalStateDir)
	if err != nil {
		return err
	}
	defer closeAdapter()

	ctx, policy, err := policydoc.Build(doc, adapter, nil)
	if err != nil {
		return err
	}

	var sink *audit.MemorySink
	var providers *metrics.Providers
	rebuilt := false

	if evalExplain {
		sink = audit.NewMemorySink()
		auditCtx, err := audit.With(ctx, sink)
		if err != nil {
			return err
		}
		ctx = auditCtx
		rebuilt = true
	}

	if evalMetrics {
		providers, err = metrics.NewStdoutProviders()
		if err != nil {
			return fmt.Errorf("start metrics providers: %w", err)
		}
		defer func() { _ = providers.Shutdown(context.Background()) }()

		recorder := metrics.NewRecorder(prometheus.DefaultRegisterer, metrics.Tracer(providers.TracerProvider))
		metricsCtx, err := metrics.With(ctx, recorder)
		if err != nil {
			return err
		}
		ctx = metricsCtx
		rebuilt = true
	}

	if rebuilt {
		policy, err = bantai.DefinePolicy(ctx, doc.Name, policy.Rules, bantai.WithDefaultStrategy(policy.DefaultStrategy))
		if err != nil {
			return err
		}
	}

	result, evalErr := bantai.EvaluatePolicy(context.Background(), policy, input)
	if evalErr != nil {
		return fmt.Errorf("evaluate: %w", evalErr)
	}

	printResult(result)

	if evalExplain && sink != nil {
		printExplainTree(sink.Snapshot())
	}

	return nil
}

func printResult(result bantai.PolicyResult) {
	fmt.Printf("decision: %s (%s)\n", result.Decision, result.Reason)
	for _, r := range result.EvaluatedRules {
		status := "allow"
		if r.Result.Denied() {
			status = "deny"
		} else if r.Result.Skipped() {
			status = "skip"
		}
		fmt.Printf("  - %-24s %-5s %s\n", r.RuleName, status, r.Result.Reason)
	}
}

func printExplainTree(events []audit.Event) {
	if len(events) == 0 {
		return
	}
	tree, err := audit.BuildTree(events, events[0].EvaluationID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "explain: %v\n", err)
		return
	}
	fmt.Println()
	fmt.Println("explain tree:")
	fmt.Println(tree.Explain())
	first := events[0]
	fmt.Printf("evaluated %s\n", humanize.Time(unixMilliToTime(first.Timestamp)))
}

func unixMilliToTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func openAdapter(dir string) (storage.Adapter, func(), error) {
	if dir == "" {
		return storage.NewMemory(), func() {}, nil
	}
	f, err := storage.NewFile(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("open state dir: %w", err)
	}
	return f, func() {}, nil
}
