package bantai

import (
	"fmt"

	"github.com/bantai/bantai/internal/idgen"
)

// PolicyVersion is the version tag stamped onto every Policy.
const PolicyVersion = "v1"

// Strategy selects how a Policy aggregates rule results into a verdict.
type Strategy int

const (
	// StrategyPreemptive stops evaluating rules at the first deny.
	StrategyPreemptive Strategy = iota
	// StrategyExhaustive evaluates every rule regardless of earlier denies.
	StrategyExhaustive
)

func (s Strategy) String() string {
	if s == StrategyExhaustive {
		return "exhaustive"
	}
	return "preemptive"
}

// Policy is a named, ordered collection of Rules sharing one Context,
// plus a default evaluation strategy.
type Policy struct {
	ID              string
	Name            string
	Version         string
	Context         Context
	Rules           []Rule
	DefaultStrategy Strategy
}

// PolicyOption configures DefinePolicy.
type PolicyOption func(*Policy)

// WithDefaultStrategy overrides the default StrategyPreemptive.
func WithDefaultStrategy(s Strategy) PolicyOption {
	return func(p *Policy) { p.DefaultStrategy = s }
}

// DefinePolicy builds a Policy from an ordered rule list. Rule order is
// preserved as given; duplicate rule names are rejected, as is any rule
// whose context is not ctx itself or a context ctx structurally extends.
func DefinePolicy(ctx Context, name string, rules []Rule, opts ...PolicyOption) (Policy, error) {
	if name == "" {
		return Policy{}, fmt.Errorf("bantai: policy name must not be empty")
	}

	seen := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		if _, dup := seen[r.Name]; dup {
			return Policy{}, fmt.Errorf("%w: %q", ErrDuplicateRule, r.Name)
		}
		seen[r.Name] = struct{}{}

		if !ctx.IsStructuralSupersetOf(r.Context) {
			return Policy{}, fmt.Errorf("%w: rule %q", ErrIncompatibleContext, r.Name)
		}
	}

	p := Policy{
		ID:              "policy:" + idgen.Slugify(name),
		Name:            name,
		Version:         PolicyVersion,
		Context:         ctx,
		Rules:           append([]Rule(nil), rules...),
		DefaultStrategy: StrategyPreemptive,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p, nil
}
