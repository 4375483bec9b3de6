package bantai

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrDuplicateRule is returned by DefinePolicy when two rules share a name.
	ErrDuplicateRule = errors.New("duplicate rule name in policy")
	// ErrIncompatibleContext is returned by DefinePolicy when a rule's
	// context is not the policy's context or a structural subset of it.
	ErrIncompatibleContext = errors.New("rule context incompatible with policy context")
	// ErrEmptyCompose is returned by ComposeContext when called with no contexts.
	ErrEmptyCompose = errors.New("composeContext requires at least one context")
)

// RuleError wraps the cause of a rule evaluator failure (a panic recovered
// during Evaluate, or an error the evaluator returned directly). It never
// escapes EvaluatePolicy: it is converted internally into a synthetic deny
// Result carrying Meta["error"], per spec.md section 7.
type RuleError struct {
	RuleID string
	Err    error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %s evaluator failed: %v", e.RuleID, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }

// HookError wraps the cause of an onAllow/onDeny hook failure. It never
// escapes the rule boundary: a returned hook error becomes the rule's
// EvaluatedRule.Warning and leaves its Result unchanged, while a hook
// panic is converted into a synthetic deny like a RuleError.
type HookError struct {
	RuleID string
	Hook   string // "onAllow" or "onDeny"
	Err    error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("rule %s %s hook failed: %v", e.RuleID, e.Hook, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// EvaluatedRule is one entry of PolicyResult.EvaluatedRules: a rule's
// identity alongside the Result it produced and, if its hook failed
// non-fatally, a warning describing that failure.
type EvaluatedRule struct {
	RuleID   string
	RuleName string
	Result   Result
	Warning  string
}

// Reason explains, at the policy level, why a PolicyResult carries the
// decision it does.
type Reason string

const (
	ReasonPolicyEnforced Reason = "policy_enforced"
	ReasonPolicyViolated Reason = "policy_violated"
)

// PolicyResult is the outcome of one EvaluatePolicy call.
type PolicyResult struct {
	Decision       Kind // KindAllow or KindDeny, never KindSkip
	Reason         Reason
	Strategy       Strategy
	EvaluatedRules []EvaluatedRule
	ViolatedRules  []EvaluatedRule
}

// PolicyViolationError is a typed exception carrying the full PolicyResult
// for callers that prefer exceptional control flow over inspecting the
// returned PolicyResult directly.
type PolicyViolationError struct {
	Policy Policy
	Result PolicyResult
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("policy %q denied: %d rule(s) violated", e.Policy.Name, len(e.Result.ViolatedRules))
}

// Prettify renders a multi-line summary naming each violated rule and its
// reason, for logs or CLI output.
func (e *PolicyViolationError) Prettify() string {
	var b strings.Builder
	fmt.Fprintf(&b, "policy %q (%s) denied:\n", e.Policy.Name, e.Policy.ID)
	for _, v := range e.Result.ViolatedRules {
		reason := v.Result.Reason
		if reason == "" {
			reason = "no reason given"
		}
		fmt.Fprintf(&b, "  - %s (%s): %s\n", v.RuleName, v.RuleID, reason)
	}
	return b.String()
}

// ThrowPolicyViolationErrorOnDeny returns a *PolicyViolationError when
// result.Decision is KindDeny, and nil on allow. message, when non-empty,
// is not used by the error itself but documents intent at call sites; it
// exists to mirror the optional message parameter spec.md describes.
func ThrowPolicyViolationErrorOnDeny(result PolicyResult, p Policy, message string) error {
	if result.Decision != KindDeny {
		return nil
	}
	return &PolicyViolationError{Policy: p, Result: result}
}
