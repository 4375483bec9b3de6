package bantai

// ToolAudit is the well-known Context.Tools key the audit extension
// registers its recorder factory under. Defined here, in the root
// package, so that EvaluatePolicy can discover it without importing the
// audit package — the audit package imports bantai (to build and return
// a Context), not the reverse, so this interface boundary is what keeps
// the two packages from forming an import cycle.
const ToolAudit = "audit"

// ToolRateLimit is the well-known Context.Tools key the rate-limit
// extension registers its storage-backed limiter under.
const ToolRateLimit = "ratelimit"

// AuditRecorderFactory is implemented by the audit extension's tool. It
// is looked up by EvaluatePolicy via Context.Tool(ToolAudit) and, when
// present, used to emit the lifecycle events of one evaluation.
type AuditRecorderFactory interface {
	// NewRecorder starts tracking one evaluation and returns a recorder
	// scoped to it.
	NewRecorder(policyID, policyName, policyVersion, evaluationID, traceID, requestID string) AuditRecorder
}

// AuditRecorder emits the lifecycle events of a single evaluation, in
// emission order. Every method returns the id of the event it emitted so
// callers can thread it through as a parentId.
type AuditRecorder interface {
	PolicyStart() (eventID string, err error)
	RuleStart(parentID, ruleID, ruleName string) (eventID string, err error)
	RuleDecision(parentID, ruleID, ruleName string, kind Kind, reason string, meta map[string]any) error
	RuleEnd(parentID, ruleID, ruleName string, durationMs int64) (eventID string, err error)
	PolicyDecision(parentID string, kind Kind, reason Reason) error
	PolicyEnd(parentID string, durationMs int64) error
}
