// Package audit implements bantai's audit extension: an emitter that
// records the lifecycle events of one evaluation and fans them out to
// pluggable sinks, plus a tree builder that reconstructs an explain
// trace from the resulting event stream. Grounded on the teacher's
// internal/domain/audit package, narrowed from its SOC2 compliance-log
// shape to the policy-evaluation event shape the specification names.
package audit

// Version is the stable audit wire-format version emitted on every event.
const Version = "v1"

// Type enumerates the audit event lifecycle stages.
type Type string

const (
	TypePolicyStart    Type = "policy.start"
	TypeRuleStart      Type = "rule.start"
	TypeRuleEnd        Type = "rule.end"
	TypeRuleDecision   Type = "rule.decision"
	TypePolicyDecision Type = "policy.decision"
	TypePolicyEnd      Type = "policy.end"
	TypeExtensionEvent Type = "extension.event"
)

// Identity names a policy or rule inside an event.
type Identity struct {
	Name    string `json:"name"`
	ID      string `json:"id"`
	Version string `json:"version"`
}

// Decision reports a rule's or policy's outcome within an event.
type Decision struct {
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
}

// Trace carries the caller-supplied correlation identifiers, when set
// via bantai.WithTrace.
type Trace struct {
	TraceID   string `json:"traceId,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// Event is one emitted lifecycle record. Field tags match spec.md
// section 6's wire format exactly; optional fields, Decision.Reason and
// DurationMs included, are omitted by encoding/json's omitempty when
// empty. No field is ever emitted as null.
type Event struct {
	ID           string     `json:"id"`
	Type         Type       `json:"type"`
	Timestamp    int64      `json:"timestamp"`
	EvaluationID string     `json:"evaluationId"`
	Policy       Identity   `json:"policy"`
	Rule         *Identity  `json:"rule,omitempty"`
	Decision     *Decision  `json:"decision,omitempty"`
	Trace        *Trace     `json:"trace,omitempty"`
	Meta         map[string]any `json:"meta,omitempty"`
	AuditVersion string     `json:"auditVersion"`
	DurationMs   *int64     `json:"durationMs,omitempty"`
	ParentID     string     `json:"parentId,omitempty"`
}
