package audit

import (
	"fmt"

	"github.com/bantai/bantai"
	"github.com/bantai/bantai/internal/clock"
	"github.com/bantai/bantai/internal/idgen"
)

// Factory implements bantai.AuditRecorderFactory, constructing a
// recorder scoped to one evaluation that fans each event out to sinks
// in registration order.
type Factory struct {
	sinks []Sink
	clock clock.Clock
}

// NewFactory builds a Factory emitting to sinks, in the order given.
func NewFactory(sinks ...Sink) *Factory {
	return &Factory{sinks: sinks, clock: clock.Default}
}

// NewRecorder implements bantai.AuditRecorderFactory.
func (f *Factory) NewRecorder(policyID, policyName, policyVersion, evaluationID, traceID, requestID string) bantai.AuditRecorder {
	var trace *Trace
	if traceID != "" || requestID != "" {
		trace = &Trace{TraceID: traceID, RequestID: requestID}
	}
	return &recorder{
		sinks:        f.sinks,
		clock:        f.clock,
		policy:       Identity{Name: policyName, ID: policyID, Version: policyVersion},
		evaluationID: evaluationID,
		trace:        trace,
	}
}

// recorder implements bantai.AuditRecorder for one evaluation.
type recorder struct {
	sinks        []Sink
	clock        clock.Clock
	policy       Identity
	evaluationID string
	trace        *Trace
}

// emit assigns an id and timestamp to e and fans it out to every sink in
// order, returning the first sink error (which aborts delivery to the
// remaining sinks, per spec.md section 4.8).
func (r *recorder) emit(e Event) (string, error) {
	e.ID = idgen.New(idgen.NamespaceEvent)
	e.Timestamp = r.clock().UnixMilli()
	e.EvaluationID = r.evaluationID
	e.Policy = r.policy
	e.AuditVersion = Version
	e.Trace = r.trace

	for _, sink := range r.sinks {
		if err := sink.Emit(e); err != nil {
			return e.ID, fmt.Errorf("audit: sink rejected event %s: %w", e.ID, err)
		}
	}
	return e.ID, nil
}

func (r *recorder) PolicyStart() (string, error) {
	return r.emit(Event{Type: TypePolicyStart})
}

func (r *recorder) RuleStart(parentID, ruleID, ruleName string) (string, error) {
	return r.emit(Event{
		Type:     TypeRuleStart,
		Rule:     &Identity{Name: ruleName, ID: ruleID, Version: bantai.RuleVersion},
		ParentID: parentID,
	})
}

func (r *recorder) RuleDecision(parentID, ruleID, ruleName string, kind bantai.Kind, reason string, meta map[string]any) error {
	_, err := r.emit(Event{
		Type:     TypeRuleDecision,
		Rule:     &Identity{Name: ruleName, ID: ruleID, Version: bantai.RuleVersion},
		Decision: &Decision{Outcome: kind.String(), Reason: reason},
		Meta:     meta,
		ParentID: parentID,
	})
	return err
}

func (r *recorder) RuleEnd(parentID, ruleID, ruleName string, durationMs int64) (string, error) {
	return r.emit(Event{
		Type:       TypeRuleEnd,
		Rule:       &Identity{Name: ruleName, ID: ruleID, Version: bantai.RuleVersion},
		ParentID:   parentID,
		DurationMs: &durationMs,
	})
}

func (r *recorder) PolicyDecision(parentID string, kind bantai.Kind, reason bantai.Reason) error {
	_, err := r.emit(Event{
		Type:     TypePolicyDecision,
		Decision: &Decision{Outcome: kind.String(), Reason: string(reason)},
		ParentID: parentID,
	})
	return err
}

func (r *recorder) PolicyEnd(parentID string, durationMs int64) error {
	_, err := r.emit(Event{
		Type:       TypePolicyEnd,
		ParentID:   parentID,
		DurationMs: &durationMs,
	})
	return err
}

var _ bantai.AuditRecorderFactory = (*Factory)(nil)
var _ bantai.AuditRecorder = (*recorder)(nil)
