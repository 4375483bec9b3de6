package audit

import (
	"fmt"
	"strings"
)

// Node is one event in the reconstructed explain tree, with its
// children in emission order.
type Node struct {
	Event    Event
	Children []*Node
}

// BuildTree groups events by EvaluationID and links them into a tree by
// ParentID, per spec.md section 4.8's "pure post-processor over the
// event stream" description. events need not already be sorted; the
// returned root is the policy.start event (the only event with no
// parent) for the given evaluationID.
func BuildTree(events []Event, evaluationID string) (*Node, error) {
	byID := make(map[string]*Node)
	var root *Node

	for _, e := range events {
		if e.EvaluationID != evaluationID {
			continue
		}
		byID[e.ID] = &Node{Event: e}
	}
	if len(byID) == 0 {
		return nil, fmt.Errorf("audit: no events for evaluation %q", evaluationID)
	}

	for _, e := range events {
		if e.EvaluationID != evaluationID {
			continue
		}
		node := byID[e.ID]
		if e.ParentID == "" {
			if root != nil {
				return nil, fmt.Errorf("audit: evaluation %q has more than one root event", evaluationID)
			}
			root = node
			continue
		}
		parent, ok := byID[e.ParentID]
		if !ok {
			return nil, fmt.Errorf("audit: event %q references missing parent %q", e.ID, e.ParentID)
		}
		parent.Children = append(parent.Children, node)
	}

	if root == nil {
		return nil, fmt.Errorf("audit: evaluation %q has no root event", evaluationID)
	}
	return root, nil
}

// Explain renders the tree as an indented human-readable trace: policy
// start, each rule's decision and duration, and the final policy
// decision.
func (n *Node) Explain() string {
	var b strings.Builder
	n.explain(&b, 0)
	return b.String()
}

func (n *Node) explain(b *strings.Builder, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(string(n.Event.Type))

	if r := n.Event.Rule; r != nil {
		fmt.Fprintf(b, " rule=%s", r.Name)
	}
	if d := n.Event.Decision; d != nil {
		fmt.Fprintf(b, " outcome=%s", d.Outcome)
		if d.Reason != "" {
			fmt.Fprintf(b, " reason=%q", d.Reason)
		}
	}
	if n.Event.DurationMs != nil {
		fmt.Fprintf(b, " duration=%dms", *n.Event.DurationMs)
	}
	b.WriteString("\n")

	for _, child := range n.Children {
		child.explain(b, depth+1)
	}
}
