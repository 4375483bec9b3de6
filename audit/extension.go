package audit

import (
	"github.com/bantai/bantai"
	"github.com/bantai/bantai/schema"
)

// With returns a copy of parent that emits the lifecycle events of
// every evaluation to sinks, in registration order. Per spec.md section
// 4.8, it also adds an optional `trace` field ({traceId?, requestId?})
// to the schema — present for documentation/introspection purposes;
// EvaluatePolicy actually threads trace/request ids through
// bantai.WithTrace rather than through parsed input.
func With(parent bantai.Context, sinks ...Sink) (bantai.Context, error) {
	ext, err := bantai.DefineContext(schema.Record{
		"trace": schema.Optional(schema.NestedRecord(schema.Record{
			"traceId":   schema.Optional(schema.String()),
			"requestId": schema.Optional(schema.String()),
		})),
	}, bantai.ContextOptions{
		Tools: map[string]any{bantai.ToolAudit: NewFactory(sinks...)},
	})
	if err != nil {
		return bantai.Context{}, err
	}
	return bantai.ComposeContext(parent, ext)
}
