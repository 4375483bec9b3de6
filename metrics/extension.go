package metrics

import (
	"github.com/bantai/bantai"
	"github.com/bantai/bantai/schema"
)

// With returns a copy of parent whose Tools map exposes recorder under
// bantai.ToolMetrics, so EvaluatePolicy picks it up automatically.
func With(parent bantai.Context, recorder *Recorder) (bantai.Context, error) {
	ext, err := bantai.DefineContext(schema.Record{}, bantai.ContextOptions{
		Tools: map[string]any{bantai.ToolMetrics: recorder},
	})
	if err != nil {
		return bantai.Context{}, err
	}
	return bantai.ComposeContext(parent, ext)
}
