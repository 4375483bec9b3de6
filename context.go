package bantai

import (
	"github.com/bantai/bantai/schema"
)

// ContextVersion is the version tag stamped onto every Context, reserved
// for forward compatibility per spec.md section 4.2.
const ContextVersion = "v1"

// Context is an immutable bundle of an input schema, default values, and
// a bag of tools (pluggable dependencies such as storage adapters, the
// audit recorder factory, or rate-limit helpers). Contexts are built by
// DefineContext or ComposeContext and never mutated afterward; extensions
// produce new Contexts that structurally extend existing ones.
type Context struct {
	Schema   schema.Record
	Defaults map[string]any
	Tools    map[string]any
	Version  string
}

// ContextOptions configures DefineContext.
type ContextOptions struct {
	Defaults map[string]any
	Tools    map[string]any
}

// DefineContext validates that opts.Defaults conform to schema in partial
// mode (defaults need not cover every required field), freezes opts.Tools
// into the returned Context, and stamps ContextVersion.
func DefineContext(rec schema.Record, opts ContextOptions) (Context, error) {
	if _, err := schema.Parse(rec, opts.Defaults, nil, true); err != nil {
		return Context{}, err
	}

	return Context{
		Schema:   rec,
		Defaults: cloneAnyMap(opts.Defaults),
		Tools:    cloneAnyMap(opts.Tools),
		Version:  ContextVersion,
	}, nil
}

// ComposeContext merges schemas by shallow field union (later wins on
// conflict) and deep-merges defaults and tools. It errors if zero
// contexts are supplied.
func ComposeContext(contexts ...Context) (Context, error) {
	if len(contexts) == 0 {
		return Context{}, ErrEmptyCompose
	}

	merged := contexts[0].Schema
	defaults := cloneAnyMap(contexts[0].Defaults)
	tools := cloneAnyMap(contexts[0].Tools)

	for _, c := range contexts[1:] {
		merged = merged.Merge(c.Schema)
		defaults = deepMergeMap(defaults, c.Defaults)
		tools = deepMergeMap(tools, c.Tools)
	}

	return Context{
		Schema:   merged,
		Defaults: defaults,
		Tools:    tools,
		Version:  ContextVersion,
	}, nil
}

// Tool returns the tool registered under name, and whether it was present.
func (c Context) Tool(name string) (any, bool) {
	v, ok := c.Tools[name]
	return v, ok
}

// HasField reports whether the schema declares the given top-level field,
// used by DefinePolicy's structural-superset check.
func (c Context) HasField(name string) bool {
	_, ok := c.Schema[name]
	return ok
}

// IsStructuralSupersetOf reports whether c declares every field other
// declares (ignoring field-level detail), satisfying spec.md's "bound to
// the same context (or a structural superset)" rule invariant.
func (c Context) IsStructuralSupersetOf(other Context) bool {
	for name := range other.Schema {
		if !c.HasField(name) {
			return false
		}
	}
	return true
}

func cloneAnyMap(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if nested, ok := v.(map[string]any); ok {
			out[k] = cloneAnyMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}

// deepMergeMap recursively merges b into a, with b winning conflicts.
// Nested maps are merged key-by-key; scalars and slices are replaced
// wholesale, per spec.md 4.2 ("scalars/arrays replaced").
func deepMergeMap(a, b map[string]any) map[string]any {
	out := cloneAnyMap(a)
	for k, v := range b {
		if existing, ok := out[k]; ok {
			if existingMap, ok1 := existing.(map[string]any); ok1 {
				if incomingMap, ok2 := v.(map[string]any); ok2 {
					out[k] = deepMergeMap(existingMap, incomingMap)
					continue
				}
			}
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = cloneAnyMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}
