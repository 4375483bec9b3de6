// Package policydoc loads a declarative YAML policy document and builds
// the bantai.Context/bantai.Policy it describes. It exists for
// cmd/bantai, the embedding example that needs to turn a file on disk
// into a running policy without compiling Go. Per spec.md's non-goal
// that the core provide no DSL/expression-language parser for rule
// conditions, a Document names rule *kinds* from a fixed, enumerated
// set (validated with go-playground/validator oneof tags, the same
// pattern internal/config.RuleConfig uses for its Action field) rather
// than free-form condition strings.
package policydoc

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/bantai/bantai/ratelimit"
)

// Document is the top-level shape of a policy YAML file.
type Document struct {
	Name     string           `yaml:"name" mapstructure:"name" validate:"required"`
	Strategy string           `yaml:"strategy" mapstructure:"strategy" validate:"omitempty,oneof=preemptive exhaustive"`
	Fields   map[string]Field `yaml:"fields" mapstructure:"fields" validate:"required,min=1,dive"`
	Rules    []RuleDoc        `yaml:"rules" mapstructure:"rules" validate:"required,min=1,dive"`
}

// Field describes one context schema field.
type Field struct {
	Type     string   `yaml:"type" mapstructure:"type" validate:"required,oneof=string int float bool enum"`
	Optional bool     `yaml:"optional" mapstructure:"optional"`
	Values   []string `yaml:"values" mapstructure:"values" validate:"required_if=Type enum"`
}

// RuleDoc describes one rule. Kind selects which builder in build.go
// constructs the bantai.Rule; the remaining fields are interpreted
// according to Kind.
type RuleDoc struct {
	Name string `yaml:"name" mapstructure:"name" validate:"required"`
	Kind string `yaml:"kind" mapstructure:"kind" validate:"required,oneof=compare rateLimit"`

	// compare fields
	Field string `yaml:"field" mapstructure:"field" validate:"required_if=Kind compare"`
	Op    string `yaml:"op" mapstructure:"op" validate:"required_if=Kind compare,omitempty,oneof=eq ne lt lte gt gte"`
	Value any    `yaml:"value" mapstructure:"value"`

	// rateLimit fields
	Algorithm ratelimit.Algorithm `yaml:"algorithm" mapstructure:"algorithm" validate:"required_if=Kind rateLimit,omitempty,oneof=fixed_window sliding_window token_bucket"`
	Limit     int                 `yaml:"limit" mapstructure:"limit" validate:"required_if=Kind rateLimit"`
	Period    string              `yaml:"period" mapstructure:"period" validate:"required_if=Kind rateLimit"`
	KeyField  string              `yaml:"key_field" mapstructure:"key_field" validate:"required_if=Kind rateLimit"`
	// Cost is optional; 0 defaults to 1 unit per event (ratelimit.Config.Cost).
	Cost int `yaml:"cost" mapstructure:"cost"`

	OnDeny string `yaml:"on_deny" mapstructure:"on_deny" validate:"omitempty,oneof=log"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate runs struct-tag validation over d and returns the validator's
// error, which lists every failed tag. When the tags pass, it returns an
// error for the first compare rule that has no value.
func (d Document) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("policydoc: %w", err)
	}
	for _, r := range d.Rules {
		if r.Kind == "compare" && r.Value == nil {
			return fmt.Errorf("policydoc: rule %q: compare rules require a value", r.Name)
		}
	}
	return nil
}
