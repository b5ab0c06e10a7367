package agenterrors

import (
	"fmt"
	"regexp"

	"github.com/dmarceau/agentrunner/pkg/agent"
)

// Rule declares the constraints on one input field. Checks run in
// declaration order: required, min length, max length, pattern, custom.
// An empty value on a non-required field passes without further checks.
type Rule struct {
	// Name is the parameter key the rule applies to
	Name string

	// Label is used in validation messages; falls back to Name
	Label string

	// Required rejects empty values
	Required bool

	// MinLength is the minimum value length, 0 for no minimum
	MinLength int

	// MaxLength is the maximum value length, 0 for no maximum
	MaxLength int

	// Pattern must match the whole value when set
	Pattern *regexp.Regexp

	// Custom is an arbitrary predicate returning ok or a message
	Custom func(value string) (bool, string)
}

// displayName returns the label used in messages
func (r Rule) displayName() string {
	if r.Label != "" {
		return r.Label
	}
	return r.Name
}

// validate checks one value against the rule
func (r Rule) validate(value interface{}) error {
	s := stringify(value)
	if s == "" {
		if r.Required {
			return Newf(CodeValidation, "%s is required", r.displayName())
		}
		return nil
	}

	if r.MinLength > 0 && len(s) < r.MinLength {
		return Newf(CodeValidation, "%s must be at least %d characters", r.displayName(), r.MinLength)
	}
	if r.MaxLength > 0 && len(s) > r.MaxLength {
		return Newf(CodeValidation, "%s must be at most %d characters", r.displayName(), r.MaxLength)
	}
	if r.Pattern != nil && !r.Pattern.MatchString(s) {
		return Newf(CodeValidation, "%s has an invalid format", r.displayName())
	}
	if r.Custom != nil {
		if ok, msg := r.Custom(s); !ok {
			if msg == "" {
				msg = fmt.Sprintf("%s is invalid", r.displayName())
			}
			return New(CodeValidation, msg)
		}
	}

	return nil
}

// Rules is an ordered rule set evaluated against named input values
type Rules []Rule

// Validate checks every rule against the given values, returning the
// first violation as a VALIDATION_ERROR
func (rs Rules) Validate(values map[string]interface{}) error {
	for _, rule := range rs {
		if err := rule.validate(values[rule.Name]); err != nil {
			return err
		}
	}
	return nil
}

// RulesForAgent derives the rule set from an agent's form schema.
// Agents without a form schema have nothing to validate.
func RulesForAgent(cfg agent.Config) Rules {
	if cfg.InputSchema.Type != agent.InputForm {
		return nil
	}

	rules := make(Rules, 0, len(cfg.InputSchema.Fields))
	for _, field := range cfg.InputSchema.Fields {
		rule := Rule{
			Name:      field.Name,
			Label:     field.Label,
			Required:  field.Required,
			MinLength: field.MinLength,
			MaxLength: field.MaxLength,
		}
		if field.Pattern != "" {
			// Patterns were verified when the catalog was validated
			if re, err := regexp.Compile(field.Pattern); err == nil {
				rule.Pattern = re
			}
		}
		rules = append(rules, rule)
	}
	return rules
}

// stringify renders a parameter value for length and pattern checks
func stringify(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
