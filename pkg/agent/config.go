// Package agent defines agent configurations, the YAML catalog they are
// loaded from, and the registry that serves them to the rest of the system.
package agent

import (
	"fmt"
	"regexp"

	"github.com/dmarceau/agentrunner/pkg/execution"
)

// InputType discriminates how the outbound payload is built
type InputType string

// Input schema types
const (
	// InputText sends the prompt as a single text field
	InputText InputType = "text"

	// InputForm sends the declared form fields
	InputForm InputType = "form"

	// InputFile sends a file reference
	InputFile InputType = "file"
)

// Field declares one form input accepted by an agent
type Field struct {
	// Name is the payload key for the field
	Name string `json:"name" yaml:"name"`

	// Label is the human-readable field name
	Label string `json:"label,omitempty" yaml:"label,omitempty"`

	// Type is a presentation hint (text, textarea, select, number)
	Type string `json:"type,omitempty" yaml:"type,omitempty"`

	// Required marks the field as mandatory
	Required bool `json:"required,omitempty" yaml:"required,omitempty"`

	// Default is used when the caller omits the field
	Default interface{} `json:"default,omitempty" yaml:"default,omitempty"`

	// MinLength is the minimum value length, 0 for no minimum
	MinLength int `json:"minLength,omitempty" yaml:"minLength,omitempty"`

	// MaxLength is the maximum value length, 0 for no maximum
	MaxLength int `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`

	// Pattern is a regular expression the value must match
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

// InputSchema describes what an agent accepts
type InputSchema struct {
	// Type selects the payload construction strategy
	Type InputType `json:"type" yaml:"type"`

	// Fields declares the form inputs; required when Type is form
	Fields []Field `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// OutputSchema describes what an agent produces
type OutputSchema struct {
	// Type selects the result parsing strategy
	Type execution.OutputType `json:"type" yaml:"type"`
}

// Settings holds per-agent execution tuning. Durations are milliseconds.
type Settings struct {
	// MaxExecutionTime bounds how long a long-running job is polled;
	// 0 disables polling
	MaxExecutionTime int `json:"maxExecutionTime,omitempty" yaml:"maxExecutionTime,omitempty"`

	// PollingInterval is the wait between job status queries
	PollingInterval int `json:"pollingInterval,omitempty" yaml:"pollingInterval,omitempty"`

	// RetryAttempts enables trigger retries when greater than zero
	RetryAttempts int `json:"retryAttempts,omitempty" yaml:"retryAttempts,omitempty"`
}

// Config describes one agent
type Config struct {
	// ID uniquely identifies the agent
	ID string `json:"id" yaml:"id"`

	// Name is the human-readable agent name
	Name string `json:"name" yaml:"name"`

	// Description explains what the agent does
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Enabled gates execution; absent means enabled
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`

	// WebhookURL is the engine path the agent is triggered on
	WebhookURL string `json:"webhookUrl" yaml:"webhookUrl"`

	// InputSchema describes the accepted input
	InputSchema InputSchema `json:"inputSchema" yaml:"inputSchema"`

	// OutputSchema describes the produced output
	OutputSchema OutputSchema `json:"outputSchema" yaml:"outputSchema"`

	// Settings holds execution tuning
	Settings Settings `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// IsEnabled returns whether the agent may be executed
func (c Config) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Validate checks the config for structural problems
func (c Config) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("agent id is required")
	}
	if c.WebhookURL == "" {
		return fmt.Errorf("agent %q: webhookUrl is required", c.ID)
	}

	// Check the input schema
	switch c.InputSchema.Type {
	case InputText, InputFile:
	case InputForm:
		if len(c.InputSchema.Fields) == 0 {
			return fmt.Errorf("agent %q: form input schema declares no fields", c.ID)
		}
		seen := make(map[string]bool, len(c.InputSchema.Fields))
		for _, field := range c.InputSchema.Fields {
			if field.Name == "" {
				return fmt.Errorf("agent %q: form field without a name", c.ID)
			}
			if seen[field.Name] {
				return fmt.Errorf("agent %q: duplicate form field %q", c.ID, field.Name)
			}
			seen[field.Name] = true
			if field.Pattern != "" {
				if _, err := regexp.Compile(field.Pattern); err != nil {
					return fmt.Errorf("agent %q: field %q pattern: %v", c.ID, field.Name, err)
				}
			}
		}
	default:
		return fmt.Errorf("agent %q: unknown input schema type %q", c.ID, c.InputSchema.Type)
	}

	// Check the output schema
	switch c.OutputSchema.Type {
	case execution.OutputVideo, execution.OutputImage, execution.OutputText, execution.OutputJSON:
	default:
		return fmt.Errorf("agent %q: unknown output schema type %q", c.ID, c.OutputSchema.Type)
	}

	return nil
}
