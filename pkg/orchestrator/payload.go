package orchestrator

import (
	"github.com/dmarceau/agentrunner/pkg/agent"
	"github.com/dmarceau/agentrunner/pkg/execution"
)

// BuildPayload assembles the outbound JSON body for a trigger from the
// caller's input, following the agent's input schema. Parameters the
// schema doesn't consume are merged onto the payload afterwards, so
// schema-declared fields never shadow arbitrary extras.
func BuildPayload(cfg agent.Config, input execution.Input) map[string]interface{} {
	payload := make(map[string]interface{})
	consumed := make(map[string]bool)

	switch cfg.InputSchema.Type {
	case agent.InputText:
		payload["prompt"] = input.Prompt

	case agent.InputForm:
		for _, field := range cfg.InputSchema.Fields {
			if value, ok := input.Parameters[field.Name]; ok {
				payload[field.Name] = value
				consumed[field.Name] = true
			} else if field.Default != nil {
				payload[field.Name] = field.Default
			}
		}
		if input.Prompt != "" {
			payload["prompt"] = input.Prompt
		}

	case agent.InputFile:
		if file, ok := input.Parameters["file"]; ok {
			payload["file"] = file
			consumed["file"] = true
		}
		if input.Prompt != "" {
			payload["prompt"] = input.Prompt
		}
	}

	for name, value := range input.Parameters {
		if consumed[name] {
			continue
		}
		payload[name] = value
	}

	return payload
}
