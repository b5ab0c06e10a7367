package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmarceau/agentrunner/pkg/agent"
	"github.com/dmarceau/agentrunner/pkg/execution"
)

func TestBuildPayloadTextSchema(t *testing.T) {
	cfg := agent.Config{InputSchema: agent.InputSchema{Type: agent.InputText}}

	payload := BuildPayload(cfg, execution.Input{Prompt: "a red fox"})

	assert.Equal(t, map[string]interface{}{"prompt": "a red fox"}, payload)
}

func TestBuildPayloadTextSchemaEmptyPrompt(t *testing.T) {
	cfg := agent.Config{InputSchema: agent.InputSchema{Type: agent.InputText}}

	payload := BuildPayload(cfg, execution.Input{})

	assert.Equal(t, map[string]interface{}{"prompt": ""}, payload)
}

func TestBuildPayloadFormSchemaUsesDefaults(t *testing.T) {
	cfg := agent.Config{
		InputSchema: agent.InputSchema{
			Type: agent.InputForm,
			Fields: []agent.Field{
				{Name: "subject"},
				{Name: "style", Default: "anime"},
			},
		},
	}

	payload := BuildPayload(cfg, execution.Input{
		Parameters: map[string]interface{}{"subject": "a castle"},
	})

	assert.Equal(t, map[string]interface{}{
		"subject": "a castle",
		"style":   "anime",
	}, payload)
}

func TestBuildPayloadFormSchemaOmitsMissingFieldWithoutDefault(t *testing.T) {
	cfg := agent.Config{
		InputSchema: agent.InputSchema{
			Type:   agent.InputForm,
			Fields: []agent.Field{{Name: "subject"}},
		},
	}

	payload := BuildPayload(cfg, execution.Input{})

	assert.Empty(t, payload)
}

func TestBuildPayloadFormSchemaIncludesPromptAndExtras(t *testing.T) {
	cfg := agent.Config{
		InputSchema: agent.InputSchema{
			Type:   agent.InputForm,
			Fields: []agent.Field{{Name: "subject"}},
		},
	}

	payload := BuildPayload(cfg, execution.Input{
		Prompt: "make it dramatic",
		Parameters: map[string]interface{}{
			"subject": "a castle",
			"seed":    42,
		},
	})

	assert.Equal(t, map[string]interface{}{
		"subject": "a castle",
		"prompt":  "make it dramatic",
		"seed":    42,
	}, payload)
}

func TestBuildPayloadFileSchema(t *testing.T) {
	cfg := agent.Config{InputSchema: agent.InputSchema{Type: agent.InputFile}}

	payload := BuildPayload(cfg, execution.Input{
		Prompt: "transcribe this",
		Parameters: map[string]interface{}{
			"file":     "s3://bucket/audio.wav",
			"language": "en",
		},
	})

	assert.Equal(t, map[string]interface{}{
		"file":     "s3://bucket/audio.wav",
		"prompt":   "transcribe this",
		"language": "en",
	}, payload)
}

func TestBuildPayloadExtrasWinOverSchemaValues(t *testing.T) {
	cfg := agent.Config{InputSchema: agent.InputSchema{Type: agent.InputText}}

	payload := BuildPayload(cfg, execution.Input{
		Prompt:     "from the prompt field",
		Parameters: map[string]interface{}{"prompt": "from the parameters"},
	})

	assert.Equal(t, map[string]interface{}{"prompt": "from the parameters"}, payload)
}
