package agenterrors

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmarceau/agentrunner/pkg/agent"
	"github.com/dmarceau/agentrunner/pkg/execution"
)

func TestRuleRequired(t *testing.T) {
	rules := Rules{{Name: "topic", Label: "Topic", Required: true}}

	err := rules.Validate(map[string]interface{}{})
	require.Error(t, err)
	assert.True(t, Is(err, CodeValidation))
	assert.Contains(t, err.Error(), "Topic is required")

	assert.NoError(t, rules.Validate(map[string]interface{}{"topic": "cats"}))
}

func TestRuleLengths(t *testing.T) {
	rules := Rules{{Name: "topic", MinLength: 3, MaxLength: 5}}

	err := rules.Validate(map[string]interface{}{"topic": "ab"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 3 characters")

	err = rules.Validate(map[string]interface{}{"topic": "abcdef"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at most 5 characters")

	assert.NoError(t, rules.Validate(map[string]interface{}{"topic": "abcd"}))
}

func TestRulePattern(t *testing.T) {
	rules := Rules{{Name: "slug", Pattern: regexp.MustCompile(`^[a-z-]+$`)}}

	err := rules.Validate(map[string]interface{}{"slug": "Not A Slug"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")

	assert.NoError(t, rules.Validate(map[string]interface{}{"slug": "red-fox"}))
}

func TestRuleCustom(t *testing.T) {
	rules := Rules{{
		Name: "count",
		Custom: func(value string) (bool, string) {
			if value == "7" {
				return false, "count must not be 7"
			}
			return true, ""
		},
	}}

	err := rules.Validate(map[string]interface{}{"count": 7})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count must not be 7")

	assert.NoError(t, rules.Validate(map[string]interface{}{"count": 8}))
}

func TestEmptyOptionalFieldSkipsChecks(t *testing.T) {
	rules := Rules{{
		Name:      "tone",
		MinLength: 3,
		Pattern:   regexp.MustCompile(`^[a-z]+$`),
		Custom:    func(string) (bool, string) { return false, "never called" },
	}}

	// Absent and empty values pass when the field isn't required
	assert.NoError(t, rules.Validate(map[string]interface{}{}))
	assert.NoError(t, rules.Validate(map[string]interface{}{"tone": ""}))
}

func TestValidateChecksInOrder(t *testing.T) {
	// Required is reported before the length constraint
	rules := Rules{{Name: "topic", Required: true, MinLength: 3}}
	err := rules.Validate(map[string]interface{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required")

	// First failing rule wins across fields too
	rules = Rules{
		{Name: "first", Required: true},
		{Name: "second", Required: true},
	}
	err = rules.Validate(map[string]interface{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first is required")
}

func TestRulesForAgent(t *testing.T) {
	cfg := agent.Config{
		ID:         "report-agent",
		WebhookURL: "/webhook/report",
		InputSchema: agent.InputSchema{
			Type: agent.InputForm,
			Fields: []agent.Field{
				{Name: "topic", Label: "Topic", Required: true, MinLength: 3, MaxLength: 80},
				{Name: "slug", Pattern: `^[a-z-]+$`},
			},
		},
		OutputSchema: agent.OutputSchema{Type: execution.OutputJSON},
	}

	rules := RulesForAgent(cfg)
	require.Len(t, rules, 2)

	assert.Equal(t, "topic", rules[0].Name)
	assert.Equal(t, "Topic", rules[0].Label)
	assert.True(t, rules[0].Required)
	assert.Equal(t, 3, rules[0].MinLength)
	assert.Equal(t, 80, rules[0].MaxLength)
	require.NotNil(t, rules[1].Pattern)
	assert.True(t, rules[1].Pattern.MatchString("red-fox"))

	err := rules.Validate(map[string]interface{}{"topic": "ok topic", "slug": "Not Valid"})
	require.Error(t, err)
	assert.True(t, Is(err, CodeValidation))
}

func TestRulesForAgentNonForm(t *testing.T) {
	cfg := agent.Config{
		ID:           "video-agent",
		WebhookURL:   "/webhook/video",
		InputSchema:  agent.InputSchema{Type: agent.InputText},
		OutputSchema: agent.OutputSchema{Type: execution.OutputVideo},
	}

	assert.Nil(t, RulesForAgent(cfg))
}
