package block

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleConfig struct {
	Prompt string `json:"prompt" jsonschema:"description=the prompt template"`
	Count  int    `json:"count" jsonschema:"default=1"`
}

func TestGenerateConfigSchema_ReflectsFields(t *testing.T) {
	schema, err := GenerateConfigSchema(sampleConfig{})
	require.NoError(t, err)

	prompt, ok := schema["prompt"]
	require.True(t, ok)
	assert.Equal(t, "string", prompt.Type)
	assert.Equal(t, "the prompt template", prompt.Description)

	count, ok := schema["count"]
	require.True(t, ok)
	assert.Equal(t, "integer", count.Type)
}

func TestValidateConfig_AcceptsMatchingConfig(t *testing.T) {
	schema := map[string]ParamSchema{
		"prompt": {Type: "string"},
	}
	err := ValidateConfig(schema, map[string]any{"prompt": "hello"})
	assert.NoError(t, err)
}

func TestValidateConfig_RejectsWrongType(t *testing.T) {
	schema := map[string]ParamSchema{
		"prompt": {Type: "string"},
	}
	err := ValidateConfig(schema, map[string]any{"prompt": 5})
	assert.Error(t, err)
}
