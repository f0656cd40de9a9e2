package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestToGeminiSchema_MapsSupportedFields(t *testing.T) {
	schema := toGeminiSchema(map[string]any{
		"type":        "object",
		"description": "outer",
		"properties": map[string]any{
			"mode": map[string]any{
				"type": "string",
				"enum": []any{"fast", "thorough"},
			},
			"tags": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required": []any{"mode"},
	})

	require.NotNil(t, schema)
	assert.Equal(t, genai.TypeObject, schema.Type)
	assert.Equal(t, "outer", schema.Description)
	assert.Equal(t, []string{"mode"}, schema.Required)
	assert.Equal(t, []string{"fast", "thorough"}, schema.Properties["mode"].Enum)
	require.NotNil(t, schema.Properties["tags"].Items)
	assert.Equal(t, genai.TypeString, schema.Properties["tags"].Items.Type)
}

func TestToGeminiSchema_ResolvesDefs(t *testing.T) {
	// Mirrors the shape of the article output schema: a shared $defs
	// entry referenced both at the top level and inside array items.
	raw := `{
		"type": "object",
		"properties": {
			"sections": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"heading": {"type": "string"},
						"references": {"$ref": "#/$defs/references"}
					},
					"required": ["heading", "references"]
				}
			},
			"references": {"$ref": "#/$defs/references"}
		},
		"required": ["sections", "references"],
		"$defs": {
			"references": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"title": {"type": "string"},
						"filename": {"type": "string"}
					},
					"required": ["title", "filename"]
				}
			}
		}
	}`
	var schemaMap map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &schemaMap))

	schema := toGeminiSchema(schemaMap)
	require.NotNil(t, schema)

	refs := schema.Properties["references"]
	require.NotNil(t, refs)
	assert.Equal(t, genai.TypeArray, refs.Type)
	require.NotNil(t, refs.Items)
	assert.Equal(t, genai.TypeObject, refs.Items.Type)
	assert.Equal(t, []string{"title", "filename"}, refs.Items.Required)
	assert.Equal(t, genai.TypeString, refs.Items.Properties["filename"].Type)

	nested := schema.Properties["sections"].Items.Properties["references"]
	require.NotNil(t, nested)
	assert.Equal(t, genai.TypeArray, nested.Type)
	require.NotNil(t, nested.Items)
	assert.Equal(t, genai.TypeObject, nested.Items.Type)
}

func TestToGeminiSchema_ResolvesDefinitions(t *testing.T) {
	schema := toGeminiSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"score": map[string]any{"$ref": "#/definitions/score"},
		},
		"definitions": map[string]any{
			"score": map[string]any{"type": "number"},
		},
	})

	require.NotNil(t, schema)
	require.NotNil(t, schema.Properties["score"])
	assert.Equal(t, genai.TypeNumber, schema.Properties["score"].Type)
}

func TestToGeminiSchema_UnresolvableRefs(t *testing.T) {
	tests := []struct {
		name string
		prop map[string]any
	}{
		{"external ref", map[string]any{"$ref": "https://example.com/other.json#/thing"}},
		{"missing definition", map[string]any{"$ref": "#/$defs/nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema := toGeminiSchema(map[string]any{
				"type":       "object",
				"properties": map[string]any{"field": tt.prop},
				"$defs":      map[string]any{},
			})
			require.NotNil(t, schema)
			assert.Nil(t, schema.Properties["field"])
		})
	}
}

func TestToGeminiSchema_CircularRefTerminates(t *testing.T) {
	schema := toGeminiSchema(map[string]any{
		"$defs": map[string]any{
			"node": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"next": map[string]any{"$ref": "#/$defs/node"},
				},
			},
		},
		"type": "object",
		"properties": map[string]any{
			"root": map[string]any{"$ref": "#/$defs/node"},
		},
	})

	require.NotNil(t, schema)
	require.NotNil(t, schema.Properties["root"])
	assert.Equal(t, genai.TypeObject, schema.Properties["root"].Type)
}
