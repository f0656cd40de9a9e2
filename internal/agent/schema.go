package agent

import (
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ahrav/go-sleuth/internal/ports"
)

// searchParametersSchema is the JSON Schema for the search tool's
// arguments. Every tool call emitted by the generation step is validated
// against it before the retrieval capability is invoked.
const searchParametersSchema = `{
	"type": "object",
	"properties": {
		"query": {
			"type": "string",
			"minLength": 1,
			"description": "Free-text search query against the documentation corpus."
		}
	},
	"required": ["query"],
	"additionalProperties": false
}`

// articleOutputSchema is the JSON Schema of the agent's final structured
// output.
const articleOutputSchema = `{
	"type": "object",
	"properties": {
		"found_answer": {
			"type": "boolean",
			"description": "False when the searches did not surface an answer."
		},
		"title": {"type": "string"},
		"sections": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"heading": {"type": "string"},
					"content": {"type": "string"},
					"references": {"$ref": "#/$defs/references"}
				},
				"required": ["heading", "content", "references"],
				"additionalProperties": false
			}
		},
		"references": {"$ref": "#/$defs/references"}
	},
	"required": ["found_answer", "title", "sections", "references"],
	"additionalProperties": false,
	"$defs": {
		"references": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"title": {"type": "string"},
					"filename": {"type": "string"}
				},
				"required": ["title", "filename"],
				"additionalProperties": false
			}
		}
	}
}`

// searchToolSchema builds the tool declaration handed to the generation
// capability for the given tool name.
func searchToolSchema(name string) ports.ToolSchema {
	return ports.ToolSchema{
		Name:        name,
		Description: "Search the documentation corpus and return the top scored fragments.",
		Parameters:  json.RawMessage(searchParametersSchema),
	}
}

// articleSchema builds the final-output declaration handed to the
// generation capability.
func articleSchema() ports.OutputSchema {
	return ports.OutputSchema{
		Name:        "article",
		Description: "The final write-up: titled sections with per-section references.",
		Schema:      json.RawMessage(articleOutputSchema),
	}
}

// compileSearchArgsSchema compiles the search parameter schema for
// runtime validation of tool-call arguments.
func compileSearchArgsSchema() (*jsonschema.Schema, error) {
	return jsonschema.CompileString("search.json", searchParametersSchema)
}
