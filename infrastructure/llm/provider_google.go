package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"

	"github.com/ahrav/go-sleuth/internal/domain"
	"github.com/ahrav/go-sleuth/internal/ports"
)

// GoogleDefaultModel is the model used when ClientConfig.Model is empty.
const GoogleDefaultModel = "gemini-2.0-flash-exp"

func init() {
	RegisterProviderFactory("google", newGoogleProvider)
}

// googleProvider implements CoreGenerator for Google's Gemini API.
//
// Like the Anthropic provider, the final output schema is contracted as a
// function declaration: function calling is forced on every step, and a
// function call whose name matches the output schema's name carries the
// final payload in its arguments.
type googleProvider struct {
	BaseProvider
	client          *genai.Client
	tokenCounter    *TokenCounter
	errorClassifier *ErrorClassifier
}

func newGoogleProvider(config ClientConfig) (CoreGenerator, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := config.Model
	if model == "" {
		model = GoogleDefaultModel
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}

	return &googleProvider{
		BaseProvider:    BaseProvider{model: model},
		client:          client,
		tokenCounter:    NewTokenCounter(),
		errorClassifier: &ErrorClassifier{Provider: "google"},
	}, nil
}

// DoGenerate performs one structured generation step against the Gemini
// API and normalizes the response into the tagged union.
func (p *googleProvider) DoGenerate(ctx context.Context, req ports.GenerateRequest) (*ports.GenerateResponse, error) {
	options := ParseRequestOptions(req.Options, p.GetModel())

	contents := p.buildContents(req.History)
	config, err := p.buildGenerationConfig(req, options)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Models.GenerateContent(ctx, options.Model, contents, config)
	if err != nil {
		return nil, p.handleError(err)
	}

	return p.processResponse(resp, req.Output.Name)
}

// buildContents converts the transcript into Gemini content entries.
// Gemini carries tool calls as model-role function-call parts and tool
// results as user-role function-response parts.
func (p *googleProvider) buildContents(history domain.Transcript) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))

	for _, msg := range history {
		switch msg.Kind {
		case domain.KindUser, domain.KindSystem:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		case domain.KindToolCall:
			contents = append(contents, &genai.Content{
				Role: genai.RoleModel,
				Parts: []*genai.Part{{
					FunctionCall: &genai.FunctionCall{
						ID:   msg.CallID,
						Name: msg.ToolName,
						Args: msg.Args,
					},
				}},
			})
		case domain.KindToolResult:
			var response map[string]any
			if err := json.Unmarshal([]byte(msg.Content), &response); err != nil {
				response = map[string]any{"result": msg.Content}
			}
			contents = append(contents, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						ID:       msg.CallID,
						Name:     msg.ToolName,
						Response: response,
					},
				}},
			})
		case domain.KindFinal:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		}
	}

	return contents
}

func (p *googleProvider) buildGenerationConfig(req ports.GenerateRequest, options RequestOptions) (*genai.GenerateContentConfig, error) {
	config := &genai.GenerateContentConfig{}

	if req.Instructions != "" {
		config.SystemInstruction = genai.NewContentFromText(req.Instructions, genai.RoleUser)
	}

	if options.Temperature != nil {
		config.Temperature = genai.Ptr(float32(clampFloat64(*options.Temperature, 0.0, 2.0)))
	}
	if options.MaxTokens > 0 {
		if options.MaxTokens > math.MaxInt32 {
			config.MaxOutputTokens = math.MaxInt32
		} else {
			config.MaxOutputTokens = int32(options.MaxTokens)
		}
	}
	if options.TopP != nil {
		config.TopP = genai.Ptr(float32(clampFloat64(*options.TopP, 0.0, 1.0)))
	}

	declarations := make([]*genai.FunctionDeclaration, 0, len(req.Tools)+1)
	for _, tool := range req.Tools {
		decl, err := convertFunctionDeclaration(tool.Name, tool.Description, tool.Parameters)
		if err != nil {
			return nil, err
		}
		declarations = append(declarations, decl)
	}

	if len(req.Output.Schema) > 0 {
		decl, err := convertFunctionDeclaration(req.Output.Name, req.Output.Description, req.Output.Schema)
		if err != nil {
			return nil, err
		}
		declarations = append(declarations, decl)

		// Force function calling so every step yields either a real tool
		// call or the output function carrying the final payload.
		config.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode: genai.FunctionCallingConfigModeAny,
			},
		}
	}

	if len(declarations) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: declarations}}
	}

	return config, nil
}

func convertFunctionDeclaration(name, description string, schema json.RawMessage) (*genai.FunctionDeclaration, error) {
	var schemaMap map[string]any
	if err := json.Unmarshal(schema, &schemaMap); err != nil {
		return nil, fmt.Errorf("invalid tool schema for %s: %w", name, err)
	}

	return &genai.FunctionDeclaration{
		Name:        name,
		Description: description,
		Parameters:  toGeminiSchema(schemaMap),
	}, nil
}

// maxSchemaDepth bounds $ref resolution so a circular definition cannot
// recurse forever.
const maxSchemaDepth = 32

// toGeminiSchema converts a JSON Schema document into Gemini's typed
// Schema. Only the subset Gemini supports is mapped. Local $ref pointers
// into $defs/definitions are inlined; combinators are not resolved.
func toGeminiSchema(schemaMap map[string]any) *genai.Schema {
	return convertSchema(schemaMap, schemaMap, 0)
}

func convertSchema(schemaMap, root map[string]any, depth int) *genai.Schema {
	if schemaMap == nil || depth > maxSchemaDepth {
		return nil
	}

	if ref, ok := schemaMap["$ref"].(string); ok {
		if resolved := resolveSchemaRef(ref, root); resolved != nil {
			return convertSchema(resolved, root, depth+1)
		}
		return nil
	}

	schema := &genai.Schema{}

	if t, ok := schemaMap["type"].(string); ok {
		schema.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schemaMap["description"].(string); ok {
		schema.Description = desc
	}
	if enum, ok := schemaMap["enum"].([]any); ok {
		for _, e := range enum {
			if s, ok := e.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}
	if props, ok := schemaMap["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				schema.Properties[name] = convertSchema(propMap, root, depth+1)
			}
		}
	}
	if required, ok := schemaMap["required"].([]any); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	if items, ok := schemaMap["items"].(map[string]any); ok {
		schema.Items = convertSchema(items, root, depth+1)
	}

	return schema
}

// resolveSchemaRef looks up a document-local $ref pointer of the form
// "#/$defs/<name>" or "#/definitions/<name>" in the root document.
// Anything else returns nil.
func resolveSchemaRef(ref string, root map[string]any) map[string]any {
	var section, name string
	switch {
	case strings.HasPrefix(ref, "#/$defs/"):
		section, name = "$defs", strings.TrimPrefix(ref, "#/$defs/")
	case strings.HasPrefix(ref, "#/definitions/"):
		section, name = "definitions", strings.TrimPrefix(ref, "#/definitions/")
	default:
		return nil
	}

	defs, ok := root[section].(map[string]any)
	if !ok {
		return nil
	}
	def, _ := defs[name].(map[string]any)
	return def
}

func (p *googleProvider) processResponse(resp *genai.GenerateContentResponse, outputName string) (*ports.GenerateResponse, error) {
	usage := domain.TokenUsage{}
	if resp.UsageMetadata != nil {
		usage.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}

	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.FunctionCall == nil {
				continue
			}
			call := part.FunctionCall

			if call.Name == outputName {
				payload, err := json.Marshal(call.Args)
				if err != nil {
					return nil, NewProviderError("google", ErrorTypeBadRequest, 0,
						"unencodable final output arguments", err)
				}
				return &ports.GenerateResponse{
					Kind:  ports.KindFinal,
					Final: payload,
					Usage: usage,
				}, nil
			}

			return &ports.GenerateResponse{
				Kind: ports.KindToolCall,
				ToolCall: &domain.ToolCallRecord{
					ToolName:  call.Name,
					Arguments: call.Args,
				},
				CallID: call.ID,
				Usage:  usage,
			}, nil
		}
	}

	if text := resp.Text(); text != "" {
		return &ports.GenerateResponse{
			Kind:  ports.KindFinal,
			Final: json.RawMessage(text),
			Usage: usage,
		}, nil
	}

	return nil, ErrEmptyResponse
}

// handleError classifies Google API errors into ProviderError instances,
// with special handling for safety-filter blocks.
func (p *googleProvider) handleError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return p.errorClassifier.ClassifyContextError(err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" && len(apiErr.Errors) > 0 {
			message = apiErr.Errors[0].Message
		}

		if containsContentPolicyError(apiErr) {
			return NewProviderError("google", ErrorTypeContentPolicy, apiErr.Code,
				"request blocked by safety filters", err)
		}

		return p.errorClassifier.ClassifyHTTPError(apiErr.Code, message, err)
	}

	return NewProviderError("google", ErrorTypeUnknown, 0, "request failed", err)
}

// containsContentPolicyError checks whether a Google API error reports a
// content policy violation.
func containsContentPolicyError(apiErr *googleapi.Error) bool {
	if apiErr.Message != "" {
		lower := strings.ToLower(apiErr.Message)
		if strings.Contains(lower, "safety") ||
			strings.Contains(lower, "policy") ||
			strings.Contains(lower, "blocked") {
			return true
		}
	}

	for _, e := range apiErr.Errors {
		if e.Reason == "SAFETY" || e.Reason == "BLOCKED" {
			return true
		}
	}

	return false
}
