package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ahrav/go-sleuth/internal/domain"
	"github.com/ahrav/go-sleuth/internal/ports"
)

// AnthropicDefaultModel is the model used when ClientConfig.Model is empty.
const AnthropicDefaultModel = "claude-3-5-sonnet-20241022"

func init() {
	RegisterProviderFactory("anthropic", newAnthropicProvider)
}

// anthropicProvider implements CoreGenerator for Anthropic's Messages API.
//
// Anthropic has no response-format parameter, so the final output schema
// is contracted as one more tool: the model is forced to pick a tool on
// every step, and a tool_use block whose name matches the output schema's
// name is decoded as the final payload rather than a tool invocation.
type anthropicProvider struct {
	BaseProvider
	client          anthropic.Client
	tokenCounter    *TokenCounter
	errorClassifier *ErrorClassifier
}

func newAnthropicProvider(config ClientConfig) (CoreGenerator, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := config.Model
	if model == "" {
		model = AnthropicDefaultModel
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &anthropicProvider{
		BaseProvider:    BaseProvider{model: model},
		client:          anthropic.NewClient(opts...),
		tokenCounter:    NewTokenCounter(),
		errorClassifier: &ErrorClassifier{Provider: "anthropic"},
	}, nil
}

// DoGenerate performs one structured generation step against the
// Anthropic API and normalizes the response into the tagged union.
func (p *anthropicProvider) DoGenerate(ctx context.Context, req ports.GenerateRequest) (*ports.GenerateResponse, error) {
	options := ParseRequestOptions(req.Options, p.GetModel())

	params, err := p.buildMessageParams(req, options)
	if err != nil {
		return nil, err
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, p.handleError(err)
	}

	return p.processResponse(message, req.Output.Name)
}

func (p *anthropicProvider) buildMessageParams(req ports.GenerateRequest, options RequestOptions) (anthropic.MessageNewParams, error) {
	messages, err := p.buildMessages(req.History)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(options.Model),
		MaxTokens: int64(options.MaxTokens),
		Messages:  messages,
	}

	if req.Instructions != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.Instructions}}
	}
	if options.Temperature != nil {
		params.Temperature = anthropic.Float(clampFloat64(*options.Temperature, 0.0, 1.0))
	}

	for _, tool := range req.Tools {
		toolParam, err := convertAnthropicTool(tool.Name, tool.Description, tool.Parameters)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = append(params.Tools, toolParam)
	}

	if len(req.Output.Schema) > 0 {
		outputTool, err := convertAnthropicTool(req.Output.Name, req.Output.Description, req.Output.Schema)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = append(params.Tools, outputTool)

		// Force a tool pick so every step yields either a real tool call
		// or the output tool carrying the final payload.
		params.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfAny: &anthropic.ToolChoiceAnyParam{},
		}
	}

	return params, nil
}

func convertAnthropicTool(name, description string, schema json.RawMessage) (anthropic.ToolUnionParam, error) {
	var inputSchema anthropic.ToolInputSchemaParam
	if err := json.Unmarshal(schema, &inputSchema); err != nil {
		return anthropic.ToolUnionParam{}, fmt.Errorf("invalid tool schema for %s: %w", name, err)
	}

	toolParam := anthropic.ToolUnionParamOfTool(inputSchema, name)
	if toolParam.OfTool == nil {
		return anthropic.ToolUnionParam{}, fmt.Errorf("invalid tool schema for %s: missing tool definition", name)
	}
	toolParam.OfTool.Description = anthropic.String(description)
	return toolParam, nil
}

// buildMessages converts the transcript into Anthropic messages.
// Anthropic requires strictly alternating user/assistant roles, and tool
// results travel as blocks inside user messages, so consecutive same-side
// entries are coalesced into a single message's content blocks.
func (p *anthropicProvider) buildMessages(history domain.Transcript) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam

	appendBlock := func(role anthropic.MessageParamRole, block anthropic.ContentBlockParamUnion) {
		if n := len(result); n > 0 && result[n-1].Role == role {
			result[n-1].Content = append(result[n-1].Content, block)
			return
		}
		result = append(result, anthropic.MessageParam{
			Role:    role,
			Content: []anthropic.ContentBlockParamUnion{block},
		})
	}

	for _, msg := range history {
		switch msg.Kind {
		case domain.KindUser, domain.KindSystem:
			appendBlock(anthropic.MessageParamRoleUser, anthropic.NewTextBlock(msg.Content))
		case domain.KindToolCall:
			appendBlock(anthropic.MessageParamRoleAssistant,
				anthropic.NewToolUseBlock(msg.CallID, msg.Args, msg.ToolName))
		case domain.KindToolResult:
			appendBlock(anthropic.MessageParamRoleUser,
				anthropic.NewToolResultBlock(msg.CallID, msg.Content, false))
		case domain.KindFinal:
			appendBlock(anthropic.MessageParamRoleAssistant, anthropic.NewTextBlock(msg.Content))
		}
	}

	return result, nil
}

func (p *anthropicProvider) processResponse(message *anthropic.Message, outputName string) (*ports.GenerateResponse, error) {
	usage := domain.TokenUsage{
		InputTokens:  message.Usage.InputTokens,
		OutputTokens: message.Usage.OutputTokens,
	}

	for _, block := range message.Content {
		toolUse, ok := block.AsAny().(anthropic.ToolUseBlock)
		if !ok {
			continue
		}

		if toolUse.Name == outputName {
			return &ports.GenerateResponse{
				Kind:  ports.KindFinal,
				Final: json.RawMessage(toolUse.Input),
				Usage: usage,
			}, nil
		}

		var args map[string]any
		if err := json.Unmarshal(toolUse.Input, &args); err != nil {
			return nil, NewProviderError("anthropic", ErrorTypeBadRequest, 0,
				fmt.Sprintf("unparseable tool call arguments for %s", toolUse.Name), err)
		}
		return &ports.GenerateResponse{
			Kind: ports.KindToolCall,
			ToolCall: &domain.ToolCallRecord{
				ToolName:  toolUse.Name,
				Arguments: args,
			},
			CallID: toolUse.ID,
			Usage:  usage,
		}, nil
	}

	// Without a tool choice constraint the model may answer in plain text;
	// surface it as the final payload for tolerant downstream parsing.
	for _, block := range message.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok && text.Text != "" {
			return &ports.GenerateResponse{
				Kind:  ports.KindFinal,
				Final: json.RawMessage(text.Text),
				Usage: usage,
			}, nil
		}
	}

	return nil, ErrEmptyResponse
}

// handleError classifies Anthropic SDK errors into ProviderError
// instances.
func (p *anthropicProvider) handleError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return p.errorClassifier.ClassifyContextError(err)
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return p.errorClassifier.ClassifyHTTPError(apiErr.StatusCode, "request failed", err)
	}

	return NewProviderError("anthropic", ErrorTypeUnknown, 0, "request failed", err)
}
