package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ahrav/go-sleuth/internal/domain"
	"github.com/ahrav/go-sleuth/internal/ports"
)

// OpenAIDefaultModel is the model used when ClientConfig.Model is empty.
const OpenAIDefaultModel = "gpt-4o-mini"

func init() {
	RegisterProviderFactory("openai", newOpenAIProvider)
}

// openAIProvider implements CoreGenerator for OpenAI's chat completions
// API. Tool schemas map to function tools and the output schema maps to
// strict JSON-schema response format.
type openAIProvider struct {
	BaseProvider
	client          *openai.Client
	tokenCounter    *TokenCounter
	errorClassifier *ErrorClassifier
}

func newOpenAIProvider(config ClientConfig) (CoreGenerator, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := config.Model
	if model == "" {
		model = OpenAIDefaultModel
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	client := openai.NewClientWithConfig(clientConfig)

	return &openAIProvider{
		BaseProvider:    BaseProvider{model: model},
		client:          client,
		tokenCounter:    NewTokenCounter(),
		errorClassifier: &ErrorClassifier{Provider: "openai"},
	}, nil
}

// DoGenerate performs one structured generation step against the OpenAI
// API and normalizes the response into the tagged union.
func (p *openAIProvider) DoGenerate(ctx context.Context, req ports.GenerateRequest) (*ports.GenerateResponse, error) {
	options := ParseRequestOptions(req.Options, p.GetModel())

	chatReq, err := p.buildChatCompletionRequest(req, options)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, p.handleError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoResponseChoice
	}

	return p.processResponse(resp)
}

func (p *openAIProvider) buildChatCompletionRequest(req ports.GenerateRequest, options RequestOptions) (openai.ChatCompletionRequest, error) {
	messages, err := p.buildMessages(req)
	if err != nil {
		return openai.ChatCompletionRequest{}, err
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    options.Model,
		Messages: messages,
	}

	for _, tool := range req.Tools {
		chatReq.Tools = append(chatReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}

	if len(req.Output.Schema) > 0 {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:        req.Output.Name,
				Description: req.Output.Description,
				Schema:      req.Output.Schema,
				Strict:      true,
			},
		}
	}

	if options.Temperature != nil {
		chatReq.Temperature = float32(clampFloat64(*options.Temperature, 0.0, 2.0))
	}
	if options.MaxTokens > 0 {
		chatReq.MaxTokens = options.MaxTokens
	}
	if options.TopP != nil {
		chatReq.TopP = float32(clampFloat64(*options.TopP, 0.0, 1.0))
	}

	return chatReq, nil
}

// buildMessages converts the transcript into OpenAI chat messages. Tool
// calls become assistant messages carrying ToolCalls; tool results become
// tool-role messages correlated by ToolCallID.
func (p *openAIProvider) buildMessages(req ports.GenerateRequest) ([]openai.ChatCompletionMessage, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+1)

	if req.Instructions != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.Instructions,
		})
	}

	for _, msg := range req.History {
		switch msg.Kind {
		case domain.KindSystem:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: msg.Content,
			})
		case domain.KindUser:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content,
			})
		case domain.KindToolCall:
			args, err := json.Marshal(msg.Args)
			if err != nil {
				return nil, fmt.Errorf("marshaling tool call args: %w", err)
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleAssistant,
				ToolCalls: []openai.ToolCall{{
					ID:   msg.CallID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      msg.ToolName,
						Arguments: string(args),
					},
				}},
			})
		case domain.KindToolResult:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.Content,
				ToolCallID: msg.CallID,
			})
		case domain.KindFinal:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			})
		}
	}

	return messages, nil
}

func (p *openAIProvider) processResponse(resp openai.ChatCompletionResponse) (*ports.GenerateResponse, error) {
	choice := resp.Choices[0]

	usage := domain.TokenUsage{
		InputTokens:  int64(resp.Usage.PromptTokens),
		OutputTokens: int64(resp.Usage.CompletionTokens),
	}

	if len(choice.Message.ToolCalls) > 0 {
		call := choice.Message.ToolCalls[0]

		var args map[string]any
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			return nil, NewProviderError("openai", ErrorTypeBadRequest, 0,
				fmt.Sprintf("unparseable tool call arguments for %s", call.Function.Name), err)
		}

		return &ports.GenerateResponse{
			Kind: ports.KindToolCall,
			ToolCall: &domain.ToolCallRecord{
				ToolName:  call.Function.Name,
				Arguments: args,
			},
			CallID: call.ID,
			Usage:  usage,
		}, nil
	}

	content := choice.Message.Content
	if content == "" {
		return nil, ErrEmptyResponse
	}
	if usage.OutputTokens == 0 {
		usage.OutputTokens = int64(p.tokenCounter.EstimateTokens(content))
	}

	return &ports.GenerateResponse{
		Kind:  ports.KindFinal,
		Final: json.RawMessage(content),
		Usage: usage,
	}, nil
}

// handleError classifies errors from the OpenAI API into ProviderError
// instances, distinguishing context errors from API errors.
func (p *openAIProvider) handleError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return p.errorClassifier.ClassifyContextError(err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" {
			message = "unknown error"
		}
		return p.errorClassifier.ClassifyHTTPError(apiErr.HTTPStatusCode, message, err)
	}

	return NewProviderError("openai", ErrorTypeUnknown, 0, "request failed", err)
}
