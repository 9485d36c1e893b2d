package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAI implements ChatModel on the official OpenAI SDK. It also serves
// OpenAI-compatible local servers (see NewOllama).
type OpenAI struct {
	client    openai.Client
	model     string
	name      string
	maxTokens int
}

// NewOpenAI creates a new OpenAI provider.
func NewOpenAI(model string, opts Options) (*OpenAI, error) {
	if opts.APIKey == "" {
		return nil, &authError{message: "openai API key is not set"}
	}
	return newOpenAICompatible("openai", model, opts), nil
}

func newOpenAICompatible(name, model string, opts Options) *OpenAI {
	reqOpts := []option.RequestOption{option.WithMaxRetries(0)}
	if opts.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	return &OpenAI{
		client:    openai.NewClient(reqOpts...),
		model:     model,
		name:      name,
		maxTokens: opts.maxTokens(),
	}
}

func (o *OpenAI) Name() string { return o.name }

func (o *OpenAI) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error) {
	params := openai.ChatCompletionNewParams{
		Model:     shared.ChatModel(o.model),
		Messages:  toOpenAIMessages(messages),
		MaxTokens: openai.Int(int64(o.maxTokens)),
	}
	if len(tools) > 0 {
		params.Tools = toOpenAITools(tools)
	}

	var out ChatOut
	err := retryWithBackoff(ctx, 3, func() error {
		completion, err := o.client.Chat.Completions.New(ctx, params)
		if err != nil {
			var apiErr *openai.Error
			if errors.As(err, &apiErr) {
				if mapped := classifyStatus(o.name, apiErr.StatusCode, err); mapped != nil {
					return mapped
				}
			}
			return fmt.Errorf("%s API call: %w", o.name, err)
		}
		out, err = fromOpenAI(completion)
		return err
	})
	return out, err
}

func fromOpenAI(completion *openai.ChatCompletion) (ChatOut, error) {
	if len(completion.Choices) == 0 {
		return ChatOut{}, fmt.Errorf("no choices in response")
	}
	msg := completion.Choices[0].Message
	out := ChatOut{
		Text:       msg.Content,
		TokensUsed: int(completion.Usage.TotalTokens),
	}
	for _, call := range msg.ToolCalls {
		var input map[string]any
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &input); err != nil {
				return ChatOut{}, fmt.Errorf("parsing tool arguments for %s: %w", call.Function.Name, err)
			}
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: call.ID, Name: call.Function.Name, Input: input})
	}
	return out, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		case RoleAssistant:
			asst := openai.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				asst.Content.OfString = openai.String(m.Content)
			}
			for _, call := range m.ToolCalls {
				args, err := json.Marshal(call.Input)
				if err != nil {
					args = []byte("{}")
				}
				asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: call.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      call.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func toOpenAITools(tools []ToolSpec) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  shared.FunctionParameters(t.Schema),
			},
		})
	}
	return out
}
