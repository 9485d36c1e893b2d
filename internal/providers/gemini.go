package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Gemini implements ChatModel on Google's generative-ai-go SDK.
type Gemini struct {
	apiKey    string
	model     string
	maxTokens int
	clientOpt []option.ClientOption
}

// NewGemini creates a new Gemini provider.
func NewGemini(model string, opts Options) (*Gemini, error) {
	if opts.APIKey == "" {
		return nil, &authError{message: "gemini API key is not set"}
	}
	clientOpt := []option.ClientOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		clientOpt = append(clientOpt, option.WithEndpoint(opts.BaseURL))
	}
	if opts.HTTPClient != nil {
		clientOpt = append(clientOpt, option.WithHTTPClient(opts.HTTPClient))
	}
	return &Gemini{
		apiKey:    opts.APIKey,
		model:     model,
		maxTokens: opts.maxTokens(),
		clientOpt: clientOpt,
	}, nil
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error) {
	client, err := genai.NewClient(ctx, g.clientOpt...)
	if err != nil {
		return ChatOut{}, fmt.Errorf("creating gemini client: %w", err)
	}
	defer func() { _ = client.Close() }()

	system, conversation := splitSystem(messages)
	gm := client.GenerativeModel(g.model)
	gm.SetMaxOutputTokens(int32(g.maxTokens))
	if system != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if len(tools) > 0 {
		gm.Tools = toGeminiTools(tools)
	}

	contents := toGeminiContents(conversation)
	if len(contents) == 0 {
		return ChatOut{}, fmt.Errorf("gemini: no user message to send")
	}
	last := contents[len(contents)-1]

	var out ChatOut
	err = retryWithBackoff(ctx, 3, func() error {
		cs := gm.StartChat()
		cs.History = contents[:len(contents)-1]
		resp, err := cs.SendMessage(ctx, last.Parts...)
		if err != nil {
			return classifyGeminiError(err)
		}
		out = fromGemini(resp)
		return nil
	})
	return out, err
}

func classifyGeminiError(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		if mapped := classifyStatus("gemini", gErr.Code, err); mapped != nil {
			return mapped
		}
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "api key not valid"), strings.Contains(msg, "permission denied"):
		return &authError{message: "gemini: " + err.Error()}
	case strings.Contains(msg, "resource exhausted"), strings.Contains(msg, "429"):
		return &rateLimitError{retryable: true}
	}
	return fmt.Errorf("gemini API call: %w", err)
}

// toGeminiContents converts the conversation to Gemini contents. Tool
// results are sent as function responses in a user turn; consecutive
// results share one turn.
func toGeminiContents(messages []Message) []*genai.Content {
	var out []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case RoleAssistant:
			c := &genai.Content{Role: "model"}
			if m.Content != "" {
				c.Parts = append(c.Parts, genai.Text(m.Content))
			}
			for _, call := range m.ToolCalls {
				c.Parts = append(c.Parts, genai.FunctionCall{Name: call.Name, Args: call.Input})
			}
			out = append(out, c)
		case RoleTool:
			part := genai.FunctionResponse{
				Name:     m.ToolName,
				Response: map[string]any{"result": m.Content},
			}
			if n := len(out); n > 0 && out[n-1].Role == "user" && isFunctionResponse(out[n-1]) {
				out[n-1].Parts = append(out[n-1].Parts, part)
				continue
			}
			out = append(out, &genai.Content{Role: "user", Parts: []genai.Part{part}})
		default:
			if n := len(out); n > 0 && out[n-1].Role == "user" {
				out[n-1].Parts = append(out[n-1].Parts, genai.Text(m.Content))
				continue
			}
			out = append(out, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}
	return out
}

func isFunctionResponse(c *genai.Content) bool {
	if len(c.Parts) == 0 {
		return false
	}
	_, ok := c.Parts[0].(genai.FunctionResponse)
	return ok
}

func fromGemini(resp *genai.GenerateContentResponse) ChatOut {
	var out ChatOut
	if resp.UsageMetadata != nil {
		out.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			out.Text += string(p)
		case genai.FunctionCall:
			// Gemini has no call IDs; synthesize stable ones per reply.
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:    fmt.Sprintf("call_%d", len(out.ToolCalls)),
				Name:  p.Name,
				Input: p.Args,
			})
		}
	}
	return out
}

func toGeminiTools(tools []ToolSpec) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toGeminiSchema(t.Schema),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func toGeminiSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}
	out := &genai.Schema{Type: genai.TypeObject, Required: requiredFields(schema)}
	props, _ := schema["properties"].(map[string]any)
	if len(props) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			prop, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			ps := &genai.Schema{Type: geminiType(prop["type"])}
			if desc, ok := prop["description"].(string); ok {
				ps.Description = desc
			}
			out.Properties[name] = ps
		}
	}
	return out
}

func geminiType(v any) genai.Type {
	s, _ := v.(string)
	switch s {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}
