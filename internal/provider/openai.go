package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/parley-ai/parley/internal/memory"
)

// OpenAIProvider implements Provider for all OpenAI-compatible APIs,
// including OpenAI, DeepSeek, OpenRouter, and Gemini's compatibility
// endpoint.
type OpenAIProvider struct {
	client  openai.Client
	name    string
	baseURL string
}

func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	name := "openai"
	if baseURL != "" {
		switch {
		case strings.Contains(baseURL, "deepseek"):
			name = "deepseek"
		case strings.Contains(baseURL, "openrouter"):
			name = "openrouter"
		case strings.Contains(baseURL, "generativelanguage.googleapis.com"):
			name = "gemini"
		case strings.Contains(baseURL, "groq"):
			name = "groq"
		}
	}

	return &OpenAIProvider{
		client:  openai.NewClient(opts...),
		name:    name,
		baseURL: baseURL,
	}
}

func (p *OpenAIProvider) Name() string { return p.name }

func (p *OpenAIProvider) Invoke(ctx context.Context, req *Request) (*Response, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: p.buildMessages(req),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%s completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s completion: empty choices for model %s", p.name, req.Model)
	}

	return &Response{
		Text: resp.Choices[0].Message.Content,
		Usage: Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

// buildMessages converts the unified request into OpenAI chat params:
// system prompt first, then history turns in order, then the current prompt.
func (p *OpenAIProvider) buildMessages(req *Request) []openai.ChatCompletionMessageParamUnion {
	var params []openai.ChatCompletionMessageParamUnion

	if req.System != "" {
		params = append(params, openai.SystemMessage(req.System))
	}
	for _, turn := range req.History {
		switch turn.Role {
		case memory.RoleUser:
			params = append(params, openai.UserMessage(turn.Content))
		case memory.RoleAssistant:
			params = append(params, openai.AssistantMessage(turn.Content))
		}
	}
	params = append(params, openai.UserMessage(req.Prompt))
	return params
}
