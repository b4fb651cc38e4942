package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

type chatCompletionAPI interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint. The
// Nova API is reached this way with a custom base URL.
type OpenAIClient struct {
	api      chatCompletionAPI
	modelID  string
	provider string
}

// NewNovaClient points an OpenAI-compatible client at the Nova API.
func NewNovaClient(apiKey, baseURL, modelID string) (*OpenAIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("llm: nova api key is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/") + "/v1"
	return NewOpenAIClient(openai.NewClientWithConfig(cfg), modelID, "nova"), nil
}

func NewOpenAIClient(api chatCompletionAPI, modelID, provider string) *OpenAIClient {
	if api == nil {
		panic("llm: chat completion client cannot be nil")
	}
	if provider == "" {
		provider = "openai"
	}
	return &OpenAIClient{api: api, modelID: modelID, provider: provider}
}

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if strings.TrimSpace(model) == "" {
		model = c.modelID
	}
	if strings.TrimSpace(model) == "" {
		return Response{}, fmt.Errorf("llm: %s model id is required", c.provider)
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if system := strings.TrimSpace(strings.Join(req.System, "\n\n")); system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, msg := range req.Messages {
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		var role string
		switch msg.Role {
		case RoleSystem:
			role = openai.ChatMessageRoleSystem
		case RoleUser:
			role = openai.ChatMessageRoleUser
		case RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		default:
			return Response{}, fmt.Errorf("llm: unsupported role %q", msg.Role)
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}

	creq := openai.ChatCompletionRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: int(req.MaxTokens),
		TopP:      req.TopP,
	}
	if req.Temperature >= 0 {
		creq.Temperature = req.Temperature
	}

	out, err := c.api.CreateChatCompletion(ctx, creq)
	if err != nil {
		return Response{}, c.classifyError(err)
	}
	if len(out.Choices) == 0 {
		return Response{}, fmt.Errorf("llm: %s returned no choices", c.provider)
	}

	choice := out.Choices[0]
	return Response{
		Text:       strings.TrimSpace(choice.Message.Content),
		StopReason: string(choice.FinishReason),
		Provider:   c.provider,
		Usage: Usage{
			InputTokens:  int32(out.Usage.PromptTokens),
			OutputTokens: int32(out.Usage.CompletionTokens),
			TotalTokens:  int32(out.Usage.TotalTokens),
		},
	}, nil
}

func (c *OpenAIClient) classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return &StatusError{Provider: c.provider, StatusCode: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return &StatusError{Provider: c.provider, StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	return fmt.Errorf("llm: %s chat completion: %w", c.provider, err)
}
