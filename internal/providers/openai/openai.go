// Package openai adapts the canonical chat-completion protocol to OpenAI's
// official Go SDK.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aigateway/gateway/internal/providers"
	openaiSDK "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const providerName = "openai"

// Provider implements providers.Provider for OpenAI.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	client  openaiSDK.Client
}

// New builds an OpenAI Provider pointed at baseURL (the vendor's default
// when empty) using model for every request.
func New(apiKey, model, baseURL string) *Provider {
	p := &Provider{apiKey: apiKey, model: model, baseURL: baseURL}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: providers.ProviderTimeout}),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	p.client = openaiSDK.NewClient(opts...)
	return p
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) HealthCheck(ctx context.Context) error {
	_, err := p.client.Models.List(ctx)
	if err != nil {
		return fmt.Errorf("openai: health check: %w", toProviderError(err))
	}
	return nil
}

func (p *Provider) Request(ctx context.Context, systemPrompt string, req *providers.CanonicalRequest) (*providers.CanonicalResponse, error) {
	msgs := make([]openaiSDK.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if systemPrompt != "" {
		msgs = append(msgs, openaiSDK.SystemMessage(systemPrompt))
	}
	for _, m := range req.Messages {
		msgs = append(msgs, toSDKMessage(m.Role, m.Content))
	}

	params := openaiSDK.ChatCompletionNewParams{
		Messages: msgs,
		Model:    p.model,
	}
	if req.Temperature != 0 {
		params.Temperature = openaiSDK.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openaiSDK.Int(int64(req.MaxTokens))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, toProviderError(err)
	}

	content := ""
	finishReason := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
		finishReason = resp.Choices[0].FinishReason
	}

	return providers.NewCanonicalResponse(resp.Model, []providers.Choice{{
		Index:        0,
		Message:      providers.Message{Role: "assistant", Content: content},
		FinishReason: finishReason,
	}}, providers.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}), nil
}

func toSDKMessage(role, content string) openaiSDK.ChatCompletionMessageParamUnion {
	switch role {
	case "assistant":
		return openaiSDK.AssistantMessage(content)
	case "system":
		return openaiSDK.SystemMessage(content)
	default:
		return openaiSDK.UserMessage(content)
	}
}

// ProviderError is a structured error returned by the OpenAI API.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("openai: %s (status=%d)", e.Message, e.StatusCode)
}

func (e *ProviderError) HTTPStatus() int { return e.StatusCode }

func toProviderError(err error) error {
	var apiErr *openaiSDK.Error
	if errors.As(err, &apiErr) {
		return &ProviderError{StatusCode: apiErr.StatusCode, Message: apiErr.Error()}
	}
	return &providers.TransportError{Err: err}
}
