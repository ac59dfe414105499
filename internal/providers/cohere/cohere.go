// Package cohere adapts the canonical chat-completion protocol to Cohere's
// native /v1/chat endpoint over plain net/http (no official Go SDK).
package cohere

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/aigateway/gateway/internal/providers"
)

const (
	defaultBaseURL = "https://api.cohere.com/v1"
	providerName   = "cohere"
)

type chatRequest struct {
	Model       string        `json:"model"`
	Message     string        `json:"message"`
	ChatHistory []historyTurn `json:"chat_history,omitempty"`
	Preamble    string        `json:"preamble,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type historyTurn struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

type chatResponse struct {
	ResponseID   string      `json:"response_id"`
	Text         string      `json:"text"`
	FinishReason string      `json:"finish_reason"`
	Meta         responseMeta `json:"meta"`
	Message      string      `json:"message"`
}

type responseMeta struct {
	Tokens tokenUsage `json:"tokens"`
}

type tokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Provider implements providers.Provider for Cohere.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// New builds a Cohere Provider pointed at baseURL (the vendor's default when
// empty) using model for every request.
func New(apiKey, model, baseURL string) *Provider {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Provider{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{Timeout: providers.ProviderTimeout},
	}
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("cohere: health check: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("cohere: health check: %w", &providers.TransportError{Err: err})
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cohere: health check: status %d", resp.StatusCode)
	}
	return nil
}

// Request maps the canonical message list onto Cohere's message/chat_history
// split: the final user message becomes "message", everything before it
// becomes "chat_history", and systemPrompt becomes the "preamble".
func (p *Provider) Request(ctx context.Context, systemPrompt string, req *providers.CanonicalRequest) (*providers.CanonicalResponse, error) {
	body, err := p.buildRequest(systemPrompt, req)
	if err != nil {
		return nil, fmt.Errorf("cohere: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("cohere: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &providers.TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, p.parseError(resp)
	}

	return p.handleResponse(resp)
}

func (p *Provider) buildRequest(systemPrompt string, req *providers.CanonicalRequest) ([]byte, error) {
	var message string
	history := make([]historyTurn, 0, len(req.Messages))

	for i, m := range req.Messages {
		if i == len(req.Messages)-1 && m.Role == "user" {
			message = m.Content
			continue
		}
		role := "USER"
		if m.Role == "assistant" {
			role = "CHATBOT"
		}
		history = append(history, historyTurn{Role: role, Message: m.Content})
	}

	cr := chatRequest{
		Model:       p.model,
		Message:     message,
		ChatHistory: history,
		Preamble:    systemPrompt,
	}
	if req.Temperature > 0 {
		cr.Temperature = req.Temperature
	}
	if req.MaxTokens > 0 {
		cr.MaxTokens = req.MaxTokens
	}

	data, err := json.Marshal(cr)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return data, nil
}

func (p *Provider) handleResponse(resp *http.Response) (*providers.CanonicalResponse, error) {
	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, &providers.DecodeError{Err: err}
	}

	return providers.NewCanonicalResponse(p.model, []providers.Choice{{
		Index:        0,
		Message:      providers.Message{Role: "assistant", Content: cr.Text},
		FinishReason: cr.FinishReason,
	}}, providers.Usage{
		PromptTokens:     cr.Meta.Tokens.InputTokens,
		CompletionTokens: cr.Meta.Tokens.OutputTokens,
		TotalTokens:      cr.Meta.Tokens.InputTokens + cr.Meta.Tokens.OutputTokens,
	}), nil
}

func (p *Provider) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var cr chatResponse
	if json.Unmarshal(body, &cr) == nil && cr.Message != "" {
		return &ProviderError{StatusCode: resp.StatusCode, Message: cr.Message}
	}

	return &ProviderError{
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("unexpected status %d", resp.StatusCode),
	}
}

// ProviderError is a structured error returned by the Cohere API.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("cohere: %s (status=%d)", e.Message, e.StatusCode)
}

// HTTPStatus implements providers.StatusCoder.
func (e *ProviderError) HTTPStatus() int { return e.StatusCode }
