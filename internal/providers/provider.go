// Package providers defines the canonical request/response shapes shared by
// every vendor adapter (OpenAI, Anthropic, Gemini, Ollama, Mistral, Cohere)
// and the common error/status types the dispatcher relies on for failover
// decisions.
package providers

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ProviderTimeout is the HTTP client timeout of every adapter except Ollama,
// whose client allows twice as long. No adapter reads MaxRetries.
const (
	ProviderTimeout = 30 * time.Second
	MaxRetries      = 3
)

// Message is a single turn in a conversation.
type Message struct {
	Role    string
	Content string
}

// Usage reports vendor-side token accounting. Zero value means "not
// reported by the vendor".
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CanonicalRequest is the gateway-internal request shape, independent of any
// vendor's native wire format.
type CanonicalRequest struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Choice is a single completion candidate. The gateway never produces more
// than one.
type Choice struct {
	Index        int
	Message      Message
	FinishReason string
}

// CanonicalResponse is the gateway-internal response shape returned to every
// ingress surface regardless of which vendor served the request.
type CanonicalResponse struct {
	ID      string
	Object  string
	Created int64
	Model   string
	Choices []Choice
	Usage   Usage
}

// NewCanonicalResponse builds a finalized CanonicalResponse: a fresh,
// time-ordered gateway-assigned id (never the vendor's own response id),
// the canonical "chat.completion" object type, and the completion
// timestamp. Every adapter's Request implementation builds its response
// through this constructor rather than a literal, so the envelope fields
// spec'd as gateway-owned can't be forgotten or left as the vendor's.
func NewCanonicalResponse(model string, choices []Choice, usage Usage) *CanonicalResponse {
	var id string
	if v, err := uuid.NewV7(); err == nil {
		id = v.String()
	}
	return &CanonicalResponse{
		ID:      id,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: choices,
		Usage:   usage,
	}
}

// Provider is implemented by every vendor adapter.
type Provider interface {
	// Name returns the provider's canonical identifier, e.g. "openai".
	Name() string
	// Request sends a canonical request to the vendor and returns a
	// canonical response. Transport failures are reported as TransportError
	// and non-2xx HTTP responses as an error implementing StatusCoder; the
	// raw-HTTP adapters (mistral, ollama, cohere) report an undecodable body
	// as DecodeError. Adapters do not run guardrails.
	Request(ctx context.Context, systemPrompt string, req *CanonicalRequest) (*CanonicalResponse, error)
	// HealthCheck performs a lightweight connectivity probe.
	HealthCheck(ctx context.Context) error
}

// StatusCoder is implemented by errors carrying an HTTP status worth
// preserving in the client-facing response.
type StatusCoder interface {
	HTTPStatus() int
}

// ErrNotConfigured is returned by the dispatcher (not the adapter) when the
// client asked for a provider with no endpoint configured.
type ErrNotConfigured struct {
	Provider string
}

func (e *ErrNotConfigured) Error() string {
	return "provider not configured: " + e.Provider
}

// ErrInvalidConfig describes a provider that is configured (non-empty
// endpoint) but missing a required API key. No adapter or dispatcher path
// returns it; adapters send requests with whatever key they were built with.
type ErrInvalidConfig struct {
	Provider string
	Reason   string
}

func (e *ErrInvalidConfig) Error() string {
	return "provider " + e.Provider + ": invalid config: " + e.Reason
}

// HTTPError wraps a non-2xx vendor response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string    { return "provider http error" }
func (e *HTTPError) HTTPStatus() int  { return e.StatusCode }

// TransportError wraps a network-level failure (timeout, connection reset).
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "provider transport error: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError wraps a vendor response body that failed to parse.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "provider decode error: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// GuardrailError wraps a guardrails rejection of a successful vendor
// response. The dispatcher and the HTTP ingress return it; adapters do not.
type GuardrailError struct {
	Err error
}

func (e *GuardrailError) Error() string { return "guardrails rejected response: " + e.Err.Error() }
func (e *GuardrailError) Unwrap() error { return e.Err }

// Names is the fixed, ordered list of supported vendor identifiers. The
// dispatcher's configuration-order contract is defined over this slice, not
// over map iteration (which Go deliberately randomizes).
var Names = []string{"openai", "anthropic", "gemini", "ollama", "mistral", "cohere"}
