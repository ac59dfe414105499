package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aigateway/gateway/internal/analytics"
	"github.com/aigateway/gateway/internal/config"
	"github.com/aigateway/gateway/internal/logger"
	"github.com/aigateway/gateway/internal/providers"
)

type stubProvider struct {
	name     string
	content  string
	usage    providers.Usage
	err      error
	requests []capturedRequest
}

type capturedRequest struct {
	systemPrompt string
	req          *providers.CanonicalRequest
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Request(_ context.Context, systemPrompt string, req *providers.CanonicalRequest) (*providers.CanonicalResponse, error) {
	s.requests = append(s.requests, capturedRequest{systemPrompt: systemPrompt, req: req})
	if s.err != nil {
		return nil, s.err
	}
	return &providers.CanonicalResponse{
		Object: "chat.completion",
		Model:  s.name + "-model",
		Choices: []providers.Choice{{
			Index:   0,
			Message: providers.Message{Role: "assistant", Content: s.content},
		}},
		Usage: s.usage,
	}, nil
}

func (s *stubProvider) HealthCheck(_ context.Context) error { return nil }

func testStore(t *testing.T, primary, fallback string) *config.Store {
	t.Helper()
	cfg := config.Config{
		SystemPrompt: "Respond tersely.",
		Guardrails:   config.GuardrailConfig{MaxLength: 1 << 20},
	}
	setSlot := func(name string) config.ProviderConfig {
		return config.ProviderConfig{Endpoint: "https://example.com", APIKey: "key", Model: "m"}
	}
	for _, name := range []string{primary, fallback} {
		switch name {
		case "openai":
			cfg.OpenAI = setSlot(name)
		case "anthropic":
			cfg.Anthropic = setSlot(name)
		case "gemini":
			cfg.Gemini = setSlot(name)
		case "ollama":
			cfg.Ollama = setSlot(name)
		case "mistral":
			cfg.Mistral = setSlot(name)
		case "cohere":
			cfg.Cohere = setSlot(name)
		}
	}
	return config.NewStore(cfg)
}

func testBreaker() *CircuitBreaker {
	return NewCircuitBreaker(BreakerConfig{ErrorThreshold: 5, TimeWindow: time.Minute, HalfOpenTimeout: 30 * time.Second})
}

func baseRequest(provider string) Request {
	return Request{
		Provider: provider,
		Messages: []providers.Message{
			{Role: "system", Content: "Be polite."},
			{Role: "user", Content: "hello"},
		},
	}
}

func TestDispatch_Success(t *testing.T) {
	store := testStore(t, "openai", "anthropic")
	openai := &stubProvider{name: "openai", content: "hi there", usage: providers.Usage{PromptTokens: 3, CompletionTokens: 2}}
	an := analytics.New()
	log, _ := logger.New(context.Background(), nil)
	d := New(store, map[string]providers.Provider{"openai": openai}, testBreaker(), an, log)

	res, err := d.Dispatch(context.Background(), baseRequest("openai"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ServedBy != "openai" || res.FailoverAttempted {
		t.Fatalf("unexpected result: %+v", res)
	}

	if len(openai.requests) != 1 {
		t.Fatalf("expected 1 request sent to openai, got %d", len(openai.requests))
	}
	if got := openai.requests[0].systemPrompt; got != "Be polite. Respond tersely." {
		t.Fatalf("expected combined system prompt %q, got %q", "Be polite. Respond tersely.", got)
	}

	snap := an.Snapshot()
	if snap.SuccessfulRequests != 1 || snap.TotalRequests != 1 {
		t.Fatalf("unexpected analytics: %+v", snap)
	}
	if snap.InputTokensByProvider["openai"] != 3 || snap.OutputTokensByProvider["openai"] != 2 {
		t.Fatalf("unexpected token analytics: %+v", snap)
	}
}

func TestDispatch_NotConfigured_NoFailover(t *testing.T) {
	store := testStore(t, "openai", "anthropic")
	an := analytics.New()
	log, _ := logger.New(context.Background(), nil)
	d := New(store, map[string]providers.Provider{}, testBreaker(), an, log)

	_, err := d.Dispatch(context.Background(), baseRequest("gemini"))
	var notConfigured *providers.ErrNotConfigured
	if !errors.As(err, &notConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}

	snap := an.Snapshot()
	if snap.FailedRequests != 1 || snap.SuccessfulRequests != 0 {
		t.Fatalf("unexpected analytics: %+v", snap)
	}
	if snap.ErrorsByType["ProviderNotConfigured"] != 1 {
		t.Fatalf("expected a ProviderNotConfigured entry, got %+v", snap.ErrorsByType)
	}
}

func TestDispatch_FailoverOnPrimaryError(t *testing.T) {
	store := testStore(t, "openai", "anthropic")
	openai := &stubProvider{name: "openai", err: &providers.TransportError{Err: errors.New("connection reset")}}
	anthropic := &stubProvider{name: "anthropic", content: "fallback reply"}
	an := analytics.New()
	log, _ := logger.New(context.Background(), nil)
	d := New(store, map[string]providers.Provider{"openai": openai, "anthropic": anthropic}, testBreaker(), an, log)

	res, err := d.Dispatch(context.Background(), baseRequest("openai"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ServedBy != "anthropic" || !res.FailoverAttempted {
		t.Fatalf("unexpected result: %+v", res)
	}

	snap := an.Snapshot()
	if snap.SuccessfulRequests != 1 || snap.FailedRequests != 0 {
		t.Fatalf("unexpected analytics: %+v", snap)
	}
	if snap.RequestsByProvider["anthropic"] != 1 {
		t.Fatalf("expected anthropic to be credited as serving provider: %+v", snap)
	}
}

func TestDispatch_AllProvidersFail(t *testing.T) {
	store := testStore(t, "openai", "anthropic")
	openai := &stubProvider{name: "openai", err: &providers.HTTPError{StatusCode: 500}}
	anthropic := &stubProvider{name: "anthropic", err: &providers.HTTPError{StatusCode: 503}}
	an := analytics.New()
	log, _ := logger.New(context.Background(), nil)
	d := New(store, map[string]providers.Provider{"openai": openai, "anthropic": anthropic}, testBreaker(), an, log)

	_, err := d.Dispatch(context.Background(), baseRequest("openai"))
	var allFailed *AllProvidersFailedError
	if !errors.As(err, &allFailed) {
		t.Fatalf("expected AllProvidersFailedError, got %v", err)
	}
	if len(allFailed.Attempts) != 2 {
		t.Fatalf("expected both providers attempted, got %v", allFailed.Attempts)
	}

	snap := an.Snapshot()
	if snap.FailedRequests != 1 {
		t.Fatalf("expected exactly one failed request recorded, got %+v", snap)
	}
	// One per-attempt entry for each failed provider, plus one terminal
	// "all-providers" entry — not double-counting, per spec.md §9.
	if snap.ErrorsByType["ProviderHTTPError"] != 2 {
		t.Fatalf("expected 2 per-attempt ProviderHTTPError entries, got %+v", snap.ErrorsByType)
	}
	if snap.ErrorsByType["all-providers"] != 1 {
		t.Fatalf("expected a terminal all-providers entry, got %+v", snap.ErrorsByType)
	}
	if snap.TotalErrors != 3 {
		t.Fatalf("expected 3 total error entries (2 attempts + 1 terminal), got %d", snap.TotalErrors)
	}
}

func TestDispatch_GuardrailRejection_NotRetried(t *testing.T) {
	store := testStore(t, "openai", "anthropic")
	store.ReplaceGuardrails(config.GuardrailConfig{BannedPhrases: []string{"forbidden"}, MaxLength: 1000})
	openai := &stubProvider{name: "openai", content: "this is forbidden content"}
	anthropic := &stubProvider{name: "anthropic", content: "fine"}
	an := analytics.New()
	log, _ := logger.New(context.Background(), nil)
	d := New(store, map[string]providers.Provider{"openai": openai, "anthropic": anthropic}, testBreaker(), an, log)

	_, err := d.Dispatch(context.Background(), baseRequest("openai"))
	var guardErr *providers.GuardrailError
	if !errors.As(err, &guardErr) {
		t.Fatalf("expected GuardrailError, got %v", err)
	}
	if len(anthropic.requests) != 0 {
		t.Fatalf("expected no failover attempt after guardrail rejection, anthropic got %d calls", len(anthropic.requests))
	}

	snap := an.Snapshot()
	if snap.ErrorsByType["GuardrailsCheckFailed"] != 1 {
		t.Fatalf("expected a GuardrailsCheckFailed entry, got %+v", snap.ErrorsByType)
	}
}

func TestDispatch_InvalidRequest_MultipleSystemMessages(t *testing.T) {
	store := testStore(t, "openai", "anthropic")
	an := analytics.New()
	log, _ := logger.New(context.Background(), nil)
	d := New(store, map[string]providers.Provider{}, testBreaker(), an, log)

	req := Request{
		Provider: "openai",
		Messages: []providers.Message{
			{Role: "system", Content: "a"},
			{Role: "system", Content: "b"},
			{Role: "user", Content: "hi"},
		},
	}
	_, err := d.Dispatch(context.Background(), req)
	if !errors.Is(err, ErrMultipleSystemMessages) {
		t.Fatalf("expected ErrMultipleSystemMessages, got %v", err)
	}
}

func TestDispatch_InvalidRequest_NoUserMessage(t *testing.T) {
	store := testStore(t, "openai", "anthropic")
	an := analytics.New()
	log, _ := logger.New(context.Background(), nil)
	d := New(store, map[string]providers.Provider{}, testBreaker(), an, log)

	req := Request{Provider: "openai", Messages: []providers.Message{{Role: "system", Content: "a"}}}
	_, err := d.Dispatch(context.Background(), req)
	if !errors.Is(err, ErrNoUserMessage) {
		t.Fatalf("expected ErrNoUserMessage, got %v", err)
	}
}

func TestCombineSystemPrompts(t *testing.T) {
	cases := []struct{ request, stored, want string }{
		{"Be polite.", "Respond tersely.", "Be polite. Respond tersely."},
		{"", "Respond tersely.", "Respond tersely."},
		{"Be polite.", "", "Be polite."},
		{"", "", ""},
	}
	for _, c := range cases {
		if got := combineSystemPrompts(c.request, c.stored); got != c.want {
			t.Errorf("combineSystemPrompts(%q, %q) = %q, want %q", c.request, c.stored, got, c.want)
		}
	}
}

func TestBuildCandidateList_PrimaryFirstThenDeclaredOrder(t *testing.T) {
	got := buildCandidateList("mistral", []string{"cohere", "openai", "mistral"})
	want := []string{"mistral", "openai", "cohere"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
