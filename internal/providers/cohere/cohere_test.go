package cohere

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aigateway/gateway/internal/providers"
)

func TestProvider_Name(t *testing.T) {
	p := New("key", "command-r-plus", "")
	if p.Name() != "cohere" {
		t.Fatalf("expected 'cohere', got %q", p.Name())
	}
}

func TestProvider_Request_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat" {
			t.Errorf("expected path /chat, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer mock-api-key" {
			t.Errorf("missing or wrong Authorization header: %s", r.Header.Get("Authorization"))
		}

		var body chatRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		if body.Message != "How are you?" {
			t.Errorf("expected final user message as 'message', got %q", body.Message)
		}
		if len(body.ChatHistory) != 2 || body.ChatHistory[0].Role != "USER" || body.ChatHistory[1].Role != "CHATBOT" {
			t.Errorf("unexpected chat_history: %+v", body.ChatHistory)
		}
		if body.Preamble != "Be helpful." {
			t.Errorf("expected preamble 'Be helpful.', got %q", body.Preamble)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse{
			ResponseID:   "resp-1",
			Text:         "I'm doing well!",
			FinishReason: "COMPLETE",
			Meta:         responseMeta{Tokens: tokenUsage{InputTokens: 20, OutputTokens: 6}},
		})
	}))
	defer srv.Close()

	p := New("mock-api-key", "command-r-plus", srv.URL)
	req := &providers.CanonicalRequest{
		Messages: []providers.Message{
			{Role: "user", Content: "Hi"},
			{Role: "assistant", Content: "Hello!"},
			{Role: "user", Content: "How are you?"},
		},
	}

	resp, err := p.Request(context.Background(), "Be helpful.", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Choices[0].Message.Content != "I'm doing well!" {
		t.Errorf("unexpected content: %q", resp.Choices[0].Message.Content)
	}
	if resp.Usage.PromptTokens != 20 || resp.Usage.CompletionTokens != 6 {
		t.Errorf("unexpected usage: %+v", resp.Usage)
	}
}

func TestProvider_Request_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(chatResponse{Message: "invalid api key"})
	}))
	defer srv.Close()

	p := New("bad-key", "command-r-plus", srv.URL)
	req := &providers.CanonicalRequest{Messages: []providers.Message{{Role: "user", Content: "Hi"}}}

	_, err := p.Request(context.Background(), "", req)
	if err == nil {
		t.Fatal("expected error")
	}
	provErr, ok := err.(*ProviderError)
	if !ok {
		t.Fatalf("expected *ProviderError, got %T", err)
	}
	if provErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", provErr.StatusCode)
	}
	if provErr.Message != "invalid api key" {
		t.Errorf("expected message 'invalid api key', got %q", provErr.Message)
	}
}

func TestProvider_HealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("expected path /models, got %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := New("key", "command-r-plus", srv.URL)
	if err := p.HealthCheck(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
