package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aigateway/gateway/internal/providers"
)

func baseRequest() *providers.CanonicalRequest {
	return &providers.CanonicalRequest{
		Messages: []providers.Message{{Role: "user", Content: "Hello"}},
	}
}

func TestProvider_Name(t *testing.T) {
	p := New("", "llama3", "")
	if p.Name() != "ollama" {
		t.Fatalf("expected 'ollama', got %q", p.Name())
	}
}

func TestProvider_Request_Success_NoAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("expected path /api/chat, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Errorf("expected no Authorization header, got %q", r.Header.Get("Authorization"))
		}

		var body chatRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		if body.Stream {
			t.Errorf("expected stream=false")
		}
		if len(body.Messages) != 2 || body.Messages[0].Role != "system" {
			t.Errorf("unexpected messages: %v", body.Messages)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse{
			Model:           "llama3",
			Message:         chatMessage{Role: "assistant", Content: "hi there"},
			Done:            true,
			DoneReason:      "stop",
			PromptEvalCount: 6,
			EvalCount:       3,
		})
	}))
	defer srv.Close()

	p := New("", "llama3", srv.URL)
	resp, err := p.Request(context.Background(), "Be brief.", baseRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Choices[0].Message.Content != "hi there" {
		t.Errorf("unexpected content: %q", resp.Choices[0].Message.Content)
	}
	if resp.Usage.PromptTokens != 6 || resp.Usage.CompletionTokens != 3 {
		t.Errorf("unexpected usage: %+v", resp.Usage)
	}
}

func TestProvider_Request_WithAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("expected Authorization header, got %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse{Message: chatMessage{Content: "ok"}, Done: true})
	}))
	defer srv.Close()

	p := New("secret", "llama3", srv.URL)
	if _, err := p.Request(context.Background(), "", baseRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestProvider_Request_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(chatResponse{Error: "model not found"})
	}))
	defer srv.Close()

	p := New("", "llama3", srv.URL)
	_, err := p.Request(context.Background(), "", baseRequest())
	if err == nil {
		t.Fatal("expected error")
	}
	provErr, ok := err.(*ProviderError)
	if !ok {
		t.Fatalf("expected *ProviderError, got %T", err)
	}
	if provErr.Message != "model not found" {
		t.Errorf("expected message 'model not found', got %q", provErr.Message)
	}
}

func TestProvider_HealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("expected path /api/tags, got %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := New("", "llama3", srv.URL)
	if err := p.HealthCheck(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
