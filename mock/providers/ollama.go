package main

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// newOllamaHandler returns an http.Handler simulating a local Ollama server.
// Ollama's wire format is its own — not OpenAI-compatible — and it requires
// no API key.
func newOllamaHandler(cfg Config) http.Handler {
	mux := http.NewServeMux()

	// POST /api/chat
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed", "method_not_allowed")
			return
		}
		applyLatency(cfg)
		if shouldError(cfg) {
			writeOllamaError(w, http.StatusInternalServerError, "mock internal error")
			return
		}

		var req struct {
			Model  string `json:"model"`
			Stream bool   `json:"stream"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeOllamaError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		model := req.Model
		if model == "" {
			model = "llama3.1"
		}

		content := fakeSentence(cfg.StreamWords)
		writeJSON(w, http.StatusOK, map[string]any{
			"model":      model,
			"created_at": "2024-01-01T00:00:00Z",
			"message": map[string]string{
				"role":    "assistant",
				"content": content,
			},
			"done":              true,
			"done_reason":       "stop",
			"prompt_eval_count": 10,
			"eval_count":        cfg.StreamWords,
		})
	})

	// GET /api/tags — used by health check, list of locally pulled models
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"models": []map[string]any{
				{"name": "llama3.1:latest", "model": "llama3.1:latest"},
				{"name": "mistral:latest", "model": "mistral:latest"},
			},
		})
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeOllamaError(w, http.StatusNotFound, fmt.Sprintf("mock: unknown path %s", r.URL.Path))
	})

	return mux
}

func writeOllamaError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
