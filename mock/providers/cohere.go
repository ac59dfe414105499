package main

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
)

// newCohereHandler returns an http.Handler simulating the Cohere chat API.
func newCohereHandler(cfg Config) http.Handler {
	mux := http.NewServeMux()

	// POST /v1/chat
	mux.HandleFunc("/v1/chat", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed", "method_not_allowed")
			return
		}
		applyLatency(cfg)
		if shouldError(cfg) {
			writeCohereError(w, http.StatusInternalServerError, "mock internal error")
			return
		}

		var req struct {
			Model   string `json:"model"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeCohereError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		content := fakeSentence(cfg.StreamWords)
		writeJSON(w, http.StatusOK, map[string]any{
			"response_id":   fmt.Sprintf("mock-%x", rand.Int64()),
			"text":          content,
			"finish_reason": "COMPLETE",
			"meta": map[string]any{
				"tokens": map[string]int{
					"input_tokens":  10,
					"output_tokens": cfg.StreamWords,
				},
			},
		})
	})

	// GET /v1/models — health check
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"models": []map[string]any{
				{"name": "command-r-plus"},
				{"name": "command-r"},
			},
		})
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeCohereError(w, http.StatusNotFound, fmt.Sprintf("mock: unknown path %s", r.URL.Path))
	})

	return mux
}

func writeCohereError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
