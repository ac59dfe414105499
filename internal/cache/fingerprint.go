package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"

	"github.com/aigateway/gateway/internal/providers"
)

// canonicalMessage and canonicalRequest pin down field order explicitly via
// struct tags (rather than relying on map iteration, which Go deliberately
// randomizes) so that the JSON serialization used for fingerprinting is
// deterministic across runs and processes.
type canonicalMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type canonicalRequestForFingerprint struct {
	Messages    []canonicalMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
	MaxTokens   int                `json:"maxTokens"`
}

// Fingerprint computes hex(SHA-1(provider || canonicalJSON(request))), the
// cache key defined by spec.md §3/§9. Temperature is normalized to 3
// decimal places before serialization to avoid key fragmentation between
// floating-point representations of the same logical value (e.g. 0.7 vs
// 0.69999999999999996).
func Fingerprint(provider string, req providers.CanonicalRequest) (string, error) {
	canon := canonicalRequestForFingerprint{
		Messages:    make([]canonicalMessage, len(req.Messages)),
		Temperature: roundTo3(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}
	for i, m := range req.Messages {
		canon.Messages[i] = canonicalMessage{Role: m.Role, Content: m.Content}
	}

	body, err := json.Marshal(canon)
	if err != nil {
		return "", fmt.Errorf("cache: fingerprint: marshal request: %w", err)
	}

	h := sha1.New()
	h.Write([]byte(provider))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func roundTo3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
