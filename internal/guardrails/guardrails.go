// Package guardrails implements the gateway's text-level content policy: a
// pure function applied to every outbound assistant response, evaluated
// against a snapshot of the currently active configuration.
package guardrails

import (
	"errors"
	"strings"

	"github.com/aigateway/gateway/internal/config"
)

// ErrResponseTooShort is returned when the candidate text is shorter than
// the configured minimum length.
var ErrResponseTooShort = errors.New("guardrails: response too short")

// BannedPhraseError identifies which banned phrase matched, for analytics
// and logging.
type BannedPhraseError struct {
	Phrase string
}

func (e *BannedPhraseError) Error() string {
	return "guardrails: banned phrase matched: " + e.Phrase
}

// Check applies the guardrail policy to text T and returns the transformed
// text, or an error if the text is rejected outright.
//
// Order matters: truncation happens before the banned-phrase check operates
// on the *original* text, not the disclaimer-appended one, so that
// disclaimer content can never trigger a false-positive banned-phrase match
// and a short original that gets truncated is checked for banned phrases in
// its truncated form per step order below.
func Check(cfg config.GuardrailConfig, text string) (string, error) {
	if len(text) < cfg.MinLength {
		return "", ErrResponseTooShort
	}

	truncated := text
	if cfg.MaxLength > 0 && len(truncated) > cfg.MaxLength {
		truncated = truncated[:cfg.MaxLength]
	}

	lower := strings.ToLower(truncated)
	for _, phrase := range cfg.BannedPhrases {
		if phrase == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return "", &BannedPhraseError{Phrase: phrase}
		}
	}

	out := truncated
	if cfg.RequireDisclaimer && cfg.Disclaimer != "" {
		out = out + "\n\n" + cfg.Disclaimer
	}
	return out, nil
}
