package guardrails

import (
	"errors"
	"strings"
	"testing"

	"github.com/aigateway/gateway/internal/config"
)

func TestCheck_TooShort(t *testing.T) {
	cfg := config.GuardrailConfig{MinLength: 10}
	_, err := Check(cfg, "short")
	if !errors.Is(err, ErrResponseTooShort) {
		t.Fatalf("expected ErrResponseTooShort, got %v", err)
	}
}

func TestCheck_Truncates(t *testing.T) {
	cfg := config.GuardrailConfig{MaxLength: 5}
	out, err := Check(cfg, "hello world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hello" {
		t.Fatalf("expected truncated %q, got %q", "hello", out)
	}
}

func TestCheck_BannedPhraseCaseInsensitive(t *testing.T) {
	cfg := config.GuardrailConfig{BannedPhrases: []string{"forbidden"}, MaxLength: 1000}
	_, err := Check(cfg, "this is Forbidden")
	var bpe *BannedPhraseError
	if !errors.As(err, &bpe) {
		t.Fatalf("expected BannedPhraseError, got %v", err)
	}
}

func TestCheck_DisclaimerNotCheckedForBannedPhrase(t *testing.T) {
	cfg := config.GuardrailConfig{
		BannedPhrases:     []string{"side effects"},
		MaxLength:         1000,
		RequireDisclaimer: true,
		Disclaimer:        "This may have side effects.",
	}
	out, err := Check(cfg, "Take two tablets daily.")
	if err != nil {
		t.Fatalf("unexpected rejection from disclaimer content: %v", err)
	}
	if !strings.HasSuffix(out, cfg.Disclaimer) {
		t.Fatalf("expected disclaimer appended, got %q", out)
	}
}

func TestCheck_DisclaimerSkippedWhenEmpty(t *testing.T) {
	cfg := config.GuardrailConfig{RequireDisclaimer: true, MaxLength: 1000}
	out, err := Check(cfg, "plain response")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "plain response" {
		t.Fatalf("expected unchanged text, got %q", out)
	}
}

func TestCheck_TruncationThenBannedPhrase(t *testing.T) {
	// "bad" only appears after the truncation point; once truncated it must
	// not be detected.
	cfg := config.GuardrailConfig{MaxLength: 5, BannedPhrases: []string{"bad"}}
	out, err := Check(cfg, "hello bad world")
	if err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
	if out != "hello" {
		t.Fatalf("expected %q, got %q", "hello", out)
	}
}
