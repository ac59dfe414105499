package dispatch

import (
	"context"
	"errors"

	"github.com/aigateway/gateway/internal/providers"
)

// buildCandidateList returns primary followed by the remaining configured
// providers in providers.Names order, deduplicated. Unconfigured slots never
// appear — configured is the caller's live ConfiguredProviders() snapshot.
func buildCandidateList(primary string, configured []string) []string {
	configuredSet := make(map[string]bool, len(configured))
	for _, c := range configured {
		configuredSet[c] = true
	}

	seen := map[string]bool{}
	var out []string
	if configuredSet[primary] {
		out = append(out, primary)
		seen[primary] = true
	}
	for _, name := range providers.Names {
		if seen[name] || !configuredSet[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// classifyError converts an adapter error into one of the gateway's error
// kinds (see pkg/apierr and spec.md §7), used for analytics' errorsByType
// and log fields. A non-2xx vendor response becomes ProviderHTTPError, a
// malformed response body ProviderDecodeError, context cancellation
// Cancelled, and anything else (including network-level transport
// failures) falls back to ProviderTransportError.
func classifyError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "Cancelled"
	}

	var decodeErr *providers.DecodeError
	var statusErr providers.StatusCoder

	switch {
	case errors.As(err, &statusErr):
		return "ProviderHTTPError"
	case errors.As(err, &decodeErr):
		return "ProviderDecodeError"
	default:
		return "ProviderTransportError"
	}
}
