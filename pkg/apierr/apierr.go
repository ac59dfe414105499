// Package apierr provides structured API error types and HTTP status mapping.
// It carries two envelope shapes side by side: the nested OpenAI-compatible
// one (Write, WriteProviderError, WriteTimeout, WriteRateLimit), which no
// handler in this repository calls, and the gateway's own flat client-facing shape
// (WriteFlat, WriteRateLimitExceeded) its external HTTP interface documents.
package apierr

import (
	"encoding/json"
	"strconv"

	"github.com/valyala/fasthttp"
)

// ErrorType constants.
const (
	TypeProviderError     = "provider_error"
	TypeRateLimitError    = "rate_limit_error"
	TypeInvalidRequest    = "invalid_request_error"
	TypeAuthenticationErr = "authentication_error"
	TypeServerError       = "server_error"
)

// Code constants.
const (
	CodeRateLimitExceeded = "rate_limit_exceeded"
	CodeInvalidAPIKey     = "invalid_api_key"
	CodeInternalError     = "internal_error"
	CodeProviderError     = "provider_error"
	CodeRequestTimeout    = "request_timeout"
	CodeNotImplemented    = "not_implemented"
	CodeInvalidRequest    = "invalid_request"
)

// APIError is the structured error returned to clients.
type (
	APIError struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	}
	envelope struct {
		Error APIError `json:"error"`
	}
)

// Write writes the error as JSON to the fasthttp response with the given HTTP status.
func Write(ctx *fasthttp.RequestCtx, status int, message, errType, code string) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(envelope{Error: APIError{
		Message: message,
		Type:    errType,
		Code:    code,
	}})
	ctx.SetBody(body)
}

// WriteProviderError maps a provider HTTP status to the appropriate gateway status.
//
//	Provider 429  → 429 + Retry-After: 60
//	Provider 5xx  → 502
//	Default       → 502
//
// Timeouts are not mapped here; WriteTimeout writes the 504.
func WriteProviderError(ctx *fasthttp.RequestCtx, providerStatus int, msg string) {
	switch {
	case providerStatus == fasthttp.StatusTooManyRequests:
		ctx.Response.Header.Set("Retry-After", "60")
		Write(ctx, fasthttp.StatusTooManyRequests, msg, TypeRateLimitError, CodeRateLimitExceeded)
	case providerStatus >= 500 && providerStatus < 600:
		Write(ctx, fasthttp.StatusBadGateway, msg, TypeProviderError, CodeProviderError)
	default:
		Write(ctx, fasthttp.StatusBadGateway, msg, TypeProviderError, CodeProviderError)
	}
}

// WriteTimeout writes a 504 timeout error.
func WriteTimeout(ctx *fasthttp.RequestCtx) {
	Write(ctx, fasthttp.StatusGatewayTimeout, "provider request timed out", TypeProviderError, CodeRequestTimeout)
}

// WriteRateLimit writes a 429 rate limit error.
func WriteRateLimit(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Retry-After", "60")
	Write(ctx, fasthttp.StatusTooManyRequests, "rate limit exceeded", TypeRateLimitError, CodeRateLimitExceeded)
}

// flatEnvelope is the gateway's own wire shape: a bare {"error": "..."}
// body, distinct from the OpenAI-compatible nested envelope above. The
// gateway's client-facing HTTP handlers speak the flat shape its external
// interface documents; the nested writers above have no caller in this
// repository.
type flatEnvelope struct {
	Error string `json:"error"`
}

// WriteFlat writes the bare {"error": message} body the gateway's public,
// admin and passthrough HTTP handlers return for every non-rate-limit
// failure. The gRPC surface reports errors as status codes instead.
func WriteFlat(ctx *fasthttp.RequestCtx, status int, message string) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(flatEnvelope{Error: message})
	ctx.SetBody(body)
}

// rateLimitEnvelope is the 429 body shape: the flat error plus the plan
// fields a client needs to back off correctly.
type rateLimitEnvelope struct {
	Error     string `json:"error"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	Reset     int    `json:"reset"`
	PlanType  string `json:"planType"`
}

// WriteRateLimitExceeded writes the 429 response with both the
// RateLimit-Limit/Remaining/Reset headers and the matching JSON body.
func WriteRateLimitExceeded(ctx *fasthttp.RequestCtx, limit, remaining, reset int, planType string) {
	setRateLimitHeaders(ctx, limit, remaining, reset)
	ctx.SetStatusCode(fasthttp.StatusTooManyRequests)
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(rateLimitEnvelope{
		Error:     "rate limit exceeded",
		Limit:     limit,
		Remaining: remaining,
		Reset:     reset,
		PlanType:  planType,
	})
	ctx.SetBody(body)
}

// SetRateLimitHeaders annotates a (normally 200) response with the
// RateLimit-Limit/Remaining/Reset headers every plan-bound call carries,
// per spec.md §6.
func SetRateLimitHeaders(ctx *fasthttp.RequestCtx, limit, remaining, reset int) {
	setRateLimitHeaders(ctx, limit, remaining, reset)
}

func setRateLimitHeaders(ctx *fasthttp.RequestCtx, limit, remaining, reset int) {
	ctx.Response.Header.Set("RateLimit-Limit", strconv.Itoa(limit))
	ctx.Response.Header.Set("RateLimit-Remaining", strconv.Itoa(remaining))
	ctx.Response.Header.Set("RateLimit-Reset", strconv.Itoa(reset))
}
