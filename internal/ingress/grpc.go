package ingress

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/aigateway/gateway/internal/dispatch"
	"github.com/aigateway/gateway/internal/grpcapi"
	"github.com/aigateway/gateway/internal/logger"
	"github.com/aigateway/gateway/internal/providers"
)

// GRPCServer implements grpcapi.AIGatewayServer over the same Dispatcher
// the HTTP surface uses. Per spec.md §6, its semantics equal the HTTP
// handler's modulo the rate-limit and cache interceptors — neither applies
// here, so ChatCompletion calls Dispatch directly.
type GRPCServer struct {
	dispatcher *dispatch.Dispatcher
	log        *logger.Logger
}

// NewGRPCServer builds a GRPCServer over an existing Dispatcher.
func NewGRPCServer(d *dispatch.Dispatcher, log *logger.Logger) *GRPCServer {
	return &GRPCServer{dispatcher: d, log: log}
}

// NewServer builds a grpc.Server with the AIGateway service registered. It
// does not listen; the caller runs Serve on it.
func NewServer(d *dispatch.Dispatcher, log *logger.Logger) *grpc.Server {
	s := grpc.NewServer()
	grpcapi.RegisterAIGatewayServer(s, NewGRPCServer(d, log))
	return s
}

// ChatCompletion implements grpcapi.AIGatewayServer.
func (g *GRPCServer) ChatCompletion(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := requestFromStruct(in)
	if err != nil {
		return nil, fmt.Errorf("grpcapi: invalid request: %w", err)
	}

	result, err := g.dispatcher.Dispatch(ctx, req)
	if err != nil {
		return nil, toGRPCError(err)
	}

	return responseToStruct(result.Response)
}

func requestFromStruct(in *structpb.Struct) (dispatch.Request, error) {
	if in == nil {
		return dispatch.Request{}, fmt.Errorf("empty request body")
	}
	m := in.AsMap()

	provider, _ := m["llm_provider"].(string)
	if provider == "" {
		provider, _ = m["llmProvider"].(string)
	}
	if provider == "" {
		return dispatch.Request{}, fmt.Errorf("llm_provider is required")
	}

	rawMessages, _ := m["messages"].([]interface{})
	msgs := make([]providers.Message, 0, len(rawMessages))
	for _, rm := range rawMessages {
		mm, ok := rm.(map[string]interface{})
		if !ok {
			continue
		}
		role, _ := mm["role"].(string)
		content, _ := mm["content"].(string)
		msgs = append(msgs, providers.Message{Role: role, Content: content})
	}

	temperature, _ := m["temperature"].(float64)
	maxTokensF, _ := m["max_tokens"].(float64)
	if maxTokensF == 0 {
		maxTokensF, _ = m["maxTokens"].(float64)
	}

	return dispatch.Request{
		Provider:    provider,
		Messages:    msgs,
		Temperature: temperature,
		MaxTokens:   int(maxTokensF),
	}, nil
}

func responseToStruct(resp *providers.CanonicalResponse) (*structpb.Struct, error) {
	choices := make([]interface{}, 0, len(resp.Choices))
	for _, c := range resp.Choices {
		choices = append(choices, map[string]interface{}{
			"index": float64(c.Index),
			"message": map[string]interface{}{
				"role":    c.Message.Role,
				"content": c.Message.Content,
			},
			"finish_reason": c.FinishReason,
		})
	}

	out, err := structpb.NewStruct(map[string]interface{}{
		"id":      resp.ID,
		"object":  resp.Object,
		"created": float64(resp.Created),
		"model":   resp.Model,
		"choices": choices,
		"usage": map[string]interface{}{
			"prompt_tokens":     float64(resp.Usage.PromptTokens),
			"completion_tokens": float64(resp.Usage.CompletionTokens),
			"total_tokens":      float64(resp.Usage.TotalTokens),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("grpcapi: build response struct: %w", err)
	}
	return out, nil
}

// toGRPCError maps a dispatch error onto a gRPC status, mirroring
// ingress/http.go's writeDispatchError case-by-case but onto codes.Code
// instead of an HTTP status — the two enums don't line up 1:1, so each
// case is judged on its own rather than translated through HTTP's numbers.
func toGRPCError(err error) error {
	if errors.Is(err, dispatch.ErrNoUserMessage) || errors.Is(err, dispatch.ErrMultipleSystemMessages) {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	var notConfigured *providers.ErrNotConfigured
	if errors.As(err, &notConfigured) {
		return status.Error(codes.FailedPrecondition, err.Error())
	}

	var guardErr *providers.GuardrailError
	if errors.As(err, &guardErr) {
		return status.Error(codes.FailedPrecondition, "GuardrailsCheckFailed: "+guardErr.Error())
	}

	var allFailed *dispatch.AllProvidersFailedError
	if errors.As(err, &allFailed) {
		return status.Error(codes.Unavailable, err.Error())
	}

	var statusErr providers.StatusCoder
	if errors.As(err, &statusErr) {
		return status.Errorf(codes.Unavailable, "provider error: upstream returned status %d", statusErr.HTTPStatus())
	}

	return status.Error(codes.Unavailable, err.Error())
}
