// Package grpcapi defines the AIGateway gRPC service contract: one unary
// method, ChatCompletion, whose request and response bodies are carried as
// google.protobuf.Struct rather than hand-rolled generated message types.
//
// A conventional deployment would run this service's .proto definition
// through protoc to produce typed request/response messages and the
// matching client/server stubs. That step is unavailable here, so this
// file plays the role protoc-gen-go-grpc normally would: it hand-writes the
// grpc.ServiceDesc, the method handler trampoline, and the server
// interface, following the exact shape generated code takes. The message
// type is google.protobuf.Struct (already a real, wire-compatible
// proto.Message from google.golang.org/protobuf) so the payload still
// travels as genuine protobuf on the wire; internal/ingress/grpc.go is
// responsible for converting a Struct's fields to and from the gateway's
// canonical request/response shapes.
package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "aigateway.AIGateway"

// AIGatewayServer is implemented by internal/ingress's gRPC server adapter.
type AIGatewayServer interface {
	// ChatCompletion accepts a Struct shaped like the HTTP JSON body plus an
	// "llm_provider" (or "llmProvider") field (the HTTP surface's x-llm-provider header has no
	// gRPC metadata equivalent in this design — it travels in the body as
	// llm_provider) and returns a Struct shaped like the canonical
	// response.
	ChatCompletion(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

func _AIGateway_ChatCompletion_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AIGatewayServer).ChatCompletion(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + ServiceName + "/ChatCompletion",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AIGatewayServer).ChatCompletion(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc is the grpc.ServiceDesc a hand-generated _grpc.pb.go would
// normally emit. RegisterAIGatewayServer wires it into a *grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AIGatewayServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ChatCompletion",
			Handler:    _AIGateway_ChatCompletion_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "aigateway.proto",
}

// RegisterAIGatewayServer registers srv with s, mirroring the generated
// RegisterXxxServer function protoc-gen-go-grpc would otherwise produce.
func RegisterAIGatewayServer(s grpc.ServiceRegistrar, srv AIGatewayServer) {
	s.RegisterService(&ServiceDesc, srv)
}
