package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "wildfly.management.v1.ManagementController"

const (
	executeMethod      = "/" + ServiceName + "/Execute"
	registerHostMethod = "/" + ServiceName + "/RegisterHost"
)

// ManagementServer is the server side of the management service. Requests
// and responses are structured values; registrations arrive as the raw
// bytes of the host's payload.
type ManagementServer interface {
	Execute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	RegisterHost(ctx context.Context, payload *wrapperspb.BytesValue) (*structpb.Struct, error)
}

// RegisterManagementServer registers srv with a gRPC server.
func RegisterManagementServer(s grpc.ServiceRegistrar, srv ManagementServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ManagementServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Execute", Handler: executeHandler},
		{MethodName: "RegisterHost", Handler: registerHostHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "management.proto",
}

func executeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ManagementServer).Execute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: executeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ManagementServer).Execute(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func registerHostHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ManagementServer).RegisterHost(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: registerHostMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ManagementServer).RegisterHost(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}
