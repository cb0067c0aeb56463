package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
)

const (
	toolInvokerServiceName      = "capd.exchange.v1.ToolInvoker"
	resourceAcquirerServiceName = "capd.exchange.v1.ResourceAcquirer"
	provisionerServiceName      = "capd.exchange.v1.Provisioner"

	InvokeToolMethod      = "/" + toolInvokerServiceName + "/InvokeTool"
	ResourceAcquireMethod = "/" + resourceAcquirerServiceName + "/ResourceAcquire"
	DescribeMethod        = "/" + provisionerServiceName + "/Describe"
	ProvisionMethod       = "/" + provisionerServiceName + "/Provision"
)

type ToolInvokerServer interface {
	InvokeTool(ctx context.Context, req *ToolInvokeRequest) (*ToolInvokeReply, error)
}

type ResourceAcquirerServer interface {
	ResourceAcquire(ctx context.Context, req *ResourceRequest) (*ResourceReply, error)
}

type ProvisionerServer interface {
	Describe(ctx context.Context, req *emptypb.Empty) (*DescribeReply, error)
	Provision(ctx context.Context, req *ProvisionRequest) (*ProvisionReply, error)
}

var toolInvokerServiceDesc = grpc.ServiceDesc{
	ServiceName: toolInvokerServiceName,
	HandlerType: (*ToolInvokerServer)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "InvokeTool",
		Handler: unaryHandler(InvokeToolMethod, func(srv any, ctx context.Context, req *ToolInvokeRequest) (any, error) {
			return srv.(ToolInvokerServer).InvokeTool(ctx, req)
		}),
	}},
	Metadata: "capd/exchange/v1",
}

var resourceAcquirerServiceDesc = grpc.ServiceDesc{
	ServiceName: resourceAcquirerServiceName,
	HandlerType: (*ResourceAcquirerServer)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "ResourceAcquire",
		Handler: unaryHandler(ResourceAcquireMethod, func(srv any, ctx context.Context, req *ResourceRequest) (any, error) {
			return srv.(ResourceAcquirerServer).ResourceAcquire(ctx, req)
		}),
	}},
	Metadata: "capd/exchange/v1",
}

var provisionerServiceDesc = grpc.ServiceDesc{
	ServiceName: provisionerServiceName,
	HandlerType: (*ProvisionerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Describe",
			Handler: unaryHandler(DescribeMethod, func(srv any, ctx context.Context, req *emptypb.Empty) (any, error) {
				return srv.(ProvisionerServer).Describe(ctx, req)
			}),
		},
		{
			MethodName: "Provision",
			Handler: unaryHandler(ProvisionMethod, func(srv any, ctx context.Context, req *ProvisionRequest) (any, error) {
				return srv.(ProvisionerServer).Provision(ctx, req)
			}),
		},
	},
	Metadata: "capd/exchange/v1",
}

// unaryHandler adapts a typed method to grpc.MethodDesc, running the chained
// server interceptors.
func unaryHandler[Req any](fullMethod string, call func(srv any, ctx context.Context, req *Req) (any, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv, ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func registerExchangeServices(server *grpc.Server, svc *ExchangeService) {
	server.RegisterService(&toolInvokerServiceDesc, svc)
	server.RegisterService(&resourceAcquirerServiceDesc, svc)
	server.RegisterService(&provisionerServiceDesc, svc)
}
