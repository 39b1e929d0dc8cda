package server

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "intake.v1.IntakeService"

// IntakeServer is the server API for the intake service.
type IntakeServer interface {
	Submit(context.Context, *SubmitRequest) (*SubmitResponse, error)
	Get(context.Context, *DocumentRequest) (*DocumentResponse, error)
	List(context.Context, *ListRequest) (*ListResponse, error)
	Reprocess(context.Context, *DocumentRequest) (*DocumentResponse, error)
	Delete(context.Context, *DocumentRequest) (*DeleteResponse, error)
	Archive(context.Context, *DocumentRequest) (*DocumentResponse, error)
	Resolve(context.Context, *ResolveRequest) (*DocumentResponse, error)
	Remap(context.Context, *RemapRequest) (*DocumentResponse, error)
}

// IntakeServiceDesc describes IntakeServer for grpc.ServiceRegistrar.
var IntakeServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IntakeServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Submit", IntakeServer.Submit),
		unary("Get", IntakeServer.Get),
		unary("List", IntakeServer.List),
		unary("Reprocess", IntakeServer.Reprocess),
		unary("Delete", IntakeServer.Delete),
		unary("Archive", IntakeServer.Archive),
		unary("Resolve", IntakeServer.Resolve),
		unary("Remap", IntakeServer.Remap),
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterIntakeServer attaches srv to a gRPC server.
func RegisterIntakeServer(s grpc.ServiceRegistrar, srv IntakeServer) {
	s.RegisterService(&IntakeServiceDesc, srv)
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// unary builds the handler the protoc plugin would generate for one method.
func unary[Req, Resp any](method string, call func(IntakeServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(IntakeServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod(method),
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(IntakeServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
