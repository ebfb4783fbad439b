package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "fundsflow.v1.TransferService"

// Full method names
const (
	MethodTransfer         = "/" + ServiceName + "/Transfer"
	MethodGetTransfer      = "/" + ServiceName + "/GetTransfer"
	MethodAnnotateTransfer = "/" + ServiceName + "/AnnotateTransfer"
	MethodGetDailyUsage    = "/" + ServiceName + "/GetDailyUsage"
)

// TransferServiceServer is the server API for the transfer service.
// Messages are google.protobuf.Struct so clients need no generated stubs.
type TransferServiceServer interface {
	Transfer(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetTransfer(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AnnotateTransfer(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetDailyUsage(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type structMethod func(TransferServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call structMethod) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TransferServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(TransferServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// TransferServiceDesc describes the transfer service for grpc.Server.RegisterService
var TransferServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TransferServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Transfer",
			Handler:    unaryHandler(MethodTransfer, TransferServiceServer.Transfer),
		},
		{
			MethodName: "GetTransfer",
			Handler:    unaryHandler(MethodGetTransfer, TransferServiceServer.GetTransfer),
		},
		{
			MethodName: "AnnotateTransfer",
			Handler:    unaryHandler(MethodAnnotateTransfer, TransferServiceServer.AnnotateTransfer),
		},
		{
			MethodName: "GetDailyUsage",
			Handler:    unaryHandler(MethodGetDailyUsage, TransferServiceServer.GetDailyUsage),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fundsflow/v1/transfer.proto",
}

// RegisterTransferServiceServer registers srv with s
func RegisterTransferServiceServer(s grpc.ServiceRegistrar, srv TransferServiceServer) {
	s.RegisterService(&TransferServiceDesc, srv)
}
