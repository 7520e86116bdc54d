// Package remote serves a byte-keyed table over gRPC and provides a client
// that implements the same table interface, so a benchmark run can drive a
// store in another process.
package remote

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "kvmix.table.v1.TableService"

// TableServer is the server API of TableService.
type TableServer interface {
	Insert(context.Context, *KeyValue) (*Outcome, error)
	Read(context.Context, *KeyValue) (*Outcome, error)
	Erase(context.Context, *KeyValue) (*Outcome, error)
	Update(context.Context, *KeyValue) (*Outcome, error)
}

// RegisterTableServer registers srv as the TableService implementation.
func RegisterTableServer(s grpc.ServiceRegistrar, srv TableServer) {
	s.RegisterService(&serviceDesc, srv)
}

type serverMethod func(TableServer, context.Context, *KeyValue) (*Outcome, error)

func unaryHandler(name string, call serverMethod) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(KeyValue)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(TableServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(TableServer), ctx, req.(*KeyValue))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TableServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("Insert", TableServer.Insert),
		unaryHandler("Read", TableServer.Read),
		unaryHandler("Erase", TableServer.Erase),
		unaryHandler("Update", TableServer.Update),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "kvmix/table/v1/table.proto",
}
