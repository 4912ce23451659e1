// Package rpc exposes a blob backend over gRPC
// and implements a backend that is a client of such a server.
//
// The service carries only well-known protobuf types.
// A Store request is a BytesValue whose payload
// is itself a protobuf-encoded (name, data) pair.
package rpc

import (
	"context"

	"github.com/pkg/errors"
	grpc "google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const serviceName = "chunkstore.Backend"

const (
	storeMethod    = "/" + serviceName + "/Store"
	retrieveMethod = "/" + serviceName + "/Retrieve"
	deleteMethod   = "/" + serviceName + "/Delete"
	listMethod     = "/" + serviceName + "/List"
)

// MaxMsgSize is the largest message the client and server exchange.
// It must exceed the largest blob.
const MaxMsgSize = 64 << 20

// ServerOptions are the options a grpc.Server needs to carry a Server.
func ServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.MaxRecvMsgSize(MaxMsgSize),
		grpc.MaxSendMsgSize(MaxMsgSize),
	}
}

func callOptions() []grpc.CallOption {
	return []grpc.CallOption{
		grpc.MaxCallRecvMsgSize(MaxMsgSize),
		grpc.MaxCallSendMsgSize(MaxMsgSize),
	}
}

type backendServer interface {
	handle(ctx context.Context, method string, in *wrapperspb.BytesValue) (interface{}, error)
	list(in *wrapperspb.BytesValue, stream grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*backendServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Store", Handler: unaryHandler(storeMethod)},
		{MethodName: "Retrieve", Handler: unaryHandler(retrieveMethod)},
		{MethodName: "Delete", Handler: unaryHandler(deleteMethod)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "List", Handler: listHandler, ServerStreams: true},
	},
	Metadata: "chunkstore.proto",
}

// Register adds s to a grpc.Server.
func Register(gs *grpc.Server, s *Server) {
	gs.RegisterService(&serviceDesc, s)
}

func unaryHandler(method string) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(wrapperspb.BytesValue)
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(backendServer)
		if interceptor == nil {
			return s.handle(ctx, method, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return s.handle(ctx, method, req.(*wrapperspb.BytesValue))
		})
	}
}

func listHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(wrapperspb.BytesValue)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(backendServer).list(in, stream)
}

const (
	nameField protowire.Number = 1
	dataField protowire.Number = 2
)

func encodeStoreRequest(name, data []byte) []byte {
	var b []byte
	b = protowire.AppendTag(b, nameField, protowire.BytesType)
	b = protowire.AppendBytes(b, name)
	b = protowire.AppendTag(b, dataField, protowire.BytesType)
	b = protowire.AppendBytes(b, data)
	return b
}

func decodeStoreRequest(b []byte) (name, data []byte, err error) {
	var gotName bool
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, nil, errors.Wrap(protowire.ParseError(n), "parsing tag")
		}
		b = b[n:]
		if typ != protowire.BytesType {
			return nil, nil, errors.Errorf("field %d has wire type %d", num, typ)
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, nil, errors.Wrapf(protowire.ParseError(n), "parsing field %d", num)
		}
		b = b[n:]
		switch num {
		case nameField:
			name, gotName = v, true
		case dataField:
			data = v
		default:
			return nil, nil, errors.Errorf("unknown field %d", num)
		}
	}
	if !gotName {
		return nil, nil, errors.New("missing name")
	}
	if data == nil {
		data = []byte{}
	}
	return name, data, nil
}
