package rpc

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	grpc "google.golang.org/grpc"
	codes "google.golang.org/grpc/codes"
	status "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/bobg/chunkstore"
)

var _ backendServer = &Server{}

// Server serves a blob backend over gRPC.
type Server struct {
	b chunkstore.Backend
}

// NewServer produces a Server for b.
// Add it to a grpc.Server with Register.
func NewServer(b chunkstore.Backend) *Server {
	return &Server{b: b}
}

func (s *Server) handle(ctx context.Context, method string, in *wrapperspb.BytesValue) (interface{}, error) {
	switch method {
	case storeMethod:
		name, data, err := decodeStoreRequest(in.Value)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		if err = s.b.Store(ctx, name, data); err != nil {
			return nil, toStatus(err)
		}
		return &emptypb.Empty{}, nil

	case retrieveMethod:
		data, err := s.b.Retrieve(ctx, in.Value)
		if err != nil {
			return nil, toStatus(err)
		}
		return wrapperspb.Bytes(data), nil

	case deleteMethod:
		if err := s.b.Delete(ctx, in.Value); err != nil {
			return nil, toStatus(err)
		}
		return &emptypb.Empty{}, nil
	}

	return nil, status.Error(codes.Unimplemented, fmt.Sprintf("unknown method %s", method))
}

func (s *Server) list(_ *wrapperspb.BytesValue, stream grpc.ServerStream) error {
	l, ok := s.b.(chunkstore.Lister)
	if !ok {
		return status.Error(codes.Unimplemented, "backend cannot list")
	}
	err := l.List(stream.Context(), func(name []byte) error {
		return stream.SendMsg(wrapperspb.Bytes(name))
	})
	return toStatus(err)
}

func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, chunkstore.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
