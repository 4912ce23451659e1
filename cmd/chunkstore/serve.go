package main

import (
	"context"
	"net"

	"github.com/pkg/errors"
	"google.golang.org/grpc"

	"github.com/bobg/chunkstore/backend/rpc"
)

// serve exposes the configured backend over gRPC,
// for use by the "rpc" backend type in another process.
func (c maincmd) serve(ctx context.Context, addr string, _ []string) error {
	gs := grpc.NewServer(rpc.ServerOptions()...)
	rpc.Register(gs, rpc.NewServer(c.st.Backend))

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", addr)
	}
	defer lis.Close()

	go func() {
		<-ctx.Done()
		gs.GracefulStop()
	}()

	c.log.WithField("addr", lis.Addr()).Info("serving")

	return gs.Serve(lis)
}
