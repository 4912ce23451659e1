package rpc

import (
	"bytes"
	"context"
	"net"
	"testing"

	grpc "google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/bobg/chunkstore"
	"github.com/bobg/chunkstore/backend/backendtest"
	"github.com/bobg/chunkstore/backend/mem"
)

func TestRPC(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	grpcSrv := grpc.NewServer(ServerOptions()...)
	Register(grpcSrv, NewServer(mem.New()))
	defer grpcSrv.GracefulStop()

	l := bufconn.Listen(1 << 20)

	go grpcSrv.Serve(l)

	options := []grpc.DialOption{
		grpc.WithContextDialer(func(ctx context.Context, addr string) (net.Conn, error) {
			return l.Dial()
		}),
		grpc.WithInsecure(),
	}

	cc, err := grpc.DialContext(ctx, "bufnet", options...)
	if err != nil {
		t.Fatal(err)
	}
	defer cc.Close()

	c := NewClient(cc)

	t.Run("backend", func(t *testing.T) {
		backendtest.Run(ctx, t, c)
	})

	t.Run("large", func(t *testing.T) {
		var (
			name = chunkstore.BlobName(99)
			data = bytes.Repeat([]byte("0123456789abcdef"), 512*1024) // 8 MiB
		)
		if err := c.Store(ctx, name, data); err != nil {
			t.Fatal(err)
		}
		got, err := c.Retrieve(ctx, name)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, data) {
			t.Errorf("got %d bytes back, want %d", len(got), len(data))
		}
	})
}

func TestStoreRequest(t *testing.T) {
	name, data, err := decodeStoreRequest(encodeStoreRequest([]byte("name"), nil))
	if err != nil {
		t.Fatal(err)
	}
	if string(name) != "name" || data == nil || len(data) != 0 {
		t.Errorf("got name %q data %v", name, data)
	}

	if _, _, err = decodeStoreRequest([]byte{0x08, 0x01}); err == nil {
		t.Error("got no error for varint field")
	}
	if _, _, err = decodeStoreRequest(nil); err == nil {
		t.Error("got no error for missing name")
	}
}
