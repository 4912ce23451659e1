package rpc

import (
	"context"
	"io"

	"github.com/pkg/errors"
	grpc "google.golang.org/grpc"
	codes "google.golang.org/grpc/codes"
	status "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/bobg/chunkstore"
	"github.com/bobg/chunkstore/backend"
)

var _ chunkstore.Lister = &Client{}

// Client is a blob backend whose blobs live in a remote Server.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient produces a Client using cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Store implements chunkstore.Backend.Store.
func (c *Client) Store(ctx context.Context, name, data []byte) error {
	in := wrapperspb.Bytes(encodeStoreRequest(name, data))
	err := c.cc.Invoke(ctx, storeMethod, in, new(emptypb.Empty), callOptions()...)
	return errors.Wrap(err, "calling Store")
}

// Retrieve implements chunkstore.Backend.Retrieve.
func (c *Client) Retrieve(ctx context.Context, name []byte) ([]byte, error) {
	out := new(wrapperspb.BytesValue)
	err := c.cc.Invoke(ctx, retrieveMethod, wrapperspb.Bytes(name), out, callOptions()...)
	if status.Code(err) == codes.NotFound {
		return nil, chunkstore.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "calling Retrieve")
	}
	if out.Value == nil {
		return []byte{}, nil
	}
	return out.Value, nil
}

// Delete implements chunkstore.Backend.Delete.
func (c *Client) Delete(ctx context.Context, name []byte) error {
	err := c.cc.Invoke(ctx, deleteMethod, wrapperspb.Bytes(name), new(emptypb.Empty), callOptions()...)
	return errors.Wrap(err, "calling Delete")
}

// List implements chunkstore.Lister.List.
// It fails if the server's backend is not a chunkstore.Lister.
func (c *Client) List(ctx context.Context, f func([]byte) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := c.cc.NewStream(ctx, &serviceDesc.Streams[0], listMethod, callOptions()...)
	if err != nil {
		return errors.Wrap(err, "opening List stream")
	}
	if err = stream.SendMsg(new(wrapperspb.BytesValue)); err != nil {
		return errors.Wrap(err, "sending List request")
	}
	if err = stream.CloseSend(); err != nil {
		return errors.Wrap(err, "closing List request")
	}

	for {
		resp := new(wrapperspb.BytesValue)
		err := stream.RecvMsg(resp)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "receiving response")
		}
		if err = f(resp.Value); err != nil {
			return err
		}
	}
}

func init() {
	backend.Register("rpc", func(ctx context.Context, conf map[string]interface{}) (chunkstore.Backend, error) {
		addr, ok := conf["addr"].(string)
		if !ok {
			return nil, errors.New(`missing "addr" parameter`)
		}
		cc, err := grpc.DialContext(ctx, addr, grpc.WithInsecure())
		if err != nil {
			return nil, errors.Wrapf(err, "dialing %s", addr)
		}
		return NewClient(cc), nil
	})
}
