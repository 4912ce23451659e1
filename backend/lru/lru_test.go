package lru

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/bobg/chunkstore"
	"github.com/bobg/chunkstore/backend/backendtest"
	"github.com/bobg/chunkstore/backend/mem"
)

func TestBackend(t *testing.T) {
	b, err := New(mem.New(), 1000)
	if err != nil {
		t.Fatal(err)
	}
	backendtest.Run(context.Background(), t, b)
}

type countingBackend struct {
	*mem.Backend
	retrieves int32
}

func (b *countingBackend) Retrieve(ctx context.Context, name []byte) ([]byte, error) {
	atomic.AddInt32(&b.retrieves, 1)
	return b.Backend.Retrieve(ctx, name)
}

func TestCaching(t *testing.T) {
	var (
		ctx    = context.Background()
		nested = &countingBackend{Backend: mem.New()}
	)
	b, err := New(nested, 2)
	if err != nil {
		t.Fatal(err)
	}

	for i := int64(1); i <= 3; i++ {
		name := chunkstore.BlobName(i)
		if err = nested.Store(ctx, name, name); err != nil {
			t.Fatal(err)
		}
	}

	get := func(id int64) {
		t.Helper()
		if _, err := b.Retrieve(ctx, chunkstore.BlobName(id)); err != nil {
			t.Fatal(err)
		}
	}

	get(1)
	get(1)
	if n := atomic.LoadInt32(&nested.retrieves); n != 1 {
		t.Errorf("got %d nested retrieves, want 1", n)
	}

	get(2)
	get(3) // evicts 1
	get(1)
	if n := atomic.LoadInt32(&nested.retrieves); n != 4 {
		t.Errorf("got %d nested retrieves, want 4", n)
	}
	if b.Len() != 2 {
		t.Errorf("got %d cached blobs, want 2", b.Len())
	}

	if err = b.Delete(ctx, chunkstore.BlobName(1)); err != nil {
		t.Fatal(err)
	}
	if _, err = b.Retrieve(ctx, chunkstore.BlobName(1)); err != chunkstore.ErrNotFound {
		t.Errorf("got %v after Delete, want ErrNotFound", err)
	}
}
