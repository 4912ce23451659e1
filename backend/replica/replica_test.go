package replica

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/bobg/chunkstore"
	"github.com/bobg/chunkstore/backend/backendtest"
	"github.com/bobg/chunkstore/backend/mem"
)

func TestBackend(t *testing.T) {
	ctx := context.Background()

	b, err := New(ctx, []chunkstore.Backend{mem.New(), mem.New()}, []chunkstore.Backend{mem.New()}, 1)
	if err != nil {
		t.Fatal(err)
	}
	backendtest.Run(ctx, t, b)
	if err = b.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestReplicaSets(t *testing.T) {
	ctx := context.Background()

	var (
		m1 = mem.New()
		m2 = mem.New()
		a  = mem.New()
	)
	b, err := New(ctx, []chunkstore.Backend{m1, m2}, []chunkstore.Backend{a}, 4)
	if err != nil {
		t.Fatal(err)
	}

	var (
		name1 = chunkstore.BlobName(1)
		name2 = chunkstore.BlobName(2)
		name3 = chunkstore.BlobName(3)
	)
	if err = m1.Store(ctx, name1, []byte("foo")); err != nil {
		t.Fatal(err)
	}
	if err = m2.Store(ctx, name2, []byte("bar")); err != nil {
		t.Fatal(err)
	}
	if err = b.Store(ctx, name3, []byte("baz")); err != nil {
		t.Fatal(err)
	}

	// Each blob is readable through the replica, whichever backend has it.
	for name, want := range map[string]string{string(name1): "foo", string(name2): "bar", string(name3): "baz"} {
		got, err := b.Retrieve(ctx, []byte(name))
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}

	checkNames(ctx, t, "m1", m1, name1, name3)
	checkNames(ctx, t, "m2", m2, name2, name3)
	checkNames(ctx, t, "replica", b, name1, name2, name3)

	if err = b.Close(); err != nil {
		t.Fatal(err)
	}
	checkNames(ctx, t, "async", a, name3)

	if err = b.Store(ctx, name1, nil); !errors.Is(err, chunkstore.ErrClosed) {
		t.Errorf("got %v after Close, want ErrClosed", err)
	}
}

var errBoom = errors.New("boom")

type failingBackend struct{ mem.Backend }

func (*failingBackend) Store(context.Context, []byte, []byte) error { return errBoom }

func TestAsyncError(t *testing.T) {
	ctx := context.Background()

	b, err := New(ctx, []chunkstore.Backend{mem.New()}, []chunkstore.Backend{&failingBackend{}}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err = b.Store(ctx, chunkstore.BlobName(1), []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err = b.Close(); !errors.Is(err, errBoom) {
		t.Fatalf("got %v from Close, want %v", err, errBoom)
	}
	if _, err = b.Retrieve(ctx, chunkstore.BlobName(1)); !errors.Is(err, errBoom) {
		t.Errorf("got %v from Retrieve in error state, want %v", err, errBoom)
	}
}

func TestNoSync(t *testing.T) {
	if _, err := New(context.Background(), nil, []chunkstore.Backend{mem.New()}, 1); err == nil {
		t.Error("got no error")
	}
}

func checkNames(ctx context.Context, t *testing.T, label string, l chunkstore.Lister, want ...[]byte) {
	t.Run(label, func(t *testing.T) {
		var got [][]byte
		err := l.List(ctx, func(name []byte) error {
			got = append(got, append([]byte(nil), name...))
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(want, got, cmp.Comparer(bytes.Equal)); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})
}
