// Package backendtest checks that a blob backend meets the chunkstore.Backend contract.
package backendtest

import (
	"bytes"
	"context"
	"sort"
	"testing"
	"testing/quick"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/bobg/chunkstore"
)

// Lister is a chunkstore.Lister, for use in AllNames.
type Lister = chunkstore.Lister

// Run stores, retrieves, overwrites, and deletes blobs in b.
// The names it uses must not already be present.
// If b is also a chunkstore.Lister, Run checks that List finds them.
func Run(ctx context.Context, t *testing.T, b chunkstore.Backend) {
	var (
		blob1 = chunkstore.BlobName(1)
		blob2 = chunkstore.BlobName(2)
		root  = []byte("root")
		data1 = bytes.Repeat([]byte("chunk"), 1000)
		data2 = []byte{0, 1, 2, 3}
	)

	for _, name := range [][]byte{blob1, blob2, root} {
		if _, err := b.Retrieve(ctx, name); !errors.Is(err, chunkstore.ErrNotFound) {
			t.Fatalf("retrieving absent blob %x: got %v, want ErrNotFound", name, err)
		}
	}

	if err := b.Store(ctx, blob1, data1); err != nil {
		t.Fatal(err)
	}
	if err := b.Store(ctx, blob2, data2); err != nil {
		t.Fatal(err)
	}
	if err := b.Store(ctx, root, data2); err != nil {
		t.Fatal(err)
	}

	check := func(name, want []byte) {
		t.Helper()
		got, err := b.Retrieve(ctx, name)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("blob %x: got %d bytes, want %d", name, len(got), len(want))
		}
	}
	check(blob1, data1)
	check(blob2, data2)
	check(root, data2)

	// Named blobs are overwritten.
	if err := b.Store(ctx, root, data1); err != nil {
		t.Fatal(err)
	}
	check(root, data1)

	if l, ok := b.(chunkstore.Lister); ok {
		var got [][]byte
		err := l.List(ctx, func(name []byte) error {
			got = append(got, append([]byte(nil), name...))
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		for _, want := range [][]byte{blob1, blob2, root} {
			if !containsName(got, want) {
				t.Errorf("List did not produce %x", want)
			}
		}
	}

	if err := b.Delete(ctx, blob2); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Retrieve(ctx, blob2); !errors.Is(err, chunkstore.ErrNotFound) {
		t.Errorf("retrieving deleted blob: got %v, want ErrNotFound", err)
	}
	if err := b.Delete(ctx, blob2); err != nil {
		t.Errorf("deleting absent blob: %s", err)
	}
	check(blob1, data1)

	for _, name := range [][]byte{blob1, root} {
		if err := b.Delete(ctx, name); err != nil {
			t.Fatal(err)
		}
	}
}

// AllNames writes a random set of blobs to an empty Lister
// and makes sure that the right set of names comes back from List.
func AllNames(ctx context.Context, t *testing.T, factory func() Lister) {
	if err := quick.Check(allNamesHelper(ctx, t, factory), nil); err != nil {
		t.Error(err)
	}
}

func allNamesHelper(ctx context.Context, t *testing.T, factory func() Lister) func([]uint32) bool {
	return func(ids []uint32) bool {
		var (
			b    = factory()
			want []string
			seen = make(map[int64]bool)
		)
		for _, id := range ids {
			n := int64(id) + 1
			name := chunkstore.BlobName(n)
			if err := b.Store(ctx, name, name); err != nil {
				t.Fatal(err)
			}
			if !seen[n] {
				seen[n] = true
				want = append(want, string(name))
			}
		}

		var got []string
		err := b.List(ctx, func(name []byte) error {
			got = append(got, string(name))
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}

		sort.Strings(want)
		sort.Strings(got)

		if diff := cmp.Diff(want, got); diff != "" {
			t.Logf("mismatch (-want +got):\n%s", diff)
			return false
		}
		return true
	}
}

func containsName(names [][]byte, name []byte) bool {
	for _, n := range names {
		if bytes.Equal(n, name) {
			return true
		}
	}
	return false
}
