// Package indextest exercises a blob index.
// The dialect subpackages run it against their engines.
package indextest

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/bobg/chunkstore"
	"github.com/bobg/chunkstore/index"
)

// Run runs the index tests.
// Each call of open must produce an Index over the same, initially empty, table.
func Run(ctx context.Context, t *testing.T, open func() *index.Index) {
	t.Run("lifecycle", func(t *testing.T) {
		x := open()
		resetIndex(ctx, t, x)
		lifecycle(ctx, t, x)
	})
	t.Run("recover", func(t *testing.T) {
		x := open()
		resetIndex(ctx, t, x)
		recoverBlobs(ctx, t, x)
	})
	t.Run("tags", func(t *testing.T) {
		x := open()
		resetIndex(ctx, t, x)
		tags(ctx, t, x)
	})
	t.Run("restart", func(t *testing.T) {
		x := open()
		resetIndex(ctx, t, x)
		restart(ctx, t, x, open)
	})
}

func resetIndex(ctx context.Context, t *testing.T, x *index.Index) {
	if err := x.Reset(ctx); err != nil {
		t.Fatal(err)
	}
}

func wantState(ctx context.Context, t *testing.T, x *index.Index, name []byte, want index.State) {
	t.Helper()
	row, err := x.Lookup(ctx, name)
	if err != nil {
		t.Fatal(err)
	}
	if row.State != want {
		t.Errorf("blob %x is %s, want %s", name, row.State, want)
	}
}

func lifecycle(ctx context.Context, t *testing.T, x *index.Index) {
	d1, err := x.Reserve(ctx)
	if err != nil {
		t.Fatal(err)
	}
	d2, err := x.Reserve(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if d2.ID <= d1.ID {
		t.Errorf("second id %d not greater than first %d", d2.ID, d1.ID)
	}
	for _, d := range []chunkstore.BlobDesc{d1, d2} {
		if !bytes.Equal(d.Name, chunkstore.BlobName(d.ID)) {
			t.Errorf("blob %d has name %x", d.ID, d.Name)
		}
		wantState(ctx, t, x, d.Name, index.Reserved)
	}

	var merr chunkstore.MessageError
	if err = x.CommitDone(ctx, d1); !errors.As(err, &merr) {
		t.Errorf("committing a reserved blob: got %v, want a MessageError", err)
	}
	wantState(ctx, t, x, d1.Name, index.Reserved)

	if err = x.InAir(ctx, d1); err != nil {
		t.Fatal(err)
	}
	wantState(ctx, t, x, d1.Name, index.InAir)

	if err = x.InAir(ctx, d1); !errors.As(err, &merr) {
		t.Errorf("re-sending an in-air blob: got %v, want a MessageError", err)
	}

	if err = x.CommitDone(ctx, d1); err != nil {
		t.Fatal(err)
	}
	wantState(ctx, t, x, d1.Name, index.Committed)

	inAir, err := x.ListByState(ctx, index.InAir)
	if err != nil {
		t.Fatal(err)
	}
	if len(inAir) != 0 {
		t.Errorf("got %d in-air blobs, want 0", len(inAir))
	}
	reserved, err := x.ListByState(ctx, index.Reserved)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]chunkstore.BlobDesc{d2}, reserved); diff != "" {
		t.Errorf("reserved blobs mismatch (-want +got):\n%s", diff)
	}

	unknown := chunkstore.BlobDesc{ID: 9999, Name: chunkstore.BlobName(9999)}
	if err = x.InAir(ctx, unknown); !errors.As(err, &merr) {
		t.Errorf("moving an unknown blob: got %v, want a MessageError", err)
	}

	if err = x.Flush(ctx); err != nil {
		t.Fatal(err)
	}
}

func recoverBlobs(ctx context.Context, t *testing.T, x *index.Index) {
	name := []byte{0, 0, 0, 0, 0, 0, 0, 5}
	for i := 0; i < 2; i++ {
		if err := x.Recover(ctx, name); err != nil {
			t.Fatal(err)
		}
		row, err := x.Lookup(ctx, name)
		if err != nil {
			t.Fatal(err)
		}
		if row.Desc.ID != 5 || row.State != index.Committed {
			t.Errorf("after recovery %d, got id %d state %s; want 5 committed", i+1, row.Desc.ID, row.State)
		}
	}

	committed, err := x.ListByState(ctx, index.Committed)
	if err != nil {
		t.Fatal(err)
	}
	if len(committed) != 1 {
		t.Errorf("got %d committed blobs, want 1", len(committed))
	}

	d, err := x.Reserve(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if d.ID <= 5 {
		t.Errorf("reserved id %d after recovering id 5", d.ID)
	}

	// A name that is not a blob id.
	odd := []byte("odd name")
	if err = x.Recover(ctx, odd); err != nil {
		t.Fatal(err)
	}
	wantState(ctx, t, x, odd, index.Committed)

	// Recovering a reserved blob commits it.
	if err = x.Recover(ctx, d.Name); err != nil {
		t.Fatal(err)
	}
	wantState(ctx, t, x, d.Name, index.Committed)

	if _, err = x.Lookup(ctx, []byte("absent")); !errors.Is(err, chunkstore.ErrNotFound) {
		t.Errorf("looking up an absent blob: got %v, want ErrNotFound", err)
	}
}

func tags(ctx context.Context, t *testing.T, x *index.Index) {
	var descs []chunkstore.BlobDesc
	for i := 0; i < 4; i++ {
		d, err := x.Reserve(ctx)
		if err != nil {
			t.Fatal(err)
		}
		descs = append(descs, d)
	}

	if err := x.TagAll(ctx, chunkstore.TagReserved); err != nil {
		t.Fatal(err)
	}
	if err := x.Tag(ctx, descs[1], chunkstore.TagWillDelete); err != nil {
		t.Fatal(err)
	}
	// By name only.
	if err := x.Tag(ctx, chunkstore.BlobDesc{Name: descs[3].Name}, chunkstore.TagWillDelete); err != nil {
		t.Fatal(err)
	}
	// Unknown names are ignored.
	if err := x.Tag(ctx, chunkstore.BlobDesc{Name: []byte("nope")}, chunkstore.TagWillDelete); err != nil {
		t.Fatal(err)
	}

	row, err := x.Lookup(ctx, descs[0].Name)
	if err != nil {
		t.Fatal(err)
	}
	if !row.Tagged || row.Tag != chunkstore.TagReserved {
		t.Errorf("got tag %s (tagged %v), want %s", row.Tag, row.Tagged, chunkstore.TagReserved)
	}

	got, err := x.ListByTag(ctx, chunkstore.TagWillDelete)
	if err != nil {
		t.Fatal(err)
	}
	want := []chunkstore.BlobDesc{descs[1], descs[3]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tagged blobs mismatch (-want +got):\n%s", diff)
	}

	if err = x.Untag(ctx, descs[2]); err != nil {
		t.Fatal(err)
	}
	if row, err = x.Lookup(ctx, descs[2].Name); err != nil {
		t.Fatal(err)
	}
	if row.Tagged {
		t.Errorf("blob %d still tagged %s after Untag", descs[2].ID, row.Tag)
	}
	if err = x.Tag(ctx, descs[2], chunkstore.TagReserved); err != nil {
		t.Fatal(err)
	}

	if err = x.DeleteByTag(ctx, chunkstore.TagWillDelete); err != nil {
		t.Fatal(err)
	}
	got, err = x.ListByTag(ctx, chunkstore.TagWillDelete)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("got %d blobs after deleting by tag, want 0", len(got))
	}
	rest, err := x.ListByTag(ctx, chunkstore.TagReserved)
	if err != nil {
		t.Fatal(err)
	}
	want = []chunkstore.BlobDesc{descs[0], descs[2]}
	if diff := cmp.Diff(want, rest); diff != "" {
		t.Errorf("surviving blobs mismatch (-want +got):\n%s", diff)
	}

	if err = x.Delete(ctx, descs[0]); err != nil {
		t.Fatal(err)
	}
	if _, err = x.Lookup(ctx, descs[0].Name); !errors.Is(err, chunkstore.ErrNotFound) {
		t.Errorf("got %v after Delete, want ErrNotFound", err)
	}
}

func restart(ctx context.Context, t *testing.T, x *index.Index, open func() *index.Index) {
	var last chunkstore.BlobDesc
	for i := 0; i < 3; i++ {
		d, err := x.Reserve(ctx)
		if err != nil {
			t.Fatal(err)
		}
		last = d
	}

	x2 := open()
	d, err := x2.Reserve(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if d.ID != last.ID+1 {
		t.Errorf("after reopening, got id %d, want %d", d.ID, last.ID+1)
	}
}
