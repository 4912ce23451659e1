package chunkstore_test

import (
	"errors"
	"testing"
	"testing/quick"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/encoding/protowire"

	. "github.com/bobg/chunkstore"
)

func TestRoundTrip(t *testing.T) {
	ref := ChunkRef{BlobID: []byte{0xde, 0xad}, Offset: 7, Length: 13, Kind: TreeBranch}
	got, err := Decode(Encode(ref))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(ref, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTripQuick(t *testing.T) {
	f := func(name []byte, offset, length int64, branch bool) bool {
		if offset < 0 {
			offset = -offset
		}
		if length < 0 {
			length = -length
		}
		ref := ChunkRef{BlobID: name, Offset: offset, Length: length, Kind: TreeLeaf}
		if branch {
			ref.Kind = TreeBranch
		}
		got, err := Decode(Encode(ref))
		if err != nil {
			t.Log(err)
			return false
		}
		return got.Equal(ref)
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestEmptyRef(t *testing.T) {
	ref := EmptyRef(TreeLeaf)
	if !ref.IsEmpty() {
		t.Error("EmptyRef is not empty")
	}
	got, err := Decode(Encode(ref))
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsEmpty() || got.Kind != TreeLeaf {
		t.Errorf("got %s, want the empty leaf ref", got)
	}

	notEmpty := ChunkRef{BlobID: BlobName(1), Kind: TreeLeaf}
	if notEmpty.IsEmpty() {
		t.Error("zero-length ref in a real blob reported as empty")
	}
}

func TestDecodeTruncated(t *testing.T) {
	enc := Encode(ChunkRef{BlobID: []byte("blob name"), Offset: 300, Length: 70000, Kind: TreeLeaf})
	for i := 0; i < len(enc); i++ {
		_, err := Decode(enc[:i])
		var derr *DecodeError
		if !errors.As(err, &derr) {
			t.Errorf("decoding %d of %d bytes: got error %v, want a DecodeError", i, len(enc), err)
		}
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	var buf []byte
	buf = protowire.AppendTag(buf, 1, protowire.BytesType)
	buf = protowire.AppendBytes(buf, []byte{1, 2})
	buf = protowire.AppendTag(buf, 6, protowire.BytesType)
	buf = protowire.AppendBytes(buf, nil)
	buf = protowire.AppendTag(buf, 15, protowire.VarintType)
	buf = protowire.AppendVarint(buf, 1)

	if _, err := Decode(buf); err == nil {
		t.Error("got no error for unknown kind discriminant")
	}
}

func TestDecodeNegative(t *testing.T) {
	for _, ref := range []ChunkRef{
		{BlobID: []byte{1}, Offset: -1, Length: 3, Kind: TreeLeaf},
		{BlobID: []byte{1}, Offset: 3, Length: -1, Kind: TreeLeaf},
	} {
		if _, err := Decode(Encode(ref)); err == nil {
			t.Errorf("got no error decoding %s", ref)
		}
	}
}

func TestRefHex(t *testing.T) {
	ref := ChunkRef{BlobID: BlobName(5), Offset: 10, Length: 20, Kind: TreeLeaf}
	got, err := RefFromHex(ref.Hex())
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(ref) {
		t.Errorf("got %s, want %s", got, ref)
	}
}

func TestBlobName(t *testing.T) {
	name := BlobName(5)
	if diff := cmp.Diff([]byte{0, 0, 0, 0, 0, 0, 0, 5}, name); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	id, ok := BlobID(name)
	if !ok || id != 5 {
		t.Errorf("got %d, %v; want 5, true", id, ok)
	}
	if _, ok := BlobID([]byte{0}); ok {
		t.Error("the empty-chunk blob id parsed as a blob name")
	}
}

func TestEncodeInvalidKind(t *testing.T) {
	ref := ChunkRef{BlobID: BlobName(3), Offset: 1, Length: 2, Kind: Kind(9)}
	got, err := Decode(Encode(ref))
	if err != nil {
		t.Fatal(err)
	}
	want := ref
	want.Kind = TreeLeaf
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestNamedKey(t *testing.T) {
	for _, name := range []string{"", "root", "rootname", "\x00\x00\x00\x00\x00\x00\x00"} {
		key := NamedKey(name)
		if _, ok := BlobID(key); ok {
			t.Errorf("named key for %q parsed as a blob name", name)
		}
		got, ok := IsNamedKey(key)
		if !ok || got != name {
			t.Errorf("IsNamedKey(NamedKey(%q)) = %q, %v", name, got, ok)
		}
	}
	if _, ok := IsNamedKey(BlobName(1)); ok {
		t.Error("blob name parsed as a named key")
	}
}

func TestParseTag(t *testing.T) {
	for tag := TagDone; tag.Valid(); tag++ {
		got, err := ParseTag(tag.String())
		if err != nil {
			t.Fatal(err)
		}
		if got != tag {
			t.Errorf("got %s, want %s", got, tag)
		}
	}
	if _, err := ParseTag("bogus"); err == nil {
		t.Error("got no error parsing a bogus tag")
	}
}
