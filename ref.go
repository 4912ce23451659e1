package chunkstore

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the kind of a stored chunk.
type Kind int

const (
	// TreeBranch is an interior node of a tree of chunks.
	TreeBranch Kind = 1

	// TreeLeaf is a chunk of file data.
	TreeLeaf Kind = 2
)

func (k Kind) String() string {
	switch k {
	case TreeBranch:
		return "branch"
	case TreeLeaf:
		return "leaf"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Valid tells whether k is one of the defined kinds.
func (k Kind) Valid() bool {
	return k == TreeBranch || k == TreeLeaf
}

// ParseKind parses the output of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "branch":
		return TreeBranch, nil
	case "leaf":
		return TreeLeaf, nil
	}
	return 0, errors.Errorf("unknown kind %q", s)
}

// ChunkRef locates a stored chunk:
// Length bytes at Offset inside the blob named BlobID.
type ChunkRef struct {
	BlobID []byte
	Offset int64
	Length int64
	Kind   Kind
}

// emptyBlobID is the blob name of the empty-chunk sentinel.
// No real blob is ever given this name.
var emptyBlobID = []byte{0}

// EmptyRef is the ChunkRef of the empty chunk of the given kind.
// It never refers to bytes in a backend.
func EmptyRef(kind Kind) ChunkRef {
	return ChunkRef{BlobID: []byte{0}, Kind: kind}
}

// IsEmpty tells whether r is the empty-chunk sentinel.
func (r ChunkRef) IsEmpty() bool {
	return r.Offset == 0 && r.Length == 0 && bytes.Equal(r.BlobID, emptyBlobID)
}

// Equal tells whether r and other denote the same chunk.
func (r ChunkRef) Equal(other ChunkRef) bool {
	return bytes.Equal(r.BlobID, other.BlobID) && r.Offset == other.Offset && r.Length == other.Length && r.Kind == other.Kind
}

func (r ChunkRef) String() string {
	return fmt.Sprintf("%s@%d+%d(%s)", hex.EncodeToString(r.BlobID), r.Offset, r.Length, r.Kind)
}

// Hex is the hex encoding of r's serialized form.
// It is the form the command-line tool uses for refs.
func (r ChunkRef) Hex() string {
	return hex.EncodeToString(Encode(r))
}

// RefFromHex parses the output of ChunkRef.Hex.
func RefFromHex(s string) (ChunkRef, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return ChunkRef{}, errors.Wrap(err, "hex-decoding ref")
	}
	return Decode(b)
}
