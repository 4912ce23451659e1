package chunkstore

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the serialized ChunkRef record.
// Fields 4 and 5 form the kind union; exactly one must be present.
const (
	fieldBlobID     protowire.Number = 1
	fieldOffset     protowire.Number = 2
	fieldLength     protowire.Number = 3
	fieldTreeBranch protowire.Number = 4
	fieldTreeLeaf   protowire.Number = 5
	fieldVersion    protowire.Number = 15

	refVersion = 1
)

// DecodeError is the error produced by Decode.
type DecodeError struct {
	Msg string
	Err error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decoding chunk ref: %s: %s", e.Msg, e.Err)
	}
	return "decoding chunk ref: " + e.Msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Encode serializes r.
// The result is a protobuf-wire record and can be parsed with Decode.
//
// The wire form has no way to carry an invalid Kind,
// so one is encoded as TreeLeaf and does not round-trip.
// Refs made by a blob.Store always have a valid Kind:
// the store rejects invalid kinds before handing out a ref.
func Encode(r ChunkRef) []byte {
	buf := make([]byte, 0, len(r.BlobID)+24)
	buf = protowire.AppendTag(buf, fieldBlobID, protowire.BytesType)
	buf = protowire.AppendBytes(buf, r.BlobID)
	buf = protowire.AppendTag(buf, fieldOffset, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(r.Offset))
	buf = protowire.AppendTag(buf, fieldLength, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(r.Length))

	kindField := fieldTreeLeaf
	if r.Kind == TreeBranch {
		kindField = fieldTreeBranch
	}
	buf = protowire.AppendTag(buf, kindField, protowire.BytesType)
	buf = protowire.AppendBytes(buf, nil)

	buf = protowire.AppendTag(buf, fieldVersion, protowire.VarintType)
	return protowire.AppendVarint(buf, refVersion)
}

// Decode parses the output of Encode.
// Any error is a *DecodeError.
func Decode(b []byte) (ChunkRef, error) {
	var (
		r       = ChunkRef{BlobID: []byte{}}
		version uint64
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return ChunkRef{}, &DecodeError{Msg: "reading field tag", Err: protowire.ParseError(n)}
		}
		b = b[n:]

		switch num {
		case fieldBlobID:
			if typ != protowire.BytesType {
				return ChunkRef{}, &DecodeError{Msg: fmt.Sprintf("blob_id has wire type %d", typ)}
			}
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return ChunkRef{}, &DecodeError{Msg: "reading blob_id", Err: protowire.ParseError(n)}
			}
			r.BlobID = append([]byte{}, v...)
			b = b[n:]

		case fieldOffset, fieldLength, fieldVersion:
			if typ != protowire.VarintType {
				return ChunkRef{}, &DecodeError{Msg: fmt.Sprintf("field %d has wire type %d", num, typ)}
			}
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return ChunkRef{}, &DecodeError{Msg: fmt.Sprintf("reading field %d", num), Err: protowire.ParseError(n)}
			}
			b = b[n:]
			switch num {
			case fieldOffset:
				r.Offset = int64(v)
				if r.Offset < 0 {
					return ChunkRef{}, &DecodeError{Msg: fmt.Sprintf("negative offset %d", r.Offset)}
				}
			case fieldLength:
				r.Length = int64(v)
				if r.Length < 0 {
					return ChunkRef{}, &DecodeError{Msg: fmt.Sprintf("negative length %d", r.Length)}
				}
			default:
				version = v
			}

		case fieldTreeBranch, fieldTreeLeaf:
			if typ != protowire.BytesType {
				return ChunkRef{}, &DecodeError{Msg: fmt.Sprintf("kind has wire type %d", typ)}
			}
			_, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return ChunkRef{}, &DecodeError{Msg: "reading kind", Err: protowire.ParseError(n)}
			}
			b = b[n:]
			if r.Kind != 0 {
				return ChunkRef{}, &DecodeError{Msg: "duplicate kind"}
			}
			if num == fieldTreeBranch {
				r.Kind = TreeBranch
			} else {
				r.Kind = TreeLeaf
			}

		default:
			return ChunkRef{}, &DecodeError{Msg: fmt.Sprintf("unknown field %d", num)}
		}
	}

	if version != refVersion {
		return ChunkRef{}, &DecodeError{Msg: fmt.Sprintf("unsupported version %d", version)}
	}
	if r.Kind == 0 {
		return ChunkRef{}, &DecodeError{Msg: "missing kind"}
	}
	return r, nil
}
