package chunkstore

import (
	"context"
	"encoding/binary"
	"encoding/hex"
)

// Backend is the external storage for blobs.
// Names are opaque byte strings.
type Backend interface {
	// Store writes data under name.
	// When Store returns nil, the data is durable.
	Store(ctx context.Context, name, data []byte) error

	// Retrieve reads the data stored under name.
	// It returns ErrNotFound if there is none.
	Retrieve(ctx context.Context, name []byte) ([]byte, error)

	// Delete removes the data stored under name.
	// It is not an error if there is none.
	Delete(ctx context.Context, name []byte) error
}

// Lister is a Backend that can enumerate the names it holds.
type Lister interface {
	Backend

	// List calls f for each name in the backend, in no particular order.
	// If f returns an error, List exits with that error.
	List(ctx context.Context, f func(name []byte) error) error
}

// BlobDesc identifies a blob.
// ID is assigned by the blob index;
// zero means the ID is unknown and only Name is meaningful.
type BlobDesc struct {
	ID   int64
	Name []byte
}

// BlobName is the name of the blob with the given ID:
// the ID's 8-byte big-endian encoding.
func BlobName(id int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(id))
	return buf[:]
}

// BlobID is the inverse of BlobName.
// It returns false if name is not of the form BlobName produces,
// which includes every key made by NamedKey.
func BlobID(name []byte) (int64, bool) {
	if len(name) != 8 || name[0] == namedPrefix {
		return 0, false
	}
	id := int64(binary.BigEndian.Uint64(name))
	return id, id > 0
}

// Blob IDs are positive int64s,
// so a blob name never begins with this byte.
const namedPrefix = 0xff

// NamedKey is the backend key under which a named blob
// (see blob.StoreNamedMsg) is stored.
// It is disjoint from every name BlobName produces,
// so named blobs never look like aggregated ones to the index or to a backend scan.
func NamedKey(name string) []byte {
	return append([]byte{namedPrefix}, name...)
}

// IsNamedKey tells whether key was produced by NamedKey,
// and if so returns the name.
func IsNamedKey(key []byte) (string, bool) {
	if len(key) == 0 || key[0] != namedPrefix {
		return "", false
	}
	return string(key[1:]), true
}

// NameString is a printable form of a blob name.
func NameString(name []byte) string {
	return hex.EncodeToString(name)
}
