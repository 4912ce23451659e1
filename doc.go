// Package chunkstore is a chunk-aggregating blob store.
//
// Callers hand it small,
// variable-sized byte chunks.
// It packs them into larger blobs of bounded size
// and writes those blobs to a pluggable backend
// (a file tree, a SQL table, Google Cloud Storage, S3, a remote server).
//
// Each stored chunk is identified by a ChunkRef:
// the name of the blob that contains it,
// its offset and length inside that blob,
// and its Kind.
// A ChunkRef is handed back immediately,
// but it is not durable until the blob containing it has been written.
// Callers learn that through a per-chunk callback.
//
// Metadata about blobs lives in an index
// (see the index subpackage)
// that tracks each blob through the lifecycle
// reserved -> in-air -> committed,
// plus a tag used by garbage collection.
// The aggregating store itself is in the blob subpackage.
//
// A ChunkRef serializes compactly with Encode and Decode,
// so refs can be embedded in other chunks
// (see the tree subpackage for an example).
package chunkstore
