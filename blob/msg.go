package blob

import (
	"github.com/bobg/chunkstore"
)

// Msg is a request to a Store.
// It is one of the *Msg types in this package.
type Msg interface {
	isMsg()
}

// StoreMsg stages Chunk in the current blob.
// Callback, if not nil, is called with the chunk's ref
// once the blob holding it is committed.
// It must not send requests to the same Store.
type StoreMsg struct {
	Chunk    []byte
	Kind     chunkstore.Kind
	Callback func(chunkstore.ChunkRef)
}

// RetrieveMsg reads the bytes of a committed chunk.
type RetrieveMsg struct {
	Ref chunkstore.ChunkRef
}

// StoreNamedMsg writes Data to the backend under Name,
// bypassing the blob index.
type StoreNamedMsg struct {
	Name string
	Data []byte
}

// RetrieveNamedMsg reads what StoreNamedMsg wrote.
type RetrieveNamedMsg struct {
	Name string
}

// RecoverMsg reinstalls the blob holding Ref,
// found in the backend, into the blob index.
type RecoverMsg struct {
	Ref chunkstore.ChunkRef
}

// TagMsg tags the blob holding Ref.
type TagMsg struct {
	Ref chunkstore.ChunkRef
	Tag chunkstore.Tag
}

// TagAllMsg tags every blob.
type TagAllMsg struct {
	Tag chunkstore.Tag
}

// DeleteByTagMsg deletes every blob with the given tag
// from the backend and then from the index.
type DeleteByTagMsg struct {
	Tag chunkstore.Tag
}

// FlushMsg commits the current blob, whatever its size.
type FlushMsg struct{}

// ResetMsg empties the blob index and discards staged chunks
// without calling their callbacks.
type ResetMsg struct{}

// StatsMsg asks for a Stats snapshot.
type StatsMsg struct{}

func (StoreMsg) isMsg()         {}
func (RetrieveMsg) isMsg()      {}
func (StoreNamedMsg) isMsg()    {}
func (RetrieveNamedMsg) isMsg() {}
func (RecoverMsg) isMsg()       {}
func (TagMsg) isMsg()           {}
func (TagAllMsg) isMsg()        {}
func (DeleteByTagMsg) isMsg()   {}
func (FlushMsg) isMsg()         {}
func (ResetMsg) isMsg()         {}
func (StatsMsg) isMsg()         {}

// Reply is a Store's response to a Msg.
type Reply interface {
	isReply()
}

type (
	// StoreOk answers StoreMsg.
	StoreOk struct{ Ref chunkstore.ChunkRef }

	// StoreNamedOk answers StoreNamedMsg.
	StoreNamedOk struct{ Name string }

	// RetrieveOk answers RetrieveMsg and RetrieveNamedMsg.
	RetrieveOk struct{ Data []byte }

	// RecoverOk answers RecoverMsg.
	RecoverOk struct{}

	// FlushOk answers FlushMsg.
	FlushOk struct{}

	// Ok answers TagMsg, TagAllMsg, DeleteByTagMsg, and ResetMsg.
	Ok struct{}

	// StatsOk answers StatsMsg.
	StatsOk struct{ Stats Stats }
)

func (StoreOk) isReply()      {}
func (StoreNamedOk) isReply() {}
func (RetrieveOk) isReply()   {}
func (RecoverOk) isReply()    {}
func (FlushOk) isReply()      {}
func (Ok) isReply()           {}
func (StatsOk) isReply()      {}

// Stats describes the state of a Store.
type Stats struct {
	// Staged is the number of bytes in the current, uncommitted blob.
	Staged int

	// Pending is the number of callbacks awaiting the next commit.
	Pending int

	// Current is the blob now being filled.
	Current chunkstore.BlobDesc

	// Poisoned tells whether a failed commit has disabled the store.
	Poisoned bool
}
