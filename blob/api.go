package blob

import (
	"context"
	"fmt"

	"github.com/bobg/chunkstore"
)

func call[T Reply](ctx context.Context, s *Store, msg Msg) (T, error) {
	var zero T

	reply, err := s.Send(ctx, msg)
	if err != nil {
		return zero, err
	}
	r, ok := reply.(T)
	if !ok {
		return zero, chunkstore.MessageError(fmt.Sprintf("got %T in reply to %T", reply, msg))
	}
	return r, nil
}

// Store stages chunk and returns its ref.
// The ref is not durable until cb is called with it.
// Cb may be nil.
func (s *Store) Store(ctx context.Context, chunk []byte, kind chunkstore.Kind, cb func(chunkstore.ChunkRef)) (chunkstore.ChunkRef, error) {
	r, err := call[StoreOk](ctx, s, StoreMsg{Chunk: chunk, Kind: kind, Callback: cb})
	return r.Ref, err
}

// Retrieve gets the bytes of the chunk with the given ref.
// Chunks not yet committed cannot be retrieved.
func (s *Store) Retrieve(ctx context.Context, ref chunkstore.ChunkRef) ([]byte, error) {
	r, err := call[RetrieveOk](ctx, s, RetrieveMsg{Ref: ref})
	return r.Data, err
}

// StoreNamed writes data to the backend under name.
func (s *Store) StoreNamed(ctx context.Context, name string, data []byte) error {
	_, err := call[StoreNamedOk](ctx, s, StoreNamedMsg{Name: name, Data: data})
	return err
}

// RetrieveNamed reads what StoreNamed wrote.
func (s *Store) RetrieveNamed(ctx context.Context, name string) ([]byte, error) {
	r, err := call[RetrieveOk](ctx, s, RetrieveNamedMsg{Name: name})
	return r.Data, err
}

// Recover records the blob holding ref as committed.
func (s *Store) Recover(ctx context.Context, ref chunkstore.ChunkRef) error {
	_, err := call[RecoverOk](ctx, s, RecoverMsg{Ref: ref})
	return err
}

// Tag tags the blob holding ref.
func (s *Store) Tag(ctx context.Context, ref chunkstore.ChunkRef, tag chunkstore.Tag) error {
	_, err := call[Ok](ctx, s, TagMsg{Ref: ref, Tag: tag})
	return err
}

// TagAll tags every blob.
func (s *Store) TagAll(ctx context.Context, tag chunkstore.Tag) error {
	_, err := call[Ok](ctx, s, TagAllMsg{Tag: tag})
	return err
}

// DeleteByTag deletes every blob with the given tag.
func (s *Store) DeleteByTag(ctx context.Context, tag chunkstore.Tag) error {
	_, err := call[Ok](ctx, s, DeleteByTagMsg{Tag: tag})
	return err
}

// Flush commits the current blob if it holds any chunks,
// then flushes the blob index.
// When Flush returns,
// the callbacks for every chunk stored before it have been called.
func (s *Store) Flush(ctx context.Context) error {
	_, err := call[FlushOk](ctx, s, FlushMsg{})
	return err
}

// Reset empties the blob index and discards staged chunks.
func (s *Store) Reset(ctx context.Context) error {
	_, err := call[Ok](ctx, s, ResetMsg{})
	return err
}

// Stats reports on the state of s.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	r, err := call[StatsOk](ctx, s, StatsMsg{})
	return r.Stats, err
}
