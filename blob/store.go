// Package blob implements the aggregating chunk store.
//
// A Store packs small chunks into large blobs,
// writes the blobs to a backend,
// and tracks them in a blob index.
// All of a Store's state belongs to a single goroutine;
// callers reach it by sending messages (see Send)
// or through the convenience methods that wrap Send.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bobg/chunkstore"
	"github.com/bobg/chunkstore/index"
)

// Index is the blob index a Store keeps blob metadata in.
// A Store must be the only user of its Index.
type Index interface {
	Reserve(context.Context) (chunkstore.BlobDesc, error)
	InAir(context.Context, chunkstore.BlobDesc) error
	CommitDone(context.Context, chunkstore.BlobDesc) error
	Recover(ctx context.Context, name []byte) error
	Tag(context.Context, chunkstore.BlobDesc, chunkstore.Tag) error
	Untag(context.Context, chunkstore.BlobDesc) error
	TagAll(context.Context, chunkstore.Tag) error
	ListByTag(context.Context, chunkstore.Tag) ([]chunkstore.BlobDesc, error)
	ListByState(context.Context, index.State) ([]chunkstore.BlobDesc, error)
	Delete(context.Context, chunkstore.BlobDesc) error
	DeleteByTag(context.Context, chunkstore.Tag) error
	Flush(context.Context) error
	Reset(context.Context) error
}

var _ Index = &index.Index{}

// DefaultDeleteConcurrency is how many backend deletions
// DeleteByTag runs at once unless WithDeleteConcurrency says otherwise.
const DefaultDeleteConcurrency = 8

// Store is an aggregating chunk store.
type Store struct {
	idx               Index
	backend           chunkstore.Backend
	maxBlobSize       int
	logger            *logrus.Entry
	deleteConcurrency int
	scan              bool

	// Used for commits, which must not be interrupted by a caller's cancellation.
	ctx context.Context

	// The remaining fields belong to the goroutine running s.run.
	current  chunkstore.BlobDesc // always Reserved in the index
	staged   []byte
	pending  []pendingRef
	poisoned error

	reqs      chan request
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type pendingRef struct {
	ref chunkstore.ChunkRef
	cb  func(chunkstore.ChunkRef)
}

type request struct {
	ctx     context.Context
	msg     Msg
	replyCh chan<- response
}

type response struct {
	reply Reply
	err   error
}

// Option is the type of an option that can be passed to New.
type Option func(*Store)

// WithLogger tells a Store where to log.
// The default is the logrus standard logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithDeleteConcurrency limits the number of backend deletions
// DeleteByTag runs in parallel.
func WithDeleteConcurrency(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.deleteConcurrency = n
		}
	}
}

// WithScan tells New to list the backend,
// if it is a chunkstore.Lister,
// and to recover the highest-numbered blob it finds.
// This keeps the index from reissuing the name of a blob already in the backend,
// which matters when the index is new or was rebuilt,
// but costs a full listing.
func WithScan() Option {
	return func(s *Store) {
		s.scan = true
	}
}

// New produces a new Store writing blobs of about maxBlobSize bytes to backend.
//
// Before accepting requests,
// New settles blobs left unfinished by an earlier Store using the same index:
// an in-air blob is committed if the backend has it and forgotten if not,
// and reserved blobs are forgotten.
//
// The Store runs until Close is called.
func New(ctx context.Context, idx Index, backend chunkstore.Backend, maxBlobSize int, opts ...Option) (*Store, error) {
	if maxBlobSize < 1 {
		return nil, chunkstore.MessageError(fmt.Sprintf("max blob size %d is not positive", maxBlobSize))
	}

	s := &Store{
		idx:               idx,
		backend:           backend,
		maxBlobSize:       maxBlobSize,
		logger:            logrus.NewEntry(logrus.StandardLogger()),
		deleteConcurrency: DefaultDeleteConcurrency,
		ctx:               context.WithoutCancel(ctx),
		reqs:              make(chan request),
		stop:              make(chan struct{}),
		done:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.reconcile(ctx); err != nil {
		return nil, errors.Wrap(err, "reconciling blob index")
	}
	if s.scan {
		if err := s.scanBackend(ctx); err != nil {
			return nil, errors.Wrap(err, "scanning backend")
		}
	}

	current, err := idx.Reserve(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "reserving initial blob")
	}
	s.current = current
	s.staged = make([]byte, 0, maxBlobSize)

	go s.run()

	return s, nil
}

// Close stops s.
// Chunks staged since the last commit are discarded
// and their callbacks are never called;
// use Flush first to keep them.
// Requests sent after Close fail with chunkstore.ErrClosed.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *Store) run() {
	defer close(s.done)

	for {
		select {
		case <-s.stop:
			return

		case req := <-s.reqs:
			s.handle(req)
		}
	}
}

// Send sends msg to s and waits for the reply.
// If s is closed, the error is chunkstore.ErrClosed.
func (s *Store) Send(ctx context.Context, msg Msg) (Reply, error) {
	replyCh := make(chan response, 1)
	req := request{ctx: ctx, msg: msg, replyCh: replyCh}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, chunkstore.ErrClosed
	case s.reqs <- req:
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp := <-replyCh:
		return resp.reply, resp.err
	}
}

func (s *Store) handle(req request) {
	reply, err := s.dispatch(req.ctx, req.msg)

	// The reply channel is buffered,
	// so this does not block even if the sender has gone away.
	req.replyCh <- response{reply: reply, err: err}

	if _, ok := req.msg.(StoreMsg); ok && err == nil {
		s.maybeFlush()
	}
}

func (s *Store) dispatch(ctx context.Context, msg Msg) (Reply, error) {
	if s.poisoned != nil {
		switch msg.(type) {
		case StatsMsg, ResetMsg:
		default:
			return nil, s.poisoned
		}
	}

	switch msg := msg.(type) {
	case StoreMsg:
		ref, err := s.store(msg)
		if err != nil {
			return nil, err
		}
		return StoreOk{Ref: ref}, nil

	case RetrieveMsg:
		data, err := s.retrieve(ctx, msg.Ref)
		if err != nil {
			return nil, err
		}
		return RetrieveOk{Data: data}, nil

	case StoreNamedMsg:
		if err := s.backend.Store(ctx, chunkstore.NamedKey(msg.Name), msg.Data); err != nil {
			return nil, errors.Wrapf(err, "storing %s", msg.Name)
		}
		return StoreNamedOk{Name: msg.Name}, nil

	case RetrieveNamedMsg:
		data, err := s.backend.Retrieve(ctx, chunkstore.NamedKey(msg.Name))
		if err != nil {
			return nil, errors.Wrapf(err, "retrieving %s", msg.Name)
		}
		return RetrieveOk{Data: data}, nil

	case RecoverMsg:
		if bytes.Equal(msg.Ref.BlobID, s.current.Name) {
			return nil, chunkstore.MessageError(fmt.Sprintf("cannot recover blob %s, which is being filled (the index is behind the backend)", chunkstore.NameString(s.current.Name)))
		}
		if !msg.Ref.IsEmpty() {
			if err := s.idx.Recover(ctx, msg.Ref.BlobID); err != nil {
				return nil, errors.Wrapf(err, "recovering blob %s", chunkstore.NameString(msg.Ref.BlobID))
			}
		}
		return RecoverOk{}, nil

	case TagMsg:
		if !msg.Tag.Valid() {
			return nil, chunkstore.MessageError(fmt.Sprintf("invalid tag %d", msg.Tag))
		}
		if err := s.idx.Tag(ctx, chunkstore.BlobDesc{Name: msg.Ref.BlobID}, msg.Tag); err != nil {
			return nil, errors.Wrapf(err, "tagging blob %s", chunkstore.NameString(msg.Ref.BlobID))
		}
		return Ok{}, nil

	case TagAllMsg:
		if !msg.Tag.Valid() {
			return nil, chunkstore.MessageError(fmt.Sprintf("invalid tag %d", msg.Tag))
		}
		if err := s.idx.TagAll(ctx, msg.Tag); err != nil {
			return nil, errors.Wrap(err, "tagging all blobs")
		}
		return Ok{}, nil

	case DeleteByTagMsg:
		if err := s.deleteByTag(ctx, msg.Tag); err != nil {
			return nil, err
		}
		return Ok{}, nil

	case FlushMsg:
		if err := s.flush(); err != nil {
			return nil, err
		}
		if err := s.idx.Flush(ctx); err != nil {
			return nil, errors.Wrap(err, "flushing blob index")
		}
		return FlushOk{}, nil

	case ResetMsg:
		if err := s.reset(ctx); err != nil {
			return nil, err
		}
		return Ok{}, nil

	case StatsMsg:
		return StatsOk{Stats: Stats{
			Staged:   len(s.staged),
			Pending:  len(s.pending),
			Current:  s.current,
			Poisoned: s.poisoned != nil,
		}}, nil
	}

	return nil, chunkstore.MessageError(fmt.Sprintf("unknown message type %T", msg))
}

func (s *Store) store(msg StoreMsg) (chunkstore.ChunkRef, error) {
	if !msg.Kind.Valid() {
		return chunkstore.ChunkRef{}, chunkstore.MessageError(fmt.Sprintf("invalid chunk kind %d", msg.Kind))
	}

	if len(msg.Chunk) == 0 {
		ref := chunkstore.EmptyRef(msg.Kind)
		if msg.Callback != nil {
			go msg.Callback(ref)
		}
		return ref, nil
	}

	ref := chunkstore.ChunkRef{
		BlobID: append([]byte(nil), s.current.Name...),
		Offset: int64(len(s.staged)),
		Length: int64(len(msg.Chunk)),
		Kind:   msg.Kind,
	}
	s.pending = append(s.pending, pendingRef{ref: ref, cb: msg.Callback})
	s.staged = append(s.staged, msg.Chunk...)

	return ref, nil
}

func (s *Store) retrieve(ctx context.Context, ref chunkstore.ChunkRef) ([]byte, error) {
	if ref.IsEmpty() {
		return []byte{}, nil
	}

	blob, err := s.backend.Retrieve(ctx, ref.BlobID)
	if err != nil {
		return nil, errors.Wrapf(err, "retrieving blob %s", chunkstore.NameString(ref.BlobID))
	}

	// Offset+Length can overflow, so compare without adding.
	size := int64(len(blob))
	if ref.Offset < 0 || ref.Length < 0 || ref.Length > size || ref.Offset > size-ref.Length {
		return nil, errors.Wrapf(chunkstore.ErrOutOfRange, "chunk %d+%d of %d-byte blob %s", ref.Offset, ref.Length, len(blob), chunkstore.NameString(ref.BlobID))
	}
	return blob[ref.Offset : ref.Offset+ref.Length], nil
}

func (s *Store) maybeFlush() {
	if len(s.staged) < s.maxBlobSize {
		return
	}
	if err := s.flush(); err != nil {
		s.logger.WithError(err).Error("committing full blob")
	}
}

// flush commits the current blob and calls the callbacks of the chunks in it.
// Once the blob is rotated out,
// any failure poisons the store:
// the blob is left in air for reconciliation by a later Store.
func (s *Store) flush() error {
	if len(s.staged) == 0 {
		return nil
	}

	next, err := s.idx.Reserve(s.ctx)
	if err != nil {
		return errors.Wrap(err, "reserving next blob")
	}

	old, data, pending := s.current, s.staged, s.pending
	s.current, s.staged, s.pending = next, make([]byte, 0, s.maxBlobSize), nil

	if err = s.commit(old, data); err != nil {
		s.poisoned = poisonedError{err: err}
		s.logger.WithError(err).WithField("blob", chunkstore.NameString(old.Name)).Error("store poisoned")
		return s.poisoned
	}

	s.logger.WithFields(logrus.Fields{
		"blob":   chunkstore.NameString(old.Name),
		"bytes":  len(data),
		"chunks": len(pending),
	}).Debug("committed blob")

	for _, p := range pending {
		if p.cb != nil {
			p.cb(p.ref)
		}
	}

	return nil
}

func (s *Store) commit(desc chunkstore.BlobDesc, data []byte) error {
	name := chunkstore.NameString(desc.Name)
	if err := s.idx.InAir(s.ctx, desc); err != nil {
		return errors.Wrapf(err, "marking blob %s in air", name)
	}
	if err := s.backend.Store(s.ctx, desc.Name, data); err != nil {
		return errors.Wrapf(err, "storing blob %s", name)
	}
	return errors.Wrapf(s.idx.CommitDone(s.ctx, desc), "committing blob %s", name)
}

func (s *Store) reset(ctx context.Context) error {
	if err := s.idx.Reset(ctx); err != nil {
		return errors.Wrap(err, "resetting blob index")
	}
	current, err := s.idx.Reserve(ctx)
	if err != nil {
		return errors.Wrap(err, "reserving blob after reset")
	}
	s.current = current
	s.staged = make([]byte, 0, s.maxBlobSize)
	s.pending = nil
	s.poisoned = nil
	return nil
}

type poisonedError struct {
	err error
}

func (e poisonedError) Error() string {
	return "store poisoned: " + e.err.Error()
}

func (e poisonedError) Unwrap() error {
	return e.err
}

func (e poisonedError) Is(target error) bool {
	return target == chunkstore.ErrPoisoned
}
