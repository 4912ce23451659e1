// Package replica implements a blob backend that writes to several nested backends.
package replica

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/chunkstore"
	"github.com/bobg/chunkstore/backend"
)

var _ chunkstore.Lister = &Backend{}

// DefaultQueueLen is the async queue length used when the config does not give one.
const DefaultQueueLen = 10

// Backend delegates to two sets of nested backends.
// One set is synchronous:
// a Store or Delete must succeed on all of them before it returns,
// and an error from any causes it to fail.
// The other set is asynchronous:
// writes are queued for these but not waited for.
// If any asynchronous write fails,
// the whole Backend is put into an error state and further operations fail.
//
// Reads and listings consult only the synchronous set.
type Backend struct {
	sync   []chunkstore.Backend
	async  []chan op
	cancel context.CancelFunc
	wg     sync.WaitGroup

	qmu    sync.RWMutex // protects closed; held for reading while queueing
	closed bool

	mu  sync.Mutex // protects err
	err error      // from an async goroutine
}

type op struct {
	name, data []byte
	del        bool
}

// New produces a new Backend.
// The set of synchronous backends must be non-empty.
// The set of asynchronous backends may be empty.
// A goroutine is launched for each asynchronous backend,
// with a request queue of length n (at least 1).
// Canceling ctx stops those goroutines
// and places the Backend in an error state.
// Close drains the queues.
func New(ctx context.Context, sync, async []chunkstore.Backend, n int) (*Backend, error) {
	if len(sync) == 0 {
		return nil, errors.New("no synchronous backends")
	}
	if n < 1 {
		n = 1
	}

	result := &Backend{sync: sync}
	ctx, result.cancel = context.WithCancel(ctx)

	for _, a := range async {
		ops := make(chan op, n)
		result.async = append(result.async, ops)
		result.wg.Add(1)
		go result.runAsync(ctx, a, ops)
	}

	return result, nil
}

func (b *Backend) runAsync(ctx context.Context, nested chunkstore.Backend, ops <-chan op) {
	defer b.wg.Done()

	for o := range ops {
		if b.checkErr() != nil {
			continue
		}
		var err error
		if o.del {
			err = nested.Delete(ctx, o.name)
		} else {
			err = nested.Store(ctx, o.name, o.data)
		}
		if err != nil {
			b.mu.Lock()
			if b.err == nil {
				b.err = err
			}
			b.mu.Unlock()
			b.cancel()
		}
	}
}

func (b *Backend) checkErr() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func (b *Backend) enqueue(ctx context.Context, o op) error {
	b.qmu.RLock()
	defer b.qmu.RUnlock()

	if b.closed {
		return chunkstore.ErrClosed
	}
	for _, ops := range b.async {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ops <- o:
		}
	}
	return nil
}

// Store implements chunkstore.Backend.Store.
func (b *Backend) Store(ctx context.Context, name, data []byte) error {
	if err := b.checkErr(); err != nil {
		return errors.Wrap(err, "in async goroutine")
	}

	if len(b.async) > 0 {
		o := op{
			name: append([]byte(nil), name...),
			data: append([]byte(nil), data...),
		}
		if err := b.enqueue(ctx, o); err != nil {
			return errors.Wrap(err, "queueing async store")
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, nested := range b.sync {
		nested := nested
		g.Go(func() error {
			return nested.Store(ctx, name, data)
		})
	}
	return g.Wait()
}

// Retrieve implements chunkstore.Backend.Retrieve.
// It asks all the synchronous backends at once
// and returns the first answer that is not an error.
// If none has the blob, the result is chunkstore.ErrNotFound;
// any other error takes precedence over that.
func (b *Backend) Retrieve(ctx context.Context, name []byte) ([]byte, error) {
	if err := b.checkErr(); err != nil {
		return nil, errors.Wrap(err, "in async goroutine")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, len(b.sync))
	for _, nested := range b.sync {
		nested := nested
		go func() {
			data, err := nested.Retrieve(ctx, name)
			ch <- result{data: data, err: err}
		}()
	}

	err := chunkstore.ErrNotFound
	for range b.sync {
		r := <-ch
		if r.err == nil {
			return r.data, nil
		}
		if !errors.Is(r.err, chunkstore.ErrNotFound) {
			err = r.err
		}
	}
	return nil, err
}

// Delete implements chunkstore.Backend.Delete.
func (b *Backend) Delete(ctx context.Context, name []byte) error {
	if err := b.checkErr(); err != nil {
		return errors.Wrap(err, "in async goroutine")
	}

	if len(b.async) > 0 {
		if err := b.enqueue(ctx, op{name: append([]byte(nil), name...), del: true}); err != nil {
			return errors.Wrap(err, "queueing async delete")
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, nested := range b.sync {
		nested := nested
		g.Go(func() error {
			return nested.Delete(ctx, name)
		})
	}
	return g.Wait()
}

// List implements chunkstore.Lister.List.
// It produces the union of the names in the synchronous backends,
// in lexicographic order.
// Every synchronous backend must be a chunkstore.Lister.
func (b *Backend) List(ctx context.Context, f func([]byte) error) error {
	if err := b.checkErr(); err != nil {
		return errors.Wrap(err, "in async goroutine")
	}

	var (
		mu    sync.Mutex
		names = make(map[string]struct{})
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, nested := range b.sync {
		l, ok := nested.(chunkstore.Lister)
		if !ok {
			return errors.Errorf("synchronous backend %d cannot list", i)
		}
		g.Go(func() error {
			return l.List(gctx, func(name []byte) error {
				mu.Lock()
				names[string(name)] = struct{}{}
				mu.Unlock()
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	for _, name := range sorted {
		if err := f([]byte(name)); err != nil {
			return err
		}
	}
	return nil
}

// Close waits for queued asynchronous writes to finish
// and stops the async goroutines.
// It returns the error that put b in an error state, if any.
func (b *Backend) Close() error {
	b.qmu.Lock()
	if !b.closed {
		b.closed = true
		for _, ops := range b.async {
			close(ops)
		}
	}
	b.qmu.Unlock()

	b.wg.Wait()
	b.cancel()
	return b.checkErr()
}

func init() {
	backend.Register("replica", func(ctx context.Context, conf map[string]interface{}) (chunkstore.Backend, error) {
		sync, err := backend.List(ctx, conf, "sync")
		if err != nil {
			return nil, errors.Wrap(err, "creating sync backends")
		}
		async, err := backend.List(ctx, conf, "async")
		if err != nil {
			return nil, errors.Wrap(err, "creating async backends")
		}
		n, ok := backend.Int(conf, "queuelen")
		if !ok {
			n = DefaultQueueLen
		}
		return New(ctx, sync, async, n)
	})
}
