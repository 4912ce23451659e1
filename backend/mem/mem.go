// Package mem implements an in-memory blob backend.
package mem

import (
	"context"
	"sort"
	"sync"

	"github.com/bobg/chunkstore"
	"github.com/bobg/chunkstore/backend"
)

var _ chunkstore.Lister = &Backend{}

// Backend is a memory-based blob backend.
type Backend struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// New produces a new Backend.
func New() *Backend {
	return &Backend{blobs: make(map[string][]byte)}
}

// Store implements chunkstore.Backend.Store.
func (b *Backend) Store(_ context.Context, name, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.blobs[string(name)] = append([]byte(nil), data...)
	return nil
}

// Retrieve implements chunkstore.Backend.Retrieve.
func (b *Backend) Retrieve(_ context.Context, name []byte) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, ok := b.blobs[string(name)]
	if !ok {
		return nil, chunkstore.ErrNotFound
	}
	return append([]byte{}, data...), nil
}

// Delete implements chunkstore.Backend.Delete.
func (b *Backend) Delete(_ context.Context, name []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.blobs, string(name))
	return nil
}

// List implements chunkstore.Lister.List.
// Names are produced in lexicographic order.
func (b *Backend) List(_ context.Context, f func([]byte) error) error {
	b.mu.Lock()
	names := make([]string, 0, len(b.blobs))
	for name := range b.blobs {
		names = append(names, name)
	}
	b.mu.Unlock()

	sort.Strings(names)
	for _, name := range names {
		if err := f([]byte(name)); err != nil {
			return err
		}
	}
	return nil
}

// Len is the number of blobs in b.
func (b *Backend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.blobs)
}

func init() {
	backend.Register("mem", func(context.Context, map[string]interface{}) (chunkstore.Backend, error) {
		return New(), nil
	})
}
