// Package lru implements a blob backend that acts as a least-recently-used cache for a nested backend.
package lru

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/bobg/chunkstore"
	"github.com/bobg/chunkstore/backend"
)

var _ chunkstore.Lister = &Backend{}

// Backend implements a memory-based least-recently-used cache for a blob backend.
// Writes pass through to the nested backend.
type Backend struct {
	c *lru.Cache // string(name) -> []byte
	b chunkstore.Backend
}

// New produces a new Backend backed by b and caching up to size blobs.
func New(b chunkstore.Backend, size int) (*Backend, error) {
	c, err := lru.New(size)
	return &Backend{b: b, c: c}, err
}

// Store implements chunkstore.Backend.Store.
func (b *Backend) Store(ctx context.Context, name, data []byte) error {
	if err := b.b.Store(ctx, name, data); err != nil {
		b.c.Remove(string(name))
		return err
	}
	b.c.Add(string(name), append([]byte(nil), data...))
	return nil
}

// Retrieve implements chunkstore.Backend.Retrieve.
func (b *Backend) Retrieve(ctx context.Context, name []byte) ([]byte, error) {
	if got, ok := b.c.Get(string(name)); ok {
		return append([]byte{}, got.([]byte)...), nil
	}
	data, err := b.b.Retrieve(ctx, name)
	if err != nil {
		return nil, err
	}
	b.c.Add(string(name), append([]byte(nil), data...))
	return data, nil
}

// Delete implements chunkstore.Backend.Delete.
func (b *Backend) Delete(ctx context.Context, name []byte) error {
	b.c.Remove(string(name))
	return b.b.Delete(ctx, name)
}

// List implements chunkstore.Lister.List
// by delegating to the nested backend,
// which must itself be a chunkstore.Lister.
func (b *Backend) List(ctx context.Context, f func([]byte) error) error {
	l, ok := b.b.(chunkstore.Lister)
	if !ok {
		return chunkstore.MessageError("nested backend cannot list")
	}
	return l.List(ctx, f)
}

// Len is the number of cached blobs.
func (b *Backend) Len() int {
	return b.c.Len()
}

func init() {
	backend.Register("lru", func(ctx context.Context, conf map[string]interface{}) (chunkstore.Backend, error) {
		size, ok := backend.Int(conf, "size")
		if !ok {
			return nil, errors.New(`missing "size" parameter`)
		}
		nested, err := backend.Nested(ctx, conf)
		if err != nil {
			return nil, errors.Wrap(err, "creating nested backend")
		}
		return New(nested, size)
	})
}
