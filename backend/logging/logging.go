// Package logging implements a blob backend that delegates everything to a nested backend,
// logging operations as they happen.
package logging

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bobg/chunkstore"
	"github.com/bobg/chunkstore/backend"
)

var _ chunkstore.Lister = &Backend{}

// Backend logs calls to a nested backend.
type Backend struct {
	b      chunkstore.Backend
	logger *logrus.Entry
}

// New produces a new Backend logging calls to b.
// If logger is nil, the logrus standard logger is used.
func New(b chunkstore.Backend, logger *logrus.Entry) *Backend {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Backend{b: b, logger: logger}
}

func (b *Backend) entry(op string, name []byte) *logrus.Entry {
	return b.logger.WithFields(logrus.Fields{
		"op":   op,
		"name": chunkstore.NameString(name),
	})
}

// Store implements chunkstore.Backend.Store.
func (b *Backend) Store(ctx context.Context, name, data []byte) error {
	err := b.b.Store(ctx, name, data)
	e := b.entry("store", name).WithField("bytes", len(data))
	if err != nil {
		e.WithError(err).Error("backend call failed")
	} else {
		e.Debug("backend call")
	}
	return err
}

// Retrieve implements chunkstore.Backend.Retrieve.
func (b *Backend) Retrieve(ctx context.Context, name []byte) ([]byte, error) {
	data, err := b.b.Retrieve(ctx, name)
	e := b.entry("retrieve", name)
	switch {
	case errors.Is(err, chunkstore.ErrNotFound):
		e.Debug("not found")
	case err != nil:
		e.WithError(err).Error("backend call failed")
	default:
		e.WithField("bytes", len(data)).Debug("backend call")
	}
	return data, err
}

// Delete implements chunkstore.Backend.Delete.
func (b *Backend) Delete(ctx context.Context, name []byte) error {
	err := b.b.Delete(ctx, name)
	e := b.entry("delete", name)
	if err != nil {
		e.WithError(err).Error("backend call failed")
	} else {
		e.Debug("backend call")
	}
	return err
}

// List implements chunkstore.Lister.List.
// The nested backend must be a chunkstore.Lister.
func (b *Backend) List(ctx context.Context, f func([]byte) error) error {
	l, ok := b.b.(chunkstore.Lister)
	if !ok {
		return chunkstore.MessageError("nested backend cannot list")
	}
	var n int
	err := l.List(ctx, func(name []byte) error {
		n++
		return f(name)
	})
	e := b.logger.WithFields(logrus.Fields{"op": "list", "names": n})
	if err != nil {
		e.WithError(err).Error("backend call failed")
	} else {
		e.Debug("backend call")
	}
	return err
}

func init() {
	backend.Register("logging", func(ctx context.Context, conf map[string]interface{}) (chunkstore.Backend, error) {
		nested, err := backend.Nested(ctx, conf)
		if err != nil {
			return nil, errors.Wrap(err, "creating nested backend")
		}
		return New(nested, nil), nil
	})
}
