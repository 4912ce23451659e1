// Package gcs implements a blob backend on Google Cloud Storage.
package gcs

import (
	"context"
	"encoding/hex"
	stderrs "errors"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/bobg/chunkstore"
	"github.com/bobg/chunkstore/backend"
)

var _ chunkstore.Lister = &Backend{}

// Backend is a Google Cloud Storage-based blob backend.
type Backend struct {
	bucket *storage.BucketHandle
}

// New produces a new Backend.
func New(bucket *storage.BucketHandle) *Backend {
	return &Backend{bucket: bucket}
}

const objPrefix = "b/"

func objName(name []byte) string {
	return objPrefix + hex.EncodeToString(name)
}

// Store implements chunkstore.Backend.Store.
func (b *Backend) Store(ctx context.Context, name, data []byte) error {
	var (
		oname = objName(name)
		w     = b.bucket.Object(oname).NewWriter(ctx)
	)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return errors.Wrapf(err, "writing object %s", oname)
	}
	// The object is not durable until Close succeeds.
	return errors.Wrapf(w.Close(), "closing object %s", oname)
}

// Retrieve implements chunkstore.Backend.Retrieve.
func (b *Backend) Retrieve(ctx context.Context, name []byte) ([]byte, error) {
	oname := objName(name)
	r, err := b.bucket.Object(oname).NewReader(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return nil, chunkstore.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading info of object %s", oname)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	return data, errors.Wrapf(err, "reading contents of object %s", oname)
}

// Delete implements chunkstore.Backend.Delete.
func (b *Backend) Delete(ctx context.Context, name []byte) error {
	oname := objName(name)
	err := b.bucket.Object(oname).Delete(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return errors.Wrapf(err, "deleting object %s", oname)
}

// List implements chunkstore.Lister.List.
func (b *Backend) List(ctx context.Context, f func([]byte) error) error {
	iter := b.bucket.Objects(ctx, &storage.Query{Prefix: objPrefix})
	for {
		obj, err := iter.Next()
		if stderrs.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "iterating over objects")
		}
		name, err := hex.DecodeString(strings.TrimPrefix(obj.Name, objPrefix))
		if err != nil {
			return errors.Wrapf(err, "decoding object name %s", obj.Name)
		}
		if err = f(name); err != nil {
			return err
		}
	}
}

func init() {
	backend.Register("gcs", func(ctx context.Context, conf map[string]interface{}) (chunkstore.Backend, error) {
		creds, ok := conf["creds"].(string)
		if !ok {
			return nil, errors.New(`missing "creds" parameter`)
		}
		bucketName, ok := conf["bucket"].(string)
		if !ok {
			return nil, errors.New(`missing "bucket" parameter`)
		}
		c, err := storage.NewClient(ctx, option.WithCredentialsFile(creds))
		if err != nil {
			return nil, errors.Wrap(err, "creating cloud storage client")
		}
		return New(c.Bucket(bucketName)), nil
	})
}
