// Package file implements a blob backend as a file hierarchy.
package file

import (
	"context"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bobg/flock"
	"github.com/pkg/errors"

	"github.com/bobg/chunkstore"
	"github.com/bobg/chunkstore/backend"
)

var _ chunkstore.Lister = &Backend{}

// Backend is a file-based blob backend.
// Each blob is a file named by the hex encoding of the blob name,
// two directory levels below root/blobs.
type Backend struct {
	root    string
	flocker flock.Locker
}

// New produces a new Backend storing data beneath root.
func New(root string) *Backend {
	return &Backend{root: root}
}

func (b *Backend) blobroot() string {
	return filepath.Join(b.root, "blobs")
}

// Blob names are mostly big-endian integers,
// so the directory levels come from the low-order end.
func (b *Backend) blobpath(name []byte) string {
	h := hex.EncodeToString(name)
	if len(h) < 4 {
		return filepath.Join(b.blobroot(), h)
	}
	n := len(h)
	return filepath.Join(b.blobroot(), h[n-2:], h[n-4:n-2], h)
}

func (b *Backend) lockpath() string {
	return filepath.Join(b.root, "lock")
}

// Store implements chunkstore.Backend.Store.
// The data is written to a temporary file,
// synced, and renamed into place,
// with a file lock held so that writers in other processes
// do not interleave.
func (b *Backend) Store(_ context.Context, name, data []byte) error {
	var (
		path = b.blobpath(name)
		dir  = filepath.Dir(path)
	)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "ensuring path %s exists", dir)
	}

	if err := b.flocker.Lock(b.lockpath()); err != nil {
		return errors.Wrap(err, "locking backend")
	}
	defer b.flocker.Unlock(b.lockpath())

	f, err := os.CreateTemp(dir, ".tmp-")
	if err != nil {
		return errors.Wrapf(err, "creating temp file in %s", dir)
	}
	tmpname := f.Name()
	defer os.Remove(tmpname) // no-op after a successful rename

	if _, err = f.Write(data); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing data to %s", tmpname)
	}
	if err = f.Sync(); err != nil {
		f.Close()
		return errors.Wrapf(err, "syncing %s", tmpname)
	}
	if err = f.Close(); err != nil {
		return errors.Wrapf(err, "closing %s", tmpname)
	}

	return errors.Wrapf(os.Rename(tmpname, path), "renaming %s to %s", tmpname, path)
}

// Retrieve implements chunkstore.Backend.Retrieve.
func (b *Backend) Retrieve(_ context.Context, name []byte) ([]byte, error) {
	path := b.blobpath(name)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, chunkstore.ErrNotFound
	}
	return data, errors.Wrapf(err, "reading %s", path)
}

// Delete implements chunkstore.Backend.Delete.
func (b *Backend) Delete(_ context.Context, name []byte) error {
	path := b.blobpath(name)
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return errors.Wrapf(err, "removing %s", path)
}

// List implements chunkstore.Lister.List.
func (b *Backend) List(ctx context.Context, f func([]byte) error) error {
	err := filepath.WalkDir(b.blobroot(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err = ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name, err := hex.DecodeString(d.Name())
		if err != nil {
			// Not a blob, e.g. a temp file.
			return nil
		}
		return f(name)
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func init() {
	backend.Register("file", func(_ context.Context, conf map[string]interface{}) (chunkstore.Backend, error) {
		root, ok := conf["root"].(string)
		if !ok {
			return nil, errors.New(`missing "root" parameter`)
		}
		return New(root), nil
	})
}
