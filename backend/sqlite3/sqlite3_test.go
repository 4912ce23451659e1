package sqlite3

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bobg/chunkstore"
	"github.com/bobg/chunkstore/backend/backendtest"
)

func TestBackend(t *testing.T) {
	ctx := context.Background()
	err := withTestBackend(ctx, func(b *Backend) error {
		backendtest.Run(ctx, t, b)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestConcurrent(t *testing.T) {
	ctx := context.Background()
	err := withTestBackend(ctx, func(b *Backend) error {
		var wg sync.WaitGroup
		errs := make([]error, 16)
		for i := 0; i < len(errs); i++ {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				name := chunkstore.BlobName(int64(i + 1))
				if err := b.Store(ctx, name, name); err != nil {
					errs[i] = err
					return
				}
				_, errs[i] = b.Retrieve(ctx, name)
			}()
		}
		wg.Wait()
		for _, err := range errs {
			if err != nil {
				return err
			}
		}

		var n int
		err := b.List(ctx, func([]byte) error {
			n++
			return nil
		})
		if err != nil {
			return err
		}
		if n != len(errs) {
			t.Errorf("got %d blobs, want %d", n, len(errs))
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func withTestBackend(ctx context.Context, fn func(*Backend) error) error {
	dir, err := os.MkdirTemp("", "sqlite3backend")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	db, err := sql.Open("sqlite3", filepath.Join(dir, "blobs.db")+"?_busy_timeout=10000")
	if err != nil {
		return err
	}

	b, err := New(ctx, db, 2)
	if err != nil {
		db.Close()
		return err
	}
	defer b.Close()

	return fn(b)
}

func TestMemory(t *testing.T) {
	ctx := context.Background()

	b, err := Open(ctx, ":memory:", 4)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if b.n != 1 {
		t.Errorf("got %d connections to an in-memory database, want 1", b.n)
	}

	// Concurrent callers all see the same database.
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < len(errs); i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := chunkstore.BlobName(int64(i + 100))
			errs[i] = b.Store(ctx, name, name)
		}()
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
	for i := range errs {
		name := chunkstore.BlobName(int64(i + 100))
		if _, err := b.Retrieve(ctx, name); err != nil {
			t.Errorf("blob %d: %s", i+100, err)
		}
	}

	backendtest.Run(ctx, t, b)
}

func TestIsMemory(t *testing.T) {
	cases := []struct {
		conn string
		want bool
	}{
		{":memory:", true},
		{"file::memory:?cache=shared", true},
		{"file:blobs?mode=memory&cache=shared", true},
		{"blobs.db", false},
		{"file:blobs.db?_busy_timeout=10000", false},
	}
	for _, c := range cases {
		if got := isMemory(c.conn); got != c.want {
			t.Errorf("isMemory(%q) = %v, want %v", c.conn, got, c.want)
		}
	}
}
