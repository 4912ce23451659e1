// Package tree stores byte streams in a chunk store as trees of chunks.
//
// A stream is split into leaf chunks with a rolling-checksum splitter
// (see github.com/bobg/hashsplit).
// Leaf refs are grouped into branch chunks,
// each a CBOR array of encoded child refs,
// and branches are grouped again until a single root remains.
package tree

import (
	"context"
	"io"

	"github.com/bobg/hashsplit"
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/chunkstore"
	"github.com/bobg/chunkstore/blob"
)

// Store is where trees live.
// *blob.Store implements it.
type Store interface {
	Store(ctx context.Context, chunk []byte, kind chunkstore.Kind, cb func(chunkstore.ChunkRef)) (chunkstore.ChunkRef, error)
	Retrieve(context.Context, chunkstore.ChunkRef) ([]byte, error)
	StoreNamed(ctx context.Context, name string, data []byte) error
	RetrieveNamed(ctx context.Context, name string) ([]byte, error)
	Flush(context.Context) error
}

var _ Store = &blob.Store{}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("tree: CBOR encoder initialization failed: " + err.Error())
	}
}

type config struct {
	minSize     int
	splitBits   uint
	fanout      int
	concurrency int
}

// Option is the type of an option to Write or Read.
type Option func(*config)

// MinSize sets the smallest leaf chunk, except possibly the last.
func MinSize(n int) Option {
	return func(c *config) {
		c.minSize = n
	}
}

// Bits sets the number of checksum bits that must be zero to end a leaf chunk.
// Leaves average 2^n bytes.
func Bits(n uint) Option {
	return func(c *config) {
		c.splitBits = n
	}
}

// Fanout sets the largest number of children of a branch chunk.
func Fanout(n int) Option {
	return func(c *config) {
		if n >= 2 {
			c.fanout = n
		}
	}
}

// Concurrency sets how many chunks Read fetches at once.
func Concurrency(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

func newConfig(opts []Option) *config {
	c := &config{
		minSize:     1024,
		splitBits:   14,
		fanout:      64,
		concurrency: 8,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Write splits the content of r into a tree of chunks in s
// and returns the ref of the root.
// When Write returns, the whole tree is committed.
func Write(ctx context.Context, s Store, r io.Reader, opts ...Option) (chunkstore.ChunkRef, error) {
	var (
		c      = newConfig(opts)
		leaves []chunkstore.ChunkRef
	)

	spl := hashsplit.NewSplitter(func(bytes []byte, _ uint) error {
		ref, err := s.Store(ctx, bytes, chunkstore.TreeLeaf, nil)
		if err != nil {
			return errors.Wrap(err, "storing leaf chunk")
		}
		leaves = append(leaves, ref)
		return nil
	})
	spl.MinSize = c.minSize
	spl.SplitBits = c.splitBits

	if _, err := io.Copy(spl, r); err != nil {
		return chunkstore.ChunkRef{}, errors.Wrap(err, "splitting input")
	}
	if err := spl.Close(); err != nil {
		return chunkstore.ChunkRef{}, errors.Wrap(err, "splitting input")
	}

	root, err := build(ctx, s, leaves, c.fanout)
	if err != nil {
		return chunkstore.ChunkRef{}, err
	}

	return root, errors.Wrap(s.Flush(ctx), "flushing")
}

func build(ctx context.Context, s Store, refs []chunkstore.ChunkRef, fanout int) (chunkstore.ChunkRef, error) {
	if len(refs) == 0 {
		return chunkstore.EmptyRef(chunkstore.TreeLeaf), nil
	}
	for len(refs) > 1 {
		var next []chunkstore.ChunkRef
		for len(refs) > 0 {
			n := fanout
			if n > len(refs) {
				n = len(refs)
			}
			ref, err := storeBranch(ctx, s, refs[:n])
			if err != nil {
				return chunkstore.ChunkRef{}, err
			}
			next = append(next, ref)
			refs = refs[n:]
		}
		refs = next
	}
	return refs[0], nil
}

func storeBranch(ctx context.Context, s Store, children []chunkstore.ChunkRef) (chunkstore.ChunkRef, error) {
	encoded := make([][]byte, 0, len(children))
	for _, child := range children {
		encoded = append(encoded, chunkstore.Encode(child))
	}
	node, err := encMode.Marshal(encoded)
	if err != nil {
		return chunkstore.ChunkRef{}, errors.Wrap(err, "encoding branch")
	}
	ref, err := s.Store(ctx, node, chunkstore.TreeBranch, nil)
	return ref, errors.Wrap(err, "storing branch chunk")
}

func decodeBranch(node []byte) ([]chunkstore.ChunkRef, error) {
	var encoded [][]byte
	if err := cbor.Unmarshal(node, &encoded); err != nil {
		return nil, errors.Wrap(err, "decoding branch")
	}
	children := make([]chunkstore.ChunkRef, 0, len(encoded))
	for _, e := range encoded {
		child, err := chunkstore.Decode(e)
		if err != nil {
			return nil, errors.Wrap(err, "decoding child ref")
		}
		children = append(children, child)
	}
	return children, nil
}

// Read writes the content of the tree rooted at root to w.
func Read(ctx context.Context, s Store, root chunkstore.ChunkRef, w io.Writer, opts ...Option) error {
	c := newConfig(opts)

	data, err := s.Retrieve(ctx, root)
	if err != nil {
		return errors.Wrapf(err, "retrieving %s", root)
	}
	return read(ctx, s, root.Kind, data, w, c.concurrency)
}

func read(ctx context.Context, s Store, kind chunkstore.Kind, data []byte, w io.Writer, concurrency int) error {
	if kind == chunkstore.TreeLeaf {
		_, err := w.Write(data)
		return errors.Wrap(err, "writing output")
	}

	children, err := decodeBranch(data)
	if err != nil {
		return err
	}
	contents, err := fetch(ctx, s, children, concurrency)
	if err != nil {
		return err
	}
	for i, child := range children {
		if err = read(ctx, s, child.Kind, contents[i], w, concurrency); err != nil {
			return err
		}
	}
	return nil
}

func fetch(ctx context.Context, s Store, refs []chunkstore.ChunkRef, concurrency int) ([][]byte, error) {
	contents := make([][]byte, len(refs))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(concurrency)
	for i, ref := range refs {
		i, ref := i, ref
		eg.Go(func() error {
			data, err := s.Retrieve(ctx, ref)
			if err != nil {
				return errors.Wrapf(err, "retrieving %s", ref)
			}
			contents[i] = data
			return nil
		})
	}
	return contents, eg.Wait()
}

// Walk calls f on every ref in the tree rooted at root,
// parents before children.
func Walk(ctx context.Context, s Store, root chunkstore.ChunkRef, f func(chunkstore.ChunkRef) error) error {
	if err := f(root); err != nil {
		return err
	}
	if root.Kind != chunkstore.TreeBranch {
		return nil
	}

	data, err := s.Retrieve(ctx, root)
	if err != nil {
		return errors.Wrapf(err, "retrieving %s", root)
	}
	children, err := decodeBranch(data)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err = Walk(ctx, s, child, f); err != nil {
			return err
		}
	}
	return nil
}

// SaveRoot records root under the given name.
func SaveRoot(ctx context.Context, s Store, name string, root chunkstore.ChunkRef) error {
	return errors.Wrapf(s.StoreNamed(ctx, name, chunkstore.Encode(root)), "saving root %s", name)
}

// LoadRoot gets the root saved under the given name.
func LoadRoot(ctx context.Context, s Store, name string) (chunkstore.ChunkRef, error) {
	data, err := s.RetrieveNamed(ctx, name)
	if err != nil {
		return chunkstore.ChunkRef{}, errors.Wrapf(err, "loading root %s", name)
	}
	root, err := chunkstore.Decode(data)
	return root, errors.Wrapf(err, "decoding root %s", name)
}
