package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/bobg/chunkstore"
	"github.com/bobg/chunkstore/index"
	"github.com/bobg/chunkstore/tree"
)

func (c maincmd) flush(ctx context.Context, _ []string) error {
	return c.st.Store.Flush(ctx)
}

func (c maincmd) tag(ctx context.Context, refstr, name string, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: tag -ref HEX | -name NAME TAG")
	}
	t, err := chunkstore.ParseTag(args[0])
	if err != nil {
		return err
	}

	root, err := c.root(ctx, refstr, name)
	if err != nil {
		return err
	}

	var n int
	err = tree.Walk(ctx, c.st.Store, root, func(ref chunkstore.ChunkRef) error {
		n++
		return c.st.Store.Tag(ctx, ref, t)
	})
	if err != nil {
		return errors.Wrapf(err, "tagging tree %s", root)
	}
	c.log.WithField("chunks", n).Infof("tagged %s", t)
	return nil
}

func (c maincmd) tagAll(ctx context.Context, args []string) error {
	t, err := tagArg(args)
	if err != nil {
		return err
	}
	return c.st.Store.TagAll(ctx, t)
}

func (c maincmd) deleteByTag(ctx context.Context, args []string) error {
	t, err := tagArg(args)
	if err != nil {
		return err
	}
	return c.st.Store.DeleteByTag(ctx, t)
}

func tagArg(args []string) (chunkstore.Tag, error) {
	if len(args) != 1 {
		return 0, errors.New("exactly one tag required")
	}
	return chunkstore.ParseTag(args[0])
}

// recover rebuilds the index entries for a saved tree,
// e.g. after the index was lost.
func (c maincmd) recover(ctx context.Context, refstr, name string, _ []string) error {
	root, err := c.root(ctx, refstr, name)
	if err != nil {
		return err
	}

	var n int
	err = tree.Walk(ctx, c.st.Store, root, func(ref chunkstore.ChunkRef) error {
		n++
		return c.st.Store.Recover(ctx, ref)
	})
	if err != nil {
		return errors.Wrapf(err, "recovering tree %s", root)
	}
	c.log.WithField("chunks", n).Info("recovered")
	return nil
}

func (c maincmd) list(ctx context.Context, state, tagname string, _ []string) error {
	var descs []chunkstore.BlobDesc
	switch {
	case state != "" && tagname != "":
		return errors.New("supply at most one of -state and -tag")

	case state != "":
		st, err := index.ParseState(state)
		if err != nil {
			return err
		}
		descs, err = c.st.Index.ListByState(ctx, st)
		if err != nil {
			return errors.Wrapf(err, "listing %s blobs", st)
		}

	case tagname != "":
		t, err := chunkstore.ParseTag(tagname)
		if err != nil {
			return err
		}
		descs, err = c.st.Index.ListByTag(ctx, t)
		if err != nil {
			return errors.Wrapf(err, "listing blobs tagged %s", t)
		}

	default:
		l, ok := c.st.Backend.(chunkstore.Lister)
		if !ok {
			return errors.New("backend cannot list its blobs")
		}
		return l.List(ctx, func(key []byte) error {
			if name, ok := chunkstore.IsNamedKey(key); ok {
				fmt.Fprintf(c.out, "named %s\n", name)
				return nil
			}
			fmt.Fprintln(c.out, chunkstore.NameString(key))
			return nil
		})
	}

	for _, d := range descs {
		fmt.Fprintf(c.out, "%d %s\n", d.ID, chunkstore.NameString(d.Name))
	}
	return nil
}
