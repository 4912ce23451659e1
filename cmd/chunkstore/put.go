package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/bobg/chunkstore"
	"github.com/bobg/chunkstore/tree"
)

func (c maincmd) put(ctx context.Context, name string, _ []string) error {
	ref, err := tree.Write(ctx, c.st.Store, c.in)
	if err != nil {
		return errors.Wrap(err, "writing input to store")
	}

	if name != "" {
		if err = tree.SaveRoot(ctx, c.st.Store, name, ref); err != nil {
			return errors.Wrapf(err, "saving root as %s", name)
		}
	}

	c.log.WithField("ref", ref).Debug("stored")
	fmt.Fprintln(c.out, ref.Hex())

	return nil
}

func (c maincmd) get(ctx context.Context, refstr, name string, _ []string) error {
	ref, err := c.root(ctx, refstr, name)
	if err != nil {
		return err
	}

	return tree.Read(ctx, c.st.Store, ref, c.out)
}

// root resolves exactly one of a hex ref or a saved root name.
func (c maincmd) root(ctx context.Context, refstr, name string) (chunkstore.ChunkRef, error) {
	if (refstr == "") == (name == "") {
		return chunkstore.ChunkRef{}, errors.New("must supply one of -ref or -name")
	}
	if name != "" {
		ref, err := tree.LoadRoot(ctx, c.st.Store, name)
		return ref, errors.Wrapf(err, "loading root %s", name)
	}
	ref, err := chunkstore.RefFromHex(refstr)
	return ref, errors.Wrap(err, "parsing -ref")
}
