package blob

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/chunkstore"
	"github.com/bobg/chunkstore/index"
)

// deleteByTag removes the blobs with the given tag from the backend,
// then from the index.
// A blob in the backend but not the index can be recovered;
// the reverse would leak storage.
// The current blob has no bytes in the backend yet and is only untagged.
func (s *Store) deleteByTag(ctx context.Context, tag chunkstore.Tag) error {
	if !tag.Valid() {
		return chunkstore.MessageError(fmt.Sprintf("invalid tag %d", tag))
	}

	descs, err := s.idx.ListByTag(ctx, tag)
	if err != nil {
		return errors.Wrapf(err, "listing blobs tagged %s", tag)
	}

	var (
		keepCurrent bool
		n           int
	)

	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(s.deleteConcurrency)
	for _, desc := range descs {
		if desc.ID == s.current.ID {
			keepCurrent = true
			continue
		}
		desc := desc
		n++
		eg.Go(func() error {
			err := s.backend.Delete(ectx, desc.Name)
			return errors.Wrapf(err, "deleting blob %s", chunkstore.NameString(desc.Name))
		})
	}
	if err = eg.Wait(); err != nil {
		return err
	}

	if keepCurrent {
		if err = s.idx.Untag(ctx, s.current); err != nil {
			return errors.Wrap(err, "untagging current blob")
		}
	}
	if err = s.idx.DeleteByTag(ctx, tag); err != nil {
		return errors.Wrapf(err, "deleting index rows tagged %s", tag)
	}

	s.logger.WithFields(logrus.Fields{"tag": tag, "blobs": n}).Info("deleted tagged blobs")

	return nil
}

// reconcile settles blobs an earlier Store left unfinished.
func (s *Store) reconcile(ctx context.Context) error {
	inAir, err := s.idx.ListByState(ctx, index.InAir)
	if err != nil {
		return errors.Wrap(err, "listing in-air blobs")
	}
	for _, desc := range inAir {
		logger := s.logger.WithField("blob", chunkstore.NameString(desc.Name))

		_, err := s.backend.Retrieve(ctx, desc.Name)
		switch {
		case err == nil:
			if err = s.idx.CommitDone(ctx, desc); err != nil {
				return errors.Wrapf(err, "committing blob %s", chunkstore.NameString(desc.Name))
			}
			logger.Info("committed in-air blob found in backend")

		case errors.Is(err, chunkstore.ErrNotFound):
			if err = s.idx.Delete(ctx, desc); err != nil {
				return errors.Wrapf(err, "deleting blob %s", chunkstore.NameString(desc.Name))
			}
			logger.Warn("discarded in-air blob missing from backend")

		default:
			return errors.Wrapf(err, "checking backend for blob %s", chunkstore.NameString(desc.Name))
		}
	}

	reserved, err := s.idx.ListByState(ctx, index.Reserved)
	if err != nil {
		return errors.Wrap(err, "listing reserved blobs")
	}
	for _, desc := range reserved {
		if err = s.idx.Delete(ctx, desc); err != nil {
			return errors.Wrapf(err, "deleting reserved blob %s", chunkstore.NameString(desc.Name))
		}
	}
	if len(reserved) > 0 {
		s.logger.WithField("blobs", len(reserved)).Debug("discarded reserved blobs")
	}

	return nil
}

func (s *Store) scanBackend(ctx context.Context) error {
	l, ok := s.backend.(chunkstore.Lister)
	if !ok {
		return nil
	}

	var (
		maxID   int64
		maxName []byte
	)
	err := l.List(ctx, func(name []byte) error {
		if id, ok := chunkstore.BlobID(name); ok && id > maxID {
			maxID, maxName = id, append([]byte(nil), name...)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "listing backend")
	}
	if maxName == nil {
		return nil
	}

	s.logger.WithField("blob", chunkstore.NameString(maxName)).Debug("recovering highest blob in backend")
	return errors.Wrapf(s.idx.Recover(ctx, maxName), "recovering blob %s", chunkstore.NameString(maxName))
}
