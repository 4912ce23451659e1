package chunkstore

import (
	"github.com/pkg/errors"
)

var (
	// ErrNotFound is the error returned by a Backend
	// for a blob it does not have.
	ErrNotFound = errors.New("not found")

	// ErrClosed is the error returned for requests to a store that has shut down.
	ErrClosed = errors.New("store closed")

	// ErrPoisoned is wrapped by the errors a store returns
	// after a fatal backend failure while writing a blob.
	ErrPoisoned = errors.New("store poisoned")

	// ErrOutOfRange is the error for a ChunkRef
	// whose bytes lie outside the blob it names.
	ErrOutOfRange = errors.New("chunk out of range")
)

// IndexError wraps an error from the blob index's metadata engine.
type IndexError struct {
	Err error
}

func (e *IndexError) Error() string { return "blob index: " + e.Err.Error() }

func (e *IndexError) Unwrap() error { return e.Err }

// Cause implements the causer interface of github.com/pkg/errors.
func (e *IndexError) Cause() error { return e.Err }

// MessageError reports a configuration problem or a violated invariant.
type MessageError string

func (e MessageError) Error() string { return string(e) }
