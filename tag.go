package chunkstore

import (
	"fmt"

	"github.com/pkg/errors"
)

// Tag is a label on a blob, used by garbage collection
// to mark the blobs it is about to delete.
type Tag int

// The defined tags.
const (
	TagDone Tag = iota
	TagReserved
	TagInProgress
	TagComplete
	TagWillDelete
	TagReadyDelete
	TagDeleteComplete
)

var tagNames = []string{
	TagDone:           "done",
	TagReserved:       "reserved",
	TagInProgress:     "in-progress",
	TagComplete:       "complete",
	TagWillDelete:     "will-delete",
	TagReadyDelete:    "ready-delete",
	TagDeleteComplete: "delete-complete",
}

// Valid tells whether t is one of the defined tags.
func (t Tag) Valid() bool {
	return t >= TagDone && int(t) < len(tagNames)
}

func (t Tag) String() string {
	if t.Valid() {
		return tagNames[t]
	}
	return fmt.Sprintf("Tag(%d)", int(t))
}

// ParseTag parses the output of Tag.String.
func ParseTag(s string) (Tag, error) {
	for i, name := range tagNames {
		if name == s {
			return Tag(i), nil
		}
	}
	return 0, errors.Errorf("unknown tag %q", s)
}
