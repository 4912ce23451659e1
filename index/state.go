package index

import "fmt"

// State is the lifecycle state of a blob.
// States only move forward: Reserved, then InAir, then Committed.
type State int

const (
	// Reserved means the blob has an ID and a name
	// but nothing has been written to the backend.
	Reserved State = iota

	// InAir means a write of the blob to the backend has begun
	// but has not been acknowledged.
	InAir

	// Committed means the backend holds the blob durably.
	Committed
)

func (s State) String() string {
	switch s {
	case Reserved:
		return "reserved"
	case InAir:
		return "in-air"
	case Committed:
		return "committed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ParseState parses the output of State.String.
func ParseState(s string) (State, error) {
	for st := Reserved; st <= Committed; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown state %q", s)
}
