package model

import "fmt"

// State is the position of a workflow run in its linear state machine:
//
//	Idle → FetchingContext → (Detecting | Matching → Requesting) → Done
//
// There are no branches back; a failure in any state moves the run straight
// to Done with the error recorded in the report.
type State int

const (
	// StateIdle is the state of a run that has not started.
	StateIdle State = iota

	// StateFetchingContext is the state while the ticket id and comments are
	// being read from the host.
	StateFetchingContext

	// StateDetecting is the state while comment text is sent to the
	// detection backend. Only the detect workflow passes through it.
	StateDetecting

	// StateMatching is the state while approved entities are matched
	// against comments.
	StateMatching

	// StateRequesting is the state while redaction requests are issued.
	StateRequesting

	// StateDone is the terminal state, reached on success or failure.
	StateDone
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetchingContext:
		return "fetching_context"
	case StateDetecting:
		return "detecting"
	case StateMatching:
		return "matching"
	case StateRequesting:
		return "requesting"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler so that reports serialise
// the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseState returns the state named by s, as produced by String.
// Unknown names map to StateIdle.
func ParseState(s string) State {
	for st := StateIdle; st <= StateDone; st++ {
		if st.String() == s {
			return st
		}
	}
	return StateIdle
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	*s = ParseState(string(text))
	return nil
}
