package pubsub

import (
	"github.com/axmq/uapubsub/ids"
	"github.com/axmq/uapubsub/status"
)

// State is a position in the lattice spec.md §3 invariant 3 defines:
// DISABLED < PAUSED < PREOPERATIONAL < OPERATIONAL, with ERROR orthogonal
// and dominant whenever an ancestor forces it.
type State int

const (
	StateDisabled State = iota
	StatePaused
	StatePreOperational
	StateOperational
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "Disabled"
	case StatePaused:
		return "Paused"
	case StatePreOperational:
		return "PreOperational"
	case StateOperational:
		return "Operational"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// rank orders the non-ERROR states for the dominance check P1 exercises;
// ERROR is handled separately by callers since it does not sit on this
// axis.
func (s State) rank() int {
	switch s {
	case StateDisabled:
		return 0
	case StatePaused:
		return 1
	case StatePreOperational:
		return 2
	case StateOperational:
		return 3
	default:
		return -1
	}
}

// isCascadeTarget reports whether s is one of the three states that,
// per spec.md §4.2's transition matrix, drive every descendant to the
// same state rather than leaving them unpromoted.
func isCascadeTarget(s State) bool {
	return s == StateDisabled || s == StatePaused || s == StateError
}

// AtMostDisabledOrPaused reports whether s is DISABLED or PAUSED, the
// predicate spec.md §8's P1 invariant is stated in terms of.
func (s State) AtMostDisabledOrPaused() bool {
	return s == StateDisabled || s == StatePaused
}

// StateChange is the payload of the user state-change callback spec.md
// §6 requires: "(entity_id, new_state, cause_status)".
type StateChange struct {
	EntityID ids.ID
	State    State
	Cause    status.Code
}

// StateChangeFunc is the user-supplied callback invoked on every
// observable state transition.
type StateChangeFunc func(change StateChange)
