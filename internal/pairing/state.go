package pairing

import "fmt"

// State is a step in the pairing flow.
type State string

const (
	// StateIdle means no pairing session is active.
	StateIdle State = "idle"
	// StatePreparing means the host is snapshotting, sealing, and uploading.
	StatePreparing State = "preparing"
	// StateReady means the host has published its code and is waiting for a
	// joiner (polling the return topic in the background).
	StateReady State = "ready"
	// StateJoining means the joiner is downloading and opening the host's
	// snapshot.
	StateJoining State = "joining"
	// StateMerging means a downloaded snapshot is being merged, or a merged
	// snapshot is being pushed back to the other side.
	StateMerging State = "merging"
	// StateSuccess means the session completed.
	StateSuccess State = "success"
	// StateError means the session failed. Only an explicit user reset
	// returns to idle.
	StateError State = "error"
)

// transitions is the legal state graph:
// idle → preparing → ready → {joining|merging} → success → (idle),
// with error reachable from any non-idle state and leaving only to idle.
var transitions = map[State][]State{
	StateIdle:      {StatePreparing, StateJoining},
	StatePreparing: {StateReady, StateError},
	StateReady:     {StateJoining, StateMerging, StateError},
	StateJoining:   {StateMerging, StateSuccess, StateError},
	StateMerging:   {StateSuccess, StateError},
	StateSuccess:   {StateIdle},
	StateError:     {StateIdle},
}

// CanTransition reports whether moving from s to next is legal.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the state ends a session.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateError
}

// InvalidTransitionError reports an illegal state change. It indicates a
// programming error in the flow, not a user-recoverable condition.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid pairing transition %s -> %s", e.From, e.To)
}
