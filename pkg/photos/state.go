package photos

// State is the workflow stage of a canonical photo.
type State string

// Processing states. The only legal edges are
// discovered -> resolved -> replicated, plus the reopen edge
// replicated -> discovered when new content is detected under an existing
// identity.
const (
	StateDiscovered State = "discovered"
	StateResolved   State = "resolved"
	StateReplicated State = "replicated"
)

// transitions is the full edge set of the processing state machine.
var transitions = map[State]map[State]bool{
	StateDiscovered: {StateResolved: true},
	StateResolved:   {StateReplicated: true},
	StateReplicated: {StateDiscovered: true}, // reopen
}

// String returns the string representation of a state.
func (s State) String() string {
	return string(s)
}

// Valid reports whether s is a known processing state.
func (s State) Valid() bool {
	switch s {
	case StateDiscovered, StateResolved, StateReplicated:
		return true
	}
	return false
}

// CanTransition reports whether the edge s -> to exists in the state machine.
func (s State) CanTransition(to State) bool {
	return transitions[s][to]
}

// States returns all processing states in workflow order.
func States() []State {
	return []State{StateDiscovered, StateResolved, StateReplicated}
}
