package photos

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestTransitionEdges exhausts every ordered pair of states: only
// discovered->resolved, resolved->replicated, and the reopen edge
// replicated->discovered may exist.
func TestTransitionEdges(t *testing.T) {
	allowed := map[[2]State]bool{
		{StateDiscovered, StateResolved}:   true,
		{StateResolved, StateReplicated}:   true,
		{StateReplicated, StateDiscovered}: true,
	}

	for _, from := range States() {
		for _, to := range States() {
			got := from.CanTransition(to)
			want := allowed[[2]State{from, to}]
			assert.Equalf(t, want, got, "edge %s -> %s", from, to)
		}
	}
}

func TestStateValid(t *testing.T) {
	for _, s := range States() {
		assert.True(t, s.Valid())
	}
	assert.False(t, State("pending").Valid())
	assert.False(t, State("").Valid())
}
