package worldbook

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIndexMatchFindsKeyword(t *testing.T) {
	idx, err := NewIndex([]Entry{
		{ID: "dragon", Keywords: []string{"dragon"}, Mode: ActivationGate},
		{ID: "castle", Keywords: []string{"castle", "keep"}, Mode: ActivationGate},
	})
	require.NoError(t, err)

	triggered := idx.Match("The Dragon flew over the old Keep.")
	require.True(t, triggered["dragon"])
	require.True(t, triggered["castle"])
}

func TestActivateModes(t *testing.T) {
	entries := []Entry{
		{ID: "a", Mode: ActivationAlways},
		{ID: "s", Mode: ActivationStatic},
		{ID: "g", Mode: ActivationGate},
		{ID: "t", Mode: ActivationTurn, TurnInterval: 3},
	}
	triggered := map[string]bool{"g": true, "t": true}

	active0 := Activate(entries, triggered, 0)
	ids0 := ids(active0)
	require.Contains(t, ids0, "a")
	require.Contains(t, ids0, "s")
	require.Contains(t, ids0, "g")
	require.NotContains(t, ids0, "t", "turn mode never fires on turn 0")

	active3 := Activate(entries, triggered, 3)
	ids3 := ids(active3)
	require.Contains(t, ids3, "a")
	require.NotContains(t, ids3, "s", "static only fires before the first exchange")
	require.Contains(t, ids3, "t")

	active2 := Activate(entries, triggered, 2)
	require.NotContains(t, ids(active2), "t", "turn 2 is not a multiple of the interval")
}

func ids(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}
