package worldbook

// Activate decides, for a single pipeline run, which Entries are active
// given the keyword-triggered set (from Index.Match across the scanned
// message text) and turnCount — the number of completed user->assistant
// exchanges along the active path. Activation is stateless:
// it is recomputed fresh on every run from turnCount alone, never from
// memory of a prior activation, since the pipeline's processors are pure
// with respect to their declared inputs.
func Activate(entries []Entry, triggered map[string]bool, turnCount int) []Entry {
	var active []Entry
	for _, e := range entries {
		if entryActive(e, triggered, turnCount) {
			active = append(active, e)
		}
	}
	return active
}

func entryActive(e Entry, triggered map[string]bool, turnCount int) bool {
	switch e.Mode {
	case ActivationAlways:
		return true
	case ActivationStatic:
		return turnCount == 0
	case ActivationGate:
		return triggered[e.ID]
	case ActivationTurn:
		interval := e.TurnInterval
		if interval < 1 {
			interval = 1
		}
		return triggered[e.ID] && turnCount > 0 && turnCount%interval == 0
	default:
		return false
	}
}
