package pipeline

import "sort"

// pendingInjection is one message awaiting a position-resolved splice into
// a base message list, shared by Stage 3 (presets/user profile) and Stage
// 5 (worldbook entries) — both use the same injection-strategy vocabulary
// for placement directives.
type pendingInjection struct {
	msg           Message
	targetIndex   int // clamped to [0, len(base)]; base[targetIndex] is pushed after this injection
	order         int
	originalIndex int // tie-break among equal order: original preset/entry index
}

// spliceInjections inserts each pending item at its resolved targetIndex
// against base, in a single deterministic pass: the tie-break
// rule (order ascending, then original index) decides the order among
// injections landing on the same index.
func spliceInjections(base []Message, pending []pendingInjection) []Message {
	if len(pending) == 0 {
		return base
	}

	byIndex := make(map[int][]pendingInjection, len(pending))
	for _, p := range pending {
		idx := p.targetIndex
		if idx < 0 {
			idx = 0
		}
		if idx > len(base) {
			idx = len(base)
		}
		byIndex[idx] = append(byIndex[idx], p)
	}
	for idx, items := range byIndex {
		sort.SliceStable(items, func(i, j int) bool {
			if items[i].order != items[j].order {
				return items[i].order < items[j].order
			}
			return items[i].originalIndex < items[j].originalIndex
		})
		byIndex[idx] = items
	}

	out := make([]Message, 0, len(base)+len(pending))
	for i := 0; i <= len(base); i++ {
		for _, p := range byIndex[i] {
			out = append(out, p.msg)
		}
		if i < len(base) {
			out = append(out, base[i])
		}
	}
	return out
}
