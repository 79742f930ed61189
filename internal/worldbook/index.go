package worldbook

import (
	"strings"

	"github.com/coregx/ahocorasick"
	"github.com/orsinium-labs/stopwords"

	"github.com/loom-engine/loom/pkg/types"
)

// ActivationMode selects when a matched Entry is spliced into the message
// list.
type ActivationMode string

const (
	// ActivationAlways entries are injected on every assembly regardless
	// of keyword triggers.
	ActivationAlways ActivationMode = "always"
	// ActivationGate entries require at least one keyword match anywhere
	// in the scanned message text.
	ActivationGate ActivationMode = "gate"
	// ActivationTurn entries require a keyword match, throttled to once
	// every TurnInterval completed user->assistant exchanges along the
	// active path (turns are never counted across branches).
	ActivationTurn ActivationMode = "turn"
	// ActivationStatic entries are injected only before the session's
	// first completed exchange — a one-time scene-setting note rather
	// than a recurring reminder.
	ActivationStatic ActivationMode = "static"
)

// Entry is one worldbook lore snippet: its trigger keywords, activation
// rule, and where it lands in the message list if activated.
type Entry struct {
	ID           string
	Keywords     []string
	Mode         ActivationMode
	Role         types.Role
	Content      string
	Strategy     types.InjectionStrategy
	TurnInterval int // only meaningful when Mode == ActivationTurn; must be >= 1
}

// Index is a compiled keyword matcher over a fixed set of Entries.
type Index struct {
	entries    []Entry
	ac         *ahocorasick.Automaton
	patternIDs [][]string // pattern index -> entry IDs sharing that keyword
}

// NewIndex compiles entries into a matchable Index. Keywords are matched
// case-insensitively; bare English stopwords are rejected as keywords
// since they would fire on nearly every message. Entries contributing no
// non-empty keyword (e.g. Always/Static entries with no Keywords) are
// still tracked for inclusion decisions even though they add nothing to
// the automaton.
func NewIndex(entries []Entry) (*Index, error) {
	idx := &Index{entries: entries}

	checker := stopwords.MustGet("en")
	patternIndex := make(map[string]int)
	var patterns []string
	for _, e := range entries {
		for _, kw := range e.Keywords {
			key := strings.ToLower(strings.TrimSpace(kw))
			if key == "" {
				continue
			}
			if checker.Contains(key) {
				continue
			}
			pi, ok := patternIndex[key]
			if !ok {
				pi = len(patterns)
				patterns = append(patterns, key)
				patternIndex[key] = pi
				idx.patternIDs = append(idx.patternIDs, nil)
			}
			idx.patternIDs[pi] = append(idx.patternIDs[pi], e.ID)
		}
	}

	if len(patterns) == 0 {
		return idx, nil
	}

	automaton, err := ahocorasick.NewBuilder().
		AddStrings(patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, err
	}
	idx.ac = automaton
	return idx, nil
}

// Match scans text and returns the set of Entry IDs whose keyword(s)
// appear in it.
func (idx *Index) Match(text string) map[string]bool {
	triggered := map[string]bool{}
	if idx.ac == nil {
		return triggered
	}
	haystack := []byte(strings.ToLower(text))
	for _, m := range idx.ac.FindAllOverlapping(haystack) {
		if m.PatternID < 0 || m.PatternID >= len(idx.patternIDs) {
			continue
		}
		for _, id := range idx.patternIDs[m.PatternID] {
			triggered[id] = true
		}
	}
	return triggered
}

// Entries returns the compiled entry set.
func (idx *Index) Entries() []Entry { return idx.entries }
