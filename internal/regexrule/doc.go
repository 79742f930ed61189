// Package regexrule implements the Context Pipeline's text substitution
// engine: priority-sorted rules scoped by role and tail-depth, with
// template-variable replacement modes and capture-group trimming. It is
// grounded on github.com/dlclark/regexp2 for the lookaround and
// backreference support plain `regexp` lacks, which presets commonly rely
// on (e.g. a rule that must not fire inside an already-tagged block).
package regexrule
