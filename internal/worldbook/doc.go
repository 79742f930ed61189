// Package worldbook implements the keyword-trigger matcher behind the
// Context Pipeline's optional lore stage: given the assembled message
// list it finds which Entries are triggered, so the pipeline can splice
// their content in at the position each Entry's InjectionStrategy names.
// Keyword scanning is grounded on github.com/coregx/ahocorasick, a
// multi-pattern matcher that makes one linear pass regardless of how
// many keywords are registered.
package worldbook
