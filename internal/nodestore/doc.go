// Package nodestore owns the conversation tree for a single session: the
// arena of Nodes keyed by id, and the atomic, invariant-preserving
// mutations that create, detach, attach and delete them. Every mutation
// either leaves the session fully valid or makes no change at all, and
// every successful mutation returns enough detail (a RelationChange, or a
// before/after Node pair) for the history package to record it.
package nodestore
