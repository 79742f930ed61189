// Package branch answers "which linear branch is active?" over a
// nodestore-owned session tree and moves the active-leaf pointer. It never
// mutates the tree's shape, only Session.ActiveLeafID and Node.
// LastSelectedChildID — the branch-memory hints Navigator reads to restore
// the last-viewed path through a multi-child subtree.
package branch
