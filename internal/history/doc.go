// Package history records every structural or content edit made through
// the nodestore package as a reversible HistoryEntry — either a full
// Snapshot of the node arena or a list of Deltas — and replays entries
// forward or backward to implement undo/redo. It enforces the memory
// bound on Session.History and erases itself at "history breakpoints"
// (a new message sent, a regenerate) the way the Chat Executor signals.
package history
