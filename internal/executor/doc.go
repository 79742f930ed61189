// Package executor orchestrates one chat turn: it creates the user and
// assistant nodes, assembles context via the pipeline package, streams a
// provider response into the assistant node, and triggers the history
// breakpoint once the turn settles.
package executor
