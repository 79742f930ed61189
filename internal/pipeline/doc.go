// Package pipeline implements the Context Pipeline: the fixed, ordered
// sequence of processors that turns the active branch plus an Agent's
// configuration into the canonical message list a provider request
// needs. Each stage is a function over a shared *Context — messages,
// trace, session/agent/profile references — one function per
// context-assembly concern, executed in a fixed order with non-fatal
// failures downgraded to warnings.
package pipeline
