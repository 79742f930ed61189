// Package agent provides agent configuration and management for the Loom
// engine.
//
// An agent is a conversational persona: a model binding, a preset message
// list (possibly containing anchor sentinels), sampling parameters, and
// the regex/think rules the context pipeline applies on its behalf. The
// Registry keeps agents and user profiles in memory and persists every
// change through the storage layer under agent/{id} and profile/{id}.
//
// # Preset messages
//
// Preset lists reuse the Node type but never enter a session tree. A
// preset's placement is either implicit (its position relative to the
// chat-history anchor) or explicit via an injection strategy stamped with
// WithStrategy. Anchor nodes carry no content; Validate enforces at most
// one anchor of each kind per agent.
//
// # Default agent
//
// A fresh store is seeded with the built-in "assistant" agent so a new
// install can open a session immediately: one system preset followed by
// the chat-history anchor.
package agent
