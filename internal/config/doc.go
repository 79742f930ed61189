// Package config provides configuration loading, merging, and path
// management for the Loom engine.
//
// # Configuration Loading
//
// The Load function merges configuration from multiple sources in priority
// order:
//
//  1. Global config (~/.config/loom/loom.json or loom.jsonc)
//  2. Project config (.loom/loom.json or loom.jsonc under the working
//     directory)
//  3. Environment variables (provider API keys, LOOM_MODEL, LOOM_DATA_DIR)
//
// Later sources override earlier ones field by field; provider maps merge
// per key. After the merge, defaults are applied for the request timeout,
// the streaming flush interval and the data directory, so callers never see
// a zero value for any of them.
//
// # Supported Formats
//
// Both JSON and JSONC (JSON with // and /* */ comments) are accepted;
// comments are stripped before parsing.
//
// # Paths
//
// GetPaths resolves the XDG-style directory layout (data, config, cache,
// state), honoring XDG_* environment overrides and falling back to the
// conventional per-platform locations.
package config
