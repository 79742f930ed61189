// Package tokenest implements the external TokenEstimator interface the
// token limiter consumes: per-model text token counting plus the
// attachment-kind cost rules (vision tiling, audio/video duration,
// document pagination) needed to enforce a context budget. The default
// implementation counts text with tiktoken-go, falling back to the
// cl100k_base encoding for model families without a published BPE table.
package tokenest
