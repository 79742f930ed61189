// Package provider adapts external LLM APIs to the engine's streaming
// client contract. Three reference adapters exist: Anthropic and OpenAI
// ride the Eino chat-model components, Gemini uses the google genai SDK
// directly. The Registry routes a model id to its provider, constructs
// clients lazily, and answers modality-capability queries for the
// transcription stage.
//
// Adapters emit pure deltas regardless of whether the upstream stream is
// delta- or accumulation-shaped, close both channels once a stream
// settles, and classify every terminal failure into the stream-error
// taxonomy (network, auth, rate limit, timeout, content filter,
// cancelled, unknown).
package provider
