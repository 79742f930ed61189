// Package transcription defines the external Transcription collaborator
// the pipeline's transcription stage consumes: a lookup for an existing
// speech/image/document transcript keyed by asset handle. The pipeline
// only ever reads results that already exist; requesting a transcript to
// be produced is fire-and-forget and not awaited by Stage 4. Asset
// transcription/ASR/OCR itself is an out-of-scope external service —
// this package only specifies the interface and a small in-memory stub
// implementation used by tests.
package transcription
