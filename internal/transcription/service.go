package transcription

import (
	"context"
	"sync"

	"github.com/loom-engine/loom/pkg/types"
)

// Service is the external Transcription collaborator.
type Service interface {
	// GetTranscript returns an already-produced transcript for asset, or
	// ok=false if none exists yet.
	GetTranscript(ctx context.Context, asset types.Asset) (transcript string, ok bool, err error)

	// RequestTranscript asks the service to begin producing a transcript
	// for asset. The pipeline never awaits this — it is fire-and-forget,
	// so the return is a completion signal only, not a value Stage 4
	// reads.
	RequestTranscript(ctx context.Context, asset types.Asset) <-chan error
}

// Store is an in-memory Service, the stub a test harness or a
// deployment without a real ASR/OCR backend wires in. A trivial
// in-memory implementation beside the interface keeps tests free of a
// mock framework.
type Store struct {
	mu           sync.RWMutex
	transcripts  map[string]string
	pending      map[string]bool
}

// NewStore builds an empty Store.
func NewStore() *Store {
	return &Store{
		transcripts: make(map[string]string),
		pending:     make(map[string]bool),
	}
}

// Put seeds a transcript for handle, as a test fixture or after an
// out-of-band ASR/OCR job completes.
func (s *Store) Put(handle, transcript string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts[handle] = transcript
	delete(s.pending, handle)
}

// GetTranscript implements Service.
func (s *Store) GetTranscript(_ context.Context, asset types.Asset) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transcripts[asset.Handle]
	return t, ok, nil
}

// RequestTranscript implements Service: it marks the handle pending and
// immediately reports completion on the returned channel, since this stub
// has no real backing ASR/OCR pipeline to defer to.
func (s *Store) RequestTranscript(_ context.Context, asset types.Asset) <-chan error {
	s.mu.Lock()
	s.pending[asset.Handle] = true
	s.mu.Unlock()

	ch := make(chan error, 1)
	ch <- nil
	close(ch)
	return ch
}
