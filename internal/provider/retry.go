package provider

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/loom-engine/loom/internal/logging"
	"github.com/loom-engine/loom/pkg/types"
)

const (
	// MaxRetries is the maximum number of retries for transient errors.
	MaxRetries = 3
	// RetryInitialInterval is the initial interval for exponential backoff.
	RetryInitialInterval = time.Second
	// RetryMaxInterval is the maximum interval for exponential backoff.
	RetryMaxInterval = 30 * time.Second
	// RetryMaxElapsedTime is the maximum total time for retries.
	RetryMaxElapsedTime = 2 * time.Minute
)

// newRetryBackoff creates an exponential backoff with jitter for API
// retries; jitter spreads reconnects, and the context bounds the wait.
func newRetryBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RetryInitialInterval
	b.MaxInterval = RetryMaxInterval
	b.MaxElapsedTime = RetryMaxElapsedTime
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, MaxRetries), ctx)
}

// retryClient retries a stream that dies before producing anything, for
// transient failures (network, rate limit). Once a single chunk has been
// forwarded the stream is committed: a mid-stream failure surfaces as-is
// rather than silently restarting with duplicated output.
type retryClient struct {
	inner Client
}

// WithRetry wraps a Client with transient-failure retry on stream start.
func WithRetry(c Client) Client {
	return &retryClient{inner: c}
}

func retryable(err *types.LlmStreamError) bool {
	switch err.Kind {
	case types.StreamErrNetwork, types.StreamErrRateLimit:
		return true
	default:
		return false
	}
}

func (r *retryClient) Stream(ctx context.Context, req Request) (<-chan Chunk, <-chan error) {
	chunks := make(chan Chunk)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		attempt := 0
		op := func() error {
			attempt++
			inChunks, inErrs := r.inner.Stream(ctx, req)
			forwarded := false
			for {
				select {
				case c, ok := <-inChunks:
					if !ok {
						// The adapter settles both channels together;
						// collect a terminal error that raced the close.
						if err, ok := <-inErrs; ok && err != nil {
							se := ClassifyError(err)
							if !forwarded && retryable(se) {
								return se
							}
							errs <- se
						}
						return nil
					}
					forwarded = true
					select {
					case chunks <- c:
					case <-ctx.Done():
						return nil
					}
				case err, ok := <-inErrs:
					if !ok || err == nil {
						continue
					}
					// Forward whatever the adapter emitted before failing;
					// it closes the chunk channel once the stream settles.
					for c := range inChunks {
						forwarded = true
						select {
						case chunks <- c:
						case <-ctx.Done():
							return nil
						}
					}
					se := ClassifyError(err)
					if !forwarded && retryable(se) {
						logging.Warn().
							Int("attempt", attempt).
							Str("kind", string(se.Kind)).
							Msg("stream start failed, retrying")
						return se
					}
					errs <- se
					return nil
				case <-ctx.Done():
					return nil
				}
			}
		}

		if err := backoff.Retry(op, newRetryBackoff(ctx)); err != nil {
			errs <- ClassifyError(err)
		}
	}()

	return chunks, errs
}
