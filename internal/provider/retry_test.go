package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loom-engine/loom/pkg/types"
)

// flakyClient fails the first failures streams with kind, then succeeds.
type flakyClient struct {
	failures int
	kind     types.StreamErrorKind
	calls    int
}

func (f *flakyClient) Stream(ctx context.Context, req Request) (<-chan Chunk, <-chan error) {
	f.calls++
	chunks := make(chan Chunk, 1)
	errs := make(chan error, 1)
	if f.calls <= f.failures {
		errs <- types.NewStreamError(f.kind, "transient")
	} else {
		chunks <- Chunk{TextDelta: "ok"}
	}
	close(chunks)
	close(errs)
	return chunks, errs
}

func collect(t *testing.T, chunks <-chan Chunk, errs <-chan error) (string, error) {
	t.Helper()
	var text string
	var err error
	timeout := time.After(10 * time.Second)
	for chunks != nil || errs != nil {
		select {
		case c, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			text += c.TextDelta
		case e, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if e != nil {
				err = e
			}
		case <-timeout:
			t.Fatal("stream did not settle")
		}
	}
	return text, err
}

func TestWithRetry_TransientNetworkFailure(t *testing.T) {
	inner := &flakyClient{failures: 2, kind: types.StreamErrNetwork}
	c := WithRetry(inner)

	chunks, errs := c.Stream(context.Background(), Request{})
	text, err := collect(t, chunks, errs)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 3, inner.calls)
}

func TestWithRetry_AuthFailureNotRetried(t *testing.T) {
	inner := &flakyClient{failures: 5, kind: types.StreamErrAuth}
	c := WithRetry(inner)

	chunks, errs := c.Stream(context.Background(), Request{})
	_, err := collect(t, chunks, errs)
	require.Error(t, err)
	se, ok := err.(*types.LlmStreamError)
	require.True(t, ok)
	assert.Equal(t, types.StreamErrAuth, se.Kind)
	assert.Equal(t, 1, inner.calls)
}

// midStreamClient emits one chunk then fails.
type midStreamClient struct{ calls int }

func (m *midStreamClient) Stream(ctx context.Context, req Request) (<-chan Chunk, <-chan error) {
	m.calls++
	chunks := make(chan Chunk, 1)
	errs := make(chan error, 1)
	chunks <- Chunk{TextDelta: "partial"}
	errs <- types.NewStreamError(types.StreamErrNetwork, "connection reset")
	close(chunks)
	close(errs)
	return chunks, errs
}

func TestWithRetry_MidStreamFailureNotRetried(t *testing.T) {
	inner := &midStreamClient{}
	c := WithRetry(inner)

	chunks, errs := c.Stream(context.Background(), Request{})
	text, err := collect(t, chunks, errs)
	require.Error(t, err)
	assert.Equal(t, "partial", text)
	assert.Equal(t, 1, inner.calls, "a committed stream must not restart")
}
