package tokenest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEstimateTextFallsBackToCl100k(t *testing.T) {
	e := NewTiktokenEstimator()
	est, err := e.EstimateText("hello world", "claude-sonnet-unknown")
	require.NoError(t, err)
	require.True(t, est.Estimated)
	require.Equal(t, "cl100k_base", est.TokenizerName)
	require.Greater(t, est.Count, 0)
}

func TestEstimateImageFixedAndTiled(t *testing.T) {
	e := NewTiktokenEstimator()
	fixed := e.EstimateImage(1024, 1024, VisionCostRule{Mode: VisionCostFixed, FixedTokens: 85})
	require.Equal(t, 85, fixed)

	tiled := e.EstimateImage(512, 512, VisionCostRule{Mode: VisionCostTiled, BaseTokens: 85, TileTokens: 170, TileSize: 512})
	require.Equal(t, 85+170, tiled)
}

func TestEstimateAudioVideoMonotonic(t *testing.T) {
	e := NewTiktokenEstimator()
	require.Less(t, e.EstimateAudio(1), e.EstimateAudio(10))
	require.Less(t, e.EstimateVideo(1), e.EstimateVideo(10))
}

func TestEstimateDocumentModes(t *testing.T) {
	e := NewTiktokenEstimator()
	require.Equal(t, 30, e.EstimateDocument(3, 0, DocumentCostRule{Mode: DocumentCostPerPage, TokensPerPage: 10}))
	require.Equal(t, 100, e.EstimateDocument(0, 400, DocumentCostRule{Mode: DocumentCostDynamic, BytesPerToken: 4}))
}
