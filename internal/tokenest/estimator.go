package tokenest

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Estimate is the result of EstimateText.
type Estimate struct {
	Count         int
	Estimated     bool
	TokenizerName string
}

// VisionCostMode selects how EstimateImage prices an image attachment.
type VisionCostMode string

const (
	VisionCostFixed VisionCostMode = "fixed"
	VisionCostTiled VisionCostMode = "tiled"
)

// VisionCostRule prices an image attachment:
// "either fixed-per-image, or base + tiles × tile-cost based on width/
// height".
type VisionCostRule struct {
	Mode VisionCostMode

	FixedTokens int // used when Mode == VisionCostFixed

	BaseTokens int // used when Mode == VisionCostTiled
	TileTokens int
	TileSize   int // pixels per tile edge; must be > 0 when Mode == VisionCostTiled
}

// DocumentCostMode selects how EstimateDocument prices a document
// attachment.
type DocumentCostMode string

const (
	DocumentCostPerPage DocumentCostMode = "per_page"
	DocumentCostDynamic DocumentCostMode = "dynamic"
)

// DocumentCostRule prices a document attachment either per page or as a
// function of its raw size.
type DocumentCostRule struct {
	Mode          DocumentCostMode
	TokensPerPage int // used when Mode == DocumentCostPerPage
	BytesPerToken int // used when Mode == DocumentCostDynamic; must be > 0
}

// Estimator is the external TokenEstimator interface the Token Limiter
// pipeline stage consumes.
type Estimator interface {
	EstimateText(text, modelID string) (Estimate, error)
	EstimateImage(width, height int, rule VisionCostRule) int
	EstimateAudio(durationSeconds float64) int
	EstimateVideo(durationSeconds float64) int
	EstimateDocument(pages int, sizeBytes int64, rule DocumentCostRule) int
}

// Per-second token cost assumptions for modalities with no standard
// tokenizer of their own. These are deliberately simple linear models —
// real provider-specific costs are the provider adapter's concern; the
// core only needs a stable, monotonic estimate to drive Stage 6's budget.
const (
	audioTokensPerSecond = 8
	videoTokensPerSecond = 32
)

// TiktokenEstimator implements Estimator using tiktoken-go, caching one
// encoding per resolved model so repeated EstimateText calls across a
// pipeline run don't re-parse the BPE tables.
type TiktokenEstimator struct {
	mu    sync.Mutex
	cache map[string]*tiktoken.Tiktoken
}

// NewTiktokenEstimator builds a TiktokenEstimator with an empty encoding
// cache.
func NewTiktokenEstimator() *TiktokenEstimator {
	return &TiktokenEstimator{cache: make(map[string]*tiktoken.Tiktoken)}
}

// EstimateText counts text using the tiktoken encoding registered for
// modelID, falling back to cl100k_base (and Estimate.Estimated=true) for
// unrecognized model ids — vendors without a published BPE table (Claude,
// Gemini) are approximated this way, reusing cl100k_base as a stand-in.
func (e *TiktokenEstimator) EstimateText(text, modelID string) (Estimate, error) {
	enc, estimated, name, err := e.encodingFor(modelID)
	if err != nil {
		return Estimate{}, err
	}
	tokens := enc.Encode(text, nil, nil)
	return Estimate{Count: len(tokens), Estimated: estimated, TokenizerName: name}, nil
}

func (e *TiktokenEstimator) encodingFor(modelID string) (*tiktoken.Tiktoken, bool, string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if enc, ok := e.cache[modelID]; ok {
		return enc, false, modelID, nil
	}
	fallbackKey := "cl100k_base fallback for " + modelID
	if enc, ok := e.cache[fallbackKey]; ok {
		return enc, true, "cl100k_base", nil
	}

	enc, err := tiktoken.EncodingForModel(modelID)
	if err == nil {
		e.cache[modelID] = enc
		return enc, false, modelID, nil
	}

	enc, err = tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, false, "", err
	}
	e.cache[fallbackKey] = enc
	return enc, true, "cl100k_base", nil
}

// EstimateImage prices an image attachment per rule.
func (e *TiktokenEstimator) EstimateImage(width, height int, rule VisionCostRule) int {
	switch rule.Mode {
	case VisionCostTiled:
		if rule.TileSize <= 0 {
			return rule.BaseTokens
		}
		tilesX := ceilDiv(width, rule.TileSize)
		tilesY := ceilDiv(height, rule.TileSize)
		return rule.BaseTokens + tilesX*tilesY*rule.TileTokens
	default:
		return rule.FixedTokens
	}
}

// EstimateAudio prices an audio attachment as a linear function of
// duration.
func (e *TiktokenEstimator) EstimateAudio(durationSeconds float64) int {
	return int(durationSeconds*audioTokensPerSecond + 0.5)
}

// EstimateVideo prices a video attachment as a linear function of
// duration.
func (e *TiktokenEstimator) EstimateVideo(durationSeconds float64) int {
	return int(durationSeconds*videoTokensPerSecond + 0.5)
}

// EstimateDocument prices a document attachment either per page or as a
// function of its byte size.
func (e *TiktokenEstimator) EstimateDocument(pages int, sizeBytes int64, rule DocumentCostRule) int {
	switch rule.Mode {
	case DocumentCostDynamic:
		if rule.BytesPerToken <= 0 {
			return 0
		}
		return int(sizeBytes / int64(rule.BytesPerToken))
	default:
		return pages * rule.TokensPerPage
	}
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
