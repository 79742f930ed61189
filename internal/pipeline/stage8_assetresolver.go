package pipeline

import "github.com/loom-engine/loom/pkg/types"

// AssetResolver turns a still-intermediate media reference into its
// canonical provider-ready form: a base64 data URI or a file URI, as
// selected by preferFileURI. StageAssetResolver sets preferFileURI for
// document assets only; the provider's own document-format preference
// (the model catalog's PreferFileURI flag) is not consulted. This is the
// terminal collaborator of the pipeline — nothing downstream touches
// AssetRef again.
type AssetResolver interface {
	Resolve(asset types.Asset, preferFileURI bool) (types.ResolvedAsset, error)
}

// StageAssetResolver resolves every remaining AssetRef part into its
// canonical Resolved form — the pipeline's terminal
// stage. Parts already carrying inlined text (from Stage 4) are untouched;
// a part still carrying AssetRef after this stage means no resolver was
// configured or its resolution failed (recorded as a warning), and is left
// as-is for the caller to handle.
func StageAssetResolver(c *Context) error {
	if c.AssetResolver == nil {
		return nil
	}

	for i := range c.Messages {
		msg := &c.Messages[i]
		for j := range msg.Content.Parts {
			part := &msg.Content.Parts[j]
			if part.AssetRef == nil {
				continue
			}
			resolved, err := c.AssetResolver.Resolve(*part.AssetRef, part.AssetRef.Kind == types.AssetDocument)
			if err != nil {
				c.warn(&types.PipelineProcessorFailure{Stage: "asset_resolver", Err: err})
				continue
			}
			part.Resolved = &resolved
			part.AssetRef = nil
		}
	}

	c.trace("asset_resolver", "resolved remaining media references")
	return nil
}
