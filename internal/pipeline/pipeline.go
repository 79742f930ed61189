package pipeline

import "github.com/loom-engine/loom/pkg/types"

// stageFunc is one stage of the assembly pipeline.
type stageFunc struct {
	name string
	run  func(*Context) error
}

// stages lists the eight stages in their fixed, non-configurable order.
// A processor's own enabled flag (e.g. WorldbookEnabled,
// ContextManagement.Enabled) governs whether it does anything, not whether
// it runs at all — every stage always gets a chance to record its own trace
// entry.
var stages = []stageFunc{
	{"session_loader", StageSessionLoader},
	{"regex_processor", StageRegexProcessor},
	{"injection_assembler", StageInjectionAssembler},
	{"transcription", StageTranscription},
	{"worldbook", StageWorldbook},
	{"token_limiter", StageTokenLimiter},
	{"format_processors", StageFormatProcessors},
	{"asset_resolver", StageAssetResolver},
}

// RunPipeline assembles the final provider-ready message list by running
// every stage in order against c. A *types.PipelineFatalError returned by a
// stage aborts the run immediately and is returned to the caller; any other
// error is recorded as a warning and the run continues with
// whatever that stage already produced.
func RunPipeline(c *Context) error {
	for _, s := range stages {
		if err := s.run(c); err != nil {
			var fatal *types.PipelineFatalError
			if asFatal(err, &fatal) {
				return fatal
			}
			c.warn(err)
		}
	}
	return nil
}

func asFatal(err error, target **types.PipelineFatalError) bool {
	fe, ok := err.(*types.PipelineFatalError)
	if !ok {
		return false
	}
	*target = fe
	return true
}
