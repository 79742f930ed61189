package pipeline

import (
	"github.com/loom-engine/loom/pkg/types"
)

// StageTokenLimiter enforces the agent's configured token budget. It is a
// no-op when context management is disabled. Messages
// are split into protected (never truncated: presets, user profile, depth/
// anchor injections) and disposable (session history, worldbook entries),
// and disposable messages are dropped oldest-to-newest until the total fits,
// with the oldest surviving disposable message optionally collapsed to a
// head summary of RetainedCharacters rather than dropped outright.
func StageTokenLimiter(c *Context) error {
	if c.Agent == nil || !c.Agent.Parameters.ContextManagement.Enabled {
		return nil
	}
	cm := c.Agent.Parameters.ContextManagement
	if cm.MaxContextTokens <= 0 || c.TokenEstimator == nil {
		return nil
	}

	for i := range c.Messages {
		c.Messages[i].TokenCount = c.estimateTokens(&c.Messages[i])
	}

	protectedTotal := 0
	disposable := make([]int, 0, len(c.Messages))
	for i, m := range c.Messages {
		if m.SourceType.Protected() {
			protectedTotal += m.TokenCount
		} else {
			disposable = append(disposable, i)
		}
	}

	if protectedTotal > cm.MaxContextTokens {
		c.warn(types.ErrBudgetExceeded)
		return nil
	}

	total := protectedTotal
	for _, i := range disposable {
		total += c.Messages[i].TokenCount
	}
	if total <= cm.MaxContextTokens {
		return nil
	}

	// Drop disposable messages oldest-first (session history and worldbook
	// entries are already in chronological order within the list) until the
	// budget fits, then try collapsing the oldest survivor to a head
	// summary instead of dropping it outright.
	keep := make(map[int]bool, len(disposable))
	for _, i := range disposable {
		keep[i] = true
	}

	drop := func(i int) {
		total -= c.Messages[i].TokenCount
		keep[i] = false
	}

	for _, i := range disposable {
		if total <= cm.MaxContextTokens {
			break
		}
		if !keep[i] {
			continue
		}
		if cm.RetainedCharacters > 0 && total-c.Messages[i].TokenCount <= cm.MaxContextTokens {
			// Dropping this one message alone would satisfy the budget;
			// try collapsing it to a head summary instead of losing it
			// entirely.
			if collapsed, ok := c.collapseToSummary(&c.Messages[i], cm.RetainedCharacters); ok {
				total += collapsed - c.Messages[i].TokenCount
				c.Messages[i].TokenCount = collapsed
				c.Messages[i].IsTruncated = true
				continue
			}
		}
		drop(i)
	}

	if total > cm.MaxContextTokens {
		c.warn(types.ErrBudgetExceeded)
	}

	out := make([]Message, 0, len(c.Messages))
	for i, m := range c.Messages {
		if m.SourceType.Protected() || keep[i] {
			out = append(out, m)
		}
	}
	c.Messages = out
	c.trace("token_limiter", "enforced context token budget")
	return nil
}

func (c *Context) estimateTokens(m *Message) int {
	text := m.Text()
	count := 0
	est, err := c.TokenEstimator.EstimateText(text, c.ModelID)
	if err != nil {
		c.warn(&types.PipelineProcessorFailure{Stage: "token_limiter", Err: err})
		count = len(text) / 4
	} else {
		count = est.Count
	}
	return count + c.attachmentTokens(m)
}

// attachmentTokens prices the media parts still riding on a message: each
// modality through its own cost rule.
func (c *Context) attachmentTokens(m *Message) int {
	total := 0
	for _, p := range m.Content.Parts {
		if p.AssetRef == nil {
			continue
		}
		a := p.AssetRef
		switch a.Kind {
		case types.AssetImage:
			total += c.TokenEstimator.EstimateImage(a.Width, a.Height, c.VisionRule)
		case types.AssetAudio:
			total += c.TokenEstimator.EstimateAudio(a.Duration)
		case types.AssetVideo:
			total += c.TokenEstimator.EstimateVideo(a.Duration)
		case types.AssetDocument:
			total += c.TokenEstimator.EstimateDocument(a.Pages, 0, c.DocumentRule)
		}
	}
	return total
}

// collapseToSummary truncates a message's text to its first retainedChars
// characters, re-estimating its token count. Returns false (no change) for
// messages already shorter than the retention window.
func (c *Context) collapseToSummary(m *Message, retainedChars int) (int, bool) {
	if !m.Content.IsPlainText() {
		return 0, false
	}
	text := m.Content.Text
	if len(text) <= retainedChars {
		return 0, false
	}
	m.Content.Text = text[:retainedChars] + "…"
	return c.estimateTokens(m), true
}
