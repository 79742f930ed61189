package pipeline

import (
	"strconv"

	"github.com/loom-engine/loom/internal/worldbook"
	"github.com/loom-engine/loom/pkg/types"
)

// StageWorldbook scans message contents for keyword triggers and splices
// activated entries into the message list at their configured injection
// point. The stage is optional and disabled by default unless
// c.WorldbookEnabled and c.Worldbook are both set.
func StageWorldbook(c *Context) error {
	if !c.WorldbookEnabled || c.Worldbook == nil {
		return nil
	}

	var combined string
	for _, m := range c.Messages {
		combined += m.Text() + "\n"
	}
	triggered := c.Worldbook.Match(combined)
	active := worldbook.Activate(c.Worldbook.Entries(), triggered, c.CompletedTurns)
	if len(active) == 0 {
		return nil
	}

	base := c.Messages
	var pending []pendingInjection
	for i, entry := range active {
		msg := Message{
			Role:       entry.Role,
			Content:    types.Content{Text: entry.Content},
			SourceType: SourceWorldbook,
			SourceID:   entry.ID,
		}
		if msg.Role == "" {
			msg.Role = types.RoleSystem
		}

		switch entry.Strategy.Kind {
		case types.InjectDepth:
			pending = append(pending, pendingInjection{
				msg: msg, targetIndex: len(base) - entry.Strategy.Depth,
				order: entry.Strategy.Order, originalIndex: i,
			})
		case types.InjectAdvancedDepth:
			for _, d := range parseAdvancedDepth(entry.Strategy.AdvancedDepth, len(base)) {
				pending = append(pending, pendingInjection{
					msg: msg, targetIndex: len(base) - d,
					order: entry.Strategy.Order, originalIndex: i,
				})
			}
		case types.InjectAnchor:
			idx := len(base)
			if entry.Strategy.Position == types.PositionBefore {
				idx = 0
			}
			pending = append(pending, pendingInjection{
				msg: msg, targetIndex: idx, order: entry.Strategy.Order, originalIndex: i,
			})
		default:
			pending = append(pending, pendingInjection{msg: msg, targetIndex: 0, order: entry.Strategy.Order, originalIndex: i})
		}
	}

	c.Messages = spliceInjections(base, pending)
	c.trace("worldbook", strconv.Itoa(len(active))+" entries activated")
	return nil
}
