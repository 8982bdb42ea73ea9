// Package windowing trims an emulated thread's message history to an input
// budget before it is sent to the Messages API. Tool exchanges are never
// split, and a window always opens on a user turn.
package windowing

import "github.com/anthropics/anthropic-sdk-go"

// Kind tells apart plain turns from tool exchanges.
type Kind int

const (
	Single Kind = iota
	// ToolExchange is an assistant tool_use turn plus the user turn that
	// answers every call in it.
	ToolExchange
)

// Group is the span [Start, End) of a history slice.
type Group struct {
	Kind  Kind
	Start int
	End   int
}

// Groups splits msgs into units that must be kept or dropped together.
//
// An assistant turn with tool_use blocks pairs with the following user turn
// only when that turn's leading tool_result blocks answer exactly the same
// call ids. Anything else is a Single.
func Groups(msgs []anthropic.MessageParam) []Group {
	groups := make([]Group, 0, len(msgs))
	for i := 0; i < len(msgs); {
		if i+1 < len(msgs) && answers(msgs[i], msgs[i+1]) {
			groups = append(groups, Group{Kind: ToolExchange, Start: i, End: i + 2})
			i += 2
			continue
		}
		groups = append(groups, Group{Kind: Single, Start: i, End: i + 1})
		i++
	}
	return groups
}

func answers(call, reply anthropic.MessageParam) bool {
	if call.Role != anthropic.MessageParamRoleAssistant || reply.Role != anthropic.MessageParamRoleUser {
		return false
	}
	uses := toolUseIDs(call)
	if len(uses) == 0 {
		return false
	}
	results, ok := leadingResultIDs(reply)
	if !ok || len(results) != len(uses) {
		return false
	}
	for id := range uses {
		if _, ok := results[id]; !ok {
			return false
		}
	}
	return true
}

func toolUseIDs(m anthropic.MessageParam) map[string]struct{} {
	ids := make(map[string]struct{})
	for _, blk := range m.Content {
		if tu := blk.OfToolUse; tu != nil && tu.ID != "" {
			ids[tu.ID] = struct{}{}
		}
	}
	return ids
}

// leadingResultIDs collects tool_result ids from the front of m. It reports
// false when a tool_result follows any other block.
func leadingResultIDs(m anthropic.MessageParam) (map[string]struct{}, bool) {
	ids := make(map[string]struct{})
	other := false
	for _, blk := range m.Content {
		tr := blk.OfToolResult
		if tr == nil {
			other = true
			continue
		}
		if other {
			return nil, false
		}
		if tr.ToolUseID != "" {
			ids[tr.ToolUseID] = struct{}{}
		}
	}
	return ids, true
}

// opensOnUser reports whether g may be the first group of a window.
func opensOnUser(g Group, msgs []anthropic.MessageParam) bool {
	m := msgs[g.Start]
	if m.Role != anthropic.MessageParamRoleUser {
		return false
	}
	for _, blk := range m.Content {
		if blk.OfToolResult != nil {
			return false
		}
	}
	return true
}
