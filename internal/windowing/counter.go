package windowing

import (
	"encoding/json"
	"unicode/utf8"

	"github.com/anthropics/anthropic-sdk-go"
)

// Counter estimates the input cost of one message.
type Counter interface {
	Count(m anthropic.MessageParam) int
}

// RuneCounter is a deterministic estimate: runes of text, tool results and
// tool inputs, plus a fixed overhead per block. It overestimates tokens for
// most languages, which keeps windows on the safe side.
type RuneCounter struct{}

// BlockOverhead is charged once per content block.
const BlockOverhead = 4

func (RuneCounter) Count(m anthropic.MessageParam) int {
	total := 0
	for _, blk := range m.Content {
		total += countBlock(blk) + BlockOverhead
	}
	return total
}

func countBlock(blk anthropic.ContentBlockParamUnion) int {
	switch {
	case blk.OfText != nil:
		return utf8.RuneCountInString(blk.OfText.Text)
	case blk.OfToolUse != nil:
		n := utf8.RuneCountInString(blk.OfToolUse.Name)
		if in := blk.OfToolUse.Input; in != nil {
			if b, err := json.Marshal(in); err == nil {
				n += utf8.RuneCount(b)
			}
		}
		return n
	case blk.OfToolResult != nil:
		n := 0
		for _, c := range blk.OfToolResult.Content {
			if c.OfText != nil {
				n += utf8.RuneCountInString(c.OfText.Text)
			}
		}
		return n
	}
	return 0
}

func spanCost(c Counter, msgs []anthropic.MessageParam, g Group) int {
	total := 0
	for i := g.Start; i < g.End; i++ {
		total += c.Count(msgs[i])
	}
	return total
}
