package windowing

import "github.com/anthropics/anthropic-sdk-go"

// Stats describes one Window call.
type Stats struct {
	Budget   int
	Total    int // cost of the returned window
	Included int // groups kept
	Dropped  int // groups left out, oldest first
	// NewestTooLarge is set when the newest group alone exceeds Budget; the
	// window is then empty.
	NewestTooLarge bool
}

// Window returns the newest suffix of msgs that fits budget. Whole groups are
// kept, scanning newest to oldest, and leading groups that do not open on a
// plain user turn are then dropped. A budget <= 0 disables trimming.
//
// The result aliases msgs.
func Window(msgs []anthropic.MessageParam, budget int, c Counter) ([]anthropic.MessageParam, Stats) {
	if budget <= 0 {
		st := Stats{Budget: budget, Included: len(Groups(msgs))}
		for _, m := range msgs {
			st.Total += c.Count(m)
		}
		return msgs, st
	}
	st := Stats{Budget: budget}
	if len(msgs) == 0 {
		return nil, st
	}

	groups := Groups(msgs)
	start := len(groups)
	for gi := len(groups) - 1; gi >= 0; gi-- {
		cost := spanCost(c, msgs, groups[gi])
		if st.Total+cost > budget {
			break
		}
		st.Total += cost
		start = gi
	}
	if start == len(groups) {
		st.Dropped = len(groups)
		st.NewestTooLarge = true
		return nil, st
	}
	for start < len(groups) && !opensOnUser(groups[start], msgs) {
		st.Total -= spanCost(c, msgs, groups[start])
		start++
	}

	st.Included = len(groups) - start
	st.Dropped = start
	if st.Included == 0 {
		st.Total = 0
		return nil, st
	}
	return msgs[groups[start].Start:], st
}
