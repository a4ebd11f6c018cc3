package windowing

import "github.com/petasbytes/buildfile-agent/memory"

// Stats summarizes the result of window preparation.
//
// Fields:
// - Total: estimated cost of included groups only.
// - Budget, MaxTurns: the limits used (<= 0 means unlimited).
// - IncludedGroups, IncludedTurns: what made it into the window.
// - SkippedGroups: total groups minus IncludedGroups.
// - OverLimitNewest: true when the newest single group alone exceeds a limit.
type Stats struct {
	Total           int
	Budget          int
	MaxTurns        int
	IncludedGroups  int
	IncludedTurns   int
	SkippedGroups   int
	OverLimitNewest bool
}

// PrepareHistory returns the newest suffix of msgs (oldest→newest) that fits
// within maxTurns messages and budget cost units, without splitting groups.
//
// Rules:
// - Include whole groups scanning newest→oldest while both limits hold.
// - If the newest group alone breaks a limit, return an empty window and set OverLimitNewest.
// - A limit <= 0 is not applied.
func PrepareHistory(msgs []memory.Message, maxTurns, budget int, c TokenCounter) ([]memory.Message, Stats) {
	stats := Stats{Budget: budget, MaxTurns: maxTurns}
	if len(msgs) == 0 {
		return nil, stats
	}

	groups := GroupBlocks(msgs)
	total, turns, included := 0, 0, 0
	startIdx := len(groups)
	for gi := len(groups) - 1; gi >= 0; gi-- {
		g := groups[gi]
		cost := c.CountGroup(g, msgs)
		size := g.End - g.Start
		fits := (budget <= 0 || total+cost <= budget) && (maxTurns <= 0 || turns+size <= maxTurns)
		if !fits {
			if included == 0 {
				vlogf("reason=over_limit_newest_group budget=%d cost=%d turns=%d", budget, cost, size)
				stats.SkippedGroups = len(groups)
				stats.OverLimitNewest = true
				return nil, stats
			}
			break
		}
		total += cost
		turns += size
		included++
		startIdx = gi
	}

	stats.Total = total
	stats.IncludedGroups = included
	stats.IncludedTurns = turns
	stats.SkippedGroups = len(groups) - included
	return msgs[groups[startIdx].Start:], stats
}
