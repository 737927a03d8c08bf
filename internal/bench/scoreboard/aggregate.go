package scoreboard

import (
	"sort"

	"github.com/wesleyorama2/squall/internal/bench/sampling"
)

// GlobalCard is the name of the card merging every target.
const GlobalCard = "global"

// TargetCard pairs a target's final card with the aggregation id (usually the
// generator name) it is grouped under.
type TargetCard struct {
	AggregationID string
	Card          *Scorecard
}

// Aggregation is the merged view over all targets of a run.
type Aggregation struct {
	Global          *Scorecard
	ByAggregationID map[string]*Scorecard
}

// Aggregate merges the final cards of concurrently run targets into a global
// card and one card per aggregation id. Every input card is merged exactly
// once into each output it belongs to; the inputs are not modified.
func Aggregate(cards []TargetCard, newSampler sampling.Factory) Aggregation {
	result := Aggregation{
		Global:          NewScorecard(GlobalCard, "", 0, newSampler),
		ByAggregationID: make(map[string]*Scorecard),
	}

	for _, tc := range cards {
		if tc.Card == nil {
			continue
		}
		result.Global.Merge(tc.Card)

		if tc.AggregationID == "" {
			continue
		}
		group, ok := result.ByAggregationID[tc.AggregationID]
		if !ok {
			group = NewScorecard(tc.AggregationID, "", 0, newSampler)
			result.ByAggregationID[tc.AggregationID] = group
		}
		group.Merge(tc.Card)
	}
	return result
}

// Statistics returns the report view: the global card followed by the
// aggregation cards sorted by id.
func (a Aggregation) Statistics() (CardStatistics, []CardStatistics) {
	ids := make([]string, 0, len(a.ByAggregationID))
	for id := range a.ByAggregationID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	groups := make([]CardStatistics, 0, len(ids))
	for _, id := range ids {
		groups = append(groups, a.ByAggregationID[id].Statistics())
	}
	return a.Global.Statistics(), groups
}
