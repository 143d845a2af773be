package usecase

import (
	"sort"
	"strings"

	"github.com/finsight/evidence-pipeline/internal/core/domain"
)

// MultiHopController decomposes compound queries into bounded sub-queries
// whose results merge deterministically regardless of execution order.
type MultiHopController struct {
	maxSubQueries int
}

func NewMultiHopController(maxSubQueries int) *MultiHopController {
	if maxSubQueries <= 0 {
		maxSubQueries = 6
	}
	return &MultiHopController{maxSubQueries: maxSubQueries}
}

// ShouldDecompose fires when the policy asks for multi-hop or the complexity
// heuristic does: multiple distinct entities AND multiple requested metrics.
func (c *MultiHopController) ShouldDecompose(q domain.StructuredQuery, policy domain.RetrievalPolicy) bool {
	if policy.UseMultiHop {
		return true
	}
	return len(q.Entities) >= 2 && len(q.Metrics) >= 2
}

// Plan returns the ordered sub-query texts: one per entity/metric pair plus
// one for the compound relation. A plan over the cap returns ok=false and the
// caller falls back to a single non-decomposed pass with a degraded flag.
func (c *MultiHopController) Plan(q domain.StructuredQuery) ([]string, bool) {
	pairs := make([]string, 0, len(q.Entities)*len(q.Metrics)+1)
	for _, e := range q.Entities {
		name := e.Name
		if name == "" {
			name = e.Ticker
		}
		for _, m := range q.Metrics {
			pairs = append(pairs, strings.TrimSpace(name+" "+m))
		}
	}
	pairs = append(pairs, q.RawText)

	if len(pairs) > c.maxSubQueries {
		return nil, false
	}
	return pairs, true
}

// mergeByChunkID dedups sub-query results, keeping the max-final-score
// instance of each chunk. The output order depends only on the merged set,
// never on which sub-query finished first.
func mergeByChunkID(lists [][]domain.Candidate) []domain.Candidate {
	acc := make(map[string]domain.Candidate)
	for _, list := range lists {
		for _, c := range list {
			prev, ok := acc[c.Chunk.ID]
			if !ok || c.FinalScore > prev.FinalScore {
				acc[c.Chunk.ID] = c
			}
		}
	}

	out := make([]domain.Candidate, 0, len(acc))
	for _, c := range acc {
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FinalScore != out[j].FinalScore {
			return out[i].FinalScore > out[j].FinalScore
		}
		return out[i].Chunk.ID < out[j].Chunk.ID
	})
	return out
}
