package usecase

import "github.com/finsight/evidence-pipeline/internal/core/domain"

// filterByPeriod drops candidates whose fiscal metadata falls outside the
// filter. Candidates without temporal metadata are kept unless the policy
// requires period-matched evidence. Incoming order is preserved; an empty
// filter is a no-op.
func filterByPeriod(candidates []domain.Candidate, filter domain.TimeFilter, requireSamePeriod bool) []domain.Candidate {
	if filter.Empty() && !requireSamePeriod {
		return candidates
	}

	out := make([]domain.Candidate, 0, len(candidates))
	for _, c := range candidates {
		meta := c.Chunk.Metadata
		if !meta.HasPeriod() {
			if requireSamePeriod && !filter.Empty() {
				continue
			}
			out = append(out, c)
			continue
		}
		if filter.Matches(meta) {
			out = append(out, c)
		}
	}
	return out
}
