package usecase

import (
	"context"
	"sort"
	"time"

	"github.com/finsight/evidence-pipeline/internal/core/domain"
	"github.com/finsight/evidence-pipeline/internal/core/ports"
)

type RerankConfig struct {
	Cap         int
	CallTimeout time.Duration
	ForwardCaps map[domain.Corpus]int
}

func (c RerankConfig) normalize() RerankConfig {
	out := c
	if out.Cap <= 0 {
		out.Cap = 30
	}
	if out.CallTimeout <= 0 {
		out.CallTimeout = 3 * time.Second
	}
	return out
}

// RerankStage runs the second-pass cross-encoder over the filtered candidate
// set. All (query, doc) pairs go out in one batched call; when the encoder is
// unavailable the stage passes candidates through in fused order with a
// degraded flag instead of failing.
type RerankStage struct {
	encoder ports.CrossEncoder
	cfg     RerankConfig
}

func NewRerankStage(encoder ports.CrossEncoder, cfg RerankConfig) *RerankStage {
	return &RerankStage{encoder: encoder, cfg: cfg.normalize()}
}

func (s *RerankStage) Apply(
	ctx context.Context,
	query string,
	candidates []domain.Candidate,
	policy domain.RetrievalPolicy,
	diag *domain.Diagnostics,
) []domain.Candidate {
	if len(candidates) == 0 {
		return candidates
	}

	capN := s.cfg.Cap
	if policy.RerankCap > 0 {
		capN = policy.RerankCap
	}
	if capN > len(candidates) {
		capN = len(candidates)
	}

	head := make([]domain.Candidate, capN)
	copy(head, candidates[:capN])
	tail := candidates[capN:]

	scores, ok := s.score(ctx, query, head)
	if !ok {
		diag.MarkDegraded("reranker")
		for i := range head {
			head[i].FinalScore = head[i].FusedScore
		}
	} else {
		norm := normalizeRerankScores(scores)
		for i := range head {
			head[i].RerankScore = norm[i]
			head[i].FinalScore = head[i].RerankScore
		}
		sort.SliceStable(head, func(i, j int) bool {
			if head[i].FinalScore != head[j].FinalScore {
				return head[i].FinalScore > head[j].FinalScore
			}
			return head[i].Chunk.ID < head[j].Chunk.ID
		})
	}

	merged := make([]domain.Candidate, 0, len(candidates))
	merged = append(merged, head...)
	for _, c := range tail {
		c.FinalScore = c.FusedScore
		merged = append(merged, c)
	}

	caps := s.cfg.ForwardCaps
	if len(policy.ForwardCaps) > 0 {
		caps = policy.ForwardCaps
	}
	return applyForwardCaps(merged, caps)
}

func (s *RerankStage) score(ctx context.Context, query string, head []domain.Candidate) ([]float64, bool) {
	if s.encoder == nil {
		return nil, false
	}
	texts := make([]string, len(head))
	for i, c := range head {
		texts[i] = c.Chunk.Text
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	scores, err := s.encoder.Rerank(callCtx, query, texts)
	if err != nil || len(scores) != len(head) {
		return nil, false
	}
	return scores, true
}

// normalizeRerankScores maps a score batch onto [0,1]. Scores already inside
// the unit interval are treated as calibrated probabilities and kept as-is;
// anything outside (logit-scale encoders) is min-max normalized within the
// batch so relative order survives instead of collapsing at the boundaries.
func normalizeRerankScores(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	minScore, maxScore := scores[0], scores[0]
	inUnit := true
	for _, s := range scores {
		if s < minScore {
			minScore = s
		}
		if s > maxScore {
			maxScore = s
		}
		if s < 0 || s > 1 {
			inUnit = false
		}
	}
	if inUnit {
		copy(out, scores)
		return out
	}
	spread := maxScore - minScore
	if spread <= 0 {
		for i, s := range scores {
			out[i] = clamp01(s)
		}
		return out
	}
	for i, s := range scores {
		out[i] = (s - minScore) / spread
	}
	return out
}

// applyForwardCaps limits how many candidates each corpus contributes
// downstream, keeping order. Corpora without a configured cap are unbounded.
func applyForwardCaps(candidates []domain.Candidate, caps map[domain.Corpus]int) []domain.Candidate {
	if len(caps) == 0 {
		return candidates
	}
	taken := make(map[domain.Corpus]int, len(caps))
	out := make([]domain.Candidate, 0, len(candidates))
	for _, c := range candidates {
		limit, capped := caps[c.Chunk.Corpus]
		if capped && taken[c.Chunk.Corpus] >= limit {
			continue
		}
		taken[c.Chunk.Corpus]++
		out = append(out, c)
	}
	return out
}
