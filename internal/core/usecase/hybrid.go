package usecase

import (
	"context"
	"sort"
	"time"

	"github.com/finsight/evidence-pipeline/internal/core/domain"
	"github.com/finsight/evidence-pipeline/internal/core/ports"
)

// HybridConfig carries the retriever defaults a policy may override.
type HybridConfig struct {
	PathTimeout  time.Duration
	DenseWeight  float64
	SparseWeight float64
}

func (c HybridConfig) normalize() HybridConfig {
	out := c
	if out.PathTimeout <= 0 {
		out.PathTimeout = 2 * time.Second
	}
	if out.DenseWeight <= 0 && out.SparseWeight <= 0 {
		out.DenseWeight = 0.6
		out.SparseWeight = 0.4
	}
	return out
}

// HybridRetriever fuses dense and sparse retrieval for one corpus. The two
// paths run concurrently over read-only indices with independent timeouts; a
// timed-out or failed path contributes zero candidates and marks the source
// degraded rather than failing the call.
type HybridRetriever struct {
	embedder ports.Embedder
	dense    ports.DenseIndex
	sparse   ports.SparseIndex
	cfg      HybridConfig
}

func NewHybridRetriever(embedder ports.Embedder, dense ports.DenseIndex, sparse ports.SparseIndex, cfg HybridConfig) *HybridRetriever {
	return &HybridRetriever{
		embedder: embedder,
		dense:    dense,
		sparse:   sparse,
		cfg:      cfg.normalize(),
	}
}

type pathResult struct {
	hits []domain.ScoredChunk
	err  error
}

func (h *HybridRetriever) Retrieve(
	ctx context.Context,
	query string,
	corpus domain.Corpus,
	k int,
	policy domain.RetrievalPolicy,
	diag *domain.Diagnostics,
) []domain.Candidate {
	if k <= 0 {
		return nil
	}

	denseCh := make(chan pathResult, 1)
	sparseCh := make(chan pathResult, 1)

	go func() {
		pathCtx, cancel := context.WithTimeout(ctx, h.cfg.PathTimeout)
		defer cancel()
		denseCh <- h.searchDense(pathCtx, query, corpus, k)
	}()
	go func() {
		pathCtx, cancel := context.WithTimeout(ctx, h.cfg.PathTimeout)
		defer cancel()
		sparseCh <- h.searchSparse(pathCtx, query, corpus, k)
	}()

	denseRes := <-denseCh
	sparseRes := <-sparseCh

	if denseRes.err != nil {
		diag.MarkDegraded(string(corpus) + "/dense")
		denseRes.hits = nil
	}
	if sparseRes.err != nil {
		diag.MarkDegraded(string(corpus) + "/sparse")
		sparseRes.hits = nil
	}

	wd, ws := h.cfg.DenseWeight, h.cfg.SparseWeight
	if policy.DenseWeight > 0 || policy.SparseWeight > 0 {
		wd, ws = policy.DenseWeight, policy.SparseWeight
	}

	fused := fuseScoredPaths(denseRes.hits, sparseRes.hits, wd, ws)
	if len(fused) > k {
		fused = fused[:k]
	}
	return fused
}

func (h *HybridRetriever) searchDense(ctx context.Context, query string, corpus domain.Corpus, k int) pathResult {
	if h.dense == nil || h.embedder == nil {
		return pathResult{err: domain.ErrUnavailable}
	}
	vector, err := h.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return pathResult{err: err}
	}
	hits, err := h.dense.Search(ctx, corpus, vector, k)
	if err != nil {
		return pathResult{err: err}
	}
	return pathResult{hits: hits}
}

func (h *HybridRetriever) searchSparse(ctx context.Context, query string, corpus domain.Corpus, k int) pathResult {
	if h.sparse == nil {
		return pathResult{err: domain.ErrUnavailable}
	}
	hits, err := h.sparse.Search(ctx, corpus, query, k)
	if err != nil {
		return pathResult{err: err}
	}
	return pathResult{hits: hits}
}

// fuseScoredPaths min-max normalizes each path within its own candidate pool
// and combines them as wd*dense + ws*sparse. Ties break on chunk id
// ascending so repeated runs over an unchanged index return a stable order.
func fuseScoredPaths(dense, sparse []domain.ScoredChunk, wd, ws float64) []domain.Candidate {
	denseNorm := minMaxNormalize(dense)
	sparseNorm := minMaxNormalize(sparse)

	acc := make(map[string]*domain.Candidate, len(dense)+len(sparse))
	add := func(hits []domain.ScoredChunk, norms []float64, isDense bool) {
		for i, hit := range hits {
			c, ok := acc[hit.Chunk.ID]
			if !ok {
				c = &domain.Candidate{Chunk: hit.Chunk}
				acc[hit.Chunk.ID] = c
			}
			if isDense {
				c.DenseScore = norms[i]
			} else {
				c.SparseScore = norms[i]
			}
		}
	}
	add(dense, denseNorm, true)
	add(sparse, sparseNorm, false)

	out := make([]domain.Candidate, 0, len(acc))
	for _, c := range acc {
		c.FusedScore = clamp01(wd*c.DenseScore + ws*c.SparseScore)
		c.FinalScore = c.FusedScore
		out = append(out, *c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		return out[i].Chunk.ID < out[j].Chunk.ID
	})
	return out
}

func minMaxNormalize(hits []domain.ScoredChunk) []float64 {
	if len(hits) == 0 {
		return nil
	}
	minScore, maxScore := hits[0].Score, hits[0].Score
	for _, h := range hits[1:] {
		if h.Score < minScore {
			minScore = h.Score
		}
		if h.Score > maxScore {
			maxScore = h.Score
		}
	}
	scoreRange := maxScore - minScore

	out := make([]float64, len(hits))
	for i, h := range hits {
		if scoreRange <= 0 {
			if h.Score > 0 {
				out[i] = 1
			}
			continue
		}
		out[i] = (h.Score - minScore) / scoreRange
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
