package domain

import "slices"

// ScoredChunk is a raw index hit before any fusion.
type ScoredChunk struct {
	Chunk DocumentChunk
	Score float64
}

// Candidate is the transient per-query record carrying every score a chunk
// accumulates on its way through the pipeline.
type Candidate struct {
	Chunk        DocumentChunk `json:"chunk"`
	DenseScore   float64       `json:"dense_score"`
	SparseScore  float64       `json:"sparse_score"`
	FusedScore   float64       `json:"fused_score"`
	RerankScore  float64       `json:"rerank_score"`
	FinalScore   float64       `json:"final_score"`
	SourceWeight float64       `json:"source_weight"`
}

type ConfidenceBand string

const (
	BandHigh   ConfidenceBand = "high"
	BandMedium ConfidenceBand = "medium"
	BandLow    ConfidenceBand = "low"
)

// Diagnostics accumulates per-stage degradations and timings instead of
// propagating them as errors.
type Diagnostics struct {
	DegradedSources []string           `json:"degraded_sources,omitempty"`
	StageTimingsMS  map[string]float64 `json:"stage_timings_ms,omitempty"`
}

func (d *Diagnostics) MarkDegraded(source string) {
	if slices.Contains(d.DegradedSources, source) {
		return
	}
	d.DegradedSources = append(d.DegradedSources, source)
}

func (d *Diagnostics) Degraded() bool {
	return len(d.DegradedSources) > 0
}

func (d *Diagnostics) RecordTiming(stage string, ms float64) {
	if d.StageTimingsMS == nil {
		d.StageTimingsMS = make(map[string]float64, 8)
	}
	d.StageTimingsMS[stage] += ms
}

// Merge folds another pass's diagnostics into this one; sub-query passes each
// carry their own and are combined after the dedup merge.
func (d *Diagnostics) Merge(other Diagnostics) {
	for _, s := range other.DegradedSources {
		d.MarkDegraded(s)
	}
	for stage, ms := range other.StageTimingsMS {
		d.RecordTiming(stage, ms)
	}
}

// RetrievalResult is the ordered, confidence-scored evidence set handed to
// the prompt-assembly layer and later to claim verification.
type RetrievalResult struct {
	Candidates   []Candidate    `json:"candidates"`
	Confidence   float64        `json:"confidence"`
	Band         ConfidenceBand `json:"band"`
	CorpusCounts map[Corpus]int `json:"corpus_counts"`
	Diagnostics  Diagnostics    `json:"diagnostics"`
}

// DistinctDocuments counts distinct contributing source documents.
func (r *RetrievalResult) DistinctDocuments() int {
	if r == nil {
		return 0
	}
	seen := make(map[string]struct{}, len(r.Candidates))
	for _, c := range r.Candidates {
		seen[c.Chunk.DocumentKey()] = struct{}{}
	}
	return len(seen)
}

func CountByCorpus(candidates []Candidate) map[Corpus]int {
	counts := make(map[Corpus]int, 4)
	for _, c := range candidates {
		counts[c.Chunk.Corpus]++
	}
	return counts
}
