package usecase

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/finsight/evidence-pipeline/internal/core/domain"
)

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

type fakeDenseIndex struct {
	hits map[domain.Corpus][]domain.ScoredChunk
	err  error
}

func (f *fakeDenseIndex) Search(_ context.Context, corpus domain.Corpus, _ []float32, k int) ([]domain.ScoredChunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	hits := f.hits[corpus]
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

type fakeSparseIndex struct {
	hits map[domain.Corpus][]domain.ScoredChunk
	err  error
}

func (f *fakeSparseIndex) Search(_ context.Context, corpus domain.Corpus, _ string, k int) ([]domain.ScoredChunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	hits := f.hits[corpus]
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func testChunk(id, text string) domain.DocumentChunk {
	return domain.DocumentChunk{
		ID:     id,
		Text:   text,
		Corpus: domain.CorpusFilings,
		Metadata: domain.ChunkMetadata{
			Ticker: "AAPL",
		},
	}
}

func filingsHits(scores map[string]float64) map[domain.Corpus][]domain.ScoredChunk {
	hits := make([]domain.ScoredChunk, 0, len(scores))
	for id, score := range scores {
		hits = append(hits, domain.ScoredChunk{Chunk: testChunk(id, "text "+id), Score: score})
	}
	// Fixed insertion order for deterministic fakes.
	for i := 0; i < len(hits); i++ {
		for j := i + 1; j < len(hits); j++ {
			if hits[j].Score > hits[i].Score || (hits[j].Score == hits[i].Score && hits[j].Chunk.ID < hits[i].Chunk.ID) {
				hits[i], hits[j] = hits[j], hits[i]
			}
		}
	}
	return map[domain.Corpus][]domain.ScoredChunk{domain.CorpusFilings: hits}
}

func TestHybridRetrieverFusedScoresInRange(t *testing.T) {
	retriever := NewHybridRetriever(
		&fakeEmbedder{vector: []float32{1, 0}},
		&fakeDenseIndex{hits: filingsHits(map[string]float64{"c1": 0.95, "c2": 0.50, "c3": 0.10})},
		&fakeSparseIndex{hits: filingsHits(map[string]float64{"c2": 12.0, "c4": 7.5})},
		HybridConfig{},
	)

	var diag domain.Diagnostics
	out := retriever.Retrieve(context.Background(), "apple revenue", domain.CorpusFilings, 10, domain.RetrievalPolicy{}, &diag)
	if len(out) == 0 {
		t.Fatalf("expected candidates")
	}
	for _, c := range out {
		if c.FusedScore < 0 || c.FusedScore > 1 {
			t.Fatalf("fused score %v out of [0,1] for %s", c.FusedScore, c.Chunk.ID)
		}
	}
	if diag.Degraded() {
		t.Fatalf("unexpected degraded flags: %v", diag.DegradedSources)
	}
}

func TestHybridRetrieverDeterministicOrder(t *testing.T) {
	retriever := NewHybridRetriever(
		&fakeEmbedder{vector: []float32{1, 0}},
		&fakeDenseIndex{hits: filingsHits(map[string]float64{"c1": 0.9, "c2": 0.8, "c3": 0.7})},
		&fakeSparseIndex{hits: filingsHits(map[string]float64{"c3": 9.0, "c4": 8.0})},
		HybridConfig{},
	)

	var first []string
	for run := 0; run < 5; run++ {
		var diag domain.Diagnostics
		out := retriever.Retrieve(context.Background(), "apple revenue", domain.CorpusFilings, 10, domain.RetrievalPolicy{}, &diag)
		ids := make([]string, len(out))
		for i, c := range out {
			ids[i] = c.Chunk.ID
		}
		if first == nil {
			first = ids
			continue
		}
		if !reflect.DeepEqual(first, ids) {
			t.Fatalf("run %d order %v differs from first run %v", run, ids, first)
		}
	}
}

func TestHybridRetrieverDegradedPathContributesNothing(t *testing.T) {
	retriever := NewHybridRetriever(
		&fakeEmbedder{vector: []float32{1, 0}},
		&fakeDenseIndex{hits: filingsHits(map[string]float64{"c1": 0.9})},
		&fakeSparseIndex{err: errors.New("index offline")},
		HybridConfig{},
	)

	var diag domain.Diagnostics
	out := retriever.Retrieve(context.Background(), "apple revenue", domain.CorpusFilings, 10, domain.RetrievalPolicy{}, &diag)
	if len(out) != 1 || out[0].Chunk.ID != "c1" {
		t.Fatalf("expected dense-only result, got %+v", out)
	}
	if !diag.Degraded() {
		t.Fatalf("expected degraded flag for sparse path")
	}
}

func TestHybridRetrieverBothPathsDownReturnsEmptyFlagged(t *testing.T) {
	retriever := NewHybridRetriever(
		&fakeEmbedder{err: errors.New("embedder down")},
		&fakeDenseIndex{},
		&fakeSparseIndex{err: errors.New("index offline")},
		HybridConfig{},
	)

	var diag domain.Diagnostics
	out := retriever.Retrieve(context.Background(), "apple revenue", domain.CorpusFilings, 10, domain.RetrievalPolicy{}, &diag)
	if len(out) != 0 {
		t.Fatalf("expected empty result, got %d candidates", len(out))
	}
	if len(diag.DegradedSources) != 2 {
		t.Fatalf("expected both paths flagged, got %v", diag.DegradedSources)
	}
}

func TestHybridRetrieverPolicyWeightsOverrideDefaults(t *testing.T) {
	dense := filingsHits(map[string]float64{"dense-only": 1.0})
	sparse := filingsHits(map[string]float64{"sparse-only": 1.0})
	retriever := NewHybridRetriever(
		&fakeEmbedder{vector: []float32{1}},
		&fakeDenseIndex{hits: dense},
		&fakeSparseIndex{hits: sparse},
		HybridConfig{},
	)

	var diag domain.Diagnostics
	out := retriever.Retrieve(context.Background(), "q", domain.CorpusFilings, 10, domain.RetrievalPolicy{
		DenseWeight:  0.1,
		SparseWeight: 0.9,
	}, &diag)
	if len(out) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(out))
	}
	if out[0].Chunk.ID != "sparse-only" {
		t.Fatalf("expected sparse-weighted candidate first, got %s", out[0].Chunk.ID)
	}
}
