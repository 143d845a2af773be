package usecase

import (
	"testing"

	"github.com/finsight/evidence-pipeline/internal/core/domain"
)

func scoredCandidate(id string, corpus domain.Corpus, final float64) domain.Candidate {
	c := fusedCandidate(id, corpus, final)
	c.FinalScore = final
	return c
}

func TestSourceFusionWeightsByCorpusReliability(t *testing.T) {
	fusion, err := NewSourceFusion(SourceFusionConfig{})
	if err != nil {
		t.Fatalf("NewSourceFusion: %v", err)
	}

	out, _, _ := fusion.Apply([]domain.Candidate{
		scoredCandidate("fact", domain.CorpusFacts, 0.8),
		scoredCandidate("upload", domain.CorpusUploads, 0.8),
	})
	if out[0].Chunk.ID != "fact" {
		t.Fatalf("structured fact should outrank upload at equal raw score, got %s first", out[0].Chunk.ID)
	}
	if out[1].FinalScore >= out[0].FinalScore {
		t.Fatalf("upload weight must reduce final score: %v vs %v", out[1].FinalScore, out[0].FinalScore)
	}
	if out[0].SourceWeight != 1.0 || out[1].SourceWeight != 0.7 {
		t.Fatalf("unexpected source weights %v / %v", out[0].SourceWeight, out[1].SourceWeight)
	}
}

func TestSourceFusionEmptyPoolHasZeroConfidence(t *testing.T) {
	fusion, err := NewSourceFusion(SourceFusionConfig{})
	if err != nil {
		t.Fatalf("NewSourceFusion: %v", err)
	}
	out, confidence, band := fusion.Apply(nil)
	if len(out) != 0 || confidence != 0 {
		t.Fatalf("empty pool must yield confidence 0, got %v", confidence)
	}
	if band != domain.BandLow {
		t.Fatalf("empty pool must be low band, got %s", band)
	}
}

func TestSourceFusionConfidenceMonotonicity(t *testing.T) {
	fusion, err := NewSourceFusion(SourceFusionConfig{})
	if err != nil {
		t.Fatalf("NewSourceFusion: %v", err)
	}

	pool := []domain.Candidate{
		scoredCandidate("a", domain.CorpusFacts, 0.9),
		scoredCandidate("b", domain.CorpusFacts, 0.8),
	}
	_, before, _ := fusion.Apply(pool)

	grown := append(pool, scoredCandidate("c", domain.CorpusFacts, 0.95))
	_, after, _ := fusion.Apply(grown)

	if after < before {
		t.Fatalf("adding a corroborating candidate decreased confidence: %v -> %v", before, after)
	}
}

func TestSourceFusionBands(t *testing.T) {
	fusion, err := NewSourceFusion(SourceFusionConfig{})
	if err != nil {
		t.Fatalf("NewSourceFusion: %v", err)
	}
	cases := []struct {
		confidence float64
		want       domain.ConfidenceBand
	}{
		{0.85, domain.BandHigh},
		{0.7, domain.BandHigh},
		{0.5, domain.BandMedium},
		{0.4, domain.BandMedium},
		{0.1, domain.BandLow},
	}
	for _, tc := range cases {
		if got := fusion.Band(tc.confidence); got != tc.want {
			t.Fatalf("band(%v) = %s, want %s", tc.confidence, got, tc.want)
		}
	}
}

func TestSourceFusionRejectsBadWeights(t *testing.T) {
	_, err := NewSourceFusion(SourceFusionConfig{
		CorpusWeights: map[domain.Corpus]float64{domain.CorpusFacts: 1.5},
	})
	if err == nil {
		t.Fatalf("expected configuration error for weight > 1")
	}
	if !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}
