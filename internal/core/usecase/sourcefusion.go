package usecase

import (
	"fmt"
	"sort"

	"github.com/finsight/evidence-pipeline/internal/core/domain"
)

type ConfidenceBands struct {
	High   float64
	Medium float64
}

type SourceFusionConfig struct {
	CorpusWeights map[domain.Corpus]float64
	TopN          int
	Bands         ConfidenceBands
}

func DefaultSourceFusionConfig() SourceFusionConfig {
	return SourceFusionConfig{
		CorpusWeights: map[domain.Corpus]float64{
			domain.CorpusFacts:       1.0,
			domain.CorpusFilings:     0.9,
			domain.CorpusTranscripts: 0.8,
			domain.CorpusUploads:     0.7,
		},
		TopN:  5,
		Bands: ConfidenceBands{High: 0.7, Medium: 0.4},
	}
}

func (c SourceFusionConfig) Validate() error {
	for corpus, w := range c.CorpusWeights {
		if !corpus.Valid() {
			return domain.WrapError(domain.ErrConfiguration, "source fusion", fmt.Errorf("unknown corpus %q", corpus))
		}
		if w < 0 || w > 1 {
			return domain.WrapError(domain.ErrConfiguration, "source fusion", fmt.Errorf("corpus %s weight %v out of [0,1]", corpus, w))
		}
	}
	if c.TopN <= 0 {
		return domain.WrapError(domain.ErrConfiguration, "source fusion", fmt.Errorf("top_n must be positive, got %d", c.TopN))
	}
	if c.Bands.High < c.Bands.Medium || c.Bands.Medium < 0 || c.Bands.High > 1 {
		return domain.WrapError(domain.ErrConfiguration, "source fusion", fmt.Errorf("confidence bands high=%v medium=%v are inconsistent", c.Bands.High, c.Bands.Medium))
	}
	return nil
}

// SourceFusion weights candidate scores by per-corpus reliability and derives
// the overall confidence for the grounded gate.
type SourceFusion struct {
	cfg SourceFusionConfig
}

func NewSourceFusion(cfg SourceFusionConfig) (*SourceFusion, error) {
	if len(cfg.CorpusWeights) == 0 {
		cfg.CorpusWeights = DefaultSourceFusionConfig().CorpusWeights
	}
	if cfg.TopN <= 0 {
		cfg.TopN = DefaultSourceFusionConfig().TopN
	}
	if cfg.Bands.High == 0 && cfg.Bands.Medium == 0 {
		cfg.Bands = DefaultSourceFusionConfig().Bands
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SourceFusion{cfg: cfg}, nil
}

// Apply multiplies each final score by its corpus reliability weight,
// re-sorts, and computes confidence as the mean of the top-N weighted scores.
// An empty pool yields confidence 0.
func (f *SourceFusion) Apply(candidates []domain.Candidate) ([]domain.Candidate, float64, domain.ConfidenceBand) {
	out := make([]domain.Candidate, len(candidates))
	copy(out, candidates)

	for i := range out {
		weight, ok := f.cfg.CorpusWeights[out[i].Chunk.Corpus]
		if !ok {
			weight = 1.0
		}
		out[i].SourceWeight = weight
		out[i].FinalScore = clamp01(out[i].FinalScore * weight)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FinalScore != out[j].FinalScore {
			return out[i].FinalScore > out[j].FinalScore
		}
		return out[i].Chunk.ID < out[j].Chunk.ID
	})

	confidence := f.confidence(out)
	return out, confidence, f.Band(confidence)
}

// confidence averages the top-N weighted scores over a fixed denominator of
// N, so a pool smaller than N reads as weak evidence and adding a candidate
// can only raise the value.
func (f *SourceFusion) confidence(sorted []domain.Candidate) float64 {
	if len(sorted) == 0 {
		return 0
	}
	n := f.cfg.TopN
	if n > len(sorted) {
		n = len(sorted)
	}
	sum := 0.0
	for _, c := range sorted[:n] {
		sum += c.FinalScore
	}
	return clamp01(sum / float64(f.cfg.TopN))
}

func (f *SourceFusion) Band(confidence float64) domain.ConfidenceBand {
	switch {
	case confidence >= f.cfg.Bands.High:
		return domain.BandHigh
	case confidence >= f.cfg.Bands.Medium:
		return domain.BandMedium
	default:
		return domain.BandLow
	}
}
