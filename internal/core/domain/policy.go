package domain

import "fmt"

// RetrievalPolicy is the per-intent retrieval configuration resolved before a
// query runs. Zero-valued fields fall back to pipeline defaults.
type RetrievalPolicy struct {
	KPerCorpus        map[Corpus]int
	DenseWeight       float64
	SparseWeight      float64
	UseMultiHop       bool
	RequireSamePeriod bool
	// RequireSameUnits is accepted from config but not yet enforced;
	// enforcing it needs per-chunk unit metadata, which ingestion does
	// not carry today.
	RequireSameUnits bool
	RerankCap        int
	ForwardCaps       map[Corpus]int
}

// Validate rejects malformed policies at config load; a policy error is fatal
// at startup, never at query time.
func (p RetrievalPolicy) Validate() error {
	if p.DenseWeight < 0 || p.DenseWeight > 1 {
		return WrapError(ErrConfiguration, "validate policy", fmt.Errorf("dense_weight %v out of [0,1]", p.DenseWeight))
	}
	if p.SparseWeight < 0 || p.SparseWeight > 1 {
		return WrapError(ErrConfiguration, "validate policy", fmt.Errorf("sparse_weight %v out of [0,1]", p.SparseWeight))
	}
	if p.DenseWeight+p.SparseWeight == 0 {
		return WrapError(ErrConfiguration, "validate policy", fmt.Errorf("dense and sparse weights are both zero"))
	}
	for corpus, k := range p.KPerCorpus {
		if !corpus.Valid() {
			return WrapError(ErrConfiguration, "validate policy", fmt.Errorf("unknown corpus %q", corpus))
		}
		if k < 0 {
			return WrapError(ErrConfiguration, "validate policy", fmt.Errorf("corpus %s: negative k %d", corpus, k))
		}
	}
	for corpus, cap := range p.ForwardCaps {
		if !corpus.Valid() {
			return WrapError(ErrConfiguration, "validate policy", fmt.Errorf("forward cap for unknown corpus %q", corpus))
		}
		if cap < 0 {
			return WrapError(ErrConfiguration, "validate policy", fmt.Errorf("corpus %s: negative forward cap %d", corpus, cap))
		}
	}
	if p.RerankCap < 0 {
		return WrapError(ErrConfiguration, "validate policy", fmt.Errorf("negative rerank cap %d", p.RerankCap))
	}
	return nil
}

func (p RetrievalPolicy) K(corpus Corpus) int {
	if k, ok := p.KPerCorpus[corpus]; ok {
		return k
	}
	return 0
}
