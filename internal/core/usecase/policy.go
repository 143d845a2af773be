package usecase

import (
	"github.com/finsight/evidence-pipeline/internal/core/domain"
)

// DefaultRetrievalPolicy is what an unknown or unmapped intent resolves to:
// a single-pass hybrid retrieval over every corpus with the standard fusion
// weights.
func DefaultRetrievalPolicy() domain.RetrievalPolicy {
	return domain.RetrievalPolicy{
		KPerCorpus: map[domain.Corpus]int{
			domain.CorpusFacts:       10,
			domain.CorpusFilings:     10,
			domain.CorpusTranscripts: 10,
			domain.CorpusUploads:     5,
		},
		DenseWeight:  0.6,
		SparseWeight: 0.4,
		RerankCap:    30,
		ForwardCaps: map[domain.Corpus]int{
			domain.CorpusFacts:       5,
			domain.CorpusFilings:     5,
			domain.CorpusTranscripts: 3,
			domain.CorpusUploads:     2,
		},
	}
}

// IntentPolicies is a total, pure lookup from intent to retrieval policy.
// Unknown intents map to the default policy, never an error.
type IntentPolicies struct {
	byIntent map[domain.Intent]domain.RetrievalPolicy
	fallback domain.RetrievalPolicy
}

func NewIntentPolicies(byIntent map[domain.Intent]domain.RetrievalPolicy, fallback domain.RetrievalPolicy) (*IntentPolicies, error) {
	if err := fallback.Validate(); err != nil {
		return nil, err
	}
	for _, p := range byIntent {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	copied := make(map[domain.Intent]domain.RetrievalPolicy, len(byIntent))
	for intent, p := range byIntent {
		copied[intent] = p
	}
	return &IntentPolicies{byIntent: copied, fallback: fallback}, nil
}

func (p *IntentPolicies) For(intent domain.Intent) domain.RetrievalPolicy {
	if policy, ok := p.byIntent[intent]; ok {
		return policy
	}
	return p.fallback
}
