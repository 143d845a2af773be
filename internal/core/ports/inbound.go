package ports

import (
	"context"

	"github.com/finsight/evidence-pipeline/internal/core/domain"
)

// EvidenceRetriever is the inbound contract for the retrieval pipeline.
type EvidenceRetriever interface {
	Retrieve(ctx context.Context, query domain.StructuredQuery) (*domain.RetrievalResult, domain.Decision, error)
}

// AnswerVerifier checks a generated answer against previously retrieved
// evidence.
type AnswerVerifier interface {
	Verify(ctx context.Context, answer string, result *domain.RetrievalResult) (*domain.VerificationReport, error)
}
