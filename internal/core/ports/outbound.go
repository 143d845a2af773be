package ports

import (
	"context"

	"github.com/finsight/evidence-pipeline/internal/core/domain"
)

// Embedder wraps the external encode(text)->vector service.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// CrossEncoder wraps the external rerank(query, candidates)->scores service.
// Returned scores align 1:1 with the input order.
type CrossEncoder interface {
	Rerank(ctx context.Context, query string, texts []string) ([]float64, error)
}

// DenseIndex performs nearest-neighbor search over a corpus's embeddings.
// Indices are read-mostly and must tolerate concurrent readers.
type DenseIndex interface {
	Search(ctx context.Context, corpus domain.Corpus, vector []float32, k int) ([]domain.ScoredChunk, error)
}

// SparseIndex performs keyword ranking over a corpus.
type SparseIndex interface {
	Search(ctx context.Context, corpus domain.Corpus, query string, k int) ([]domain.ScoredChunk, error)
}

// EventSink receives the per-query observability record.
type EventSink interface {
	Publish(ctx context.Context, event domain.QueryEvent) error
}

// QueryLogStore persists observability records for offline analysis.
type QueryLogStore interface {
	Insert(ctx context.Context, event domain.QueryEvent) error
}
