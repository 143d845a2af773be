package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/finsight/evidence-pipeline/internal/core/domain"
)

// SparseClient runs the lexical retrieval path over the same points the
// dense path searches, using the named sparse vector.
type SparseClient struct {
	client *Client
}

func NewSparseClient(client *Client) *SparseClient {
	return &SparseClient{client: client}
}

func (s *SparseClient) Search(ctx context.Context, corpus domain.Corpus, query string, k int) ([]domain.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	encoded := encodeSparseQuery(query)
	if len(encoded.Indices) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(map[string]any{
		"query":        encoded,
		"using":        "sparse",
		"limit":        k,
		"with_payload": true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal sparse query body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/query", s.client.baseURL, s.client.collection(corpus))
	var resp queryResponse
	if err := s.client.do(ctx, http.MethodPost, url, body, &resp, "sparse query"); err != nil {
		return nil, domain.WrapError(domain.ErrUnavailable, "qdrant sparse search", err)
	}
	return resp.scoredChunks(), nil
}
