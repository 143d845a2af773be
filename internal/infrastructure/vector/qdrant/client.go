package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finsight/evidence-pipeline/internal/core/domain"
)

// Client talks to a Qdrant server holding one collection per corpus.
// Every collection carries a named dense vector and a named sparse
// vector so both retrieval paths read from the same points.
type Client struct {
	baseURL          string
	collectionPrefix string
	httpClient       *http.Client

	ensureMu sync.Mutex
	ensured  map[string]int
}

func New(baseURL, collectionPrefix string) *Client {
	return &Client{
		baseURL:          strings.TrimRight(baseURL, "/"),
		collectionPrefix: collectionPrefix,
		httpClient:       &http.Client{Timeout: 30 * time.Second},
		ensured:          make(map[string]int),
	}
}

func (c *Client) collection(corpus domain.Corpus) string {
	return c.collectionPrefix + "_" + string(corpus)
}

// UpsertChunks writes chunks with their dense vectors into the corpus
// collection. Point IDs are derived from the chunk ID so re-ingesting a
// document overwrites its previous points instead of duplicating them.
func (c *Client) UpsertChunks(ctx context.Context, corpus domain.Corpus, chunks []domain.DocumentChunk, vectors [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("qdrant upsert: %d chunks, %d vectors", len(chunks), len(vectors))
	}
	if err := c.ensureCollection(ctx, corpus, len(vectors[0])); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  map[string]any `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	points := make([]point, 0, len(chunks))
	for i, chunk := range chunks {
		points = append(points, point{
			ID: uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunk.ID)).String(),
			Vector: map[string]any{
				"dense":  vectors[i],
				"sparse": encodeSparseDocument(chunk.Text, chunk.Metadata.Ticker),
			},
			Payload: chunkPayload(chunk),
		})
	}

	body, err := json.Marshal(map[string]any{"points": points})
	if err != nil {
		return fmt.Errorf("marshal upsert body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection(corpus))
	return c.do(ctx, http.MethodPut, url, body, nil, "upsert")
}

// Search implements the dense retrieval path.
func (c *Client) Search(ctx context.Context, corpus domain.Corpus, vector []float32, k int) ([]domain.ScoredChunk, error) {
	if len(vector) == 0 || k <= 0 {
		return nil, nil
	}

	body, err := json.Marshal(map[string]any{
		"query":        vector,
		"using":        "dense",
		"limit":        k,
		"with_payload": true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal dense query body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/query", c.baseURL, c.collection(corpus))
	var resp queryResponse
	if err := c.do(ctx, http.MethodPost, url, body, &resp, "dense query"); err != nil {
		return nil, domain.WrapError(domain.ErrUnavailable, "qdrant dense search", err)
	}
	return resp.scoredChunks(), nil
}

func (c *Client) ensureCollection(ctx context.Context, corpus domain.Corpus, vectorSize int) error {
	name := c.collection(corpus)

	c.ensureMu.Lock()
	if size, ok := c.ensured[name]; ok && size == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	body, err := json.Marshal(map[string]any{
		"vectors": map[string]any{
			"dense": map[string]any{
				"size":     vectorSize,
				"distance": "Cosine",
			},
		},
		"sparse_vectors": map[string]any{
			"sparse": map[string]any{},
		},
	})
	if err != nil {
		return fmt.Errorf("marshal ensure collection body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create ensure collection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant ensure collection request: %w", err)
	}
	defer resp.Body.Close()

	// 409 means the collection already exists.
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusConflict {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(raw)); msg != "" {
			return fmt.Errorf("qdrant ensure collection status: %s: %s", resp.Status, msg)
		}
		return fmt.Errorf("qdrant ensure collection status: %s", resp.Status)
	}

	c.ensureMu.Lock()
	c.ensured[name] = vectorSize
	c.ensureMu.Unlock()
	return nil
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, out any, operation string) error {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(raw)); msg != "" {
			return fmt.Errorf("qdrant %s status: %s: %s", operation, resp.Status, msg)
		}
		return fmt.Errorf("qdrant %s status: %s", operation, resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

type queryResponse struct {
	Result struct {
		Points []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"points"`
	} `json:"result"`
}

func (r queryResponse) scoredChunks() []domain.ScoredChunk {
	out := make([]domain.ScoredChunk, 0, len(r.Result.Points))
	for _, p := range r.Result.Points {
		out = append(out, domain.ScoredChunk{
			Chunk: chunkFromPayload(p.Payload),
			Score: p.Score,
		})
	}
	return out
}

func chunkPayload(chunk domain.DocumentChunk) map[string]any {
	return map[string]any{
		"chunk_id":       chunk.ID,
		"corpus":         string(chunk.Corpus),
		"text":           chunk.Text,
		"ticker":         chunk.Metadata.Ticker,
		"fiscal_year":    chunk.Metadata.FiscalYear,
		"fiscal_quarter": chunk.Metadata.FiscalQuarter,
		"section":        chunk.Metadata.Section,
		"source_url":     chunk.Metadata.SourceURL,
	}
}

func chunkFromPayload(payload map[string]any) domain.DocumentChunk {
	return domain.DocumentChunk{
		ID:     getStringPayload(payload, "chunk_id"),
		Corpus: domain.Corpus(getStringPayload(payload, "corpus")),
		Text:   getStringPayload(payload, "text"),
		Metadata: domain.ChunkMetadata{
			Ticker:        getStringPayload(payload, "ticker"),
			FiscalYear:    getIntPayload(payload, "fiscal_year"),
			FiscalQuarter: getIntPayload(payload, "fiscal_quarter"),
			Section:       getStringPayload(payload, "section"),
			SourceURL:     getStringPayload(payload, "source_url"),
		},
	}
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int {
	v, ok := payload[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	default:
		return 0
	}
}
