package domain

import (
	"fmt"
	"strings"
)

type Corpus string

const (
	CorpusFacts       Corpus = "facts"
	CorpusFilings     Corpus = "filings"
	CorpusTranscripts Corpus = "transcripts"
	CorpusUploads     Corpus = "uploads"
)

// AllCorpora lists corpora in reliability order, most trusted first.
func AllCorpora() []Corpus {
	return []Corpus{CorpusFacts, CorpusFilings, CorpusTranscripts, CorpusUploads}
}

func (c Corpus) Valid() bool {
	switch c {
	case CorpusFacts, CorpusFilings, CorpusTranscripts, CorpusUploads:
		return true
	default:
		return false
	}
}

// ChunkMetadata carries the provenance attached to a chunk at ingestion time.
// FiscalYear zero means the chunk has no temporal metadata.
type ChunkMetadata struct {
	Ticker        string `json:"ticker,omitempty"`
	FiscalYear    int    `json:"fiscal_year,omitempty"`
	FiscalQuarter int    `json:"fiscal_quarter,omitempty"`
	Section       string `json:"section,omitempty"`
	SourceURL     string `json:"source_url,omitempty"`
}

func (m ChunkMetadata) HasPeriod() bool {
	return m.FiscalYear != 0
}

// DocumentChunk is immutable once indexed; all query-time access is read-only.
type DocumentChunk struct {
	ID        string        `json:"id"`
	Text      string        `json:"text"`
	Corpus    Corpus        `json:"corpus"`
	Embedding []float32     `json:"embedding,omitempty"`
	Metadata  ChunkMetadata `json:"metadata"`
}

// NewDocumentChunk validates required fields at construction. Every indexed
// chunk must carry at least one provenance field.
func NewDocumentChunk(id, text string, corpus Corpus, embedding []float32, meta ChunkMetadata) (DocumentChunk, error) {
	if strings.TrimSpace(id) == "" {
		return DocumentChunk{}, WrapError(ErrInvalidInput, "new chunk", fmt.Errorf("empty id"))
	}
	if strings.TrimSpace(text) == "" {
		return DocumentChunk{}, WrapError(ErrInvalidInput, "new chunk", fmt.Errorf("chunk %s: empty text", id))
	}
	if !corpus.Valid() {
		return DocumentChunk{}, WrapError(ErrInvalidInput, "new chunk", fmt.Errorf("chunk %s: unknown corpus %q", id, corpus))
	}
	if strings.TrimSpace(meta.Ticker) == "" && strings.TrimSpace(meta.SourceURL) == "" {
		return DocumentChunk{}, WrapError(ErrInvalidInput, "new chunk", fmt.Errorf("chunk %s: no provenance", id))
	}
	if meta.FiscalQuarter < 0 || meta.FiscalQuarter > 4 {
		return DocumentChunk{}, WrapError(ErrInvalidInput, "new chunk", fmt.Errorf("chunk %s: fiscal quarter %d out of range", id, meta.FiscalQuarter))
	}
	return DocumentChunk{
		ID:        id,
		Text:      text,
		Corpus:    corpus,
		Embedding: embedding,
		Metadata:  meta,
	}, nil
}

// DocumentKey identifies the source document a chunk came from, used when
// counting distinct pieces of evidence.
func (c DocumentChunk) DocumentKey() string {
	if c.Metadata.SourceURL != "" {
		return c.Metadata.SourceURL
	}
	return c.ID
}
