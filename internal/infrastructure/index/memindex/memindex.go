// Package memindex holds an exact in-memory index used for development,
// tests, and small corpora. It serves both retrieval paths: brute-force
// cosine over embeddings and BM25 over tokens.
package memindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync/atomic"

	"github.com/finsight/evidence-pipeline/internal/core/domain"
)

// Index is safe for concurrent readers. Writers build a full snapshot
// and swap it in atomically, so queries never observe a partial load.
type Index struct {
	snap atomic.Pointer[snapshot]
}

type snapshot struct {
	byCorpus map[domain.Corpus]*corpusIndex
}

type corpusIndex struct {
	chunks []domain.DocumentChunk

	// Embeddings normalized at load time so search is a dot product.
	normalized [][]float32

	postings  map[string][]posting
	docLens   []int
	avgDocLen float64
}

type posting struct {
	doc int
	tf  int
}

func New() *Index {
	idx := &Index{}
	idx.snap.Store(&snapshot{byCorpus: make(map[domain.Corpus]*corpusIndex)})
	return idx
}

// Load replaces the entire index contents. Chunks without embeddings are
// still searchable through the sparse path.
func (x *Index) Load(chunks []domain.DocumentChunk) error {
	byCorpus := make(map[domain.Corpus][]domain.DocumentChunk)
	for _, chunk := range chunks {
		if !chunk.Corpus.Valid() {
			return domain.WrapError(domain.ErrInvalidInput, "memindex load", fmt.Errorf("chunk %s: unknown corpus %q", chunk.ID, chunk.Corpus))
		}
		byCorpus[chunk.Corpus] = append(byCorpus[chunk.Corpus], chunk)
	}

	next := &snapshot{byCorpus: make(map[domain.Corpus]*corpusIndex, len(byCorpus))}
	for corpus, corpusChunks := range byCorpus {
		next.byCorpus[corpus] = buildCorpusIndex(corpusChunks)
	}
	x.snap.Store(next)
	return nil
}

func (x *Index) Len(corpus domain.Corpus) int {
	ci := x.snap.Load().byCorpus[corpus]
	if ci == nil {
		return 0
	}
	return len(ci.chunks)
}

// Search is the dense path: exact cosine similarity over every chunk in
// the corpus that carries an embedding.
func (x *Index) Search(ctx context.Context, corpus domain.Corpus, vector []float32, k int) ([]domain.ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(vector) == 0 || k <= 0 {
		return nil, nil
	}
	ci := x.snap.Load().byCorpus[corpus]
	if ci == nil {
		return nil, nil
	}

	query := normalize(vector)
	hits := make([]domain.ScoredChunk, 0, k)
	for i, emb := range ci.normalized {
		if len(emb) != len(query) {
			continue
		}
		hits = append(hits, domain.ScoredChunk{
			Chunk: ci.chunks[i],
			Score: float64(dot(query, emb)),
		})
	}
	return topK(hits, k), nil
}

// SparseSearch ranks chunks with BM25 over alphanumeric tokens.
func (x *Index) SparseSearch(ctx context.Context, corpus domain.Corpus, query string, k int) ([]domain.ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	ci := x.snap.Load().byCorpus[corpus]
	if ci == nil || len(ci.chunks) == 0 {
		return nil, nil
	}

	terms := tokenizeAlphaNum(query)
	if len(terms) == 0 {
		return nil, nil
	}

	scores := make(map[int]float64)
	n := float64(len(ci.chunks))
	seen := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}

		plist := ci.postings[term]
		if len(plist) == 0 {
			continue
		}
		df := float64(len(plist))
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		for _, p := range plist {
			tf := float64(p.tf)
			docLen := float64(ci.docLens[p.doc])
			denom := tf + bm25K1*(1-bm25B+bm25B*docLen/ci.avgDocLen)
			scores[p.doc] += idf * tf * (bm25K1 + 1) / denom
		}
	}

	hits := make([]domain.ScoredChunk, 0, len(scores))
	for doc, score := range scores {
		hits = append(hits, domain.ScoredChunk{Chunk: ci.chunks[doc], Score: score})
	}
	return topK(hits, k), nil
}

const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// Sparse adapts the index to the keyword retrieval port.
type Sparse struct {
	idx *Index
}

func NewSparse(idx *Index) *Sparse {
	return &Sparse{idx: idx}
}

func (s *Sparse) Search(ctx context.Context, corpus domain.Corpus, query string, k int) ([]domain.ScoredChunk, error) {
	return s.idx.SparseSearch(ctx, corpus, query, k)
}

func buildCorpusIndex(chunks []domain.DocumentChunk) *corpusIndex {
	ci := &corpusIndex{
		chunks:     chunks,
		normalized: make([][]float32, len(chunks)),
		postings:   make(map[string][]posting),
		docLens:    make([]int, len(chunks)),
	}

	totalLen := 0
	for i, chunk := range chunks {
		ci.normalized[i] = normalize(chunk.Embedding)

		tf := make(map[string]int)
		tokens := tokenizeAlphaNum(chunk.Text)
		for _, token := range tokens {
			tf[token]++
		}
		ci.docLens[i] = len(tokens)
		totalLen += len(tokens)
		for term, count := range tf {
			ci.postings[term] = append(ci.postings[term], posting{doc: i, tf: count})
		}
	}
	if len(chunks) > 0 {
		ci.avgDocLen = float64(totalLen) / float64(len(chunks))
	}
	if ci.avgDocLen == 0 {
		ci.avgDocLen = 1
	}
	return ci
}

func topK(hits []domain.ScoredChunk, k int) []domain.ScoredChunk {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Chunk.ID < hits[j].Chunk.ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func normalize(v []float32) []float32 {
	if len(v) == 0 {
		return nil
	}
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return nil
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
