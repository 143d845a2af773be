package memindex

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/finsight/evidence-pipeline/internal/core/domain"
)

// LoadFile reads chunks from a JSON-lines file, one DocumentChunk per
// line. Blank lines are skipped; any malformed line fails the load so a
// corrupt corpus file never half-populates the index.
func LoadFile(path string) ([]domain.DocumentChunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open chunk file: %w", err)
	}
	defer f.Close()

	var chunks []domain.DocumentChunk
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var chunk domain.DocumentChunk
		if err := json.Unmarshal([]byte(raw), &chunk); err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "load chunks", fmt.Errorf("%s:%d: %w", path, line, err))
		}
		validated, err := domain.NewDocumentChunk(chunk.ID, chunk.Text, chunk.Corpus, chunk.Embedding, chunk.Metadata)
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "load chunks", fmt.Errorf("%s:%d: %w", path, line, err))
		}
		chunks = append(chunks, validated)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read chunk file: %w", err)
	}
	return chunks, nil
}

// LoadDir loads every *.jsonl file under dir into a fresh index state.
func LoadDir(idx *Index, dir string) (int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return 0, fmt.Errorf("glob chunk files: %w", err)
	}
	sort.Strings(paths)

	var all []domain.DocumentChunk
	for _, path := range paths {
		chunks, err := LoadFile(path)
		if err != nil {
			return 0, err
		}
		all = append(all, chunks...)
	}
	if err := idx.Load(all); err != nil {
		return 0, err
	}
	return len(all), nil
}
