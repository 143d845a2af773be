package usecase

import (
	"testing"

	"github.com/finsight/evidence-pipeline/internal/core/domain"
)

func TestDecideTruthTable(t *testing.T) {
	cfg := DefaultDecisionConfig()
	cases := []struct {
		name          string
		confidence    float64
		evidence      int
		contradiction bool
		wantOutcome   domain.Outcome
		wantReason    domain.DeclineReason
	}{
		{"answerable", 0.8, 5, false, domain.OutcomeAnswer, domain.ReasonNone},
		{"low confidence", 0.2, 5, false, domain.OutcomeDecline, domain.ReasonLowConfidence},
		{"insufficient evidence", 0.8, 1, false, domain.OutcomeDecline, domain.ReasonInsufficientEvidence},
		{"contradiction", 0.8, 5, true, domain.OutcomeDecline, domain.ReasonContradictionDetected},
		{"low confidence beats contradiction", 0.1, 1, true, domain.OutcomeDecline, domain.ReasonLowConfidence},
		{"insufficient beats contradiction", 0.8, 2, true, domain.OutcomeDecline, domain.ReasonInsufficientEvidence},
	}
	for _, tc := range cases {
		d := Decide(cfg, tc.confidence, tc.evidence, tc.contradiction)
		if d.Outcome != tc.wantOutcome || d.Reason != tc.wantReason {
			t.Fatalf("%s: got outcome=%s reason=%s, want %s/%s", tc.name, d.Outcome, d.Reason, tc.wantOutcome, tc.wantReason)
		}
	}
}

func factChunk(id, ticker, text string, year, quarter int) domain.Candidate {
	return domain.Candidate{
		Chunk: domain.DocumentChunk{
			ID:     id,
			Text:   text,
			Corpus: domain.CorpusFacts,
			Metadata: domain.ChunkMetadata{
				Ticker:        ticker,
				FiscalYear:    year,
				FiscalQuarter: quarter,
			},
		},
		FinalScore: 0.9,
	}
}

func TestDetectContradictionDifferingValuesSameKey(t *testing.T) {
	cfg := DefaultDecisionConfig()
	candidates := []domain.Candidate{
		factChunk("a", "AAPL", "Apple revenue for FY2024 was $394.3 billion.", 2024, 0),
		factChunk("b", "AAPL", "Apple revenue reached $500 billion in FY2024.", 2024, 0),
	}
	if !DetectContradiction(cfg, candidates, []string{"revenue"}) {
		t.Fatalf("expected contradiction for differing revenue magnitudes")
	}
}

func TestDetectContradictionTolerantOfSmallDeltas(t *testing.T) {
	cfg := DefaultDecisionConfig()
	candidates := []domain.Candidate{
		factChunk("a", "AAPL", "Apple revenue for FY2024 was $394.3 billion.", 2024, 0),
		factChunk("b", "AAPL", "Apple revenue was approximately $394 billion in FY2024.", 2024, 0),
	}
	if DetectContradiction(cfg, candidates, []string{"revenue"}) {
		t.Fatalf("sub-tolerance difference must not count as contradiction")
	}
}

func TestDetectContradictionDifferentKeysDoNotConflict(t *testing.T) {
	cfg := DefaultDecisionConfig()
	candidates := []domain.Candidate{
		factChunk("a", "AAPL", "Apple revenue for FY2024 was $394.3 billion.", 2024, 0),
		factChunk("b", "MSFT", "Microsoft revenue reached $245 billion in FY2024.", 2024, 0),
		factChunk("c", "AAPL", "Apple revenue for FY2023 was $383 billion.", 2023, 0),
	}
	if DetectContradiction(cfg, candidates, []string{"revenue"}) {
		t.Fatalf("different tickers or periods must never contradict each other")
	}
}

func TestDetectContradictionIgnoresNonNumericChunks(t *testing.T) {
	cfg := DefaultDecisionConfig()
	candidates := []domain.Candidate{
		factChunk("a", "AAPL", "Apple revenue grew on strong services demand.", 2024, 0),
		factChunk("b", "AAPL", "Revenue outlook remains uncertain.", 2024, 0),
	}
	if DetectContradiction(cfg, candidates, []string{"revenue"}) {
		t.Fatalf("chunks without magnitude figures cannot contradict")
	}
}
