package usecase

import (
	"testing"

	"github.com/finsight/evidence-pipeline/internal/core/domain"
)

func evidenceResult(texts ...string) *domain.RetrievalResult {
	candidates := make([]domain.Candidate, 0, len(texts))
	for i, text := range texts {
		candidates = append(candidates, domain.Candidate{
			Chunk: domain.DocumentChunk{
				ID:       string(rune('a' + i)),
				Text:     text,
				Corpus:   domain.CorpusFilings,
				Metadata: domain.ChunkMetadata{Ticker: "AAPL", FiscalYear: 2024},
			},
			FinalScore: 0.9,
		})
	}
	return &domain.RetrievalResult{Candidates: candidates}
}

func newVerifier(t *testing.T) *ClaimVerifier {
	t.Helper()
	v, err := NewClaimVerifier(VerifyConfig{})
	if err != nil {
		t.Fatalf("NewClaimVerifier: %v", err)
	}
	return v
}

func TestVerifySupportedClaim(t *testing.T) {
	v := newVerifier(t)
	result := evidenceResult("Apple revenue FY2024 $394.3 billion")

	report := v.Verify("Apple's revenue was $394.3B in FY2024.", result)
	if len(report.Claims) != 1 {
		t.Fatalf("expected 1 claim, got %d", len(report.Claims))
	}
	claim := report.Claims[0]
	if claim.Label != domain.ClaimSupported {
		t.Fatalf("expected SUPPORTED, got %s (overlap %v)", claim.Label, claim.OverlapScore)
	}
	if claim.OverlapScore <= 0.7 {
		t.Fatalf("expected overlap > 0.7, got %v", claim.OverlapScore)
	}
	if report.OverallConfidence != 1.0 {
		t.Fatalf("expected overall confidence 1.0, got %v", report.OverallConfidence)
	}
}

func TestVerifyUnrelatedClaimNotFound(t *testing.T) {
	v := newVerifier(t)
	result := evidenceResult("Apple revenue FY2024 $394.3 billion")

	report := v.Verify("Penguins migrate across the southern ocean every winter.", result)
	if report.Claims[0].Label != domain.ClaimNotFound {
		t.Fatalf("expected NOT_FOUND, got %s", report.Claims[0].Label)
	}
}

func TestVerifyNumericMismatchContradicted(t *testing.T) {
	v := newVerifier(t)
	result := evidenceResult("Apple revenue FY2024 $394.3 billion")

	report := v.Verify("Apple's revenue was $500B in FY2024.", result)
	claim := report.Claims[0]
	if claim.Label != domain.ClaimContradicted {
		t.Fatalf("expected CONTRADICTED, got %s (overlap %v)", claim.Label, claim.OverlapScore)
	}
	if report.OverallConfidence != 0 {
		t.Fatalf("expected overall confidence 0, got %v", report.OverallConfidence)
	}
}

func TestVerifyEmptyAnswerYieldsNoClaims(t *testing.T) {
	v := newVerifier(t)
	result := evidenceResult("Apple revenue FY2024 $394.3 billion")

	report := v.Verify("   ", result)
	if !report.NoClaims {
		t.Fatalf("expected no-claims flag")
	}
	if report.OverallConfidence != 0 {
		t.Fatalf("expected confidence 0, got %v", report.OverallConfidence)
	}
	if len(report.Claims) != 0 {
		t.Fatalf("expected empty claim list")
	}
}

func TestVerifyNilResultNeverPanics(t *testing.T) {
	v := newVerifier(t)
	report := v.Verify("Apple grew revenue.", nil)
	if report.Claims[0].Label != domain.ClaimNotFound {
		t.Fatalf("claims without evidence must be NOT_FOUND, got %s", report.Claims[0].Label)
	}
}

func TestVerifyMixedAnswerFraction(t *testing.T) {
	v := newVerifier(t)
	result := evidenceResult("Apple revenue FY2024 $394.3 billion")

	report := v.Verify("Apple revenue FY2024 was $394.3 billion. Dolphins founded the company in ancient Rome.", result)
	if len(report.Claims) != 2 {
		t.Fatalf("expected 2 claims, got %d", len(report.Claims))
	}
	if report.OverallConfidence != 0.5 {
		t.Fatalf("expected 0.5 supported fraction, got %v", report.OverallConfidence)
	}
}

func TestSplitSentencesGuardsAbbreviationsAndDecimals(t *testing.T) {
	sentences := splitSentences("Apple Inc. reported $394.3 billion. Margins held at 45.2 percent.")
	if len(sentences) != 2 {
		t.Fatalf("expected 2 sentences, got %d: %q", len(sentences), sentences)
	}
	if sentences[0] != "Apple Inc. reported $394.3 billion." {
		t.Fatalf("abbreviation split the first sentence: %q", sentences[0])
	}
}

func TestSplitSentencesEmptyInput(t *testing.T) {
	if got := splitSentences(""); got != nil {
		t.Fatalf("expected nil for empty input, got %q", got)
	}
}
