package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/finsight/evidence-pipeline/internal/core/domain"
	"github.com/finsight/evidence-pipeline/internal/observability/metrics"
)

type fakeRetriever struct {
	gotQuery domain.StructuredQuery
	result   *domain.RetrievalResult
	decision domain.Decision
	err      error
}

func (f *fakeRetriever) Retrieve(_ context.Context, query domain.StructuredQuery) (*domain.RetrievalResult, domain.Decision, error) {
	f.gotQuery = query
	return f.result, f.decision, f.err
}

type fakeVerifier struct {
	gotAnswer string
	report    *domain.VerificationReport
	err       error
}

func (f *fakeVerifier) Verify(_ context.Context, answer string, _ *domain.RetrievalResult) (*domain.VerificationReport, error) {
	f.gotAnswer = answer
	return f.report, f.err
}

func answerResult() *domain.RetrievalResult {
	return &domain.RetrievalResult{
		Candidates: []domain.Candidate{
			{
				Chunk: domain.DocumentChunk{
					ID:       "facts:1",
					Text:     "AAPL revenue FY2024 $391.0B",
					Corpus:   domain.CorpusFacts,
					Metadata: domain.ChunkMetadata{Ticker: "AAPL", FiscalYear: 2024},
				},
				FinalScore: 0.9,
			},
		},
		Confidence:   0.82,
		Band:         domain.BandHigh,
		CorpusCounts: map[domain.Corpus]int{domain.CorpusFacts: 1},
	}
}

func newTestRouter(retriever *fakeRetriever, verifier *fakeVerifier) http.Handler {
	return NewRouter(retriever, verifier, metrics.NewHTTPServerMetrics("api-test"), RouterConfig{
		Service: "api-test",
	}).Handler()
}

func TestRetrieveDecodesQueryAndTimeFilter(t *testing.T) {
	retriever := &fakeRetriever{
		result:   answerResult(),
		decision: domain.Decision{Outcome: domain.OutcomeAnswer, Confidence: 0.82, EvidenceCount: 3},
	}
	handler := newTestRouter(retriever, &fakeVerifier{})

	body := `{
		"query_id": "q-1",
		"raw_text": "Apple revenue FY2024",
		"intent": "single_lookup",
		"entities": [{"ticker": "AAPL"}],
		"metrics": ["revenue"],
		"time_filter": {"years": [2024], "quarters": [{"year": 2024, "quarter": 4}]}
	}`
	req := httptest.NewRequest(http.MethodPost, "/v1/evidence/retrieve", strings.NewReader(body))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if retriever.gotQuery.QueryID != "q-1" || retriever.gotQuery.Intent != domain.IntentSingleLookup {
		t.Fatalf("query not decoded: %+v", retriever.gotQuery)
	}
	if retriever.gotQuery.TimeFilter.Empty() {
		t.Fatalf("time filter not decoded")
	}
	if !retriever.gotQuery.TimeFilter.Matches(domain.ChunkMetadata{FiscalYear: 2024}) {
		t.Fatalf("time filter missing year 2024")
	}

	var resp retrieveResponse
	if err := json.NewDecoder(bytes.NewReader(res.Body.Bytes())).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Decision.Outcome != domain.OutcomeAnswer {
		t.Fatalf("unexpected decision: %+v", resp.Decision)
	}
	if len(resp.Result.Candidates) != 1 {
		t.Fatalf("expected candidates in response, got %+v", resp.Result)
	}
	if res.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestRetrieveMapsMalformedInputTo400(t *testing.T) {
	retriever := &fakeRetriever{
		err: domain.WrapError(domain.ErrInvalidInput, "validate query", errors.New("raw_text is required")),
	}
	handler := newTestRouter(retriever, &fakeVerifier{})

	req := httptest.NewRequest(http.MethodPost, "/v1/evidence/retrieve", strings.NewReader(`{"raw_text":""}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestRetrieveRejectsInvalidJSON(t *testing.T) {
	handler := newTestRouter(&fakeRetriever{}, &fakeVerifier{})

	req := httptest.NewRequest(http.MethodPost, "/v1/evidence/retrieve", strings.NewReader(`{not json`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestRetrieveRejectsGet(t *testing.T) {
	handler := newTestRouter(&fakeRetriever{}, &fakeVerifier{})

	req := httptest.NewRequest(http.MethodGet, "/v1/evidence/retrieve", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestVerifyDelegatesToVerifier(t *testing.T) {
	verifier := &fakeVerifier{
		report: &domain.VerificationReport{
			Claims: []domain.Claim{
				{Text: "Apple's revenue was $391.0B.", Label: domain.ClaimSupported, OverlapScore: 0.92},
			},
			OverallConfidence: 1.0,
		},
	}
	handler := newTestRouter(&fakeRetriever{}, verifier)

	payload := map[string]any{
		"answer": "Apple's revenue was $391.0B.",
		"result": answerResult(),
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/v1/evidence/verify", bytes.NewReader(body))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if verifier.gotAnswer != "Apple's revenue was $391.0B." {
		t.Fatalf("answer not passed through: %q", verifier.gotAnswer)
	}

	var report domain.VerificationReport
	if err := json.NewDecoder(bytes.NewReader(res.Body.Bytes())).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if len(report.Claims) != 1 || report.Claims[0].Label != domain.ClaimSupported {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestUnavailableErrorsMapTo503(t *testing.T) {
	retriever := &fakeRetriever{
		err: domain.WrapError(domain.ErrUnavailable, "retrieve", context.DeadlineExceeded),
	}
	handler := newTestRouter(retriever, &fakeVerifier{})

	req := httptest.NewRequest(http.MethodPost, "/v1/evidence/retrieve", strings.NewReader(`{"raw_text":"q"}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestHealthz(t *testing.T) {
	handler := newTestRouter(&fakeRetriever{}, &fakeVerifier{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}
