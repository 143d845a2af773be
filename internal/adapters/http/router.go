package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/finsight/evidence-pipeline/internal/core/domain"
	"github.com/finsight/evidence-pipeline/internal/core/ports"
	"github.com/finsight/evidence-pipeline/internal/observability/metrics"
)

type RouterConfig struct {
	Service string

	RateLimitRPS   float64
	RateLimitBurst int

	MaxConcurrent  int
	AcquireTimeout time.Duration
}

type Router struct {
	retriever ports.EvidenceRetriever
	verifier  ports.AnswerVerifier
	metrics   *metrics.HTTPServerMetrics
	cfg       RouterConfig
}

func NewRouter(
	retriever ports.EvidenceRetriever,
	verifier ports.AnswerVerifier,
	m *metrics.HTTPServerMetrics,
	cfg RouterConfig,
) *Router {
	if cfg.Service == "" {
		cfg.Service = "api"
	}
	return &Router{
		retriever: retriever,
		verifier:  verifier,
		metrics:   m,
		cfg:       cfg,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	api := http.Handler(http.HandlerFunc(rt.serveAPI))
	if rt.cfg.MaxConcurrent > 0 {
		api = backpressureMiddleware(api, rt.cfg.MaxConcurrent, rt.cfg.AcquireTimeout, rt.onBackpressure)
	}
	if rt.cfg.RateLimitRPS > 0 {
		api = rateLimitMiddleware(api, rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst, rt.onRateLimited)
	}
	mux.Handle("/v1/", api)

	handler := http.Handler(mux)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.cfg.Service, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) serveAPI(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/v1/evidence/retrieve":
		rt.retrieve(w, r)
	case "/v1/evidence/verify":
		rt.verify(w, r)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type timeFilterRequest struct {
	Years    []int                  `json:"years,omitempty"`
	Quarters []domain.FiscalQuarter `json:"quarters,omitempty"`
}

type retrieveRequest struct {
	QueryID    string             `json:"query_id"`
	Entities   []domain.Entity    `json:"entities,omitempty"`
	Metrics    []string           `json:"metrics,omitempty"`
	Intent     domain.Intent      `json:"intent"`
	TimeFilter *timeFilterRequest `json:"time_filter,omitempty"`
	RawText    string             `json:"raw_text"`
}

type retrieveResponse struct {
	Result   *domain.RetrievalResult `json:"result"`
	Decision domain.Decision         `json:"decision"`
}

func (rt *Router) retrieve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	query := domain.StructuredQuery{
		QueryID:  strings.TrimSpace(req.QueryID),
		Entities: req.Entities,
		Metrics:  req.Metrics,
		Intent:   req.Intent,
		RawText:  req.RawText,
	}
	if req.TimeFilter != nil {
		query.TimeFilter = domain.NewTimeFilter(req.TimeFilter.Years, req.TimeFilter.Quarters)
	}

	result, decision, err := rt.retriever.Retrieve(r.Context(), query)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordRetrieval(rt.cfg.Service, result, decision)
	}

	writeJSON(w, http.StatusOK, retrieveResponse{Result: result, Decision: decision})
}

type verifyRequest struct {
	Answer string                  `json:"answer"`
	Result *domain.RetrievalResult `json:"result"`
}

func (rt *Router) verify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	report, err := rt.verifier.Verify(r.Context(), req.Answer, req.Result)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	if rt.metrics != nil && report != nil {
		rt.metrics.RecordVerification(rt.cfg.Service, *report)
	}

	writeJSON(w, http.StatusOK, report)
}

func (rt *Router) onRateLimited() {
	if rt.metrics != nil {
		rt.metrics.RecordRateLimited(rt.cfg.Service)
	}
}

func (rt *Router) onBackpressure() {
	if rt.metrics != nil {
		rt.metrics.RecordBackpressure(rt.cfg.Service)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
