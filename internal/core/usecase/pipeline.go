package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finsight/evidence-pipeline/internal/core/domain"
	"github.com/finsight/evidence-pipeline/internal/core/ports"
)

// Pipeline drives a query through policy resolution, (multi-hop) hybrid
// retrieval, temporal filtering, reranking, source fusion and the grounded
// decision, then emits one observability event per query off the response
// path.
type Pipeline struct {
	policies *IntentPolicies
	hybrid   *HybridRetriever
	rerank   *RerankStage
	fusion   *SourceFusion
	multihop *MultiHopController
	verifier *ClaimVerifier
	decision DecisionConfig
	events   ports.EventSink
	corpora  []domain.Corpus

	eventTimeout time.Duration
}

func NewPipeline(
	policies *IntentPolicies,
	hybrid *HybridRetriever,
	rerank *RerankStage,
	fusion *SourceFusion,
	multihop *MultiHopController,
	verifier *ClaimVerifier,
	decision DecisionConfig,
	events ports.EventSink,
) (*Pipeline, error) {
	if err := decision.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{
		policies:     policies,
		hybrid:       hybrid,
		rerank:       rerank,
		fusion:       fusion,
		multihop:     multihop,
		verifier:     verifier,
		decision:     decision,
		events:       events,
		corpora:      domain.AllCorpora(),
		eventTimeout: 2 * time.Second,
	}, nil
}

// SetEventTimeout bounds the off-path event publish. Non-positive values
// keep the default.
func (p *Pipeline) SetEventTimeout(d time.Duration) {
	if d > 0 {
		p.eventTimeout = d
	}
}

func (p *Pipeline) Retrieve(ctx context.Context, query domain.StructuredQuery) (*domain.RetrievalResult, domain.Decision, error) {
	if err := query.Validate(); err != nil {
		return nil, domain.Decision{}, err
	}
	if query.QueryID == "" {
		query.QueryID = uuid.NewString()
	}

	policy := p.policies.For(query.Intent)

	var (
		candidates []domain.Candidate
		diag       domain.Diagnostics
	)
	if p.multihop != nil && p.multihop.ShouldDecompose(query, policy) {
		candidates, diag = p.runMultiHop(ctx, query, policy)
	} else {
		candidates, diag = p.runPass(ctx, query.RawText, query.TimeFilter, policy)
	}
	if err := ctx.Err(); err != nil {
		return nil, domain.Decision{}, err
	}

	start := time.Now()
	fused, confidence, band := p.fusion.Apply(candidates)
	diag.RecordTiming("source_fusion", msSince(start))

	result := &domain.RetrievalResult{
		Candidates:   fused,
		Confidence:   confidence,
		Band:         band,
		CorpusCounts: domain.CountByCorpus(fused),
		Diagnostics:  diag,
	}

	start = time.Now()
	contradiction := DetectContradiction(p.decision, fused, query.Metrics)
	decision := Decide(p.decision, confidence, result.DistinctDocuments(), contradiction)
	result.Diagnostics.RecordTiming("decision", msSince(start))

	p.emitEvent(ctx, query, result, decision)
	return result, decision, nil
}

func (p *Pipeline) Verify(ctx context.Context, answer string, result *domain.RetrievalResult) (*domain.VerificationReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.verifier.Verify(answer, result), nil
}

// runPass is one retrieve, filter, rerank sweep across all corpora.
func (p *Pipeline) runPass(ctx context.Context, text string, filter domain.TimeFilter, policy domain.RetrievalPolicy) ([]domain.Candidate, domain.Diagnostics) {
	var diag domain.Diagnostics

	start := time.Now()
	var pool []domain.Candidate
	for _, corpus := range p.corpora {
		k := policy.K(corpus)
		if k <= 0 {
			continue
		}
		pool = append(pool, p.hybrid.Retrieve(ctx, text, corpus, k, policy, &diag)...)
	}
	diag.RecordTiming("hybrid", msSince(start))

	start = time.Now()
	pool = filterByPeriod(pool, filter, policy.RequireSamePeriod)
	diag.RecordTiming("temporal_filter", msSince(start))

	start = time.Now()
	pool = p.rerank.Apply(ctx, text, pool, policy, &diag)
	diag.RecordTiming("rerank", msSince(start))

	return pool, diag
}

// runMultiHop runs sub-query passes concurrently and merges them with the
// dedup-keep-max rule, so the outcome is independent of completion order.
func (p *Pipeline) runMultiHop(ctx context.Context, query domain.StructuredQuery, policy domain.RetrievalPolicy) ([]domain.Candidate, domain.Diagnostics) {
	subQueries, ok := p.multihop.Plan(query)
	if !ok {
		candidates, diag := p.runPass(ctx, query.RawText, query.TimeFilter, policy)
		diag.MarkDegraded("multihop")
		return candidates, diag
	}

	type passOutput struct {
		candidates []domain.Candidate
		diag       domain.Diagnostics
	}
	outputs := make([]passOutput, len(subQueries))

	var wg sync.WaitGroup
	for i, sub := range subQueries {
		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()
			candidates, diag := p.runPass(ctx, text, query.TimeFilter, policy)
			outputs[i] = passOutput{candidates: candidates, diag: diag}
		}(i, sub)
	}
	wg.Wait()

	var diag domain.Diagnostics
	lists := make([][]domain.Candidate, 0, len(outputs))
	for _, out := range outputs {
		lists = append(lists, out.candidates)
		diag.Merge(out.diag)
	}
	return mergeByChunkID(lists), diag
}

// emitEvent publishes the per-query observability record fire-and-forget;
// a slow or down sink never blocks the response.
func (p *Pipeline) emitEvent(ctx context.Context, query domain.StructuredQuery, result *domain.RetrievalResult, decision domain.Decision) {
	if p.events == nil {
		return
	}
	event := domain.QueryEvent{
		QueryID:         query.QueryID,
		Intent:          query.Intent,
		StageTimingsMS:  result.Diagnostics.StageTimingsMS,
		CorpusCounts:    result.CorpusCounts,
		DegradedSources: result.Diagnostics.DegradedSources,
		Confidence:      result.Confidence,
		Outcome:         decision.Outcome,
		Reason:          decision.Reason,
		At:              time.Now().UTC(),
	}

	eventCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.eventTimeout)
	go func() {
		defer cancel()
		if err := p.events.Publish(eventCtx, event); err != nil {
			slog.Warn("query_event_publish_failed", "query_id", event.QueryID, "error", err)
		}
	}()
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
