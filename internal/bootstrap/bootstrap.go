package bootstrap

import (
	"fmt"
	"time"

	"github.com/finsight/evidence-pipeline/internal/config"
	"github.com/finsight/evidence-pipeline/internal/core/ports"
	"github.com/finsight/evidence-pipeline/internal/core/usecase"
	"github.com/finsight/evidence-pipeline/internal/infrastructure/embed/ollama"
	"github.com/finsight/evidence-pipeline/internal/infrastructure/events/nats"
	"github.com/finsight/evidence-pipeline/internal/infrastructure/index/memindex"
	"github.com/finsight/evidence-pipeline/internal/infrastructure/rerank/tei"
	"github.com/finsight/evidence-pipeline/internal/infrastructure/resilience"
	"github.com/finsight/evidence-pipeline/internal/infrastructure/vector/qdrant"
	"github.com/finsight/evidence-pipeline/internal/observability/metrics"
)

// App holds the wired retrieval pipeline and everything the API process
// needs around it.
type App struct {
	Config config.Config

	Retriever ports.EvidenceRetriever
	Verifier  ports.AnswerVerifier
	Metrics   *metrics.HTTPServerMetrics

	closeFn func()
}

func New(cfg config.Config) (*App, error) {
	policyFile, err := config.LoadPolicyFile(cfg.PolicyFile)
	if err != nil {
		return nil, fmt.Errorf("load policies: %w", err)
	}

	policies, err := policyFile.IntentPolicies()
	if err != nil {
		return nil, fmt.Errorf("build intent policies: %w", err)
	}
	fusion, err := usecase.NewSourceFusion(policyFile.FusionConfig())
	if err != nil {
		return nil, fmt.Errorf("build source fusion: %w", err)
	}
	verifier, err := usecase.NewClaimVerifier(policyFile.VerifyConfig())
	if err != nil {
		return nil, fmt.Errorf("build claim verifier: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())
	embedder := ollama.New(cfg.OllamaURL, cfg.OllamaEmbedModel, executor)
	encoder := tei.New(cfg.RerankerURL, executor)

	dense, sparse, err := buildIndices(cfg)
	if err != nil {
		return nil, err
	}

	hybrid := usecase.NewHybridRetriever(embedder, dense, sparse, usecase.HybridConfig{
		PathTimeout: time.Duration(cfg.RetrievalPathTimeoutMS) * time.Millisecond,
	})
	rerank := usecase.NewRerankStage(encoder, usecase.RerankConfig{
		CallTimeout: time.Duration(cfg.RerankCallTimeoutMS) * time.Millisecond,
	})
	multihop := usecase.NewMultiHopController(policyFile.MaxSubQueries(cfg.MultiHopMaxSubQueries))

	var events ports.EventSink
	closeFn := func() {}
	if cfg.EventsEnabled {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: executor,
		})
		if err != nil {
			return nil, fmt.Errorf("init event sink: %w", err)
		}
		events = queue
		closeFn = queue.Close
	}

	pipeline, err := usecase.NewPipeline(
		policies,
		hybrid,
		rerank,
		fusion,
		multihop,
		verifier,
		policyFile.DecisionConfig(),
		events,
	)
	if err != nil {
		closeFn()
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	pipeline.SetEventTimeout(time.Duration(cfg.QueryEventTimeoutSeconds) * time.Second)

	return &App{
		Config:    cfg,
		Retriever: pipeline,
		Verifier:  pipeline,
		Metrics:   metrics.NewHTTPServerMetrics("api"),
		closeFn:   closeFn,
	}, nil
}

// buildIndices selects the retrieval backend. Qdrant serves both paths from
// one collection per corpus; memory mode loads JSONL chunk files and ranks
// exactly, with no external dependency.
func buildIndices(cfg config.Config) (ports.DenseIndex, ports.SparseIndex, error) {
	switch cfg.IndexMode {
	case "", "qdrant":
		client := qdrant.New(cfg.QdrantURL, cfg.QdrantCollectionPrefix)
		return client, qdrant.NewSparseClient(client), nil
	case "memory":
		idx := memindex.New()
		if cfg.ChunkDataDir != "" {
			if _, err := memindex.LoadDir(idx, cfg.ChunkDataDir); err != nil {
				return nil, nil, fmt.Errorf("load chunk data: %w", err)
			}
		}
		return idx, memindex.NewSparse(idx), nil
	default:
		return nil, nil, fmt.Errorf("unknown index mode %q", cfg.IndexMode)
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
