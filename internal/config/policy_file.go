package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/finsight/evidence-pipeline/internal/core/domain"
	"github.com/finsight/evidence-pipeline/internal/core/usecase"
)

// PolicyFile is the YAML tuning surface: per-intent retrieval policies,
// corpus reliability weights, confidence bands and gate thresholds. Every
// field is optional; omitted values take the documented defaults.
type PolicyFile struct {
	DefaultPolicy *policyEntry           `yaml:"default_policy"`
	Intents       map[string]policyEntry `yaml:"intents"`

	CorpusWeights   map[string]float64 `yaml:"corpus_weights"`
	ConfidenceBands *bandsEntry        `yaml:"confidence_bands"`
	FusionTopN      int                `yaml:"fusion_top_n"`

	Decision *decisionEntry `yaml:"decision"`
	Verify   *verifyEntry   `yaml:"verify"`

	MultiHopMaxSubQueries int `yaml:"multi_hop_max_sub_queries"`
}

type policyEntry struct {
	KPerCorpus        map[string]int `yaml:"k_per_corpus"`
	DenseWeight       float64        `yaml:"dense_weight"`
	SparseWeight      float64        `yaml:"sparse_weight"`
	UseMultiHop       bool           `yaml:"use_multi_hop"`
	RequireSamePeriod bool           `yaml:"require_same_period"`
	RequireSameUnits  bool           `yaml:"require_same_units"`
	RerankCap         int            `yaml:"rerank_cap"`
	ForwardCaps       map[string]int `yaml:"forward_caps"`
}

type bandsEntry struct {
	High   float64 `yaml:"high"`
	Medium float64 `yaml:"medium"`
}

type decisionEntry struct {
	MinConfidence    float64  `yaml:"min_confidence"`
	MinEvidence      int      `yaml:"min_evidence"`
	NumericTolerance float64  `yaml:"numeric_tolerance"`
	ContradictionKey []string `yaml:"contradiction_key"`
}

type verifyEntry struct {
	SupportThreshold float64 `yaml:"support_threshold"`
	NumericTolerance float64 `yaml:"numeric_tolerance"`
	MatchFloor       float64 `yaml:"match_floor"`
}

// LoadPolicyFile reads and validates the tuning file. An empty path yields
// the defaults; a malformed or out-of-range file is a configuration error
// and the caller must treat it as fatal.
func LoadPolicyFile(path string) (*PolicyFile, error) {
	var file PolicyFile
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, domain.WrapError(domain.ErrConfiguration, "load policy file", err)
		}
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return nil, domain.WrapError(domain.ErrConfiguration, "parse policy file", err)
		}
	}
	if err := file.validate(); err != nil {
		return nil, err
	}
	return &file, nil
}

func (f *PolicyFile) validate() error {
	if _, err := f.IntentPolicies(); err != nil {
		return err
	}
	if err := f.FusionConfig().Validate(); err != nil {
		return err
	}
	if err := f.DecisionConfig().Validate(); err != nil {
		return err
	}
	if err := f.VerifyConfig().Validate(); err != nil {
		return err
	}
	if f.Decision != nil {
		for _, field := range f.Decision.ContradictionKey {
			switch field {
			case "ticker", "metric", "period":
			default:
				return domain.WrapError(domain.ErrConfiguration, "policy file", fmt.Errorf("unknown contradiction_key field %q", field))
			}
		}
	}
	for name := range f.Intents {
		if !knownIntent(name) {
			return domain.WrapError(domain.ErrConfiguration, "policy file", fmt.Errorf("unknown intent %q", name))
		}
	}
	return nil
}

func knownIntent(name string) bool {
	switch domain.Intent(name) {
	case domain.IntentSingleLookup, domain.IntentCompare, domain.IntentTrend,
		domain.IntentExplain, domain.IntentSummarize:
		return true
	default:
		return false
	}
}

// IntentPolicies resolves the per-intent policy table. Entries inherit any
// omitted field from the default policy.
func (f *PolicyFile) IntentPolicies() (*usecase.IntentPolicies, error) {
	fallback := usecase.DefaultRetrievalPolicy()
	if f.DefaultPolicy != nil {
		fallback = mergePolicy(fallback, *f.DefaultPolicy)
	}

	byIntent := make(map[domain.Intent]domain.RetrievalPolicy, len(f.Intents))
	for name, entry := range f.Intents {
		byIntent[domain.Intent(name)] = mergePolicy(fallback, entry)
	}
	return usecase.NewIntentPolicies(byIntent, fallback)
}

func mergePolicy(base domain.RetrievalPolicy, entry policyEntry) domain.RetrievalPolicy {
	out := base
	out.KPerCorpus = copyCorpusInts(base.KPerCorpus)
	out.ForwardCaps = copyCorpusInts(base.ForwardCaps)

	for name, k := range entry.KPerCorpus {
		out.KPerCorpus[domain.Corpus(name)] = k
	}
	for name, limit := range entry.ForwardCaps {
		out.ForwardCaps[domain.Corpus(name)] = limit
	}
	if entry.DenseWeight != 0 {
		out.DenseWeight = entry.DenseWeight
	}
	if entry.SparseWeight != 0 {
		out.SparseWeight = entry.SparseWeight
	}
	if entry.RerankCap != 0 {
		out.RerankCap = entry.RerankCap
	}
	out.UseMultiHop = entry.UseMultiHop
	out.RequireSamePeriod = entry.RequireSamePeriod
	out.RequireSameUnits = entry.RequireSameUnits
	return out
}

func copyCorpusInts(src map[domain.Corpus]int) map[domain.Corpus]int {
	out := make(map[domain.Corpus]int, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func (f *PolicyFile) FusionConfig() usecase.SourceFusionConfig {
	cfg := usecase.DefaultSourceFusionConfig()
	for name, w := range f.CorpusWeights {
		cfg.CorpusWeights[domain.Corpus(name)] = w
	}
	if f.FusionTopN > 0 {
		cfg.TopN = f.FusionTopN
	}
	if f.ConfidenceBands != nil {
		cfg.Bands = usecase.ConfidenceBands{High: f.ConfidenceBands.High, Medium: f.ConfidenceBands.Medium}
	}
	return cfg
}

func (f *PolicyFile) DecisionConfig() usecase.DecisionConfig {
	cfg := usecase.DefaultDecisionConfig()
	if f.Decision == nil {
		return cfg
	}
	if f.Decision.MinConfidence != 0 {
		cfg.MinConfidence = f.Decision.MinConfidence
	}
	if f.Decision.MinEvidence != 0 {
		cfg.MinEvidence = f.Decision.MinEvidence
	}
	if f.Decision.NumericTolerance != 0 {
		cfg.NumericTolerance = f.Decision.NumericTolerance
	}
	if len(f.Decision.ContradictionKey) > 0 {
		key := usecase.ContradictionKey{}
		for _, field := range f.Decision.ContradictionKey {
			switch field {
			case "ticker":
				key.UseTicker = true
			case "metric":
				key.UseMetric = true
			case "period":
				key.UsePeriod = true
			}
		}
		cfg.Key = key
	}
	return cfg
}

func (f *PolicyFile) VerifyConfig() usecase.VerifyConfig {
	cfg := usecase.DefaultVerifyConfig()
	if f.Verify == nil {
		return cfg
	}
	if f.Verify.SupportThreshold != 0 {
		cfg.SupportThreshold = f.Verify.SupportThreshold
	}
	if f.Verify.NumericTolerance != 0 {
		cfg.NumericTolerance = f.Verify.NumericTolerance
	}
	if f.Verify.MatchFloor != 0 {
		cfg.MatchFloor = f.Verify.MatchFloor
	}
	return cfg
}

func (f *PolicyFile) MaxSubQueries(fallback int) int {
	if f.MultiHopMaxSubQueries > 0 {
		return f.MultiHopMaxSubQueries
	}
	return fallback
}
