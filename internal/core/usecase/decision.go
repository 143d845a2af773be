package usecase

import (
	"fmt"
	"strings"

	"github.com/finsight/evidence-pipeline/internal/core/domain"
)

// ContradictionKey selects which fields form the "same fact" matching key
// before magnitudes are compared. All three default to on.
type ContradictionKey struct {
	UseTicker bool
	UseMetric bool
	UsePeriod bool
}

type DecisionConfig struct {
	MinConfidence    float64
	MinEvidence      int
	NumericTolerance float64
	Key              ContradictionKey
}

func DefaultDecisionConfig() DecisionConfig {
	return DecisionConfig{
		MinConfidence:    0.3,
		MinEvidence:      3,
		NumericTolerance: 0.05,
		Key:              ContradictionKey{UseTicker: true, UseMetric: true, UsePeriod: true},
	}
}

func (c DecisionConfig) Validate() error {
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return domain.WrapError(domain.ErrConfiguration, "decision", fmt.Errorf("min_confidence %v out of [0,1]", c.MinConfidence))
	}
	if c.MinEvidence < 0 {
		return domain.WrapError(domain.ErrConfiguration, "decision", fmt.Errorf("negative min_evidence %d", c.MinEvidence))
	}
	if c.NumericTolerance < 0 || c.NumericTolerance > 1 {
		return domain.WrapError(domain.ErrConfiguration, "decision", fmt.Errorf("numeric_tolerance %v out of [0,1]", c.NumericTolerance))
	}
	return nil
}

// Decide is the pure grounded gate: answer only when confidence and evidence
// clear their thresholds and the pool carries no numeric contradiction.
// Decline reasons apply in priority order when several hold.
func Decide(cfg DecisionConfig, confidence float64, evidenceCount int, contradiction bool) domain.Decision {
	d := domain.Decision{
		Confidence:    confidence,
		EvidenceCount: evidenceCount,
		Contradiction: contradiction,
	}
	switch {
	case confidence < cfg.MinConfidence:
		d.Outcome = domain.OutcomeDecline
		d.Reason = domain.ReasonLowConfidence
	case evidenceCount < cfg.MinEvidence:
		d.Outcome = domain.OutcomeDecline
		d.Reason = domain.ReasonInsufficientEvidence
	case contradiction:
		d.Outcome = domain.OutcomeDecline
		d.Reason = domain.ReasonContradictionDetected
	default:
		d.Outcome = domain.OutcomeAnswer
	}
	return d
}

type factAssertion struct {
	key   string
	value float64
}

// DetectContradiction reports whether two surfaced candidates assert
// magnitudes differing beyond tolerance for the same fact key. A candidate
// asserts the first magnitude-scaled figure in its text for the first query
// metric its text mentions.
func DetectContradiction(cfg DecisionConfig, candidates []domain.Candidate, metrics []string) bool {
	assertions := make(map[string][]float64)
	for _, c := range candidates {
		fact, ok := extractAssertion(cfg.Key, c.Chunk, metrics)
		if !ok {
			continue
		}
		assertions[fact.key] = append(assertions[fact.key], fact.value)
	}

	for _, values := range assertions {
		if len(values) < 2 {
			continue
		}
		minV, maxV := values[0], values[0]
		for _, v := range values[1:] {
			if v < minV {
				minV = v
			}
			if v > maxV {
				maxV = v
			}
		}
		if relativeDiff(minV, maxV) > cfg.NumericTolerance {
			return true
		}
	}
	return false
}

func extractAssertion(key ContradictionKey, chunk domain.DocumentChunk, metrics []string) (factAssertion, bool) {
	tokens := tokenize(chunk.Text)
	amounts := scaledAmounts(tokens)
	if len(amounts) == 0 {
		return factAssertion{}, false
	}

	var parts []string
	if key.UseTicker {
		ticker := strings.ToLower(chunk.Metadata.Ticker)
		if ticker == "" {
			return factAssertion{}, false
		}
		parts = append(parts, ticker)
	}
	if key.UseMetric {
		metric := matchMetric(tokens, metrics)
		if metric == "" {
			return factAssertion{}, false
		}
		parts = append(parts, metric)
	}
	if key.UsePeriod {
		parts = append(parts, fmt.Sprintf("%d-%d", chunk.Metadata.FiscalYear, chunk.Metadata.FiscalQuarter))
	}

	return factAssertion{key: strings.Join(parts, "|"), value: amounts[0]}, true
}

// matchMetric returns the first query metric fully present in the token set.
func matchMetric(tokens []string, metrics []string) string {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	for _, metric := range metrics {
		found := true
		for _, mt := range tokenize(metric) {
			if _, ok := set[mt]; !ok {
				found = false
				break
			}
		}
		if found && metric != "" {
			return strings.ToLower(metric)
		}
	}
	return ""
}
