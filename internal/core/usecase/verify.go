package usecase

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/finsight/evidence-pipeline/internal/core/domain"
)

type VerifyConfig struct {
	SupportThreshold float64
	NumericTolerance float64
	// MatchFloor is the minimum non-numeric overlap for a candidate to count
	// as discussing the same entity/period; below it a mismatched figure is
	// NOT_FOUND, not CONTRADICTED.
	MatchFloor float64
}

func DefaultVerifyConfig() VerifyConfig {
	return VerifyConfig{
		SupportThreshold: 0.7,
		NumericTolerance: 0.05,
		MatchFloor:       0.3,
	}
}

func (c VerifyConfig) Validate() error {
	if c.SupportThreshold <= 0 || c.SupportThreshold > 1 {
		return domain.WrapError(domain.ErrConfiguration, "verify", fmt.Errorf("support_threshold %v out of (0,1]", c.SupportThreshold))
	}
	if c.NumericTolerance < 0 || c.NumericTolerance > 1 {
		return domain.WrapError(domain.ErrConfiguration, "verify", fmt.Errorf("numeric_tolerance %v out of [0,1]", c.NumericTolerance))
	}
	if c.MatchFloor < 0 || c.MatchFloor > 1 {
		return domain.WrapError(domain.ErrConfiguration, "verify", fmt.Errorf("match_floor %v out of [0,1]", c.MatchFloor))
	}
	return nil
}

// ClaimVerifier checks each sentence of a generated answer against the
// surfaced evidence. The answer is an opaque string; verification is pure
// token arithmetic with no external calls.
type ClaimVerifier struct {
	cfg VerifyConfig
}

func NewClaimVerifier(cfg VerifyConfig) (*ClaimVerifier, error) {
	def := DefaultVerifyConfig()
	if cfg.SupportThreshold == 0 {
		cfg.SupportThreshold = def.SupportThreshold
	}
	if cfg.NumericTolerance == 0 {
		cfg.NumericTolerance = def.NumericTolerance
	}
	if cfg.MatchFloor == 0 {
		cfg.MatchFloor = def.MatchFloor
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ClaimVerifier{cfg: cfg}, nil
}

func (v *ClaimVerifier) Verify(answer string, result *domain.RetrievalResult) *domain.VerificationReport {
	sentences := splitSentences(answer)
	if len(sentences) == 0 {
		return &domain.VerificationReport{Claims: []domain.Claim{}, NoClaims: true}
	}

	var candidates []domain.Candidate
	if result != nil {
		candidates = result.Candidates
	}
	idf := buildIDF(candidates)

	claims := make([]domain.Claim, 0, len(sentences))
	supported := 0
	for _, sentence := range sentences {
		claim := v.checkClaim(sentence, candidates, idf)
		if claim.Label == domain.ClaimSupported {
			supported++
		}
		claims = append(claims, claim)
	}

	return &domain.VerificationReport{
		Claims:            claims,
		OverallConfidence: float64(supported) / float64(len(claims)),
	}
}

func (v *ClaimVerifier) checkClaim(sentence string, candidates []domain.Candidate, idf map[string]float64) domain.Claim {
	claim := domain.Claim{Text: sentence, Label: domain.ClaimNotFound}
	claimTokens := tokenize(sentence)
	claimSet := contentTokenSet(claimTokens)
	if len(claimSet) == 0 || len(candidates) == 0 {
		return claim
	}

	best := -1
	bestOverlap := 0.0
	for i, c := range candidates {
		overlap := weightedOverlap(claimSet, contentTokenSet(tokenize(c.Chunk.Text)), idf)
		if overlap > bestOverlap {
			bestOverlap = overlap
			best = i
		}
	}
	claim.OverlapScore = bestOverlap

	if bestOverlap > v.cfg.SupportThreshold {
		claim.Label = domain.ClaimSupported
		claim.SupportIDs = supportingIDs(claimSet, candidates, idf, v.cfg.SupportThreshold)
		return claim
	}

	if best >= 0 && bestOverlap >= v.cfg.MatchFloor {
		if v.numericallyContradicted(claimTokens, candidates[best]) {
			claim.Label = domain.ClaimContradicted
			claim.SupportIDs = []string{candidates[best].Chunk.ID}
		}
	}
	return claim
}

// numericallyContradicted reports whether a magnitude asserted by the claim
// has no counterpart within tolerance in the best-matching candidate.
func (v *ClaimVerifier) numericallyContradicted(claimTokens []string, candidate domain.Candidate) bool {
	claimAmounts := scaledAmounts(claimTokens)
	if len(claimAmounts) == 0 {
		return false
	}
	candidateAmounts := scaledAmounts(tokenize(candidate.Chunk.Text))
	if len(candidateAmounts) == 0 {
		return false
	}

	for _, asserted := range claimAmounts {
		closest := math.Inf(1)
		for _, have := range candidateAmounts {
			if d := relativeDiff(asserted, have); d < closest {
				closest = d
			}
		}
		if closest > v.cfg.NumericTolerance {
			return true
		}
	}
	return false
}

func supportingIDs(claimSet map[string]struct{}, candidates []domain.Candidate, idf map[string]float64, threshold float64) []string {
	var ids []string
	for _, c := range candidates {
		if weightedOverlap(claimSet, contentTokenSet(tokenize(c.Chunk.Text)), idf) > threshold {
			ids = append(ids, c.Chunk.ID)
		}
	}
	return ids
}

// weightedOverlap is the IDF-weighted share of claim tokens the candidate
// covers.
func weightedOverlap(claim, candidate map[string]struct{}, idf map[string]float64) float64 {
	if len(claim) == 0 || len(candidate) == 0 {
		return 0
	}
	total, matched := 0.0, 0.0
	for t := range claim {
		w, ok := idf[t]
		if !ok {
			w = 1.0
		}
		total += w
		if _, hit := candidate[t]; hit {
			matched += w
		}
	}
	if total == 0 {
		return 0
	}
	return matched / total
}

// buildIDF weights tokens by rarity across the evidence pool so that shared
// boilerplate counts less than a distinctive figure or ticker.
func buildIDF(candidates []domain.Candidate) map[string]float64 {
	df := make(map[string]int)
	for _, c := range candidates {
		for t := range contentTokenSet(tokenize(c.Chunk.Text)) {
			df[t]++
		}
	}
	n := float64(len(candidates))
	idf := make(map[string]float64, len(df))
	for t, d := range df {
		idf[t] = math.Log(1 + (n+1)/float64(d+1))
	}
	return idf
}

// Abbreviations that end with a period but do not end a sentence.
var abbreviations = map[string]struct{}{
	"inc": {}, "corp": {}, "co": {}, "ltd": {}, "llc": {}, "plc": {},
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "jr": {}, "sr": {},
	"vs": {}, "etc": {}, "approx": {}, "est": {}, "no": {}, "fig": {},
	"u.s": {}, "e.g": {}, "i.e": {}, "q1": {}, "q2": {}, "q3": {}, "q4": {},
}

// splitSentences segments an answer into sentence-level claims, guarding
// common abbreviations and decimal points.
func splitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var sentences []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if r == '.' {
			// Decimal point.
			if i+1 < len(runes) && isDigit(runes[i+1]) {
				continue
			}
			if isAbbreviation(runes[start:i]) {
				continue
			}
		}
		// Sentence ends only when followed by space+capital or end of text.
		if i+1 < len(runes) {
			j := i + 1
			for j < len(runes) && unicode.IsSpace(runes[j]) {
				j++
			}
			if j == i+1 || (j < len(runes) && !unicode.IsUpper(runes[j]) && !isDigit(runes[j])) {
				continue
			}
		}
		sentence := strings.TrimSpace(string(runes[start : i+1]))
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		start = i + 1
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

func isAbbreviation(before []rune) bool {
	end := len(before)
	i := end
	for i > 0 && !unicode.IsSpace(before[i-1]) {
		i--
	}
	word := strings.ToLower(strings.Trim(string(before[i:end]), "."))
	if word == "" {
		return false
	}
	if len(word) == 1 {
		// Single-letter initials like "J." in a name.
		return true
	}
	_, ok := abbreviations[word]
	return ok
}
