package domain

type ClaimLabel string

const (
	ClaimSupported    ClaimLabel = "SUPPORTED"
	ClaimContradicted ClaimLabel = "CONTRADICTED"
	ClaimNotFound     ClaimLabel = "NOT_FOUND"
)

// Claim is one sentence of a generated answer checked against the evidence.
type Claim struct {
	Text         string     `json:"text"`
	Label        ClaimLabel `json:"label"`
	OverlapScore float64    `json:"overlap_score"`
	SupportIDs   []string   `json:"support_ids,omitempty"`
}

type VerificationReport struct {
	Claims            []Claim `json:"claims"`
	OverallConfidence float64 `json:"overall_confidence"`
	NoClaims          bool    `json:"no_claims,omitempty"`
}
