package domain

type Outcome string

const (
	OutcomeAnswer  Outcome = "answer"
	OutcomeDecline Outcome = "decline"
)

type DeclineReason string

const (
	ReasonNone                  DeclineReason = ""
	ReasonLowConfidence         DeclineReason = "LOW_CONFIDENCE"
	ReasonInsufficientEvidence  DeclineReason = "INSUFFICIENT_EVIDENCE"
	ReasonContradictionDetected DeclineReason = "CONTRADICTION_DETECTED"
)

// Decision is the grounded gate's verdict. A decline is a valid outcome, not
// an error; it carries the partial evidence alongside so downstream layers
// can produce an honest "insufficient data" response.
type Decision struct {
	Outcome       Outcome       `json:"outcome"`
	Reason        DeclineReason `json:"reason,omitempty"`
	Confidence    float64       `json:"confidence"`
	EvidenceCount int           `json:"evidence_count"`
	Contradiction bool          `json:"contradiction"`
}
