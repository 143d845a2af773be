package domain

import "time"

// QueryEvent is the one observability record emitted per query. It is a
// fire-and-forget side effect and never blocks the response path.
type QueryEvent struct {
	QueryID         string             `json:"query_id"`
	Intent          Intent             `json:"intent"`
	StageTimingsMS  map[string]float64 `json:"stage_timings_ms,omitempty"`
	CorpusCounts    map[Corpus]int     `json:"corpus_counts,omitempty"`
	DegradedSources []string           `json:"degraded_sources,omitempty"`
	Confidence      float64            `json:"confidence"`
	Outcome         Outcome            `json:"outcome"`
	Reason          DeclineReason      `json:"reason,omitempty"`
	At              time.Time          `json:"at"`
}
