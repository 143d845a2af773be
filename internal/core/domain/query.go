package domain

import (
	"fmt"
	"strings"
)

type Intent string

const (
	IntentSingleLookup Intent = "single_lookup"
	IntentCompare      Intent = "compare"
	IntentTrend        Intent = "trend"
	IntentExplain      Intent = "explain"
	IntentSummarize    Intent = "summarize"
)

type Entity struct {
	Ticker string `json:"ticker"`
	Name   string `json:"name,omitempty"`
}

// StructuredQuery is the resolved form of a user question, produced by the
// upstream NLU layer. The time expression arrives already parsed.
type StructuredQuery struct {
	QueryID    string     `json:"query_id"`
	Entities   []Entity   `json:"entities,omitempty"`
	Metrics    []string   `json:"metrics,omitempty"`
	Intent     Intent     `json:"intent"`
	TimeFilter TimeFilter `json:"-"`
	RawText    string     `json:"raw_text"`
}

// Validate is the synchronous MalformedInput gate; no retrieval runs when it
// fails.
func (q StructuredQuery) Validate() error {
	if strings.TrimSpace(q.RawText) == "" {
		return WrapError(ErrInvalidInput, "validate query", fmt.Errorf("raw_text is required"))
	}
	for i, e := range q.Entities {
		if strings.TrimSpace(e.Ticker) == "" && strings.TrimSpace(e.Name) == "" {
			return WrapError(ErrInvalidInput, "validate query", fmt.Errorf("entity %d has neither ticker nor name", i))
		}
	}
	for i, m := range q.Metrics {
		if strings.TrimSpace(m) == "" {
			return WrapError(ErrInvalidInput, "validate query", fmt.Errorf("metric %d is empty", i))
		}
	}
	return nil
}
