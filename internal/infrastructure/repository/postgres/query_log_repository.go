package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/finsight/evidence-pipeline/internal/core/domain"
	"github.com/finsight/evidence-pipeline/internal/core/ports"
)

// QueryLogRepository persists per-query observability events for offline
// analysis of decline rates and degraded sources.
type QueryLogRepository struct {
	db *sql.DB
}

var _ ports.QueryLogStore = (*QueryLogRepository)(nil)

func NewQueryLogRepository(db *sql.DB) *QueryLogRepository {
	return &QueryLogRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *QueryLogRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS query_events (
	query_id TEXT PRIMARY KEY,
	intent TEXT NOT NULL,
	outcome TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	confidence DOUBLE PRECISION NOT NULL,
	stage_timings_ms JSONB NOT NULL DEFAULT '{}'::jsonb,
	corpus_counts JSONB NOT NULL DEFAULT '{}'::jsonb,
	degraded_sources JSONB NOT NULL DEFAULT '[]'::jsonb,
	occurred_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_query_events_outcome ON query_events(outcome);
CREATE INDEX IF NOT EXISTS idx_query_events_occurred_at ON query_events(occurred_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Insert stores one event. Redelivered events are idempotent on query_id.
func (r *QueryLogRepository) Insert(ctx context.Context, event domain.QueryEvent) error {
	timingsJSON, err := json.Marshal(event.StageTimingsMS)
	if err != nil {
		return fmt.Errorf("marshal stage timings: %w", err)
	}
	countsJSON, err := json.Marshal(event.CorpusCounts)
	if err != nil {
		return fmt.Errorf("marshal corpus counts: %w", err)
	}
	degraded := event.DegradedSources
	if degraded == nil {
		degraded = []string{}
	}
	degradedJSON, err := json.Marshal(degraded)
	if err != nil {
		return fmt.Errorf("marshal degraded sources: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO query_events (
	query_id, intent, outcome, reason, confidence, stage_timings_ms, corpus_counts, degraded_sources, occurred_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (query_id) DO NOTHING
`,
		event.QueryID, string(event.Intent), string(event.Outcome), string(event.Reason),
		event.Confidence, timingsJSON, countsJSON, degradedJSON, event.At,
	)
	if err != nil {
		return fmt.Errorf("insert query event: %w", err)
	}
	return nil
}

// OutcomeCounts aggregates event outcomes since the given time, used by
// offline decline-rate analysis.
func (r *QueryLogRepository) OutcomeCounts(ctx context.Context, since time.Time) (map[domain.Outcome]int, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT outcome, COUNT(*)
FROM query_events
WHERE occurred_at >= $1
GROUP BY outcome
`, since)
	if err != nil {
		return nil, fmt.Errorf("query outcome counts: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.Outcome]int)
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("scan outcome count: %w", err)
		}
		out[domain.Outcome(outcome)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcome counts: %w", err)
	}
	return out, nil
}
