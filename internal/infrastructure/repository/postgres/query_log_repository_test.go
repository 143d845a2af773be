package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/finsight/evidence-pipeline/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*QueryLogRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &QueryLogRepository{db: db}, mock, func() { _ = db.Close() }
}

func sampleEvent() domain.QueryEvent {
	return domain.QueryEvent{
		QueryID:         "q-1",
		Intent:          domain.IntentSingleLookup,
		StageTimingsMS:  map[string]float64{"hybrid": 12.5},
		CorpusCounts:    map[domain.Corpus]int{domain.CorpusFacts: 3},
		DegradedSources: []string{"filings/dense"},
		Confidence:      0.82,
		Outcome:         domain.OutcomeAnswer,
		At:              time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestInsertMarshalsEventFields(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	event := sampleEvent()
	mock.ExpectExec("INSERT INTO query_events").
		WithArgs(
			event.QueryID, string(event.Intent), string(event.Outcome), "",
			event.Confidence, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), event.At,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Insert(context.Background(), event); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInsertWrapsExecError(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO query_events").
		WillReturnError(errors.New("connection reset"))

	err := repo.Insert(context.Background(), sampleEvent())
	if err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS query_events").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestOutcomeCountsGroupsByOutcome(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"outcome", "count"}).
		AddRow("answer", 42).
		AddRow("decline", 7)
	mock.ExpectQuery("SELECT outcome, COUNT").
		WithArgs(since).
		WillReturnRows(rows)

	counts, err := repo.OutcomeCounts(context.Background(), since)
	if err != nil {
		t.Fatalf("OutcomeCounts() error = %v", err)
	}
	if counts[domain.OutcomeAnswer] != 42 || counts[domain.OutcomeDecline] != 7 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
