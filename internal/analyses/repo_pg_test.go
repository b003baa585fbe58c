package analyses

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var analysisColumnNames = []string{
	"id", "user_id", "document_id", "file_name", "file_size", "status", "provider", "model",
	"result", "error_code", "error_message", "error_retryable", "created_at", "started_at", "completed_at",
}

func TestPGRepoCreateQueued(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	created := time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC)
	a := Analysis{
		ID:        "22222222-2222-2222-2222-222222222222",
		UserID:    "google:1",
		FileName:  "msa.pdf",
		FileSize:  2048,
		Status:    StatusQueued,
		Provider:  "gemini",
		CreatedAt: created,
	}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO analyses")).
		WithArgs(a.ID, a.UserID, nil, a.FileName, a.FileSize, StatusQueued, "gemini", nil,
			nil, nil, nil, false, created, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := &PGRepo{DB: db}
	if err := repo.Create(context.Background(), a); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGRepoGetByIDDecodesResult(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	created := time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC)
	completed := created.Add(3 * time.Second)
	payload, err := json.Marshal(AnalysisResult{ID: "a-1", RiskLevel: RiskHigh, FileName: "msa.pdf"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	rows := sqlmock.NewRows(analysisColumnNames).
		AddRow("a-1", "google:1", "doc-1", "msa.pdf", int64(2048), StatusCompleted, "gemini", "gemini-2.5-flash",
			string(payload), nil, nil, false, created, created, completed)
	mock.ExpectQuery(regexp.QuoteMeta("FROM analyses")).WithArgs("a-1").WillReturnRows(rows)

	repo := &PGRepo{DB: db}
	got, err := repo.GetByID(context.Background(), "a-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Result == nil || got.Result.RiskLevel != RiskHigh || got.DocumentID != "doc-1" {
		t.Fatalf("unexpected analysis %+v", got)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(completed) {
		t.Fatalf("unexpected completedAt %v", got.CompletedAt)
	}
}

func TestPGRepoGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM analyses")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(analysisColumnNames))

	repo := &PGRepo{DB: db}
	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoFailMissingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	completed := time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE analyses")).
		WithArgs("a-1", StatusFailed, "RATE_LIMIT", "Rate limit exceeded", true, completed).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := &PGRepo{DB: db}
	err = repo.Fail(context.Background(), "a-1", Failure{Code: "RATE_LIMIT", Message: "Rate limit exceeded", Retryable: true}, completed)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoCompleteStoresJSON(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	completed := time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE analyses")).
		WithArgs("a-1", StatusCompleted, sqlmock.AnyArg(), completed).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := &PGRepo{DB: db}
	if err := repo.Complete(context.Background(), "a-1", AnalysisResult{ID: "a-1"}, completed); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGRepoListByUserClampsLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	created := time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(analysisColumnNames).
		AddRow("a-2", "google:1", nil, "b.txt", int64(10), StatusQueued, nil, nil, nil, nil, nil, false, created, nil, nil).
		AddRow("a-1", "google:1", nil, "a.txt", int64(12), StatusFailed, nil, nil, nil, "AI_REQUEST", "boom", false, created, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC")).
		WithArgs("google:1", 100, 0).
		WillReturnRows(rows)

	repo := &PGRepo{DB: db}
	got, err := repo.ListByUser(context.Background(), "google:1", 500, -3)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(got) != 2 || got[1].ErrorCode != "AI_REQUEST" || got[0].Result != nil {
		t.Fatalf("unexpected rows %+v", got)
	}
}
