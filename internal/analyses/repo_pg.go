package analyses

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const analysisColumns = `id, user_id, document_id, file_name, file_size, status, provider, model,
       result, error_code, error_message, error_retryable, created_at, started_at, completed_at`

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Create inserts a new analysis.
func (r *PGRepo) Create(ctx context.Context, analysis Analysis) error {
	const query = `
INSERT INTO analyses (
	id, user_id, document_id, file_name, file_size, status, provider, model,
	result, error_code, error_message, error_retryable, created_at, started_at, completed_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	result, err := marshalResult(analysis.Result)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, query,
		analysis.ID,
		analysis.UserID,
		nullString(analysis.DocumentID),
		analysis.FileName,
		analysis.FileSize,
		analysis.Status,
		nullString(analysis.Provider),
		nullString(analysis.Model),
		result,
		nullString(analysis.ErrorCode),
		nullString(analysis.ErrorMessage),
		analysis.ErrorRetryable,
		analysis.CreatedAt,
		analysis.StartedAt,
		analysis.CompletedAt,
	)
	return err
}

// GetByID returns an analysis by ID.
func (r *PGRepo) GetByID(ctx context.Context, analysisID string) (Analysis, error) {
	query := `SELECT ` + analysisColumns + `
FROM analyses
WHERE id = $1
LIMIT 1`
	a, err := scanAnalysis(r.DB.QueryRowContext(ctx, query, analysisID))
	if errors.Is(err, sql.ErrNoRows) {
		return Analysis{}, ErrNotFound
	}
	return a, err
}

// MarkProcessing moves an analysis to processing.
func (r *PGRepo) MarkProcessing(ctx context.Context, analysisID string, startedAt time.Time) error {
	return r.exec(ctx, `
UPDATE analyses SET status = $2, started_at = $3 WHERE id = $1`, analysisID, StatusProcessing, startedAt)
}

// Complete stores the result and marks the analysis completed.
func (r *PGRepo) Complete(ctx context.Context, analysisID string, result AnalysisResult, completedAt time.Time) error {
	payload, err := marshalResult(&result)
	if err != nil {
		return err
	}
	return r.exec(ctx, `
UPDATE analyses
SET status = $2, result = $3, error_code = NULL, error_message = NULL, error_retryable = FALSE, completed_at = $4
WHERE id = $1`, analysisID, StatusCompleted, payload, completedAt)
}

// Fail records the failure and marks the analysis failed.
func (r *PGRepo) Fail(ctx context.Context, analysisID string, failure Failure, completedAt time.Time) error {
	return r.exec(ctx, `
UPDATE analyses
SET status = $2, error_code = $3, error_message = $4, error_retryable = $5, completed_at = $6
WHERE id = $1`, analysisID, StatusFailed, failure.Code, failure.Message, failure.Retryable, completedAt)
}

// ListByUser lists analyses for a user ordered newest-first.
func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Analysis, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + analysisColumns + `
FROM analyses
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`
	rows, err := r.DB.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Analysis{}
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PGRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAnalysis(row rowScanner) (Analysis, error) {
	var a Analysis
	var documentID sql.NullString
	var provider sql.NullString
	var model sql.NullString
	var result sql.NullString
	var errorCode sql.NullString
	var errorMessage sql.NullString
	var startedAt sql.NullTime
	var completedAt sql.NullTime
	if err := row.Scan(
		&a.ID,
		&a.UserID,
		&documentID,
		&a.FileName,
		&a.FileSize,
		&a.Status,
		&provider,
		&model,
		&result,
		&errorCode,
		&errorMessage,
		&a.ErrorRetryable,
		&a.CreatedAt,
		&startedAt,
		&completedAt,
	); err != nil {
		return Analysis{}, err
	}
	a.DocumentID = documentID.String
	a.Provider = provider.String
	a.Model = model.String
	a.ErrorCode = errorCode.String
	a.ErrorMessage = errorMessage.String
	if result.Valid && result.String != "" {
		var parsed AnalysisResult
		if err := json.Unmarshal([]byte(result.String), &parsed); err != nil {
			return Analysis{}, fmt.Errorf("decode analysis result id=%s: %w", a.ID, err)
		}
		a.Result = &parsed
	}
	if startedAt.Valid {
		a.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		a.CompletedAt = &completedAt.Time
	}
	return a, nil
}

func marshalResult(result *AnalysisResult) (any, error) {
	if result == nil {
		return nil, nil
	}
	b, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode analysis result: %w", err)
	}
	return string(b), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
