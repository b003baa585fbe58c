package usage

import (
	"context"
	"database/sql"
	"errors"
)

type pgStore struct {
	DB *sql.DB
}

// NewPGStore constructs a Postgres-backed usage store.
func NewPGStore(db *sql.DB) *pgStore {
	return &pgStore{DB: db}
}

func (s *pgStore) Get(ctx context.Context, userID string) (Usage, error) {
	var u Usage
	err := s.DB.QueryRowContext(ctx, `
SELECT contracts_analyzed, updated_at FROM usage_counters WHERE user_id = $1`, userID).
		Scan(&u.ContractsAnalyzed, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Usage{}, nil
	}
	if err != nil {
		return Usage{}, err
	}
	return u, nil
}

func (s *pgStore) Increment(ctx context.Context, userID string, n int) (Usage, error) {
	var u Usage
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO usage_counters (user_id, contracts_analyzed, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (user_id) DO UPDATE
SET contracts_analyzed = usage_counters.contracts_analyzed + EXCLUDED.contracts_analyzed,
    updated_at = now()
RETURNING contracts_analyzed, updated_at`, userID, n).
		Scan(&u.ContractsAnalyzed, &u.UpdatedAt)
	if err != nil {
		return Usage{}, err
	}
	return u, nil
}
