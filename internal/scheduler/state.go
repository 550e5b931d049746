package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// State mirrors the single bot_state row used by the monitoring API.
type State struct {
	IsActive   bool       `json:"is_active"`
	TotalRuns  int64      `json:"total_runs"`
	ErrorCount int64      `json:"error_count"`
	LastError  string     `json:"last_error,omitempty"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
}

type stateStore struct {
	db *sql.DB
}

func (s *stateStore) recordRun(ctx context.Context, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE bot_state SET total_runs = total_runs + 1, last_run_at = ? WHERE id = 1`,
		at.UTC())
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

func (s *stateStore) recordError(ctx context.Context, message string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE bot_state SET error_count = error_count + 1, last_error = ? WHERE id = 1`,
		message)
	if err != nil {
		return fmt.Errorf("failed to record error: %w", err)
	}
	return nil
}

func (s *stateStore) setActive(ctx context.Context, active bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE bot_state SET is_active = ? WHERE id = 1`, active)
	if err != nil {
		return fmt.Errorf("failed to set bot active flag: %w", err)
	}
	return nil
}

func (s *stateStore) load(ctx context.Context) (*State, error) {
	var (
		st        State
		lastError sql.NullString
		lastRunAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT is_active, total_runs, error_count, last_error, last_run_at FROM bot_state WHERE id = 1`).
		Scan(&st.IsActive, &st.TotalRuns, &st.ErrorCount, &lastError, &lastRunAt)
	if err != nil {
		return nil, fmt.Errorf("failed to load bot state: %w", err)
	}
	st.LastError = lastError.String
	if lastRunAt.Valid {
		t := lastRunAt.Time
		st.LastRunAt = &t
	}
	return &st, nil
}
