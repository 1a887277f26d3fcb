package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ImportState is the bookkeeping for one transaction source.
type ImportState struct {
	Source       string     `json:"source"`
	LastSuccess  *time.Time `json:"lastSuccess,omitempty"`
	LastAttempt  *time.Time `json:"lastAttempt,omitempty"`
	LastErrorMsg string     `json:"lastError,omitempty"`
	LastCount    int        `json:"lastCount"`
}

type ImportStateRepo struct {
	db *sql.DB
}

func NewImportStateRepo(db *sql.DB) *ImportStateRepo {
	return &ImportStateRepo{db: db}
}

const importStateColumns = `source, last_success_at, last_attempt_at, COALESCE(last_error, ''), last_count`

func (r *ImportStateRepo) Get(ctx context.Context, source string) (ImportState, bool, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT `+importStateColumns+` FROM import_state WHERE source = ?`,
		source,
	)
	state, err := scanImportState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ImportState{}, false, nil
	}
	if err != nil {
		return ImportState{}, false, fmt.Errorf("query import state for %q: %w", source, err)
	}
	return state, true, nil
}

// List returns all sources, most recently attempted first.
func (r *ImportStateRepo) List(ctx context.Context) ([]ImportState, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT `+importStateColumns+` FROM import_state ORDER BY last_attempt_at DESC, source`,
	)
	if err != nil {
		return nil, fmt.Errorf("query import states: %w", err)
	}
	defer rows.Close()

	var out []ImportState
	for rows.Next() {
		state, err := scanImportState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan import state: %w", err)
		}
		out = append(out, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate import states: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImportState(row rowScanner) (ImportState, error) {
	var state ImportState
	var lastSuccess sql.NullString
	var lastAttempt sql.NullString
	if err := row.Scan(&state.Source, &lastSuccess, &lastAttempt, &state.LastErrorMsg, &state.LastCount); err != nil {
		return ImportState{}, err
	}

	var err error
	if state.LastSuccess, err = parseOptionalTime(lastSuccess); err != nil {
		return ImportState{}, fmt.Errorf("parse last_success_at for %q: %w", state.Source, err)
	}
	if state.LastAttempt, err = parseOptionalTime(lastAttempt); err != nil {
		return ImportState{}, fmt.Errorf("parse last_attempt_at for %q: %w", state.Source, err)
	}
	return state, nil
}

func parseOptionalTime(v sql.NullString) (*time.Time, error) {
	if strings.TrimSpace(v.String) == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *ImportStateRepo) RecordAttempt(ctx context.Context, source string, at time.Time) error {
	// Clear previous error at the start of a new attempt.
	msg := ""
	return r.upsert(ctx, source, at, nil, &msg, nil)
}

func (r *ImportStateRepo) RecordSuccess(ctx context.Context, source string, at time.Time, count int) error {
	msg := ""
	return r.upsert(ctx, source, at, &at, &msg, &count)
}

func (r *ImportStateRepo) RecordError(ctx context.Context, source string, at time.Time, importErr error) error {
	msg := ""
	if importErr != nil {
		msg = importErr.Error()
	}
	return r.upsert(ctx, source, at, nil, &msg, nil)
}

func (r *ImportStateRepo) upsert(
	ctx context.Context,
	source string,
	attemptAt time.Time,
	successAt *time.Time,
	errorMsg *string,
	count *int,
) error {
	attemptValue := attemptAt.UTC().Format(time.RFC3339Nano)
	var successValue any
	if successAt != nil {
		successValue = successAt.UTC().Format(time.RFC3339Nano)
	}
	var errorValue any
	if errorMsg != nil {
		errorValue = *errorMsg
	}
	var countValue any
	if count != nil {
		countValue = *count
	}

	const q = `
INSERT INTO import_state (source, last_attempt_at, last_success_at, last_error, last_count)
VALUES (?, ?, ?, ?, COALESCE(?, 0))
ON CONFLICT(source) DO UPDATE SET
  last_attempt_at = excluded.last_attempt_at,
  last_success_at = COALESCE(excluded.last_success_at, import_state.last_success_at),
  last_error = CASE
    WHEN excluded.last_error IS NULL THEN import_state.last_error
    ELSE excluded.last_error
  END,
  last_count = CASE
    WHEN ? IS NULL THEN import_state.last_count
    ELSE excluded.last_count
  END
`
	if _, err := r.db.ExecContext(ctx, q, source, attemptValue, successValue, errorValue, countValue, countValue); err != nil {
		return fmt.Errorf("upsert import state for %q: %w", source, err)
	}
	return nil
}
