package db

import (
	"context"
	"fmt"

	"github.com/Flarenzy/authgate/internal/audit"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const insertAuthEvent = `
INSERT INTO auth_events (id, occurred_at, outcome, reason, subject, remote_addr, request_id, method, path)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

const listRecentAuthEvents = `
SELECT id::text, occurred_at, outcome, reason, subject, remote_addr, request_id, method, path
FROM auth_events
ORDER BY occurred_at DESC
LIMIT $1`

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type AuthEventRepository struct {
	db querier
}

func NewAuthEventRepository(db querier) *AuthEventRepository {
	return &AuthEventRepository{db: db}
}

func (r *AuthEventRepository) Insert(ctx context.Context, e audit.Event) error {
	_, err := r.db.Exec(ctx, insertAuthEvent,
		e.ID.String(),
		e.OccurredAt,
		string(e.Outcome),
		e.Reason,
		e.Subject,
		e.RemoteAddr,
		e.RequestID,
		e.Method,
		e.Path,
	)
	if err != nil {
		return fmt.Errorf("insert auth event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (r *AuthEventRepository) Recent(ctx context.Context, limit int) ([]audit.Event, error) {
	rows, err := r.db.Query(ctx, listRecentAuthEvents, limit)
	if err != nil {
		return nil, fmt.Errorf("list auth events: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var (
			e       audit.Event
			id      string
			outcome string
		)
		if err := rows.Scan(&id, &e.OccurredAt, &outcome, &e.Reason, &e.Subject, &e.RemoteAddr, &e.RequestID, &e.Method, &e.Path); err != nil {
			return nil, fmt.Errorf("scan auth event: %w", err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse auth event id: %w", err)
		}
		e.ID = parsed
		e.Outcome = audit.Outcome(outcome)
		out = append(out, e)
	}

	return out, rows.Err()
}
