package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type pgSessions struct {
	db *sql.DB
}

const sessionColumns = "id, user_a, user_b, type, active, archived, COALESCE(last_message_id::text, ''), created_at, updated_at"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.UserA, &s.UserB, &s.Type, &s.Active,
		&s.Archived, &s.LastMessageID, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan session: %w", err)
	}
	return &s, nil
}

func (r *pgSessions) Create(ctx context.Context, userA, userB string, typ ChatType) (*Session, error) {
	id := uuid.New().String()
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO sessions (id, user_a, user_b, type)
		VALUES ($1, $2, $3, $4)
		RETURNING `+sessionColumns,
		id, userA, userB, typ)
	s, err := scanSession(row)
	if err != nil {
		// The partial unique index rejects a second active session for the
		// same pair; surface the existing one instead.
		if existing, ferr := r.FindActiveBetween(ctx, userA, userB); ferr == nil {
			return existing, nil
		}
		return nil, err
	}
	return s, nil
}

func (r *pgSessions) Get(ctx context.Context, id string) (*Session, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE id = $1", id)
	return scanSession(row)
}

func (r *pgSessions) SetActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE sessions SET active = $2, updated_at = NOW() WHERE id = $1", id, active)
	if err != nil {
		return fmt.Errorf("store: set active: %w", err)
	}
	return requireRow(res)
}

func (r *pgSessions) SetArchived(ctx context.Context, id string, archived bool) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE sessions SET archived = $2, updated_at = NOW() WHERE id = $1", id, archived)
	if err != nil {
		return fmt.Errorf("store: set archived: %w", err)
	}
	return requireRow(res)
}

func (r *pgSessions) FindActiveBetween(ctx context.Context, a, b string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE active
		  AND ((user_a = $1 AND user_b = $2) OR (user_a = $2 AND user_b = $1))`,
		a, b)
	return scanSession(row)
}

func (r *pgSessions) ListForUser(ctx context.Context, userID string, f SessionFilter) ([]*Session, error) {
	query := "SELECT " + sessionColumns + " FROM sessions WHERE (user_a = $1 OR user_b = $1)"
	args := []interface{}{userID}
	if f.ActiveOnly {
		query += " AND active"
	}
	if f.Archived != nil {
		args = append(args, *f.Archived)
		query += fmt.Sprintf(" AND archived = $%d", len(args))
	}
	query += " ORDER BY updated_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
