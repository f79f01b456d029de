package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type pgUsers struct {
	db *sql.DB
}

const userColumns = "id, username, interests, preference, online, status, last_active, created_at"

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var interests pq.StringArray
	err := row.Scan(&u.ID, &u.Username, &interests, &u.Preference,
		&u.Online, &u.Status, &u.LastActive, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan user: %w", err)
	}
	u.Interests = interests
	return &u, nil
}

func (r *pgUsers) GetByID(ctx context.Context, id string) (*User, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1", id)
	return scanUser(row)
}

func (r *pgUsers) Create(ctx context.Context, username, passwordHash string, interests []string, pref ChatType) (*User, error) {
	id := uuid.New().String()
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (id, username, password_hash, interests, preference)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+userColumns,
		id, username, passwordHash, pq.Array(interests), pref)
	u, err := scanUser(row)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return nil, ErrConflict
		}
		return nil, err
	}
	return u, nil
}

func (r *pgUsers) FindByCredentials(ctx context.Context, username string) (*User, string, error) {
	var u User
	var interests pq.StringArray
	var hash string
	err := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`, password_hash FROM users WHERE username = $1`,
		username).Scan(&u.ID, &u.Username, &interests, &u.Preference,
		&u.Online, &u.Status, &u.LastActive, &u.CreatedAt, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("store: find by credentials: %w", err)
	}
	u.Interests = interests
	return &u, hash, nil
}

func (r *pgUsers) UpdatePresence(ctx context.Context, id string, online bool, status string, lastActive time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET online = $2, status = $3, last_active = $4 WHERE id = $1`,
		id, online, status, lastActive)
	if err != nil {
		return fmt.Errorf("store: update presence: %w", err)
	}
	return requireRow(res)
}

func (r *pgUsers) UpdateProfile(ctx context.Context, id string, interests []string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET interests = $2 WHERE id = $1", id, pq.Array(interests))
	if err != nil {
		return fmt.Errorf("store: update profile: %w", err)
	}
	return requireRow(res)
}

func (r *pgUsers) UpdatePreference(ctx context.Context, id string, pref ChatType) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET preference = $2 WHERE id = $1", id, pref)
	if err != nil {
		return fmt.Errorf("store: update preference: %w", err)
	}
	return requireRow(res)
}

// requireRow converts a zero-row update into ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
