package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type pgMessages struct {
	db *sql.DB
}

const messageColumns = "id, session_id, sender_id, content, created_at, read_by, edited, edited_at, reactions"

func scanMessage(row rowScanner) (*Message, error) {
	var m Message
	var readBy pq.StringArray
	var editedAt sql.NullTime
	var reactions []byte
	err := row.Scan(&m.ID, &m.SessionID, &m.SenderID, &m.Content,
		&m.CreatedAt, &readBy, &m.Edited, &editedAt, &reactions)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan message: %w", err)
	}
	m.ReadBy = readBy
	if editedAt.Valid {
		t := editedAt.Time
		m.EditedAt = &t
	}
	if len(reactions) > 0 {
		if err := json.Unmarshal(reactions, &m.Reactions); err != nil {
			return nil, fmt.Errorf("store: decode reactions: %w", err)
		}
	}
	return &m, nil
}

// Insert persists a message with read_by = {sender} and bumps the session's
// last-message pointer and updated-at in the same transaction.
func (r *pgMessages) Insert(ctx context.Context, sessionID, senderID, content string) (*Message, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin insert: %w", err)
	}
	defer tx.Rollback()

	id := uuid.New().String()
	row := tx.QueryRowContext(ctx, `
		INSERT INTO messages (id, session_id, sender_id, content, read_by)
		VALUES ($1, $2, $3, $4, ARRAY[$3::uuid])
		RETURNING `+messageColumns,
		id, sessionID, senderID, content)
	m, err := scanMessage(row)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE sessions SET last_message_id = $2, updated_at = $3 WHERE id = $1`,
		sessionID, id, m.CreatedAt); err != nil {
		return nil, fmt.Errorf("store: bump session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit insert: %w", err)
	}
	return m, nil
}

func (r *pgMessages) MarkRead(ctx context.Context, sessionID, readerID string) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("store: begin mark read: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE messages SET read_by = array_append(read_by, $2::uuid)
		WHERE session_id = $1
		  AND sender_id <> $2
		  AND NOT deleted
		  AND NOT ($2::uuid = ANY(read_by))`,
		sessionID, readerID); err != nil {
		return "", fmt.Errorf("store: mark read: %w", err)
	}

	var upTo string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM messages
		WHERE session_id = $1 AND NOT deleted
		ORDER BY created_at DESC, id DESC LIMIT 1`,
		sessionID).Scan(&upTo)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("store: newest message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("store: commit mark read: %w", err)
	}
	return upTo, nil
}

func (r *pgMessages) Edit(ctx context.Context, id, senderID, content string) (*Message, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE messages SET content = $3, edited = TRUE, edited_at = NOW()
		WHERE id = $1 AND sender_id = $2 AND NOT deleted
		RETURNING `+messageColumns,
		id, senderID, content)
	return scanMessage(row)
}

// Delete soft-deletes a message so pagination gaps stay explainable in
// moderator exports.
func (r *pgMessages) Delete(ctx context.Context, id, senderID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET deleted = TRUE WHERE id = $1 AND sender_id = $2`,
		id, senderID)
	if err != nil {
		return fmt.Errorf("store: delete message: %w", err)
	}
	return requireRow(res)
}

func (r *pgMessages) Search(ctx context.Context, sessionID, substring string, limit int) ([]*Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE session_id = $1 AND NOT deleted AND content ILIKE '%' || $2 || '%'
		ORDER BY created_at DESC, id DESC LIMIT $3`,
		sessionID, substring, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search messages: %w", err)
	}
	return collectMessages(rows)
}

func (r *pgMessages) Paginate(ctx context.Context, sessionID string, page, limit int) ([]*Message, error) {
	if page < 1 {
		page = 1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT * FROM (
			SELECT `+messageColumns+` FROM messages
			WHERE session_id = $1 AND NOT deleted
			ORDER BY created_at DESC, id DESC
			LIMIT $2 OFFSET $3
		) page ORDER BY created_at ASC, id ASC`,
		sessionID, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("store: paginate messages: %w", err)
	}
	return collectMessages(rows)
}

func (r *pgMessages) AddReaction(ctx context.Context, messageID, reactorID, emoji string) error {
	reaction, err := json.Marshal([]Reaction{{Emoji: emoji, UserID: reactorID}})
	if err != nil {
		return fmt.Errorf("store: encode reaction: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET reactions = reactions || $2::jsonb
		WHERE id = $1 AND NOT deleted`,
		messageID, reaction)
	if err != nil {
		return fmt.Errorf("store: add reaction: %w", err)
	}
	return requireRow(res)
}

func collectMessages(rows *sql.Rows) ([]*Message, error) {
	defer rows.Close()
	var out []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type pgReports struct {
	db *sql.DB
}

func (r *pgReports) Create(ctx context.Context, report *Report) error {
	var messagesJSON []byte
	if len(report.Messages) > 0 {
		var err error
		messagesJSON, err = json.Marshal(report.Messages)
		if err != nil {
			return fmt.Errorf("store: marshal report messages: %w", err)
		}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO abuse_reports (reporter_id, reported_id, session_id, reason, messages)
		VALUES ($1, $2, $3, $4, $5)`,
		report.ReporterID, report.ReportedID, report.SessionID, report.Reason, messagesJSON)
	if err != nil {
		return fmt.Errorf("store: insert report: %w", err)
	}
	return nil
}

func (r *pgReports) CountRecent(ctx context.Context, reportedID string, window time.Duration) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM abuse_reports
		WHERE reported_id = $1 AND created_at >= NOW() - $2::interval`,
		reportedID, window.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("store: count recent reports: %w", err)
	}
	return count, nil
}
