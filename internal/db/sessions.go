package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/daviddao/mailagent/internal/types"
)

// Session is a persisted chat conversation.
type Session struct {
	ID                string `json:"id"`
	Summary           string `json:"summary,omitempty"`
	SummarizedThrough int    `json:"summarized_through"`
	Turns             int    `json:"turns"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at,omitempty"`
}

// EnsureSession creates the session row if it does not exist yet.
func (d *DB) EnsureSession(id string) error {
	now := Now()
	_, err := d.conn.Exec(`
		INSERT OR IGNORE INTO sessions (id, created_at, updated_at) VALUES (?, ?, ?)`,
		id, now, now)
	if err != nil {
		return fmt.Errorf("create session %s: %w", id, err)
	}
	return nil
}

// GetSession returns a session with its turn count.
func (d *DB) GetSession(id string) (*Session, error) {
	s := &Session{}
	var updated sql.NullString
	err := d.conn.QueryRow(`
		SELECT s.id, s.summary, s.summarized_through, s.created_at, s.updated_at,
		       (SELECT COUNT(*) FROM conversations c WHERE c.session_id = s.id)
		FROM sessions s WHERE s.id = ?`, id).
		Scan(&s.ID, &s.Summary, &s.SummarizedThrough, &s.CreatedAt, &updated, &s.Turns)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	s.UpdatedAt = updated.String
	return s, nil
}

// Sessions lists sessions, most recently updated first.
func (d *DB) Sessions() ([]*Session, error) {
	rows, err := d.conn.Query(`
		SELECT s.id, s.summary, s.summarized_through, s.created_at, s.updated_at,
		       (SELECT COUNT(*) FROM conversations c WHERE c.session_id = s.id)
		FROM sessions s
		ORDER BY s.updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Session
	for rows.Next() {
		s := &Session{}
		var updated sql.NullString
		if err := rows.Scan(&s.ID, &s.Summary, &s.SummarizedThrough, &s.CreatedAt, &updated, &s.Turns); err != nil {
			return nil, err
		}
		s.UpdatedAt = updated.String
		result = append(result, s)
	}
	return result, rows.Err()
}

// AppendTurn records one exchange and returns its sequence number.
func (d *DB) AppendTurn(sessionID, human, ai string) (int, error) {
	if err := d.EnsureSession(sessionID); err != nil {
		return 0, err
	}

	tx, err := d.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var seq int
	if err := tx.QueryRow(
		"SELECT COALESCE(MAX(seq), 0) + 1 FROM conversations WHERE session_id = ?", sessionID,
	).Scan(&seq); err != nil {
		return 0, err
	}

	now := Now()
	if _, err := tx.Exec(`
		INSERT INTO conversations (session_id, seq, human, ai, created_at)
		VALUES (?, ?, ?, ?, ?)`, sessionID, seq, human, ai, now); err != nil {
		return 0, fmt.Errorf("insert turn: %w", err)
	}
	if _, err := tx.Exec("UPDATE sessions SET updated_at = ? WHERE id = ?", now, sessionID); err != nil {
		return 0, err
	}
	return seq, tx.Commit()
}

// Turns returns the turns of a session with seq greater than after, in order.
func (d *DB) Turns(sessionID string, after int) ([]types.Turn, error) {
	rows, err := d.conn.Query(`
		SELECT session_id, seq, human, ai, created_at
		FROM conversations
		WHERE session_id = ? AND seq > ?
		ORDER BY seq ASC`, sessionID, after)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []types.Turn
	for rows.Next() {
		var t types.Turn
		if err := rows.Scan(&t.SessionID, &t.Seq, &t.Human, &t.AI, &t.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// SaveSummary stores the running summary covering turns up to and including
// seq through.
func (d *DB) SaveSummary(sessionID, summary string, through int) error {
	if err := d.EnsureSession(sessionID); err != nil {
		return err
	}
	_, err := d.conn.Exec(`
		UPDATE sessions SET summary = ?, summarized_through = ?, updated_at = ?
		WHERE id = ?`, summary, through, Now(), sessionID)
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return nil
}
