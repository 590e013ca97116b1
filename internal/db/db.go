// Package db provides SQLite storage for mailagent: cached emails, the
// embedded document index and chat sessions.
package db

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/daviddao/mailagent/internal/types"
)

// DirName is the per-project directory that holds the database.
const DirName = ".mailagent"

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// DB wraps a SQLite connection for mailagent operations.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens (or creates) a mailagent database at the given path.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}

	conn, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec(Schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &DB{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// GenID generates a random 16-character hex ID.
func GenID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(b)
}

// Now returns the current time as an ISO 8601 string.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// DiscoverDB finds the mailagent database by walking up from cwd.
// Returns the path to .mailagent/mail.db or empty string if not found.
func DiscoverDB() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, DirName, "mail.db")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// FindProjectRoot walks up from cwd looking for a .git directory.
func FindProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// --- Email operations ---

// InsertEmail inserts an email, ignoring duplicates. It reports whether a
// row was written.
func (d *DB) InsertEmail(e *types.Email) (bool, error) {
	res, err := d.conn.Exec(`
		INSERT OR IGNORE INTO emails
			(id, thread_id, subject, sender, receiver, date, content, word_count, sentence_count, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ThreadID, e.Subject, e.Sender, nullStr(e.Receiver), nullStr(e.Date),
		e.Content, e.WordCount, e.SentenceCount, Now(),
	)
	if err != nil {
		return false, fmt.Errorf("insert email %s: %w", e.ID, err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// EmailExists checks if an email ID already exists.
func (d *DB) EmailExists(id string) bool {
	var n int
	d.conn.QueryRow("SELECT 1 FROM emails WHERE id = ?", id).Scan(&n)
	return n == 1
}

// GetEmail returns a single cached email.
func (d *DB) GetEmail(id string) (*types.Email, error) {
	rows, err := d.conn.Query(`
		SELECT id, thread_id, subject, sender, receiver, date, content, word_count, sentence_count
		FROM emails WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	emails, err := scanEmails(rows)
	if err != nil {
		return nil, err
	}
	if len(emails) == 0 {
		return nil, fmt.Errorf("email %s: %w", id, ErrNotFound)
	}
	return emails[0], nil
}

// Emails returns cached emails, most recently fetched first. A limit of
// zero or less returns all of them.
func (d *DB) Emails(limit int) ([]*types.Email, error) {
	query := `
		SELECT id, thread_id, subject, sender, receiver, date, content, word_count, sentence_count
		FROM emails
		ORDER BY fetched_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEmails(rows)
}

// EmailCount returns the total number of emails.
func (d *DB) EmailCount() int {
	var n int
	d.conn.QueryRow("SELECT COUNT(*) FROM emails").Scan(&n)
	return n
}

// LatestFetchedAt returns the most recent fetched_at timestamp.
func (d *DB) LatestFetchedAt() string {
	var t sql.NullString
	d.conn.QueryRow("SELECT MAX(fetched_at) FROM emails").Scan(&t)
	if t.Valid {
		return t.String
	}
	return ""
}

func scanEmails(rows *sql.Rows) ([]*types.Email, error) {
	var result []*types.Email
	for rows.Next() {
		e := &types.Email{}
		var receiver, date sql.NullString
		if err := rows.Scan(
			&e.ID, &e.ThreadID, &e.Subject, &e.Sender, &receiver, &date,
			&e.Content, &e.WordCount, &e.SentenceCount,
		); err != nil {
			return nil, err
		}
		e.Receiver = receiver.String
		e.Date = date.String
		result = append(result, e)
	}
	return result, rows.Err()
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
