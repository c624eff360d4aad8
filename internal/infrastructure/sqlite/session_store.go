package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/zjrosen/refcheck/internal/checks/domain"
)

const selectedKey = "selected_check"

// sessionStore implements domain.SessionStore using SQLite.
type sessionStore struct {
	db *DB
}

func newSessionStore(db *DB) *sessionStore {
	return &sessionStore{db: db}
}

var _ domain.SessionStore = (*sessionStore)(nil)

// SaveSession records b, replacing any row for the same session id or the
// same check id (a check has at most one live session).
func (s *sessionStore) SaveSession(b domain.SessionBinding) error {
	if b.Session == "" {
		return fmt.Errorf("save session: empty session id")
	}
	m := toSessionModel(b)

	tx, err := s.db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM sessions WHERE check_id = ? AND session_id <> ?`, m.CheckID, m.SessionID); err != nil {
		return fmt.Errorf("failed to clear previous session: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO sessions (session_id, check_id, registered_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET check_id = excluded.check_id, registered_at = excluded.registered_at`,
		m.SessionID, m.CheckID, m.RegisteredAt,
	); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return tx.Commit()
}

// DeleteSession removes the row for session.
func (s *sessionStore) DeleteSession(session domain.SessionID) error {
	if _, err := s.db.conn.Exec(`DELETE FROM sessions WHERE session_id = ?`, string(session)); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// ListSessions returns all rows, oldest first.
func (s *sessionStore) ListSessions() ([]domain.SessionBinding, error) {
	rows, err := s.db.conn.Query(`SELECT session_id, check_id, registered_at FROM sessions ORDER BY registered_at, session_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.SessionBinding
	for rows.Next() {
		var m sessionModel
		if err := rows.Scan(&m.SessionID, &m.CheckID, &m.RegisteredAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, m.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return out, nil
}

// SetSelected persists the selected check id.
func (s *sessionStore) SetSelected(id domain.CheckID) error {
	_, err := s.db.conn.Exec(
		`INSERT INTO preferences (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		selectedKey, strconv.FormatInt(int64(id), 10),
	)
	if err != nil {
		return fmt.Errorf("failed to save selection: %w", err)
	}
	return nil
}

// Selected returns the persisted selection, or DraftID when none was saved.
func (s *sessionStore) Selected() (domain.CheckID, error) {
	var value string
	err := s.db.conn.QueryRow(`SELECT value FROM preferences WHERE key = ?`, selectedKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DraftID, nil
	}
	if err != nil {
		return domain.DraftID, fmt.Errorf("failed to load selection: %w", err)
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return domain.DraftID, fmt.Errorf("invalid stored selection %q: %w", value, err)
	}
	return domain.CheckID(id), nil
}

// Close closes the underlying database.
func (s *sessionStore) Close() error {
	return s.db.Close()
}
