package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// SessionID returns the thread's current session identifier. ok is false
// when the thread has no session yet, which signals fresh mode to the
// invoker.
func (s *Store) SessionID(threadID string) (string, bool, error) {
	var sessionID sql.NullString
	err := s.db.QueryRow(
		`SELECT session_id FROM threads WHERE id = ?`, threadID,
	).Scan(&sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, ErrThreadNotFound
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read session id: %w", err)
	}
	return sessionID.String, sessionID.Valid && sessionID.String != "", nil
}

// SetSessionID durably records the thread's session identifier.
// Last write wins; callers only invoke this after a successful job.
func (s *Store) SetSessionID(threadID, sessionID string) error {
	res, err := s.db.Exec(
		`UPDATE threads SET session_id = NULLIF(?, '') WHERE id = ?`,
		sessionID, threadID,
	)
	if err != nil {
		return fmt.Errorf("failed to set session id: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrThreadNotFound
	}

	s.logger.Debug().Str("threadId", threadID).Str("sessionId", sessionID).Msg("Session id updated")
	return nil
}

// RecordExchange persists the outcome of one successful job in a single
// transaction: the renewed session id, both conversation turns, the
// incremented message count and the activity timestamp.
func (s *Store) RecordExchange(threadID, sessionID, userMessage, assistantMessage string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := nowUTC()

	res, err := tx.Exec(
		`UPDATE threads
		 SET session_id = COALESCE(NULLIF(?, ''), session_id),
		     message_count = message_count + 1,
		     last_activity = ?
		 WHERE id = ?`,
		sessionID, now, threadID,
	)
	if err != nil {
		return fmt.Errorf("failed to update thread: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrThreadNotFound
	}

	for _, m := range []struct{ role, content string }{
		{"user", userMessage},
		{"assistant", assistantMessage},
	} {
		if _, err := tx.Exec(
			`INSERT INTO messages (thread_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
			threadID, m.role, m.content, now,
		); err != nil {
			return fmt.Errorf("failed to insert %s message: %w", m.role, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit exchange: %w", err)
	}

	s.logger.Debug().Str("threadId", threadID).Str("sessionId", sessionID).Msg("Exchange recorded")
	return nil
}
