package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// CreateThread inserts a new thread row.
func (s *Store) CreateThread(t Thread) error {
	_, err := s.db.Exec(
		`INSERT INTO threads (id, project_id, name, session_id, message_count, last_activity, created_at)
		 VALUES (?, ?, ?, NULLIF(?, ''), ?, ?, ?)`,
		t.ID, t.ProjectID, t.Name, t.SessionID, t.MessageCount, t.LastActivity, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create thread: %w", err)
	}

	s.logger.Info().Str("threadId", t.ID).Str("projectId", t.ProjectID).Msg("Thread created")
	return nil
}

// GetThread returns one thread by id.
func (s *Store) GetThread(id string) (Thread, error) {
	var t Thread
	var sessionID sql.NullString
	var lastActivity sql.NullTime

	err := s.db.QueryRow(
		`SELECT id, project_id, name, session_id, message_count, last_activity, created_at
		 FROM threads WHERE id = ?`, id,
	).Scan(&t.ID, &t.ProjectID, &t.Name, &sessionID, &t.MessageCount, &lastActivity, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Thread{}, ErrThreadNotFound
	}
	if err != nil {
		return Thread{}, fmt.Errorf("failed to get thread: %w", err)
	}

	t.SessionID = sessionID.String
	if lastActivity.Valid {
		la := lastActivity.Time
		t.LastActivity = &la
	}
	return t, nil
}

// ListThreads returns all threads of a project, newest first.
func (s *Store) ListThreads(projectID string) ([]Thread, error) {
	rows, err := s.db.Query(
		`SELECT id, project_id, name, session_id, message_count, last_activity, created_at
		 FROM threads WHERE project_id = ? ORDER BY created_at DESC, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	var threads []Thread
	for rows.Next() {
		var t Thread
		var sessionID sql.NullString
		var lastActivity sql.NullTime
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Name, &sessionID,
			&t.MessageCount, &lastActivity, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		t.SessionID = sessionID.String
		if lastActivity.Valid {
			la := lastActivity.Time
			t.LastActivity = &la
		}
		threads = append(threads, t)
	}
	return threads, rows.Err()
}

// DeleteThread removes a thread and its messages.
func (s *Store) DeleteThread(id string) error {
	res, err := s.db.Exec(`DELETE FROM threads WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrThreadNotFound
	}

	s.logger.Info().Str("threadId", id).Msg("Thread deleted")
	return nil
}

// CountThreads returns the number of threads across all projects.
func (s *Store) CountThreads() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM threads`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count threads: %w", err)
	}
	return n, nil
}

// Messages returns the stored conversation history of a thread in order.
func (s *Store) Messages(threadID string) ([]Message, error) {
	if _, err := s.GetThread(threadID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		`SELECT id, thread_id, role, content, created_at
		 FROM messages WHERE thread_id = ? ORDER BY id`, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
