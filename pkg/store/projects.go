package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateProject inserts a new project row.
func (s *Store) CreateProject(p Project) error {
	_, err := s.db.Exec(
		`INSERT INTO projects (id, name, dir, created_at) VALUES (?, ?, ?, ?)`,
		p.ID, p.Name, p.Dir, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	s.logger.Info().Str("projectId", p.ID).Str("dir", p.Dir).Msg("Project created")
	return nil
}

// GetProject returns one project by id.
func (s *Store) GetProject(id string) (Project, error) {
	var p Project
	err := s.db.QueryRow(
		`SELECT id, name, dir, created_at FROM projects WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Dir, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, ErrProjectNotFound
	}
	if err != nil {
		return Project{}, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// ListProjects returns all projects, newest first.
func (s *Store) ListProjects() ([]Project, error) {
	rows, err := s.db.Query(
		`SELECT id, name, dir, created_at FROM projects ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Dir, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// DeleteProject removes a project and, via foreign keys, its threads and
// messages.
func (s *Store) DeleteProject(id string) error {
	res, err := s.db.Exec(`DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrProjectNotFound
	}

	s.logger.Info().Str("projectId", id).Msg("Project deleted")
	return nil
}

// CountProjects returns the number of projects.
func (s *Store) CountProjects() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM projects`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count projects: %w", err)
	}
	return n, nil
}

// nowUTC truncates to millisecond so timestamps survive a SQLite round trip
// comparably.
func nowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
