package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// resolveInProject joins a relative path to the project directory and
// rejects anything that escapes it.
func resolveInProject(projectDir, relPath string) (string, error) {
	target := filepath.Join(projectDir, relPath)

	rel, err := filepath.Rel(projectDir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathOutsideProject, relPath)
	}
	return target, nil
}

// ReadFile returns the content of a file inside a project directory.
func (m *Manager) ReadFile(projectID, relPath string) (string, error) {
	p, err := m.store.GetProject(projectID)
	if err != nil {
		return "", err
	}

	target, err := resolveInProject(p.Dir, relPath)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(target)
	if err != nil {
		return "", fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotAFile, relPath)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return string(data), nil
}

// WriteFile writes content to a file inside a project directory, creating
// parent directories as needed.
func (m *Manager) WriteFile(projectID, relPath, content string) error {
	p, err := m.store.GetProject(projectID)
	if err != nil {
		return err
	}

	target, err := resolveInProject(p.Dir, relPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create parent directories: %w", err)
	}
	if err := os.WriteFile(target, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	m.cache.Invalidate(p.Dir)
	m.logger.Debug().Str("projectId", projectID).Str("path", relPath).Msg("File written")
	return nil
}
