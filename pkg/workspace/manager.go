// Package workspace manages project directories and thread metadata. It is
// the collaborator layer around the job scheduler: it supplies working
// directories for submissions and refuses deletions while jobs are active.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harun/loom/internal/observability"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/harun/loom/pkg/store"
)

var (
	// ErrProjectBusy is returned when deleting a project with active jobs
	ErrProjectBusy = errors.New("project has active jobs")

	// ErrThreadBusy is returned when deleting a thread with active jobs
	ErrThreadBusy = errors.New("thread has active jobs")

	// ErrInvalidName is returned when a name is empty after sanitizing
	ErrInvalidName = errors.New("invalid name")

	// ErrPathOutsideProject is returned on path traversal attempts
	ErrPathOutsideProject = errors.New("path outside project directory")

	// ErrNotAFile is returned when reading something that is not a regular file
	ErrNotAFile = errors.New("not a file")
)

// idAlphabet matches the lowercase alphanumeric ids used in URLs.
const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// ActiveJobChecker reports whether threads have queued or running jobs.
// *jobs.Manager satisfies it.
type ActiveJobChecker interface {
	HasActiveJobs(threadIDs ...string) bool
}

// Manager owns the projects root directory and the thread metadata store.
type Manager struct {
	root    string
	store   *store.Store
	jobs    ActiveJobChecker
	cache   *treeCache
	watcher *Watcher
	logger  zerolog.Logger
}

// Config holds workspace manager configuration
type Config struct {
	// Root is the directory all project directories live under
	Root   string
	Store  *store.Store
	Jobs   ActiveJobChecker
	Logger zerolog.Logger
}

// NewManager creates a new workspace manager
func NewManager(cfg Config) (*Manager, error) {
	observability.EnsureRegistered()

	if cfg.Root == "" {
		return nil, fmt.Errorf("projects root is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Jobs == nil {
		return nil, fmt.Errorf("active job checker is required")
	}

	if err := os.MkdirAll(cfg.Root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create projects root: %w", err)
	}

	m := &Manager{
		root:   cfg.Root,
		store:  cfg.Store,
		jobs:   cfg.Jobs,
		cache:  newTreeCache(),
		logger: cfg.Logger.With().Str("component", "workspace").Logger(),
	}

	m.updateCountMetrics()
	m.logger.Info().Str("root", cfg.Root).Msg("Workspace manager initialized")
	return m, nil
}

// Root returns the projects root directory.
func (m *Manager) Root() string {
	return m.root
}

// StartWatcher begins watching the projects root so that trees cached by
// Tree are invalidated when the external tool writes into a project.
func (m *Manager) StartWatcher() error {
	w, err := NewWatcher(WatcherConfig{
		Root:   m.root,
		Cache:  m.cache,
		Logger: m.logger,
	})
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	m.watcher = w
	return nil
}

// Close stops the watcher if one is running.
func (m *Manager) Close() error {
	if m.watcher == nil {
		return nil
	}
	return m.watcher.Stop()
}

// CreateProject creates a project directory and its metadata row. The
// directory name is the sanitized project name, suffixed on conflicts.
func (m *Manager) CreateProject(name string) (store.Project, error) {
	sanitized := sanitizeName(name)
	if sanitized == "" {
		return store.Project{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	// Resolve directory name conflicts the way a filesystem user would
	dirName := sanitized
	for counter := 1; ; counter++ {
		if _, err := os.Stat(filepath.Join(m.root, dirName)); os.IsNotExist(err) {
			break
		}
		dirName = fmt.Sprintf("%s-%d", sanitized, counter)
	}

	dir := filepath.Join(m.root, dirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return store.Project{}, fmt.Errorf("failed to create project directory: %w", err)
	}

	id, err := gonanoid.Generate(idAlphabet, 8)
	if err != nil {
		return store.Project{}, fmt.Errorf("failed to generate project id: %w", err)
	}

	p := store.Project{
		ID:        id,
		Name:      name,
		Dir:       dir,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.store.CreateProject(p); err != nil {
		_ = os.RemoveAll(dir)
		return store.Project{}, err
	}

	m.updateCountMetrics()
	return p, nil
}

// ListProjects returns all projects.
func (m *Manager) ListProjects() ([]store.Project, error) {
	return m.store.ListProjects()
}

// GetProject returns one project.
func (m *Manager) GetProject(id string) (store.Project, error) {
	return m.store.GetProject(id)
}

// DeleteProject removes a project, its threads and its directory. It is
// refused while any of the project's threads has a non-terminal job.
func (m *Manager) DeleteProject(id string) error {
	p, err := m.store.GetProject(id)
	if err != nil {
		return err
	}

	threads, err := m.store.ListThreads(id)
	if err != nil {
		return err
	}
	threadIDs := make([]string, 0, len(threads))
	for _, t := range threads {
		threadIDs = append(threadIDs, t.ID)
	}
	if m.jobs.HasActiveJobs(threadIDs...) {
		return fmt.Errorf("%w: %s", ErrProjectBusy, id)
	}

	if err := m.store.DeleteProject(id); err != nil {
		return err
	}
	if err := os.RemoveAll(p.Dir); err != nil {
		m.logger.Error().Err(err).Str("dir", p.Dir).Msg("Failed to remove project directory")
	}

	m.cache.Invalidate(p.Dir)
	m.updateCountMetrics()
	return nil
}

// CreateThread creates a thread in a project.
func (m *Manager) CreateThread(projectID, name string) (store.Thread, error) {
	if _, err := m.store.GetProject(projectID); err != nil {
		return store.Thread{}, err
	}

	id, err := gonanoid.Generate(idAlphabet, 8)
	if err != nil {
		return store.Thread{}, fmt.Errorf("failed to generate thread id: %w", err)
	}
	if strings.TrimSpace(name) == "" {
		name = "Thread " + id
	}

	t := store.Thread{
		ID:        id,
		ProjectID: projectID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.store.CreateThread(t); err != nil {
		return store.Thread{}, err
	}

	m.updateCountMetrics()
	return t, nil
}

// ListThreads returns all threads of a project.
func (m *Manager) ListThreads(projectID string) ([]store.Thread, error) {
	if _, err := m.store.GetProject(projectID); err != nil {
		return nil, err
	}
	return m.store.ListThreads(projectID)
}

// GetThread returns one thread.
func (m *Manager) GetThread(id string) (store.Thread, error) {
	return m.store.GetThread(id)
}

// DeleteThread removes a thread and its history. It is refused while the
// thread has a non-terminal job.
func (m *Manager) DeleteThread(id string) error {
	if _, err := m.store.GetThread(id); err != nil {
		return err
	}
	if m.jobs.HasActiveJobs(id) {
		return fmt.Errorf("%w: %s", ErrThreadBusy, id)
	}

	if err := m.store.DeleteThread(id); err != nil {
		return err
	}
	m.updateCountMetrics()
	return nil
}

// Messages returns a thread's stored conversation history.
func (m *Manager) Messages(threadID string) ([]store.Message, error) {
	return m.store.Messages(threadID)
}

// ResolveThread returns a thread together with its owning project, which
// carries the working directory a submission needs.
func (m *Manager) ResolveThread(threadID string) (store.Thread, store.Project, error) {
	t, err := m.store.GetThread(threadID)
	if err != nil {
		return store.Thread{}, store.Project{}, err
	}
	p, err := m.store.GetProject(t.ProjectID)
	if err != nil {
		return store.Thread{}, store.Project{}, err
	}
	return t, p, nil
}

func (m *Manager) updateCountMetrics() {
	if n, err := m.store.CountProjects(); err == nil {
		observability.SetProjects(n)
	}
	if n, err := m.store.CountThreads(); err == nil {
		observability.SetThreads(n)
	}
}

// sanitizeName reduces a display name to a safe directory name.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
