package workspace

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/loom/pkg/store"
)

// fakeJobChecker lets tests mark threads as busy.
type fakeJobChecker struct {
	busy map[string]bool
}

func (f *fakeJobChecker) HasActiveJobs(threadIDs ...string) bool {
	for _, id := range threadIDs {
		if f.busy[id] {
			return true
		}
	}
	return false
}

func newTestManager(t *testing.T) (*Manager, *fakeJobChecker) {
	t.Helper()

	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "loom.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	checker := &fakeJobChecker{busy: make(map[string]bool)}
	m, err := NewManager(Config{
		Root:   filepath.Join(dir, "projects"),
		Store:  s,
		Jobs:   checker,
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	return m, checker
}

func TestNewManager_Validation(t *testing.T) {
	_, err := NewManager(Config{})
	assert.Error(t, err)

	_, err = NewManager(Config{Root: t.TempDir()})
	assert.Error(t, err)
}

func TestCreateProject(t *testing.T) {
	m, _ := newTestManager(t)

	p, err := m.CreateProject("My Project")
	require.NoError(t, err)
	assert.Len(t, p.ID, 8)
	assert.Equal(t, "My Project", p.Name)
	assert.Equal(t, filepath.Join(m.Root(), "My-Project"), p.Dir)
	assert.DirExists(t, p.Dir)

	got, err := m.GetProject(p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}

func TestCreateProject_NameConflict(t *testing.T) {
	m, _ := newTestManager(t)

	p1, err := m.CreateProject("demo")
	require.NoError(t, err)
	p2, err := m.CreateProject("demo")
	require.NoError(t, err)

	assert.NotEqual(t, p1.Dir, p2.Dir)
	assert.Equal(t, filepath.Join(m.Root(), "demo-1"), p2.Dir)
	assert.DirExists(t, p2.Dir)
}

func TestCreateProject_InvalidName(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.CreateProject("   ")
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = m.CreateProject("../../etc")
	assert.NoError(t, err) // sanitized to "etc", stays under the root
}

func TestDeleteProject(t *testing.T) {
	m, _ := newTestManager(t)

	p, err := m.CreateProject("gone")
	require.NoError(t, err)
	_, err = m.CreateThread(p.ID, "t")
	require.NoError(t, err)

	require.NoError(t, m.DeleteProject(p.ID))
	assert.NoDirExists(t, p.Dir)

	_, err = m.GetProject(p.ID)
	assert.ErrorIs(t, err, store.ErrProjectNotFound)
}

func TestDeleteProject_Busy(t *testing.T) {
	m, checker := newTestManager(t)

	p, err := m.CreateProject("busy")
	require.NoError(t, err)
	th, err := m.CreateThread(p.ID, "t")
	require.NoError(t, err)
	checker.busy[th.ID] = true

	err = m.DeleteProject(p.ID)
	assert.ErrorIs(t, err, ErrProjectBusy)
	assert.DirExists(t, p.Dir)
}

func TestThreads(t *testing.T) {
	m, checker := newTestManager(t)

	p, err := m.CreateProject("proj")
	require.NoError(t, err)

	th, err := m.CreateThread(p.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "Thread "+th.ID, th.Name)

	list, err := m.ListThreads(p.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	gotTh, gotP, err := m.ResolveThread(th.ID)
	require.NoError(t, err)
	assert.Equal(t, th.ID, gotTh.ID)
	assert.Equal(t, p.Dir, gotP.Dir)

	checker.busy[th.ID] = true
	assert.ErrorIs(t, m.DeleteThread(th.ID), ErrThreadBusy)

	checker.busy[th.ID] = false
	require.NoError(t, m.DeleteThread(th.ID))
	_, err = m.GetThread(th.ID)
	assert.ErrorIs(t, err, store.ErrThreadNotFound)
}

func TestCreateThread_UnknownProject(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.CreateThread("nope", "t")
	assert.ErrorIs(t, err, store.ErrProjectNotFound)
}

func TestFiles_ReadWrite(t *testing.T) {
	m, _ := newTestManager(t)

	p, err := m.CreateProject("files")
	require.NoError(t, err)

	require.NoError(t, m.WriteFile(p.ID, "src/main.go", "package main\n"))

	content, err := m.ReadFile(p.ID, "src/main.go")
	require.NoError(t, err)
	assert.Equal(t, "package main\n", content)

	_, err = m.ReadFile(p.ID, "src")
	assert.ErrorIs(t, err, ErrNotAFile)

	_, err = m.ReadFile(p.ID, "missing.txt")
	assert.Error(t, err)
}

func TestFiles_TraversalGuard(t *testing.T) {
	m, _ := newTestManager(t)

	p, err := m.CreateProject("guard")
	require.NoError(t, err)

	secret := filepath.Join(m.Root(), "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("x"), 0644))

	_, err = m.ReadFile(p.ID, "../secret.txt")
	assert.ErrorIs(t, err, ErrPathOutsideProject)

	err = m.WriteFile(p.ID, "../../escape.txt", "x")
	assert.ErrorIs(t, err, ErrPathOutsideProject)

	// Absolute and dot-cleaned paths stay anchored to the project dir
	content := "ok"
	require.NoError(t, m.WriteFile(p.ID, "/abs/./file.txt", content))
	got, err := m.ReadFile(p.ID, "abs/file.txt")
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestTree_CachesAndInvalidatesOnWrite(t *testing.T) {
	m, _ := newTestManager(t)

	p, err := m.CreateProject("tree")
	require.NoError(t, err)
	require.NoError(t, m.WriteFile(p.ID, "a.txt", "1"))
	require.NoError(t, m.WriteFile(p.ID, "sub/b.txt", "2"))
	require.NoError(t, m.WriteFile(p.ID, ".hidden", "3"))

	tree, err := m.Tree(p.ID)
	require.NoError(t, err)
	require.Len(t, tree.Children, 2)
	assert.Equal(t, "a.txt", tree.Children[0].Name)
	assert.Equal(t, "file", tree.Children[0].Type)
	assert.Equal(t, "sub", tree.Children[1].Name)
	assert.Equal(t, "directory", tree.Children[1].Type)
	require.Len(t, tree.Children[1].Children, 1)

	// A local write invalidates the cached tree
	require.NoError(t, m.WriteFile(p.ID, "c.txt", "4"))
	tree, err = m.Tree(p.ID)
	require.NoError(t, err)
	assert.Len(t, tree.Children, 3)
}

func TestWatcher_InvalidatesOnExternalWrite(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.StartWatcher())
	defer func() { _ = m.Close() }()

	p, err := m.CreateProject("watched")
	require.NoError(t, err)

	_, err = m.Tree(p.ID)
	require.NoError(t, err)

	// Simulate the external tool writing directly to disk
	require.NoError(t, os.WriteFile(filepath.Join(p.Dir, "new.txt"), []byte("x"), 0644))

	assert.Eventually(t, func() bool {
		tree, err := m.Tree(p.ID)
		if err != nil {
			return false
		}
		return len(tree.Children) == 1
	}, 3*time.Second, 50*time.Millisecond)
}

func TestWatcher_RootIsNotIgnored(t *testing.T) {
	root := t.TempDir()
	w, err := NewWatcher(WatcherConfig{Root: root, Cache: newTreeCache(), Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	assert.False(t, w.shouldIgnore(root))
	assert.False(t, w.shouldIgnore(filepath.Join(root, "proj", "main.go")))
	assert.True(t, w.shouldIgnore(filepath.Join(root, ".git", "HEAD")))
	assert.True(t, w.shouldIgnore(filepath.Join(root, "proj", "node_modules")))
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "My-Project", sanitizeName(" My Project "))
	assert.Equal(t, "a_b-c", sanitizeName("a_b-c"))
	assert.Equal(t, "etc", sanitizeName("../../etc"))
	assert.Equal(t, "", sanitizeName("!!!"))
}
