package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// TreeNode is one entry in a project's file tree.
type TreeNode struct {
	Name     string      `json:"name"`
	Type     string      `json:"type"` // "directory" or "file"
	Children []*TreeNode `json:"children,omitempty"`
}

// treeCache caches built trees per project directory until the watcher or
// a local write invalidates them.
type treeCache struct {
	mu    sync.RWMutex
	trees map[string]*TreeNode
}

func newTreeCache() *treeCache {
	return &treeCache{trees: make(map[string]*TreeNode)}
}

func (c *treeCache) get(dir string) (*TreeNode, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.trees[dir]
	return t, ok
}

func (c *treeCache) put(dir string, t *TreeNode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trees[dir] = t
}

// Invalidate drops the cached tree of one project directory.
func (c *treeCache) Invalidate(dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.trees, dir)
}

// Tree returns the file tree of a project, hiding dot-files. Trees are
// cached; the fsnotify watcher invalidates entries when the external tool
// writes into a project directory.
func (m *Manager) Tree(projectID string) (*TreeNode, error) {
	p, err := m.store.GetProject(projectID)
	if err != nil {
		return nil, err
	}

	if tree, ok := m.cache.get(p.Dir); ok {
		return tree, nil
	}

	tree, err := buildTree(p.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to build file tree: %w", err)
	}

	m.cache.put(p.Dir, tree)
	return tree, nil
}

func buildTree(path string) (*TreeNode, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	node := &TreeNode{Name: filepath.Base(path), Type: "file"}
	if !info.IsDir() {
		return node, nil
	}

	node.Type = "directory"
	entries, err := os.ReadDir(path)
	if err != nil {
		// Unreadable directories appear empty rather than failing the walk
		return node, nil
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, entry := range entries {
		if entry.Name()[0] == '.' {
			continue
		}
		child, err := buildTree(filepath.Join(path, entry.Name()))
		if err != nil {
			continue
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}
