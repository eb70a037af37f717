package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher monitors the projects root for file changes made by the external
// tool and invalidates cached file trees. New directories are added to the
// watch set as they appear.
type Watcher struct {
	watcher            *fsnotify.Watcher
	root               string
	cache              *treeCache
	stabilityThreshold time.Duration
	done               chan struct{}
	debounceTimers     map[string]*time.Timer
	debounceMu         sync.Mutex
	stopOnce           sync.Once
	logger             zerolog.Logger
}

// WatcherConfig holds configuration for the watcher
type WatcherConfig struct {
	Root               string
	Cache              *treeCache
	StabilityThreshold time.Duration
	Logger             zerolog.Logger
}

// NewWatcher creates a new tree cache watcher
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if cfg.StabilityThreshold == 0 {
		cfg.StabilityThreshold = 100 * time.Millisecond
	}

	return &Watcher{
		watcher:            fw,
		root:               cfg.Root,
		cache:              cfg.Cache,
		stabilityThreshold: cfg.StabilityThreshold,
		done:               make(chan struct{}),
		debounceTimers:     make(map[string]*time.Timer),
		logger:             cfg.Logger.With().Str("component", "watcher").Logger(),
	}, nil
}

// Start starts watching the projects root
func (w *Watcher) Start() error {
	if err := w.addDirectoryRecursive(w.root); err != nil {
		return fmt.Errorf("failed to watch projects root: %w", err)
	}

	go w.eventLoop()

	w.logger.Info().Str("root", w.root).Msg("Tree watcher started")
	return nil
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.debounceMu.Lock()
	for _, timer := range w.debounceTimers {
		timer.Stop()
	}
	clear(w.debounceTimers)
	w.debounceMu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	w.logger.Info().Msg("Tree watcher stopped")
	return nil
}

// eventLoop processes file system events
func (w *Watcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if w.shouldIgnore(event.Name) {
		return
	}
	w.debounceEvent(event)
}

// debounceEvent coalesces rapid changes to the same path using a timer
func (w *Watcher) debounceEvent(event fsnotify.Event) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if timer, exists := w.debounceTimers[event.Name]; exists {
		timer.Stop()
	}

	eventCopy := event

	w.debounceTimers[event.Name] = time.AfterFunc(w.stabilityThreshold, func() {
		w.debounceMu.Lock()
		delete(w.debounceTimers, eventCopy.Name)
		w.debounceMu.Unlock()

		select {
		case <-w.done:
			return
		default:
			w.processEvent(eventCopy)
		}
	})
}

// processEvent invalidates the tree cache of the affected project and keeps
// the watch set in sync with created directories.
func (w *Watcher) processEvent(event fsnotify.Event) {
	if dir, ok := w.projectDir(event.Name); ok {
		w.cache.Invalidate(dir)
	}

	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.addDirectoryRecursive(event.Name)
		}
	}
}

// projectDir maps a changed path to the project directory containing it,
// which is the first path segment under the projects root.
func (w *Watcher) projectDir(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	parts := strings.SplitN(rel, string(filepath.Separator), 2)
	return filepath.Join(w.root, parts[0]), true
}

// addDirectoryRecursive adds a directory and all its subdirectories to the watcher
func (w *Watcher) addDirectoryRecursive(path string) error {
	return filepath.Walk(path, func(walkPath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if w.shouldIgnore(walkPath) {
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !info.IsDir() {
			return nil
		}

		if err := w.watcher.Add(walkPath); err != nil {
			w.logger.Warn().
				Err(err).
				Str("path", walkPath).
				Msg("Failed to watch path")
		}

		return nil
	})
}

// shouldIgnore checks if a path should be ignored
func (w *Watcher) shouldIgnore(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return true
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		// The root itself resolves to "." and must stay watchable.
		if part == "." {
			continue
		}
		if len(part) > 0 && part[0] == '.' {
			return true
		}
		if part == "node_modules" {
			return true
		}
	}
	return false
}
