// Package watch turns file system events under the workspace root into
// document mutations on the project graph.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"vigil/internal/project"
	"vigil/internal/workspace"
)

// DefaultDebounce is the quiet period before pending paths are applied.
const DefaultDebounce = 200 * time.Millisecond

var skippedDirs = map[string]bool{
	".git":         true,
	".vigil":       true,
	"node_modules": true,
	"vendor":       true,
	"testdata":     true,
	".idea":        true,
	".vscode":      true,
}

// Graph is the part of the workspace the watcher mutates.
type Graph interface {
	Snapshot() *workspace.Snapshot
	SetDocument(id workspace.ProjectID, path string, content []byte) error
	RemoveDocument(id workspace.ProjectID, path string) error
}

type Option func(*Watcher)

func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(w *Watcher) {
		if log != nil {
			w.log = log
		}
	}
}

// Watcher coalesces events per path and applies them after a quiet period.
type Watcher struct {
	graph    Graph
	root     string
	debounce time.Duration
	log      logrus.FieldLogger

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
}

func New(graph Graph, root string, opts ...Option) *Watcher {
	w := &Watcher{
		graph:    graph,
		root:     root,
		debounce: DefaultDebounce,
		log:      logrus.StandardLogger(),
		pending:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Run watches the root until ctx is done. Pending paths are dropped on
// return.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Close()

	if err := addWatchDirs(fw, w.root); err != nil {
		return fmt.Errorf("failed to watch directories: %w", err)
	}
	w.log.WithField("root", w.root).Debug("watching")

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.pending = make(map[string]struct{})
			w.mu.Unlock()
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				addIfDirectory(fw, event.Name)
			}
			if !isRelevantChange(event) {
				continue
			}
			w.schedule(event.Name)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("watcher error")
		}
	}
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[path] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.timer = nil
	w.mu.Unlock()
	sort.Strings(paths)
	w.Apply(paths)
}

// Apply reconciles each path with the graph: changed files are stored,
// deleted files are removed, and new files are added to the package project
// whose directory holds them. Files outside every project are ignored. It
// returns how many paths changed the graph.
func (w *Watcher) Apply(paths []string) int {
	applied := 0
	for _, path := range paths {
		changed, err := w.apply(path)
		if err != nil {
			w.log.WithError(err).WithField("path", path).Warn("apply file change")
			continue
		}
		if changed {
			applied++
		}
	}
	return applied
}

func (w *Watcher) apply(path string) (bool, error) {
	snap := w.graph.Snapshot()
	content, readErr := os.ReadFile(path)
	missing := errors.Is(readErr, os.ErrNotExist)
	if readErr != nil && !missing {
		return false, readErr
	}

	if owner, doc, ok := snap.FindDocument(path); ok {
		if missing {
			return true, w.graph.RemoveDocument(owner.ID, doc.Path)
		}
		if string(doc.Text.Bytes()) == string(content) {
			return false, nil
		}
		return true, w.graph.SetDocument(owner.ID, doc.Path, content)
	}
	if missing || !project.IsSource(path) {
		return false, nil
	}
	for _, p := range snap.Projects() {
		if project.OwnsFile(p, path) {
			return true, w.graph.SetDocument(p.ID, path, content)
		}
	}
	return false, nil
}

func isRelevantChange(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	return project.IsSource(event.Name)
}

func addWatchDirs(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && skippedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return fw.Add(path)
		}
		return nil
	})
}

func addIfDirectory(fw *fsnotify.Watcher, path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() || skippedDirs[info.Name()] {
		return
	}
	_ = addWatchDirs(fw, path)
}
