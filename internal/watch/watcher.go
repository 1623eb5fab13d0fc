// Package watch rebuilds the graph roots whenever a declared input file
// changes, invalidating the cached rule keys of the rules that own the
// changed files.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Vishwajeet-Mishra/buck/internal/graph"
	"github.com/Vishwajeet-Mishra/buck/internal/model"
	"github.com/Vishwajeet-Mishra/buck/internal/rulekey"
)

// RebuildFunc runs one build pass over the watched roots.
type RebuildFunc func(ctx context.Context, changed []model.Target) error

// Watcher maps declared input files back to their owning targets and
// triggers debounced rebuilds when any of them changes.
type Watcher struct {
	projectRoot string
	keys        *rulekey.Factory
	rebuild     RebuildFunc
	watcher     *fsnotify.Watcher
	logger      *slog.Logger

	// fileOwners maps an absolute input path to the targets declaring it.
	fileOwners map[string][]model.Target
	// revDeps maps a target to the targets that depend on it, so a
	// changed input invalidates every key derived from it.
	revDeps map[string][]model.Target

	mu       sync.Mutex
	pending  map[string]model.Target
	debounce time.Duration
	stopChan chan struct{}
}

// New creates a watcher over every input file declared by the resolver's
// rules. The parent directory of each input is watched, which survives
// editors that replace files by rename.
func New(projectRoot string, res *graph.Resolver, keys *rulekey.Factory, rebuild RebuildFunc, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	w := &Watcher{
		projectRoot: projectRoot,
		keys:        keys,
		rebuild:     rebuild,
		watcher:     fsw,
		logger:      logger,
		fileOwners:  make(map[string][]model.Target),
		revDeps:     make(map[string][]model.Target),
		pending:     make(map[string]model.Target),
		debounce:    500 * time.Millisecond,
		stopChan:    make(chan struct{}),
	}

	dirs := make(map[string]bool)
	for _, target := range res.Targets() {
		rule, ok := res.Get(target)
		if !ok {
			continue
		}
		for _, input := range rule.InputFiles() {
			abs := input
			if !filepath.IsAbs(abs) {
				abs = filepath.Join(projectRoot, input)
			}
			w.fileOwners[abs] = append(w.fileOwners[abs], target)
			dirs[filepath.Dir(abs)] = true
		}
		for _, dep := range rule.DepTargets() {
			w.revDeps[dep.String()] = append(w.revDeps[dep.String()], target)
		}
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	return w, nil
}

// Start runs the watch and rebuild loops until the context is done or
// Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	w.logger.Info("watching input files",
		slog.Int("files", len(w.fileOwners)))
	go w.watchLoop(ctx)
	go w.rebuildLoop(ctx)
}

// Stop shuts the watcher down.
func (w *Watcher) Stop() error {
	close(w.stopChan)
	return w.watcher.Close()
}

func (w *Watcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			owners, watched := w.fileOwners[event.Name]
			if !watched {
				continue
			}
			w.logger.Debug("input changed",
				slog.String("file", event.Name),
				slog.Int("owners", len(owners)))
			w.mu.Lock()
			for _, t := range owners {
				w.pending[t.String()] = t
			}
			w.mu.Unlock()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watch error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) rebuildLoop(ctx context.Context) {
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			changed := w.takePending()
			if len(changed) == 0 {
				continue
			}
			w.invalidateClosure(changed)
			w.logger.Info("rebuilding after input change",
				slog.Int("targets", len(changed)))
			if err := w.rebuild(ctx, changed); err != nil {
				w.logger.Error("rebuild failed", slog.String("error", err.Error()))
			}
		}
	}
}

// invalidateClosure drops the memoized keys of the changed targets and of
// everything that transitively depends on them.
func (w *Watcher) invalidateClosure(changed []model.Target) {
	seen := make(map[string]bool)
	queue := append([]model.Target(nil), changed...)
	for len(queue) > 0 {
		t := queue[0]
		queue = queue[1:]
		if seen[t.String()] {
			continue
		}
		seen[t.String()] = true
		w.keys.Invalidate(t)
		queue = append(queue, w.revDeps[t.String()]...)
	}
}

func (w *Watcher) takePending() []model.Target {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) == 0 {
		return nil
	}
	out := make([]model.Target, 0, len(w.pending))
	for _, t := range w.pending {
		out = append(out, t)
	}
	w.pending = make(map[string]model.Target)
	return out
}
