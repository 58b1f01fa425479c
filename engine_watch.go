package graft

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jward/graft/internal/syntax"
)

// DefaultDebounce is how long Watch waits for the event stream to go
// quiet before reindexing a batch of changes. Editors fire several
// events per save; one debounce window folds them into one pass.
const DefaultDebounce = 200 * time.Millisecond

// Watch keeps the graph synchronized with root until ctx is canceled.
// File writes and creates reindex, removals and renames drop the file,
// and each debounced batch ends with an incremental Resolve.
func (e *Engine) Watch(ctx context.Context, root string) error {
	return e.watch(ctx, root, nil)
}

// watch is Watch with a readiness hook: ready, when non-nil, is closed
// once every directory under root is registered, so callers know changes
// from that point on will be seen.
func (e *Engine) watch(ctx context.Context, root string, ready chan<- struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("graft: create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch root and every non-ignored subdirectory. fsnotify has no
	// recursive mode.
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != root && (strings.HasPrefix(name, ".") || skipDirs[name]) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
	if err != nil {
		return fmt.Errorf("graft: watch %s: %w", root, err)
	}
	if ready != nil {
		close(ready)
	}

	pending := make(map[string]fsnotify.Op)
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() error {
		defer func() {
			pending = make(map[string]fsnotify.Op)
			timerC = nil
		}()
		var toIndex, toRemove []string
		for path, op := range pending {
			if op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				if _, statErr := os.Stat(path); statErr != nil {
					toRemove = append(toRemove, path)
					continue
				}
				// Renamed-over or atomically replaced; still present.
			}
			toIndex = append(toIndex, path)
		}
		for _, path := range toRemove {
			if err := e.RemoveFile(ctx, path); err != nil {
				return err
			}
		}
		if len(toIndex) > 0 {
			if err := e.IndexFiles(ctx, toIndex); err != nil {
				return err
			}
		}
		return e.Resolve(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// New directories join the watch; new files get indexed.
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					name := filepath.Base(ev.Name)
					if !strings.HasPrefix(name, ".") && !skipDirs[name] {
						_ = watcher.Add(ev.Name)
					}
					continue
				}
			}
			if _, supported := syntax.LanguageForFile(ev.Name); !supported {
				continue
			}
			pending[ev.Name] |= ev.Op
			if timer == nil {
				timer = time.NewTimer(DefaultDebounce)
			} else {
				timer.Reset(DefaultDebounce)
			}
			timerC = timer.C

		case <-timerC:
			if err := flush(); err != nil {
				return err
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("graft: watcher: %w", err)
		}
	}
}
