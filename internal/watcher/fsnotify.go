// Package watcher provides recursive fsnotify watching with event settling
package watcher

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cspack/cspack/pkg/interfaces"
	"github.com/cspack/cspack/pkg/logger"
	"github.com/cspack/cspack/pkg/utils"
	"github.com/fsnotify/fsnotify"
)

// Options configures a watcher
type Options struct {
	// SettlingDelay is the quiet period after the last event before a
	// batch is delivered.
	SettlingDelay time.Duration
	// Ignore matches paths relative to the watched root.
	Ignore []string
	// IgnoreFiles are absolute paths never reported, e.g. generated outputs.
	IgnoreFiles []string
}

// FSNotifyWatcher watches a directory tree and delivers settled batches of
// changed paths
type FSNotifyWatcher struct {
	watcher     *fsnotify.Watcher
	logger      logger.Logger
	settling    time.Duration
	ignore      *utils.ExclusionMatcher
	ignoreFiles map[string]struct{}

	mu       sync.Mutex
	root     string
	callback interfaces.FileChangeCallback
	pending  map[string]struct{}
	timer    *time.Timer
	closed   bool

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ interfaces.Watcher = (*FSNotifyWatcher)(nil)

// New creates a new fsnotify-based watcher
func New(log logger.Logger, opts Options) (*FSNotifyWatcher, error) {
	ignore, err := utils.NewExclusionMatcher(opts.Ignore)
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	files := make(map[string]struct{}, len(opts.IgnoreFiles))
	for _, p := range opts.IgnoreFiles {
		files[filepath.Clean(p)] = struct{}{}
	}

	return &FSNotifyWatcher{
		watcher:     w,
		logger:      log,
		settling:    opts.SettlingDelay,
		ignore:      ignore,
		ignoreFiles: files,
		pending:     make(map[string]struct{}),
		done:        make(chan struct{}),
	}, nil
}

// WatchProject watches root recursively. callback receives each settled
// batch of changed paths, sorted.
func (f *FSNotifyWatcher) WatchProject(root string, callback interfaces.FileChangeCallback) error {
	f.mu.Lock()
	if f.callback != nil {
		f.mu.Unlock()
		return fmt.Errorf("watcher already started for %s", f.root)
	}
	f.root = filepath.Clean(root)
	f.callback = callback
	f.mu.Unlock()

	if err := f.addTree(f.root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}

	f.wg.Add(1)
	go f.processEvents()

	f.logger.Debug("Watching directory tree", logger.WithField("root", f.root),
		logger.WithField("directories", len(f.watcher.WatchList())))
	return nil
}

// Close stops watching. Pending batches are dropped.
func (f *FSNotifyWatcher) Close() error {
	var err error
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		if f.timer != nil {
			f.timer.Stop()
		}
		f.mu.Unlock()

		close(f.done)
		err = f.watcher.Close()
		f.wg.Wait()
	})
	return err
}

// List returns all watched directories
func (f *FSNotifyWatcher) List() []string {
	return f.watcher.WatchList()
}

func (f *FSNotifyWatcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && f.isIgnored(path) {
			return filepath.SkipDir
		}
		if err := f.watcher.Add(path); err != nil {
			f.logger.Warn(fmt.Sprintf("Failed to watch directory %s", path), logger.WithError(err))
		}
		return nil
	})
}

func (f *FSNotifyWatcher) processEvents() {
	defer f.wg.Done()

	for {
		select {
		case <-f.done:
			return

		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			path := filepath.Clean(event.Name)
			if f.isIgnored(path) {
				continue
			}

			if event.Has(fsnotify.Create) && utils.DirectoryExists(path) {
				if err := f.addTree(path); err != nil {
					f.logger.Warn(fmt.Sprintf("Failed to watch new directory %s", path), logger.WithError(err))
				}
			}

			f.schedule(path)

		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.logger.Error("Watcher error", logger.WithError(err))
		}
	}
}

// schedule records path and restarts the settling timer
func (f *FSNotifyWatcher) schedule(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.pending[path] = struct{}{}
	if f.timer == nil {
		f.timer = time.AfterFunc(f.settling, f.flush)
	} else {
		f.timer.Reset(f.settling)
	}
}

func (f *FSNotifyWatcher) flush() {
	f.mu.Lock()
	if f.closed || len(f.pending) == 0 {
		f.mu.Unlock()
		return
	}
	batch := make([]string, 0, len(f.pending))
	for p := range f.pending {
		batch = append(batch, p)
	}
	f.pending = make(map[string]struct{})
	f.timer = nil
	callback := f.callback
	f.mu.Unlock()

	sort.Strings(batch)
	f.logger.Debug(fmt.Sprintf("%d change(s) settled", len(batch)))
	callback(batch)
}

func (f *FSNotifyWatcher) isIgnored(path string) bool {
	if _, ok := f.ignoreFiles[path]; ok {
		return true
	}

	f.mu.Lock()
	root := f.root
	f.mu.Unlock()

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return f.ignore.IsExcluded(rel)
}
