package policy

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const pollInterval = 2 * time.Second

// Watcher hot-reloads a directory of policy files. It combines fsnotify
// change notification (grounded on mercator-hq-jupiter's
// pkg/policy/manager.FileWatcher) with a modification-time poll
// fallback, since fsnotify can miss editors that replace files by
// rename on some filesystems.
type Watcher struct {
	dir    string
	logger *slog.Logger

	mu       sync.Mutex
	bodies   map[string][]byte
	modTimes map[string]time.Time
}

// NewWatcher loads the current contents of dir and is ready to Watch.
func NewWatcher(dir string, logger *slog.Logger) (*Watcher, error) {
	w := &Watcher{
		dir:      dir,
		logger:   logger,
		bodies:   make(map[string][]byte),
		modTimes: make(map[string]time.Time),
	}
	if err := w.scan(); err != nil {
		return nil, err
	}
	return w, nil
}

// Get returns the currently loaded body for a policy name, if any.
func (w *Watcher) Get(name string) ([]byte, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.bodies[name]
	return b, ok
}

func (w *Watcher) scan() error {
	entries, err := os.ReadDir(w.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, e.Name())
		info, err := e.Info()
		if err != nil {
			w.logger.Warn("policy: stat failed during scan, keeping previous version", "file", e.Name(), "error", err)
			continue
		}
		if existing, ok := w.modTimes[e.Name()]; ok && !info.ModTime().After(existing) {
			continue
		}
		body, err := os.ReadFile(path)
		if err != nil {
			w.logger.Warn("policy: reload failed, keeping previous version", "file", e.Name(), "error", err)
			continue
		}
		w.bodies[e.Name()] = body
		w.modTimes[e.Name()] = info.ModTime()
	}
	return nil
}

// Watch blocks, reloading the directory on fsnotify events and on a
// fixed poll interval, until ctx is cancelled.
func (w *Watcher) Watch(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		// fsnotify unavailable (e.g. inotify limits exhausted): fall
		// back to poll-only, which still satisfies the hot-reload
		// contract, just on a slower cadence.
		w.logger.Warn("policy: fsnotify unavailable, polling only", "error", err)
		return w.pollLoop(ctx)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		w.logger.Warn("policy: could not watch directory, polling only", "dir", w.dir, "error", err)
		return w.pollLoop(ctx)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Chmod == fsnotify.Chmod {
				continue
			}
			if err := w.scan(); err != nil {
				w.logger.Error("policy: reload scan failed", "error", err)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("policy: fsnotify error", "error", err)
		case <-ticker.C:
			if err := w.scan(); err != nil {
				w.logger.Error("policy: poll scan failed", "error", err)
			}
		}
	}
}

func (w *Watcher) pollLoop(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.scan(); err != nil {
				w.logger.Error("policy: poll scan failed", "error", err)
			}
		}
	}
}
