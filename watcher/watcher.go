// Package watcher is the change source: it observes configured repo
// directories for file changes, coalesces bursts with a per-repo
// debounce, and emits full parsed snapshots of each repo's work
// efforts. Consumers only see the Update contract; the file layout and
// parsing live entirely behind it.
package watcher

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"effortsync/models"
)

// DefaultDebounce coalesces rapid successive file changes into a
// single processing pass.
const DefaultDebounce = 300 * time.Millisecond

// Update is one debounced snapshot of a repo. Err is non-empty when
// some records could not be parsed; WorkEfforts still carries whatever
// was resolved.
type Update struct {
	Repo        string
	WorkEfforts []models.WorkEffort
	Stats       models.Stats
	Err         string
}

// Watcher observes repo directories and emits snapshots on Updates.
type Watcher struct {
	fsw      *fsnotify.Watcher
	debounce time.Duration
	updates  chan Update

	mu     sync.Mutex
	repos  map[string]string // repo name -> root path
	timers map[string]*time.Timer
	closed bool
}

// New returns a Watcher. Start must be called to begin observing.
func New(debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &Watcher{
		fsw:      fsw,
		debounce: debounce,
		updates:  make(chan Update, 16),
		repos:    make(map[string]string),
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Updates is the stream of debounced repo snapshots. The channel is
// never closed; after Close no further updates are emitted.
func (w *Watcher) Updates() <-chan Update { return w.updates }

// AddRepo registers a repo directory, starts watching it recursively
// and emits an immediate initial snapshot.
func (w *Watcher) AddRepo(name, path string) error {
	w.mu.Lock()
	if _, exists := w.repos[name]; exists {
		w.mu.Unlock()
		return fmt.Errorf("repo %q already watched", name)
	}
	w.repos[name] = path
	w.mu.Unlock()

	if err := w.watchTree(path); err != nil {
		w.mu.Lock()
		delete(w.repos, name)
		w.mu.Unlock()
		return err
	}
	w.scan(name)
	return nil
}

// RemoveRepo stops watching a repo. Pending debounce timers for it are
// cancelled.
func (w *Watcher) RemoveRepo(name string) {
	w.mu.Lock()
	path, ok := w.repos[name]
	delete(w.repos, name)
	if t, exists := w.timers[name]; exists {
		t.Stop()
		delete(w.timers, name)
	}
	w.mu.Unlock()
	if !ok {
		return
	}
	// Best effort: fsnotify drops watches on deleted dirs on its own.
	_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		_ = w.fsw.Remove(p)
		return nil
	})
}

// Repos returns the names of all watched repos.
func (w *Watcher) Repos() map[string]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]string, len(w.repos))
	for name, path := range w.repos {
		out[name] = path
	}
	return out
}

// Start consumes fsnotify events until Close is called.
func (w *Watcher) Start() {
	go w.loop()
}

// Close stops observation and closes the Updates channel.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for _, t := range w.timers {
		t.Stop()
	}
	w.mu.Unlock()
	return w.fsw.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("watch error", "err", err)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	// New directories must be added to the watch set; fsnotify does not
	// recurse on its own.
	if ev.Op.Has(fsnotify.Create) {
		if err := w.watchTree(ev.Name); err == nil {
			slog.Debug("watching new path", "path", ev.Name)
		}
	}
	name := w.repoFor(ev.Name)
	if name == "" {
		return
	}
	w.schedule(name)
}

func (w *Watcher) repoFor(path string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	for name, root := range w.repos {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return name
		}
	}
	return ""
}

// schedule arms (or re-arms) the debounce timer for one repo.
func (w *Watcher) schedule(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if t, ok := w.timers[name]; ok {
		t.Stop()
	}
	w.timers[name] = time.AfterFunc(w.debounce, func() { w.scan(name) })
}

// scan parses a repo and emits the snapshot. Runs on debounce expiry
// and on AddRepo.
func (w *Watcher) scan(name string) {
	w.mu.Lock()
	path, ok := w.repos[name]
	closed := w.closed
	w.mu.Unlock()
	if !ok || closed {
		return
	}

	workEfforts, stats, errMsg := ParseRepo(path)
	if errMsg != "" {
		slog.Warn("repo scan degraded", "repo", name, "err", errMsg)
	}
	select {
	case w.updates <- Update{Repo: name, WorkEfforts: workEfforts, Stats: stats, Err: errMsg}:
	default:
		// Never drop a snapshot outright: re-arm the debounce timer so
		// the repo is rescanned once the consumer has caught up.
		slog.Warn("update channel full, rescheduling snapshot", "repo", name)
		w.schedule(name)
	}
}

// watchTree adds path and every directory under it to the watch set.
// Non-directories and vanished paths are ignored.
func (w *Watcher) watchTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}
