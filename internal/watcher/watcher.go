// Package watcher notices when another refcheck process changes the local
// state database, so running checks it started can be picked up here.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/refcheck/internal/log"
)

// DefaultDebounce is how long the database must stay quiet before a
// change is reported.
const DefaultDebounce = 500 * time.Millisecond

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// Watcher reports debounced writes to a SQLite database file or its WAL.
type Watcher struct {
	fs       *fsnotify.Watcher
	dbPath   string
	files    map[string]bool
	debounce time.Duration
	changed  chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

// New prepares a watcher for dbPath. Nothing is watched until Start.
func New(dbPath string, opts ...Option) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	base := filepath.Base(dbPath)
	w := &Watcher{
		fs:       fs,
		dbPath:   dbPath,
		files:    map[string]bool{base: true, base + "-wal": true},
		debounce: DefaultDebounce,
		changed:  make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start watches the database's directory and returns the notification
// channel. At most one notification is buffered.
func (w *Watcher) Start() (<-chan struct{}, error) {
	// SQLite may recreate its files, so the parent directory is watched.
	dir := filepath.Dir(w.dbPath)
	if err := w.fs.Add(dir); err != nil {
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}
	log.SafeGo("watcher.loop", w.loop)
	log.Debug(log.CatWatcher, "watching state database", "path", w.dbPath, "debounce", w.debounce)
	return w.changed, nil
}

// Run starts the watcher and invokes fn once per debounced change until ctx
// is done or the watcher stops.
func (w *Watcher) Run(ctx context.Context, fn func()) error {
	changed, err := w.Start()
	if err != nil {
		return err
	}
	log.SafeGo("watcher.run", func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stop:
				return
			case <-changed:
				fn()
			}
		}
	})
	return nil
}

// Stop ends watching. Safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stop)
		err = w.fs.Close()
	})
	return err
}

func (w *Watcher) loop() {
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	// fire is nil while no write is pending.
	var fire <-chan time.Time
	for {
		select {
		case <-w.stop:
			return

		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			timer.Reset(w.debounce)
			fire = timer.C

		case <-fire:
			fire = nil
			select {
			case w.changed <- struct{}{}:
			default:
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.Warn(log.CatWatcher, "file watch error", "path", w.dbPath, "error", err)
		}
	}
}

// relevant keeps writes and creates of the database or its WAL.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return false
	}
	return w.files[filepath.Base(ev.Name)]
}
