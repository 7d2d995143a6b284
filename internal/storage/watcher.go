package storage

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes a file store's base directory and reports which prompt
// ids changed on disk. Events are debounced so a burst of writes to one
// prompt produces a single notification.
type Watcher struct {
	store        *File
	watcher      *fsnotify.Watcher
	onChange     func(ids []string)
	debounceTime time.Duration

	mu      sync.Mutex
	pending map[string]bool // prompt ids with unflushed events

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher over the given file store.
func NewWatcher(store *File) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		store:        store,
		watcher:      fsw,
		debounceTime: 500 * time.Millisecond,
		pending:      make(map[string]bool),
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// OnChange sets the callback invoked with the changed prompt ids.
func (w *Watcher) OnChange(callback func(ids []string)) {
	w.onChange = callback
}

// Start watches the base directory and every prompt directory under it.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.store.Base()); err != nil {
		return fmt.Errorf("watching %s: %w", w.store.Base(), err)
	}

	entries, err := os.ReadDir(w.store.Base())
	if err != nil {
		return fmt.Errorf("scanning %s: %w", w.store.Base(), err)
	}
	for _, entry := range entries {
		if !entry.IsDir() || w.store.ignored(entry.Name()) {
			continue
		}
		path := filepath.Join(w.store.Base(), entry.Name())
		if err := w.watcher.Add(path); err != nil {
			log.Printf("⚠️  Failed to watch %s: %v", path, err)
		}
	}

	w.wg.Add(2)
	go w.eventLoop()
	go w.debounceLoop()
	return nil
}

// Stop halts both loops and closes the underlying watcher.
func (w *Watcher) Stop() error {
	w.cancel()
	w.wg.Wait()
	return w.watcher.Close()
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️  Watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	rel, err := filepath.Rel(w.store.Base(), event.Name)
	if err != nil {
		return
	}
	if w.store.ignored(rel) {
		return
	}

	// A new prompt directory needs its own watch.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watcher.Add(event.Name); err != nil {
				log.Printf("⚠️  Failed to watch new directory %s: %v", event.Name, err)
			}
			return
		}
	}

	// Only version files matter; temp files from atomic saves do not.
	if !strings.HasSuffix(rel, ".json") {
		return
	}
	id := filepath.Dir(rel)
	if id == "." || strings.ContainsRune(id, filepath.Separator) {
		return
	}

	if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.mu.Lock()
		w.pending[id] = true
		w.mu.Unlock()
	}
}

func (w *Watcher) debounceLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.debounceTime)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case <-ticker.C:
			w.mu.Lock()
			if len(w.pending) == 0 {
				w.mu.Unlock()
				continue
			}
			ids := make([]string, 0, len(w.pending))
			for id := range w.pending {
				ids = append(ids, id)
			}
			w.pending = make(map[string]bool)
			w.mu.Unlock()

			if w.onChange != nil {
				w.onChange(ids)
			}
		}
	}
}
