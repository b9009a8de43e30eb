package scheduler

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DocWatcher watches the documents directory and feeds activity events
// to the engine. Content ingested by another process (an archive unpack
// dropping a document file) is picked up the same way a user edit is:
// the idle timer arms and the next pass finds the new file.
type DocWatcher struct {
	watcher *fsnotify.Watcher
	engine  *Engine
	dir     string
	logger  *log.Logger

	// Debounce interval for bursts of file events; one activity
	// notification per quiet window is enough because the engine's idle
	// timer does the real debouncing.
	debounce time.Duration

	pendingMu sync.Mutex
	pending   map[string]time.Time

	done chan struct{}
	wg   sync.WaitGroup
}

// NewDocWatcher creates a watcher over dir. Use Start to begin
// watching.
func NewDocWatcher(dir string, engine *Engine, logger *log.Logger) (*DocWatcher, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[watch] ", log.LstdFlags)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &DocWatcher{
		watcher:  w,
		engine:   engine,
		dir:      dir,
		logger:   logger,
		debounce: 500 * time.Millisecond,
		pending:  make(map[string]time.Time),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. Returns an error if the directory cannot be
// watched.
func (w *DocWatcher) Start() error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch documents directory %s: %w", w.dir, err)
	}
	w.logger.Printf("Watching %s", w.dir)

	w.wg.Add(2)
	go w.readEvents()
	go w.flushPending()
	return nil
}

// Stop closes the watcher and waits for its goroutines.
func (w *DocWatcher) Stop() error {
	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *DocWatcher) readEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if !isDocumentFile(event.Name) {
				continue
			}
			w.pendingMu.Lock()
			w.pending[event.Name] = time.Now()
			w.pendingMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Printf("Watcher error: %v", err)
		}
	}
}

// flushPending turns bursts of file events into single activity
// notifications once the burst has been quiet for the debounce window.
func (w *DocWatcher) flushPending() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return

		case <-ticker.C:
			now := time.Now()
			notify := false
			w.pendingMu.Lock()
			for path, seen := range w.pending {
				if now.Sub(seen) < w.debounce {
					continue
				}
				delete(w.pending, path)
				notify = true
			}
			w.pendingMu.Unlock()
			if notify {
				w.engine.Notify(EventActivity)
			}
		}
	}
}

// isDocumentFile filters for content document files, excluding the
// dirty index and in-flight temp files from atomic writes.
func isDocumentFile(path string) bool {
	name := filepath.Base(path)
	if !strings.HasSuffix(name, ".json") {
		return false
	}
	if name == "modified.json" || name == "saved.json" {
		return false
	}
	return !strings.Contains(name, ".tmp-")
}
