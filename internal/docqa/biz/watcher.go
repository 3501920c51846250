package biz

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/kart-io/logger"
)

// DirWatcher triggers a callback when PDF files in a directory appear or
// change. Events are debounced per directory: copying a batch of files
// produces one trigger after the burst settles. Ingestion is idempotent,
// so re-running over the whole directory is cheap.
type DirWatcher struct {
	dir      string
	debounce time.Duration
	onChange func()

	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	stopOnce sync.Once

	mu    sync.Mutex
	timer *time.Timer
}

// NewDirWatcher watches dir for PDF changes. A non-positive debounce
// gets a 2 second default.
func NewDirWatcher(dir string, debounce time.Duration, onChange func()) (*DirWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &DirWatcher{
		dir:      dir,
		debounce: debounce,
		onChange: onChange,
		watcher:  watcher,
		stopChan: make(chan struct{}),
	}, nil
}

// Start begins watching in a background goroutine.
func (w *DirWatcher) Start() {
	go w.loop()
	logger.Infow("watching directory for document changes", "directory", w.dir, "debounce", w.debounce)
}

// Stop ends watching and discards any pending trigger. Safe to call
// more than once.
func (w *DirWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.watcher.Close()

		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()

		logger.Infow("stopped watching directory", "directory", w.dir)
	})
}

func (w *DirWatcher) loop() {
	for {
		select {
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if strings.ToLower(filepath.Ext(event.Name)) != ".pdf" {
				continue
			}
			// Removals need no run: ingestion never deletes chunks.
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			logger.Debugw("document changed", "file", event.Name, "op", event.Op.String())
			w.schedule()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warnw("watcher error", "error", err.Error())
		}
	}
}

// schedule arms the debounce timer, restarting it on every event so a
// burst coalesces into a single trigger.
func (w *DirWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.onChange)
}
