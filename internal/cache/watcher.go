package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	// OpWrite indicates a record was created or rewritten.
	OpWrite EventOp = iota
	// OpRemove indicates a record was deleted or moved away.
	OpRemove
)

// String returns a human-readable representation of the operation.
func (op EventOp) String() string {
	switch op {
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// ReportEvent describes a report record changed on disk. Writes made by
// the Store itself are not reported; removals are reported whatever their origin.
type ReportEvent struct {
	ID string
	Op EventOp
}

// Watcher watches the reports directory and marks externally written
// report records unsynced so the next push uploads them.
type Watcher struct {
	store   *Store
	watcher *fsnotify.Watcher
	events  chan ReportEvent
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewWatcher creates a Watcher for the store's reports collection.
// The watcher must be started with Start() before it will emit events.
func NewWatcher(store *Store) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		store:   store,
		watcher: w,
		events:  make(chan ReportEvent, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching the reports directory.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	dir := w.store.Reports.Dir()
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch reports directory %s: %w", dir, err)
	}

	w.running = true
	w.wg.Add(1)
	go w.processEvents()

	return nil
}

// Stop stops watching and blocks until the event loop has exited.
// Calling Stop on a watcher that was never started releases its resources.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	wasRunning := w.running
	w.running = false
	w.mu.Unlock()

	if !wasRunning {
		return w.watcher.Close()
	}

	close(w.done)

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	w.wg.Wait()

	close(w.events)
	close(w.errors)

	return nil
}

// Events returns the channel of external report changes.
// This channel is closed when the watcher is stopped.
func (w *Watcher) Events() <-chan ReportEvent {
	return w.events
}

// Errors returns the channel of watch errors.
// This channel is closed when the watcher is stopped.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			re, ok, err := w.handle(event)
			if err != nil {
				w.sendError(err)
				continue
			}
			if ok {
				select {
				case w.events <- re:
				case <-w.done:
					return
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.sendError(err)
		}
	}
}

func (w *Watcher) sendError(err error) {
	select {
	case w.errors <- err:
	case <-w.done:
	}
}

// handle converts an fsnotify event into a ReportEvent. Writes whose
// content matches what the Store itself last wrote are ignored.
func (w *Watcher) handle(event fsnotify.Event) (ReportEvent, bool, error) {
	if filepath.Dir(event.Name) != filepath.Clean(w.store.Reports.Dir()) {
		return ReportEvent{}, false, nil
	}
	id, ok := recordID(filepath.Base(event.Name))
	if !ok {
		return ReportEvent{}, false, nil
	}

	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		data, err := os.ReadFile(event.Name)
		if errors.Is(err, fs.ErrNotExist) {
			// Gone again before we could read it
			return ReportEvent{}, false, nil
		}
		if err != nil {
			return ReportEvent{}, false, fmt.Errorf("failed to read %s: %w", event.Name, err)
		}
		if w.store.Reports.wroteItself(id, data) {
			return ReportEvent{}, false, nil
		}
		if err := w.store.Reports.adopt(id); err != nil {
			return ReportEvent{}, false, err
		}
		if err := w.store.MarkUnsynced(id); err != nil {
			return ReportEvent{}, false, err
		}
		return ReportEvent{ID: id, Op: OpWrite}, true, nil

	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return ReportEvent{ID: id, Op: OpRemove}, true, nil

	default:
		// Ignore chmod and other events
		return ReportEvent{}, false, nil
	}
}

// IsRunning returns true if the watcher is currently running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
