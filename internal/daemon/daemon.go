// Package daemon keeps the local cache and the remote store in step in
// the background.
//
// The daemon:
// 1. Runs a full sync (push, then pull) on startup
// 2. Watches the cached reports directory for edits made outside the Store
// 3. Pushes those edits once they settle (debouncing)
// 4. Repeats the full sync on a fixed interval
// 5. Handles graceful shutdown
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/fanscout/scout/internal/cache"
	scoutsync "github.com/fanscout/scout/internal/sync"
)

// Config holds configuration for the daemon.
type Config struct {
	// Interval is how often to run a full sync
	Interval time.Duration

	// Debounce is how long report edits must be quiet before they are pushed
	Debounce time.Duration

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval: 5 * time.Minute,
		Debounce: 500 * time.Millisecond,
		Logger:   log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon orchestrates cache watching and synchronization for one user.
type Daemon struct {
	syncer scoutsync.Syncer
	cache  *cache.Store
	userID string
	config *Config

	watcher       *cache.Watcher
	changeQueue   map[string]time.Time // report id -> last change
	changeQueueMu sync.Mutex

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a Daemon with the default configuration.
// Use Start() to begin watching and syncing.
func New(syncer scoutsync.Syncer, local *cache.Store, userID string) (*Daemon, error) {
	return NewWithConfig(syncer, local, userID, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(syncer scoutsync.Syncer, local *cache.Store, userID string, config *Config) (*Daemon, error) {
	if syncer == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if local == nil {
		return nil, fmt.Errorf("cache cannot be nil")
	}
	if userID == "" {
		return nil, fmt.Errorf("userID cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}
	if config.Interval <= 0 || config.Debounce <= 0 {
		return nil, fmt.Errorf("interval and debounce must be positive")
	}

	watcher, err := cache.NewWatcher(local)
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		syncer:      syncer,
		cache:       local,
		userID:      userID,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start runs the daemon. It blocks until ctx is cancelled or Stop is called.
// A failed initial sync is logged, not returned: the daemon keeps running
// and retries on the next interval.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Printf("Starting daemon for user %s", d.userID)

	// The first sync stops on either ctx or Stop
	first, cancelFirst := context.WithCancel(ctx)
	stopFirst := context.AfterFunc(d.ctx, cancelFirst)
	d.fullSync(first)
	stopFirst()
	cancelFirst()

	if ctx.Err() != nil {
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	}
	if d.ctx.Err() != nil {
		return nil
	}

	if err := d.watcher.Start(); err != nil {
		return fmt.Errorf("failed to watch cache: %w", err)
	}
	d.config.Logger.Printf("Watching: %s", d.cache.Reports.Dir())

	d.wg.Add(3)
	go d.watchEvents()
	go d.processChangeQueue()
	go d.periodicSync()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon. It is safe to call more than once.
func (d *Daemon) Stop() error {
	var err error
	d.stopOnce.Do(func() {
		d.config.Logger.Println("Stopping daemon")
		d.cancel()

		if err = d.watcher.Stop(); err != nil {
			d.config.Logger.Printf("Error closing watcher: %v", err)
		}
		d.wg.Wait()
		d.config.Logger.Println("Daemon stopped")
	})
	return err
}

// Pending returns the ids of report edits waiting to be pushed.
func (d *Daemon) Pending() []string {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()
	ids := make([]string, 0, len(d.changeQueue))
	for id := range d.changeQueue {
		ids = append(ids, id)
	}
	return ids
}

func (d *Daemon) fullSync(ctx context.Context) {
	res, err := d.syncer.SyncAllData(ctx, d.userID)
	switch {
	case errors.Is(err, scoutsync.ErrAlreadySyncing):
		d.config.Logger.Println("Sync already running, skipping")
	case err != nil:
		d.config.Logger.Printf("WARNING: Sync failed: %v", err)
	default:
		d.config.Logger.Printf("Sync complete: pushed=%d failed=%d", len(res.Pushed), len(res.Failed))
	}
}

// watchEvents queues external report edits.
func (d *Daemon) watchEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case ev, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			if ev.Op != cache.OpWrite {
				continue
			}
			d.config.Logger.Printf("Report changed: %s", ev.ID)
			d.queueChange(ev.ID)

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

func (d *Daemon) queueChange(id string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[id] = time.Now()
}

func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.Debounce)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.processPendingChanges()
		}
	}
}

// processPendingChanges pushes once every queued edit has been quiet for
// the debounce interval.
func (d *Daemon) processPendingChanges() {
	d.changeQueueMu.Lock()
	if len(d.changeQueue) == 0 {
		d.changeQueueMu.Unlock()
		return
	}
	now := time.Now()
	for _, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.Debounce {
			d.changeQueueMu.Unlock()
			return
		}
	}
	batch := d.changeQueue
	d.changeQueue = make(map[string]time.Time)
	d.changeQueueMu.Unlock()

	d.config.Logger.Printf("Pushing %d changed reports", len(batch))
	res, err := d.syncer.PushOfflineReports(d.ctx, d.userID)
	if err != nil {
		if errors.Is(err, scoutsync.ErrAlreadySyncing) {
			d.requeue(batch)
			return
		}
		d.config.Logger.Printf("WARNING: Push failed: %v", err)
		return
	}
	if len(res.Failed) > 0 {
		d.config.Logger.Printf("WARNING: %d reports failed to push, retrying on next sync", len(res.Failed))
	}
}

// requeue puts a batch back without clobbering newer changes.
func (d *Daemon) requeue(batch map[string]time.Time) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()
	for id, at := range batch {
		if _, ok := d.changeQueue[id]; !ok {
			d.changeQueue[id] = at
		}
	}
}

func (d *Daemon) periodicSync() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.fullSync(d.ctx)
		}
	}
}
