package sync

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	stdsync "sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fanscout/scout/internal/cache"
	"github.com/fanscout/scout/internal/model"
	"github.com/fanscout/scout/internal/remote"
)

// pushConcurrency bounds simultaneous report uploads.
const pushConcurrency = 4

// Coordinator implements Syncer.
type Coordinator struct {
	remote remote.Store
	cache  *cache.Store
	logger *log.Logger
	now    func() time.Time

	mu      stdsync.Mutex
	running bool
	status  Status
	subs    map[int]chan Status
	nextSub int
}

var _ Syncer = (*Coordinator)(nil)

// New creates a Coordinator.
//
// If logger is nil, a default logger writing to stderr is used.
func New(store remote.Store, local *cache.Store, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Coordinator{
		remote: store,
		cache:  local,
		logger: logger,
		now:    time.Now,
		subs:   make(map[int]chan Status),
	}
}

// Current implements Syncer.Current.
func (c *Coordinator) Current() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Subscribe implements Syncer.Subscribe. Slow subscribers miss updates
// rather than block the sync.
func (c *Coordinator) Subscribe() (<-chan Status, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan Status, 32)
	c.subs[id] = ch

	var once stdsync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.subs, id)
			close(ch)
		})
	}
}

// ResetSyncStatus implements Syncer.ResetSyncStatus. An in-flight sync
// keeps running and still publishes its outcome.
func (c *Coordinator) ResetSyncStatus() {
	c.setStatus(Status{State: StateIdle})
}

// LastSyncDate implements Syncer.LastSyncDate.
func (c *Coordinator) LastSyncDate() (time.Time, bool) {
	return c.cache.LastSyncDate()
}

// PullAll implements Syncer.PullAll.
func (c *Coordinator) PullAll(ctx context.Context, userID string) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()

	return c.finish(c.pull(ctx, userID), true)
}

// PushOfflineReports implements Syncer.PushOfflineReports.
func (c *Coordinator) PushOfflineReports(ctx context.Context, userID string) (PushResult, error) {
	if err := c.begin(); err != nil {
		return PushResult{}, err
	}
	defer c.end()

	result, err := c.push(ctx, userID)
	return result, c.finish(err, false)
}

// SyncAllData implements Syncer.SyncAllData.
func (c *Coordinator) SyncAllData(ctx context.Context, userID string) (PushResult, error) {
	if err := c.begin(); err != nil {
		return PushResult{}, err
	}
	defer c.end()

	result, err := c.push(ctx, userID)
	if err != nil {
		return result, c.finish(err, false)
	}
	return result, c.finish(c.pull(ctx, userID), true)
}

// begin claims the single sync slot.
func (c *Coordinator) begin() error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadySyncing
	}
	c.running = true
	c.mu.Unlock()

	c.setStatus(Status{State: StateSyncing})
	return nil
}

func (c *Coordinator) end() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

// finish publishes the terminal status. A successful pull records the
// completion time as the last sync date.
func (c *Coordinator) finish(err error, pulled bool) error {
	if err != nil {
		c.logger.Printf("Sync failed: %v", err)
		c.setStatus(Status{State: StateFailed, Err: err})
		return err
	}

	now := c.now().UTC()
	if pulled {
		if err := c.cache.SetLastSyncDate(now); err != nil {
			c.logger.Printf("WARNING: Failed to record last sync date: %v", err)
		}
	}
	c.setStatus(Status{State: StateCompleted, Progress: 1, Date: now})
	return nil
}

// progress raises the Syncing progress; concurrent steps never move it back.
func (c *Coordinator) progress(p float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status.State != StateSyncing || p <= c.status.Progress {
		return
	}
	c.publishLocked(Status{State: StateSyncing, Progress: p})
}

func (c *Coordinator) setStatus(s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishLocked(s)
}

// publishLocked must be called with c.mu held.
func (c *Coordinator) publishLocked(s Status) {
	c.status = s
	for _, ch := range c.subs {
		select {
		case ch <- s:
		default:
		}
	}
}

// pullStep is one fetch-and-store unit of PullAll.
type pullStep struct {
	name       string
	start, end float64
	run        func(ctx context.Context) error
}

func (c *Coordinator) pull(ctx context.Context, userID string) error {
	steps := []pullStep{
		{"user", 0.1, 0.2, func(ctx context.Context) error { return c.pullUser(ctx, userID) }},
		{"matches", 0.3, 0.4, c.pullMatches},
		{"reports", 0.5, 0.6, func(ctx context.Context) error { return c.pullReports(ctx, userID) }},
		{"point history", 0.7, 0.8, func(ctx context.Context) error { return c.pullPointHistory(ctx, userID) }},
		{"reward items", 0.9, 1.0, c.pullRewardItems},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, step := range steps {
		g.Go(func() error {
			c.progress(step.start)
			if err := step.run(gctx); err != nil {
				return fmt.Errorf("failed to sync %s: %w", step.name, err)
			}
			c.progress(step.end)
			return nil
		})
	}
	return g.Wait()
}

func (c *Coordinator) pullUser(ctx context.Context, userID string) error {
	doc, err := c.remote.Get(ctx, model.CollectionUsers, userID)
	if err != nil {
		return err
	}
	var user model.User
	if err := remote.Decode(doc, &user); err != nil {
		return err
	}
	return c.cache.PutUser(user)
}

func (c *Coordinator) pullMatches(ctx context.Context) error {
	matches, err := fetch[model.Match](ctx, c.remote, model.CollectionMatches, remote.Query{OrderBy: "date"})
	if err != nil {
		return err
	}
	return c.cache.Matches.ReplaceAll(matches)
}

// pullReports stores the user's remote reports. Reports with unpushed
// local edits are left alone so the next push can upload them.
func (c *Coordinator) pullReports(ctx context.Context, userID string) error {
	reports, err := fetch[model.ScoutingReport](ctx, c.remote, model.CollectionReports, remote.Query{
		Filters: []remote.Filter{remote.Where("userId", remote.OpEq, userID)},
		OrderBy: "createdAt",
		Desc:    true,
	})
	if err != nil {
		return err
	}

	kept, err := c.cache.SaveReports(reports)
	for _, id := range kept {
		c.logger.Printf("Keeping local edits of report %s", id)
	}
	return err
}

func (c *Coordinator) pullPointHistory(ctx context.Context, userID string) error {
	history, err := fetch[model.PointHistory](ctx, c.remote, model.CollectionPointHistory, remote.Query{
		Filters: []remote.Filter{remote.Where("userId", remote.OpEq, userID)},
		OrderBy: "createdAt",
		Desc:    true,
	})
	if err != nil {
		return err
	}
	return c.cache.PointHistory.ReplaceAll(history)
}

func (c *Coordinator) pullRewardItems(ctx context.Context) error {
	items, err := fetch[model.RewardItem](ctx, c.remote, model.CollectionRewardItems, remote.Query{
		Filters: []remote.Filter{remote.Where("isAvailable", remote.OpEq, true)},
	})
	if err != nil {
		return err
	}
	return c.cache.RewardItems.ReplaceAll(items)
}

func fetch[T any](ctx context.Context, store remote.Store, collection string, q remote.Query) ([]T, error) {
	docs, err := store.Query(ctx, collection, q)
	if err != nil {
		return nil, err
	}
	return remote.DecodeAll[T](docs)
}

// push uploads every unsynced report owned by userID. Individual failures
// are logged and left unsynced; only the pushed ids are marked synced.
func (c *Coordinator) push(ctx context.Context, userID string) (PushResult, error) {
	reports, err := c.cache.ListUnsynced()
	if err != nil {
		return PushResult{}, fmt.Errorf("failed to read unsynced reports: %w", err)
	}
	if len(reports) == 0 {
		return PushResult{}, nil
	}

	c.progress(0.05)

	var mu stdsync.Mutex
	var result PushResult
	var pushed []model.ScoutingReport

	var g errgroup.Group
	g.SetLimit(pushConcurrency)
	for _, r := range reports {
		if r.UserID != userID {
			result.Skipped = append(result.Skipped, r.ID)
			continue
		}
		g.Go(func() error {
			err := c.pushReport(ctx, r)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				c.logger.Printf("WARNING: Failed to push report %s: %v", r.ID, err)
				result.Failed = append(result.Failed, r.ID)
				return nil
			}
			pushed = append(pushed, r)
			return nil
		})
	}
	_ = g.Wait()

	// A report edited while its push was in flight stays unsynced
	stale, err := c.cache.MarkPushed(pushed)
	if err != nil {
		return result, fmt.Errorf("failed to mark reports synced: %w", err)
	}
	for _, r := range pushed {
		if slices.Contains(stale, r.ID) {
			c.logger.Printf("Report %s changed during push, keeping it queued", r.ID)
			result.Failed = append(result.Failed, r.ID)
			continue
		}
		result.Pushed = append(result.Pushed, r.ID)
	}

	slices.Sort(result.Pushed)
	slices.Sort(result.Failed)

	c.logger.Printf("Pushed %d report(s), %d failed", len(result.Pushed), len(result.Failed))
	return result, nil
}

func (c *Coordinator) pushReport(ctx context.Context, r model.ScoutingReport) error {
	doc, err := remote.Encode(r)
	if err != nil {
		return err
	}
	return c.remote.Set(ctx, model.CollectionReports, r.ID, doc)
}
