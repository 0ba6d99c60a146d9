package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/fanscout/scout/internal/model"
)

// Store owns the cache root and its collections.
type Store struct {
	root   string
	logger *log.Logger

	Users        *Collection[model.User]
	Clubs        *Collection[model.Club]
	Matches      *Collection[model.Match]
	Templates    *Collection[model.ReportTemplate]
	Reports      *Collection[model.ScoutingReport]
	PointHistory *Collection[model.PointHistory]
	RewardItems  *Collection[model.RewardItem]
	Redemptions  *Collection[model.RewardRedemption]

	// reportsMu orders report writes with changes to the unsynced set
	reportsMu sync.Mutex

	prefsMu sync.Mutex
	prefs   Prefs
}

// Open creates (if needed) and opens the cache rooted at root.
//
// If logger is nil, a default logger writing to stderr is used.
func Open(root string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[cache] ", log.LstdFlags)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	s := &Store{root: root, logger: logger}

	var err error
	if s.Users, err = newCollection[model.User](root, model.CollectionUsers, logger); err != nil {
		return nil, err
	}
	if s.Clubs, err = newCollection[model.Club](root, model.CollectionClubs, logger); err != nil {
		return nil, err
	}
	if s.Matches, err = newCollection[model.Match](root, model.CollectionMatches, logger); err != nil {
		return nil, err
	}
	if s.Templates, err = newCollection[model.ReportTemplate](root, model.CollectionReportTemplates, logger); err != nil {
		return nil, err
	}
	if s.Reports, err = newCollection[model.ScoutingReport](root, model.CollectionReports, logger); err != nil {
		return nil, err
	}
	if s.PointHistory, err = newCollection[model.PointHistory](root, model.CollectionPointHistory, logger); err != nil {
		return nil, err
	}
	if s.RewardItems, err = newCollection[model.RewardItem](root, model.CollectionRewardItems, logger); err != nil {
		return nil, err
	}
	if s.Redemptions, err = newCollection[model.RewardRedemption](root, model.CollectionRedemptions, logger); err != nil {
		return nil, err
	}

	prefs, err := loadPrefs(s.prefsPath())
	if err != nil {
		return nil, err
	}
	s.prefs = prefs

	return s, nil
}

// Root returns the cache directory.
func (s *Store) Root() string { return s.root }

// PutUser caches the user and remembers it as the current user.
func (s *Store) PutUser(u model.User) error {
	if err := s.Users.Put(u); err != nil {
		return err
	}
	return s.updatePrefs(func(p *Prefs) { p.CurrentUserID = u.ID })
}

// CurrentUserID returns the id recorded by the last PutUser.
func (s *Store) CurrentUserID() string {
	s.prefsMu.Lock()
	defer s.prefsMu.Unlock()
	return s.prefs.CurrentUserID
}

// CurrentUser returns the cached record of the current user.
func (s *Store) CurrentUser() (model.User, bool, error) {
	id := s.CurrentUserID()
	if id == "" {
		return model.User{}, false, nil
	}
	return s.Users.Get(id)
}

// PutReport caches a report and records whether it matches the remote copy.
func (s *Store) PutReport(r model.ScoutingReport, synced bool) error {
	s.reportsMu.Lock()
	defer s.reportsMu.Unlock()
	return s.putReport(r, synced)
}

func (s *Store) putReport(r model.ScoutingReport, synced bool) error {
	if err := s.Reports.Put(r); err != nil {
		return err
	}
	if synced {
		return s.MarkSynced(r.ID)
	}
	return s.MarkUnsynced(r.ID)
}

// SaveReports caches reports fetched from the remote store, each marked
// synced. Reports in the unsynced set keep their local copy and are
// returned in kept.
func (s *Store) SaveReports(reports []model.ScoutingReport) (kept []string, err error) {
	s.reportsMu.Lock()
	defer s.reportsMu.Unlock()

	unsynced := s.UnsyncedIDs()
	for _, r := range reports {
		if slices.Contains(unsynced, r.ID) {
			kept = append(kept, r.ID)
			continue
		}
		if err := s.putReport(r, true); err != nil {
			return kept, err
		}
	}
	return kept, nil
}

// MarkPushed marks synced each pushed report whose cached record is still
// the one that was pushed. Reports edited since are left unsynced and
// returned in stale.
func (s *Store) MarkPushed(pushed []model.ScoutingReport) (stale []string, err error) {
	s.reportsMu.Lock()
	defer s.reportsMu.Unlock()

	var ids []string
	for _, r := range pushed {
		current, ok, err := s.Reports.Get(r.ID)
		if err != nil {
			return nil, err
		}
		same, err := sameRecord(current, r)
		if err != nil {
			return nil, err
		}
		if !ok || !same {
			stale = append(stale, r.ID)
			continue
		}
		ids = append(ids, r.ID)
	}
	return stale, s.MarkSyncedMany(ids)
}

func sameRecord(a, b model.ScoutingReport) (bool, error) {
	da, err := json.Marshal(a)
	if err != nil {
		return false, err
	}
	db, err := json.Marshal(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(da, db), nil
}

// MarkUnsynced adds id to the unsynced set.
func (s *Store) MarkUnsynced(id string) error {
	return s.updatePrefs(func(p *Prefs) {
		if !slices.Contains(p.UnsyncedReportIDs, id) {
			p.UnsyncedReportIDs = append(p.UnsyncedReportIDs, id)
		}
	})
}

// MarkSynced removes id from the unsynced set. No-op if absent.
func (s *Store) MarkSynced(id string) error {
	return s.MarkSyncedMany([]string{id})
}

// MarkSyncedMany removes every id in ids from the unsynced set.
func (s *Store) MarkSyncedMany(ids []string) error {
	return s.updatePrefs(func(p *Prefs) {
		p.UnsyncedReportIDs = slices.DeleteFunc(p.UnsyncedReportIDs, func(id string) bool {
			return slices.Contains(ids, id)
		})
	})
}

// UnsyncedIDs returns a copy of the unsynced set.
func (s *Store) UnsyncedIDs() []string {
	s.prefsMu.Lock()
	defer s.prefsMu.Unlock()
	return slices.Clone(s.prefs.UnsyncedReportIDs)
}

// ListUnsynced returns the cached reports in the unsynced set. Ids
// without a readable record are skipped.
func (s *Store) ListUnsynced() ([]model.ScoutingReport, error) {
	var reports []model.ScoutingReport
	for _, id := range s.UnsyncedIDs() {
		r, ok, err := s.Reports.Get(id)
		if err != nil {
			return nil, err
		}
		if ok {
			reports = append(reports, r)
		}
	}
	return reports, nil
}

// LastSyncDate returns when the last successful pull completed.
func (s *Store) LastSyncDate() (time.Time, bool) {
	s.prefsMu.Lock()
	defer s.prefsMu.Unlock()
	if s.prefs.LastSyncDate == nil {
		return time.Time{}, false
	}
	return *s.prefs.LastSyncDate, true
}

// SetLastSyncDate records a successful pull.
func (s *Store) SetLastSyncDate(t time.Time) error {
	t = t.UTC()
	return s.updatePrefs(func(p *Prefs) { p.LastSyncDate = &t })
}

// Clear empties the synced collections and resets sync bookkeeping.
// The current user is kept.
func (s *Store) Clear() error {
	if err := s.Matches.ReplaceAll(nil); err != nil {
		return err
	}
	if err := s.Reports.ReplaceAll(nil); err != nil {
		return err
	}
	if err := s.PointHistory.ReplaceAll(nil); err != nil {
		return err
	}
	if err := s.RewardItems.ReplaceAll(nil); err != nil {
		return err
	}
	return s.updatePrefs(func(p *Prefs) {
		p.UnsyncedReportIDs = nil
		p.LastSyncDate = nil
	})
}
