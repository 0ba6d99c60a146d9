package cache

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"time"

	"github.com/BurntSushi/toml"
)

// PrefsFile holds the scalar sync preferences.
const PrefsFile = "prefs.toml"

// Prefs is the scalar state persisted next to the collections.
type Prefs struct {
	LastSyncDate      *time.Time `toml:"last_sync_date,omitempty"`
	CurrentUserID     string     `toml:"current_user_id,omitempty"`
	UnsyncedReportIDs []string   `toml:"unsynced_report_ids"`
}

func loadPrefs(path string) (Prefs, error) {
	var p Prefs
	_, err := toml.DecodeFile(path, &p)
	if errors.Is(err, fs.ErrNotExist) {
		return Prefs{}, nil
	}
	if err != nil {
		return Prefs{}, fmt.Errorf("failed to read %s: %w", PrefsFile, err)
	}
	return p, nil
}

func (s *Store) prefsPath() string {
	return filepath.Join(s.root, PrefsFile)
}

// updatePrefs applies fn to a copy of the prefs and persists the result.
// The in-memory prefs only change once the file is written.
func (s *Store) updatePrefs(fn func(p *Prefs)) error {
	s.prefsMu.Lock()
	defer s.prefsMu.Unlock()

	next := s.prefs
	next.UnsyncedReportIDs = slices.Clone(s.prefs.UnsyncedReportIDs)
	fn(&next)

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(next); err != nil {
		return fmt.Errorf("failed to encode %s: %w", PrefsFile, err)
	}
	if err := writeFileAtomic(s.prefsPath(), buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write %s: %w", PrefsFile, err)
	}

	s.prefs = next
	return nil
}
