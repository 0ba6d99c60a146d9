package cache

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/fanscout/scout/internal/model"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	return s
}

var base = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func testReport(id, userID string) model.ScoutingReport {
	return model.ScoutingReport{
		ID:          id,
		UserID:      userID,
		ClubID:      "club1",
		PlayerID:    "p1",
		MatchID:     "m1",
		TemplateID:  "t1",
		Status:      model.ReportDraft,
		Evaluations: []model.Evaluation{},
		MediaURLs:   []string{},
		CreatedAt:   base,
		UpdatedAt:   base,
	}
}

func testMatch(id string) model.Match {
	return model.Match{
		ID:              id,
		HomeTeamID:      "home",
		AwayTeamID:      "away",
		Date:            base,
		Venue:           "Stadium",
		Category:        "J1",
		Status:          model.MatchScheduled,
		InterestedClubs: []string{},
		CreatedAt:       base,
		UpdatedAt:       base,
	}
}

func TestCollection_PutGet(t *testing.T) {
	s := testStore(t)

	m := testMatch("m1")
	if err := s.Matches.Put(m); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	got, ok, err := s.Matches.Get("m1")
	if err != nil || !ok {
		t.Fatalf("Get() = ok %v, err %v", ok, err)
	}
	if diff := cmp.Diff(m, got); diff != "" {
		t.Errorf("Get() mismatch (-want +got):\n%s", diff)
	}

	// Put of the same id must not duplicate the index entry
	m.Venue = "Arena"
	if err := s.Matches.Put(m); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	ids, _ := s.Matches.IDs()
	if diff := cmp.Diff([]string{"m1"}, ids); diff != "" {
		t.Errorf("IDs() mismatch (-want +got):\n%s", diff)
	}
}

func TestCollection_RejectsUnsafeIDs(t *testing.T) {
	tests := []struct {
		id string
		ok bool
	}{
		{"m1", true},
		{"a.b", true},
		{"8f14e45f-ceea-467a-9af1-2c5f1e0c9a21", true},
		{"", false},
		{"index", false},
		{".hidden", false},
		{"../users/x", false},
		{"a/b", false},
		{`a\b`, false},
		{"a..b", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			err := checkID(tt.id)
			if tt.ok && err != nil {
				t.Errorf("checkID(%q) = %v, want nil", tt.id, err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidID) {
				t.Errorf("checkID(%q) = %v, want ErrInvalidID", tt.id, err)
			}
		})
	}
}

func TestCollection_ReplaceAllUnsafeID(t *testing.T) {
	s := testStore(t)
	if err := s.Matches.Put(testMatch("keep")); err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{"index", "../users/x"} {
		err := s.Matches.ReplaceAll([]model.Match{testMatch("a"), testMatch(id)})
		if !errors.Is(err, ErrInvalidID) {
			t.Errorf("ReplaceAll(%q) = %v, want ErrInvalidID", id, err)
		}
		if err := s.Matches.Put(testMatch(id)); !errors.Is(err, ErrInvalidID) {
			t.Errorf("Put(%q) = %v, want ErrInvalidID", id, err)
		}
	}

	// Nothing was written: the old contents survive and no file escaped
	got, err := s.Matches.List()
	if err != nil {
		t.Fatal(err)
	}
	var listed []string
	for _, m := range got {
		listed = append(listed, m.ID)
	}
	if diff := cmp.Diff([]string{"keep"}, listed); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "users", "x.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("record written outside its collection: %v", err)
	}
}

func TestCollection_GetAbsent(t *testing.T) {
	s := testStore(t)

	_, ok, err := s.Matches.Get("nope")
	if err != nil {
		t.Fatalf("Get() error = %v, want nil", err)
	}
	if ok {
		t.Error("Get() ok = true for absent record")
	}
}

func TestCollection_PutInvalid(t *testing.T) {
	s := testStore(t)

	err := s.Matches.Put(model.Match{ID: "m1"})
	if err == nil {
		t.Fatal("Put() should reject invalid record")
	}
	if ids, _ := s.Matches.IDs(); len(ids) != 0 {
		t.Errorf("invalid record reached the index: %v", ids)
	}
}

func TestCollection_ListSkipsMissingAndCorrupt(t *testing.T) {
	s := testStore(t)

	for _, id := range []string{"m1", "m2", "m3"} {
		if err := s.Matches.Put(testMatch(id)); err != nil {
			t.Fatalf("Put(%s) failed: %v", id, err)
		}
	}
	if err := os.Remove(filepath.Join(s.Matches.Dir(), "m2.json")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(s.Matches.Dir(), "m3.json"), []byte("{trunc"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := s.Matches.List()
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "m1" {
		t.Errorf("List() = %v, want only m1", got)
	}
}

func TestCollection_ReplaceAll(t *testing.T) {
	s := testStore(t)

	for _, id := range []string{"old1", "old2"} {
		_ = s.Matches.Put(testMatch(id))
	}
	// An orphan record with no index entry must be cleaned up too
	if err := os.WriteFile(filepath.Join(s.Matches.Dir(), "orphan.json"), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	fresh := []model.Match{testMatch("n2"), testMatch("n1")}
	if err := s.Matches.ReplaceAll(fresh); err != nil {
		t.Fatalf("ReplaceAll() failed: %v", err)
	}

	got, err := s.Matches.List()
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if diff := cmp.Diff(fresh, got); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}

	entries, _ := os.ReadDir(s.Matches.Dir())
	var files []string
	for _, e := range entries {
		files = append(files, e.Name())
	}
	want := []string{"index.json", "n1.json", "n2.json"}
	if diff := cmp.Diff(want, files); diff != "" {
		t.Errorf("directory mismatch (-want +got):\n%s", diff)
	}
}

func TestCollection_ReplaceAllEmpty(t *testing.T) {
	s := testStore(t)
	_ = s.Matches.Put(testMatch("m1"))

	if err := s.Matches.ReplaceAll(nil); err != nil {
		t.Fatalf("ReplaceAll(nil) failed: %v", err)
	}
	got, _ := s.Matches.List()
	if len(got) != 0 {
		t.Errorf("List() = %v, want empty", got)
	}
}

func TestCollection_Delete(t *testing.T) {
	s := testStore(t)
	_ = s.Matches.Put(testMatch("m1"))
	_ = s.Matches.Put(testMatch("m2"))

	if err := s.Matches.Delete("m1"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if err := s.Matches.Delete("m1"); err != nil {
		t.Errorf("second Delete() failed: %v", err)
	}

	ids, _ := s.Matches.IDs()
	if diff := cmp.Diff([]string{"m2"}, ids); diff != "" {
		t.Errorf("IDs() mismatch (-want +got):\n%s", diff)
	}
}

func TestCollection_CorruptIndexRebuilt(t *testing.T) {
	s := testStore(t)
	_ = s.Matches.Put(testMatch("b"))
	_ = s.Matches.Put(testMatch("a"))

	if err := os.WriteFile(filepath.Join(s.Matches.Dir(), IndexFile), []byte("not json"), 0644); err != nil {
		t.Fatal(err)
	}

	ids, err := s.Matches.IDs()
	if err != nil {
		t.Fatalf("IDs() failed: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, ids); diff != "" {
		t.Errorf("rebuilt index mismatch (-want +got):\n%s", diff)
	}
}

func TestCollection_ConcurrentPuts(t *testing.T) {
	s := testStore(t)

	const n = 30
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.Matches.Put(testMatch(fmt.Sprintf("m%02d", i))); err != nil {
				t.Errorf("Put() failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	ids, _ := s.Matches.IDs()
	if len(ids) != n {
		t.Errorf("index has %d ids, want %d (lost index update)", len(ids), n)
	}
}

func TestUnsyncedSet(t *testing.T) {
	s := testStore(t)

	if err := s.PutReport(testReport("r1", "u1"), false); err != nil {
		t.Fatalf("PutReport() failed: %v", err)
	}
	if err := s.PutReport(testReport("r2", "u1"), false); err != nil {
		t.Fatalf("PutReport() failed: %v", err)
	}
	if err := s.PutReport(testReport("r3", "u1"), true); err != nil {
		t.Fatalf("PutReport() failed: %v", err)
	}

	if diff := cmp.Diff([]string{"r1", "r2"}, s.UnsyncedIDs()); diff != "" {
		t.Errorf("UnsyncedIDs() mismatch (-want +got):\n%s", diff)
	}

	// markUnsynced then markSynced leaves the set without the id
	_ = s.MarkUnsynced("r3")
	_ = s.MarkSynced("r3")
	// markSynced on an id never marked is a no-op
	if err := s.MarkSynced("never"); err != nil {
		t.Fatalf("MarkSynced() failed: %v", err)
	}
	if diff := cmp.Diff([]string{"r1", "r2"}, s.UnsyncedIDs()); diff != "" {
		t.Errorf("UnsyncedIDs() mismatch (-want +got):\n%s", diff)
	}

	unsynced, err := s.ListUnsynced()
	if err != nil {
		t.Fatalf("ListUnsynced() failed: %v", err)
	}
	if len(unsynced) != 2 {
		t.Errorf("ListUnsynced() returned %d reports, want 2", len(unsynced))
	}

	_ = s.MarkSyncedMany([]string{"r1", "r2"})
	if ids := s.UnsyncedIDs(); len(ids) != 0 {
		t.Errorf("UnsyncedIDs() = %v, want empty", ids)
	}
}

func TestSaveReports_KeepsUnsynced(t *testing.T) {
	s := testStore(t)
	local := testReport("r1", "u1")
	local.OverallComment = model.StringPtr("offline edit")
	_ = s.PutReport(local, false)
	_ = s.PutReport(testReport("r3", "u1"), true)

	kept, err := s.SaveReports([]model.ScoutingReport{testReport("r1", "u1"), testReport("r2", "u1")})
	if err != nil {
		t.Fatalf("SaveReports() failed: %v", err)
	}
	if diff := cmp.Diff([]string{"r1"}, kept); diff != "" {
		t.Errorf("kept mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"r1"}, s.UnsyncedIDs()); diff != "" {
		t.Errorf("UnsyncedIDs() mismatch (-want +got):\n%s", diff)
	}
	got, _, _ := s.Reports.Get("r1")
	if model.Deref(got.OverallComment) != "offline edit" {
		t.Errorf("remote copy overwrote local edit: %+v", got)
	}
	if _, ok, _ := s.Reports.Get("r2"); !ok {
		t.Error("r2 not saved")
	}
}

func TestMarkPushed(t *testing.T) {
	s := testStore(t)
	for _, id := range []string{"r1", "r2", "r3"} {
		_ = s.PutReport(testReport(id, "u1"), false)
	}
	snapshot, err := s.ListUnsynced()
	if err != nil {
		t.Fatal(err)
	}

	// r2 is edited after the snapshot was taken, r3 is deleted
	edited := testReport("r2", "u1")
	edited.UpdatedAt = base.Add(time.Second)
	_ = s.PutReport(edited, false)
	_ = s.Reports.Delete("r3")

	stale, err := s.MarkPushed(snapshot)
	if err != nil {
		t.Fatalf("MarkPushed() failed: %v", err)
	}
	slices.Sort(stale)
	if diff := cmp.Diff([]string{"r2", "r3"}, stale); diff != "" {
		t.Errorf("stale mismatch (-want +got):\n%s", diff)
	}
	ids := s.UnsyncedIDs()
	slices.Sort(ids)
	if diff := cmp.Diff([]string{"r2", "r3"}, ids); diff != "" {
		t.Errorf("UnsyncedIDs() mismatch (-want +got):\n%s", diff)
	}
}

func TestPrefsPersist(t *testing.T) {
	root := t.TempDir()
	logger := log.New(io.Discard, "", 0)
	s, err := Open(root, logger)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	u := model.User{ID: "u1", Email: "fan@example.com", Username: "fan", CreatedAt: base, UpdatedAt: base, Points: 10}
	if err := s.PutUser(u); err != nil {
		t.Fatalf("PutUser() failed: %v", err)
	}
	_ = s.MarkUnsynced("r9")
	syncedAt := base.Add(time.Hour + 123*time.Millisecond)
	if err := s.SetLastSyncDate(syncedAt); err != nil {
		t.Fatalf("SetLastSyncDate() failed: %v", err)
	}

	reopened, err := Open(root, logger)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if got := reopened.CurrentUserID(); got != "u1" {
		t.Errorf("CurrentUserID() = %q, want u1", got)
	}
	cur, ok, err := reopened.CurrentUser()
	if err != nil || !ok {
		t.Fatalf("CurrentUser() = ok %v, err %v", ok, err)
	}
	if cur.Points != 10 {
		t.Errorf("CurrentUser().Points = %d, want 10", cur.Points)
	}
	if diff := cmp.Diff([]string{"r9"}, reopened.UnsyncedIDs()); diff != "" {
		t.Errorf("UnsyncedIDs() mismatch (-want +got):\n%s", diff)
	}
	last, ok := reopened.LastSyncDate()
	if !ok || !last.Equal(syncedAt) {
		t.Errorf("LastSyncDate() = %v, %v; want %v", last, ok, syncedAt)
	}

	data, _ := os.ReadFile(filepath.Join(root, PrefsFile))
	if !strings.Contains(string(data), "current_user_id") {
		t.Errorf("prefs.toml missing current_user_id:\n%s", data)
	}
}

func TestClear(t *testing.T) {
	s := testStore(t)
	u := model.User{ID: "u1", Email: "fan@example.com", CreatedAt: base, UpdatedAt: base}
	_ = s.PutUser(u)
	_ = s.Matches.Put(testMatch("m1"))
	_ = s.PutReport(testReport("r1", "u1"), false)
	_ = s.SetLastSyncDate(base)

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear() failed: %v", err)
	}

	if got, _ := s.Matches.List(); len(got) != 0 {
		t.Errorf("matches survived Clear(): %v", got)
	}
	if got, _ := s.Reports.List(); len(got) != 0 {
		t.Errorf("reports survived Clear(): %v", got)
	}
	if ids := s.UnsyncedIDs(); len(ids) != 0 {
		t.Errorf("unsynced set survived Clear(): %v", ids)
	}
	if _, ok := s.LastSyncDate(); ok {
		t.Error("last sync date survived Clear()")
	}
	if _, ok, _ := s.CurrentUser(); !ok {
		t.Error("Clear() dropped the current user")
	}
}

func TestRecordID(t *testing.T) {
	tests := []struct {
		name   string
		wantID string
		wantOK bool
	}{
		{"r1.json", "r1", true},
		{"index.json", "", false},
		{".r1.json.tmp-123", "", false},
		{"notes.txt", "", false},
	}
	for _, tt := range tests {
		id, ok := recordID(tt.name)
		if id != tt.wantID || ok != tt.wantOK {
			t.Errorf("recordID(%q) = %q, %v; want %q, %v", tt.name, id, ok, tt.wantID, tt.wantOK)
		}
	}
}

func TestIndexNeverListsMissingIDsAfterPut(t *testing.T) {
	s := testStore(t)
	for i := 0; i < 5; i++ {
		_ = s.Reports.Put(testReport(fmt.Sprintf("r%d", i), "u1"))
	}
	ids, _ := s.Reports.IDs()
	onDisk, _ := s.Reports.recordIDs()
	slices.Sort(ids)
	if diff := cmp.Diff(onDisk, ids); diff != "" {
		t.Errorf("index and records disagree (-disk +index):\n%s", diff)
	}
}
