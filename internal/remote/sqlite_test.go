package remote

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// testStore opens a store in a temporary directory.
func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "remote.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type counter struct {
	ID    string `json:"id"`
	Value int    `json:"value"`
}

type event struct {
	ID     string    `json:"id"`
	Owner  string    `json:"owner"`
	Public bool      `json:"public"`
	At     time.Time `json:"at"`
	Tags   []string  `json:"tags,omitempty"`
}

func TestOpenSQLite_Success(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "remote.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	defer s.Close()

	if s.Path() != path {
		t.Errorf("Path() = %q, want %q", s.Path(), path)
	}

	// Schema initialization is idempotent
	if err := s.InitSchema(context.Background()); err != nil {
		t.Errorf("second InitSchema() failed: %v", err)
	}
}

func TestSetGet(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	doc, err := Encode(counter{ID: "c1", Value: 7})
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	if err := s.Set(ctx, "counters", "c1", doc); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	got, err := s.Get(ctx, "counters", "c1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	var c counter
	if err := Decode(got, &c); err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if diff := cmp.Diff(counter{ID: "c1", Value: 7}, c); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	// Set replaces the whole document
	if err := s.Set(ctx, "counters", "c1", Document{"id": "c1"}); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	got, _ = s.Get(ctx, "counters", "c1")
	if _, ok := got["value"]; ok {
		t.Errorf("Set() kept stale field: %v", got)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := testStore(t)

	_, err := s.Get(context.Background(), "counters", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestUpdate(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "counters", "c1", Document{"id": "c1", "value": 1, "label": "a"}); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := s.Update(ctx, "counters", "c1", Document{"value": 2}); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	got, err := s.Get(ctx, "counters", "c1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got["label"] != "a" {
		t.Errorf("label = %v, want a (untouched field must survive)", got["label"])
	}
	var c counter
	_ = Decode(got, &c)
	if c.Value != 2 {
		t.Errorf("value = %d, want 2", c.Value)
	}

	err = s.Update(ctx, "counters", "missing", Document{"value": 1})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrNotFound", err)
	}
}

func TestQuery(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	events := []event{
		{ID: "e1", Owner: "u1", Public: true, At: base, Tags: []string{"c1", "c2"}},
		{ID: "e2", Owner: "u1", Public: false, At: base.Add(2 * time.Hour)},
		{ID: "e3", Owner: "u2", Public: true, At: base.Add(time.Hour), Tags: []string{"c2"}},
		// sub-second precision must still order chronologically
		{ID: "e4", Owner: "u1", Public: true, At: base.Add(90 * time.Minute).Add(500 * time.Millisecond)},
	}
	for _, e := range events {
		doc, _ := Encode(e)
		if err := s.Set(ctx, "events", e.ID, doc); err != nil {
			t.Fatalf("Set(%s) failed: %v", e.ID, err)
		}
	}
	// A document in another collection must never leak into results
	_ = s.Set(ctx, "other", "e1", Document{"owner": "u1"})

	tests := []struct {
		name string
		q    Query
		want []string
	}{
		{
			name: "all by id",
			q:    Query{},
			want: []string{"e1", "e2", "e3", "e4"},
		},
		{
			name: "owner equality",
			q:    Query{Filters: []Filter{Where("owner", OpEq, "u1")}},
			want: []string{"e1", "e2", "e4"},
		},
		{
			name: "bool filter",
			q:    Query{Filters: []Filter{Where("public", OpEq, false)}},
			want: []string{"e2"},
		},
		{
			name: "time range",
			q: Query{Filters: []Filter{
				Where("at", OpGte, base.Add(time.Hour)),
				Where("at", OpLt, base.Add(2*time.Hour)),
			}},
			want: []string{"e3", "e4"},
		},
		{
			name: "array contains",
			q:    Query{Filters: []Filter{Where("tags", OpContains, "c2")}, OrderBy: "at"},
			want: []string{"e1", "e3"},
		},
		{
			name: "array contains, no match",
			q:    Query{Filters: []Filter{Where("tags", OpContains, "c9")}},
			want: nil,
		},
		{
			name: "order by time desc",
			q:    Query{OrderBy: "at", Desc: true},
			want: []string{"e2", "e4", "e3", "e1"},
		},
		{
			name: "filtered, ordered, limited",
			q: Query{
				Filters: []Filter{Where("owner", OpEq, "u1")},
				OrderBy: "at",
				Limit:   2,
			},
			want: []string{"e1", "e4"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := s.Query(ctx, "events", tt.q)
			if err != nil {
				t.Fatalf("Query() failed: %v", err)
			}
			var got []string
			for _, d := range docs {
				got = append(got, d["id"].(string))
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Query() ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestQuery_InvalidField(t *testing.T) {
	s := testStore(t)

	_, err := s.Query(context.Background(), "events", Query{Filters: []Filter{Where("x') OR 1=1 --", OpEq, 1)}})
	if err == nil {
		t.Error("Query() with injected field should fail")
	}
	_, err = s.Query(context.Background(), "events", Query{OrderBy: "a.b"})
	if err == nil {
		t.Error("Query() with dotted order field should fail")
	}
}

func TestTransaction_Commit(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	_ = s.Set(ctx, "counters", "a", Document{"id": "a", "value": 10})

	err := s.Transaction(ctx, func(tx Tx) error {
		if err := tx.Update("counters", "a", Document{"value": 4}); err != nil {
			return err
		}
		// read-your-writes
		doc, err := tx.Get("counters", "a")
		if err != nil {
			return err
		}
		if doc["value"] != 4 {
			t.Errorf("Get() inside tx = %v, want buffered value 4", doc["value"])
		}
		return tx.Set("counters", "b", Document{"id": "b", "value": 6})
	})
	if err != nil {
		t.Fatalf("Transaction() failed: %v", err)
	}

	for id, want := range map[string]int{"a": 4, "b": 6} {
		doc, err := s.Get(ctx, "counters", id)
		if err != nil {
			t.Fatalf("Get(%s) failed: %v", id, err)
		}
		var c counter
		_ = Decode(doc, &c)
		if c.Value != want {
			t.Errorf("%s = %d, want %d", id, c.Value, want)
		}
	}
}

func TestTransaction_FnErrorWritesNothing(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Transaction(ctx, func(tx Tx) error {
		_ = tx.Set("counters", "a", Document{"id": "a"})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Transaction() error = %v, want boom", err)
	}
	if _, err := s.Get(ctx, "counters", "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("aborted transaction wrote a document: %v", err)
	}
}

func TestTransaction_Conflict(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	_ = s.Set(ctx, "counters", "a", Document{"id": "a", "value": 1})

	err := s.Transaction(ctx, func(tx Tx) error {
		if _, err := tx.Get("counters", "a"); err != nil {
			return err
		}
		// Concurrent writer sneaks in after the read
		if err := s.Set(ctx, "counters", "a", Document{"id": "a", "value": 100}); err != nil {
			return err
		}
		return tx.Update("counters", "a", Document{"value": 2})
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("Transaction() error = %v, want ErrConflict", err)
	}
	if !IsRetryable(err) {
		t.Error("conflict should be retryable")
	}

	doc, _ := s.Get(ctx, "counters", "a")
	var c counter
	_ = Decode(doc, &c)
	if c.Value != 100 {
		t.Errorf("value = %d, want concurrent write 100 preserved", c.Value)
	}
}

func TestTransaction_ConflictOnCreatedDocument(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	err := s.Transaction(ctx, func(tx Tx) error {
		if _, err := tx.Get("counters", "new"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
		_ = s.Set(ctx, "counters", "new", Document{"id": "new"})
		return tx.Set("counters", "new", Document{"id": "new", "value": 1})
	})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("Transaction() error = %v, want ErrConflict", err)
	}
}

func TestTransaction_ConcurrentIncrements(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	_ = s.Set(ctx, "counters", "n", Document{"id": "n", "value": 0})

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for attempt := 0; attempt < 50; attempt++ {
				err := s.Transaction(ctx, func(tx Tx) error {
					doc, err := tx.Get("counters", "n")
					if err != nil {
						return err
					}
					var c counter
					if err := Decode(doc, &c); err != nil {
						return err
					}
					return tx.Update("counters", "n", Document{"value": c.Value + 1})
				})
				if err == nil {
					return
				}
				if !IsRetryable(err) {
					errs <- err
					return
				}
				time.Sleep(time.Millisecond)
			}
			errs <- errors.New("too many conflicts")
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("increment failed: %v", err)
	}

	doc, _ := s.Get(ctx, "counters", "n")
	var c counter
	_ = Decode(doc, &c)
	if c.Value != workers {
		t.Errorf("value = %d, want %d (lost update)", c.Value, workers)
	}
}

func TestCount(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_ = s.Set(ctx, "counters", id, Document{"id": id})
	}
	n, err := s.Count(ctx, "counters")
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Count() = %d, want 3", n)
	}
}

func TestDecode_BadData(t *testing.T) {
	var c counter
	err := Decode(Document{"value": "not a number"}, &c)
	if !errors.Is(err, ErrData) {
		t.Errorf("Decode() error = %v, want ErrData", err)
	}
}

func TestOpenLibSQL_Disabled(t *testing.T) {
	if _, err := OpenLibSQL("libsql://example.invalid"); err == nil {
		t.Skip("built with libsql support")
	} else if !errors.Is(err, ErrNotSupported) && !errors.Is(err, ErrNetwork) {
		t.Errorf("OpenLibSQL() error = %v", err)
	}
}
