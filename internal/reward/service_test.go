package reward

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/fanscout/scout/internal/cache"
	"github.com/fanscout/scout/internal/ledger"
	"github.com/fanscout/scout/internal/model"
	"github.com/fanscout/scout/internal/remote"
)

var quiet = log.New(io.Discard, "", 0)

var base = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type switchableStore struct {
	remote.Store
	offline bool
}

func (s *switchableStore) Query(ctx context.Context, collection string, q remote.Query) ([]remote.Document, error) {
	if s.offline {
		return nil, fmt.Errorf("%w: offline", remote.ErrNetwork)
	}
	return s.Store.Query(ctx, collection, q)
}

type fixture struct {
	store *switchableStore
	cache *cache.Store
	svc   *Service
}

func setup(t *testing.T, points int) *fixture {
	t.Helper()
	dir := t.TempDir()

	db, err := remote.OpenSQLite(filepath.Join(dir, "remote.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	local, err := cache.Open(filepath.Join(dir, "cache"), quiet)
	if err != nil {
		t.Fatalf("cache.Open() failed: %v", err)
	}

	store := &switchableStore{Store: db}
	l := ledger.New(store, ledger.DefaultConfig(), quiet)
	f := &fixture{store: store, cache: local, svc: New(store, local, l, quiet)}

	user := model.User{ID: "u1", Email: "u1@example.com", Points: points, CreatedAt: base, UpdatedAt: base}
	f.put(t, model.CollectionUsers, user.ID, user)
	if err := local.PutUser(user); err != nil {
		t.Fatal(err)
	}

	items := []model.RewardItem{
		{ID: "r1", Name: "Stadium ticket", PointCost: 300, Category: model.RewardTicket, IsAvailable: true},
		{ID: "r2", Name: "Scarf", PointCost: 100, Category: model.RewardMerchandise, IsAvailable: true},
		{ID: "r3", Name: "Signed shirt", PointCost: 500, Category: model.RewardMerchandise, IsAvailable: false},
		{ID: "r4", Name: "Training visit", PointCost: 200, Category: model.RewardExperience, IsAvailable: true},
	}
	for _, it := range items {
		it.CreatedAt, it.UpdatedAt = base, base
		f.put(t, model.CollectionRewardItems, it.ID, it)
	}
	return f
}

func (f *fixture) put(t *testing.T, collection, id string, v any) {
	t.Helper()
	doc, err := remote.Encode(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.store.Store.Set(context.Background(), collection, id, doc); err != nil {
		t.Fatalf("seed %s/%s failed: %v", collection, id, err)
	}
}

func ids(items []model.RewardItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestCatalog(t *testing.T) {
	f := setup(t, 0)
	ctx := context.Background()
	merch := model.RewardMerchandise

	tests := []struct {
		name     string
		category *model.RewardCategory
		want     []string
	}{
		{"all available by cost", nil, []string{"r2", "r4", "r1"}},
		{"one category", &merch, []string{"r2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := f.svc.Catalog(ctx, tt.category)
			if err != nil {
				t.Fatalf("Catalog() failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, ids(items)); diff != "" {
				t.Errorf("Catalog() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCatalogOfflineUsesCache(t *testing.T) {
	f := setup(t, 0)
	ctx := context.Background()

	if _, err := f.svc.Catalog(ctx, nil); err != nil {
		t.Fatalf("Catalog() failed: %v", err)
	}

	f.store.offline = true
	items, err := f.svc.Catalog(ctx, nil)
	if err != nil {
		t.Fatalf("offline Catalog() failed: %v", err)
	}
	if diff := cmp.Diff([]string{"r2", "r4", "r1"}, ids(items)); diff != "" {
		t.Errorf("offline Catalog() mismatch (-want +got):\n%s", diff)
	}

	exp := model.RewardExperience
	items, err = f.svc.Catalog(ctx, &exp)
	if err != nil {
		t.Fatalf("offline Catalog(experience) failed: %v", err)
	}
	if diff := cmp.Diff([]string{"r4"}, ids(items)); diff != "" {
		t.Errorf("offline Catalog(experience) mismatch (-want +got):\n%s", diff)
	}
}

func TestCatalogOfflineEmptyCache(t *testing.T) {
	f := setup(t, 0)
	f.store.offline = true

	items, err := f.svc.Catalog(context.Background(), nil)
	if err != nil {
		t.Fatalf("Catalog() failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Catalog() = %v, want empty", ids(items))
	}
}

func TestRedeem(t *testing.T) {
	f := setup(t, 250)
	ctx := context.Background()

	got, err := f.svc.Redeem(ctx, "u1", "r2")
	if err != nil {
		t.Fatalf("Redeem() failed: %v", err)
	}
	if got.PointsUsed != 100 || got.Status != model.RedemptionCompleted {
		t.Errorf("Redeem() = %+v, want 100 points completed", got)
	}
	if got.RedemptionCode == nil || !strings.HasPrefix(*got.RedemptionCode, "REWARD-") {
		t.Errorf("RedemptionCode = %v, want REWARD- prefix", got.RedemptionCode)
	}

	cached, ok, err := f.cache.Redemptions.Get(got.ID)
	if err != nil || !ok {
		t.Fatalf("cached redemption missing: ok=%v err=%v", ok, err)
	}
	if cached.RewardID != "r2" {
		t.Errorf("cached RewardID = %q, want r2", cached.RewardID)
	}

	user, _, err := f.cache.CurrentUser()
	if err != nil {
		t.Fatal(err)
	}
	if user.Points != 150 {
		t.Errorf("cached Points = %d, want 150", user.Points)
	}
}

func TestRedeemRejections(t *testing.T) {
	tests := []struct {
		name     string
		points   int
		rewardID string
		want     error
	}{
		{"insufficient", 250, "r1", ledger.ErrInsufficientBalance},
		{"unavailable", 1000, "r3", ledger.ErrRewardNotFound},
		{"unknown", 1000, "nope", ledger.ErrRewardNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t, tt.points)
			_, err := f.svc.Redeem(context.Background(), "u1", tt.rewardID)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Redeem() error = %v, want %v", err, tt.want)
			}
			if ids, _ := f.cache.Redemptions.IDs(); len(ids) != 0 {
				t.Errorf("cached redemptions = %v, want none", ids)
			}
			user, _, _ := f.cache.CurrentUser()
			if user.Points != tt.points {
				t.Errorf("cached Points = %d, want %d", user.Points, tt.points)
			}
		})
	}
}

func TestRedemptions(t *testing.T) {
	f := setup(t, 1000)
	ctx := context.Background()

	first, err := f.svc.Redeem(ctx, "u1", "r2")
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)
	second, err := f.svc.Redeem(ctx, "u1", "r4")
	if err != nil {
		t.Fatal(err)
	}
	f.put(t, model.CollectionRedemptions, "other", model.RewardRedemption{
		ID: "other", UserID: "u2", RewardID: "r2", PointsUsed: 100,
		Status: model.RedemptionCompleted, CreatedAt: base, UpdatedAt: base,
	})

	want := []string{second.ID, first.ID}
	redemptionIDs := func(rs []model.RewardRedemption) []string {
		var out []string
		for _, r := range rs {
			out = append(out, r.ID)
		}
		return out
	}

	got, err := f.svc.Redemptions(ctx, "u1")
	if err != nil {
		t.Fatalf("Redemptions() failed: %v", err)
	}
	if diff := cmp.Diff(want, redemptionIDs(got)); diff != "" {
		t.Errorf("Redemptions() mismatch (-want +got):\n%s", diff)
	}

	f.store.offline = true
	got, err = f.svc.Redemptions(ctx, "u1")
	if err != nil {
		t.Fatalf("offline Redemptions() failed: %v", err)
	}
	if diff := cmp.Diff(want, redemptionIDs(got)); diff != "" {
		t.Errorf("offline Redemptions() mismatch (-want +got):\n%s", diff)
	}
}
