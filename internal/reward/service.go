// Package reward exposes the reward catalogue and redemptions.
package reward

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"

	"github.com/fanscout/scout/internal/cache"
	"github.com/fanscout/scout/internal/ledger"
	"github.com/fanscout/scout/internal/model"
	"github.com/fanscout/scout/internal/remote"
)

// Service is the reward façade. Point accounting is delegated to the ledger.
type Service struct {
	remote remote.Store
	cache  *cache.Store
	ledger *ledger.Ledger
	logger *log.Logger
}

// New creates a Service.
//
// If logger is nil, a default logger writing to stderr is used.
func New(store remote.Store, local *cache.Store, l *ledger.Ledger, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(os.Stderr, "[reward] ", log.LstdFlags)
	}
	return &Service{remote: store, cache: local, ledger: l, logger: logger}
}

// Catalog returns available reward items ordered by point cost, optionally
// restricted to one category. Results are cached; when the remote store is
// unreachable the cached catalogue is served instead.
func (s *Service) Catalog(ctx context.Context, category *model.RewardCategory) ([]model.RewardItem, error) {
	q := remote.Query{
		Filters: []remote.Filter{remote.Where("isAvailable", remote.OpEq, true)},
		OrderBy: "pointCost",
	}
	if category != nil {
		q.Filters = append(q.Filters, remote.Where("category", remote.OpEq, string(*category)))
	}

	docs, err := s.remote.Query(ctx, model.CollectionRewardItems, q)
	if remote.IsRetryable(err) {
		s.logger.Printf("WARNING: Serving cached catalogue, remote unavailable: %v", err)
		return s.cachedCatalog(category)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reward items: %w", err)
	}

	items, err := remote.DecodeAll[model.RewardItem](docs)
	if err != nil {
		return nil, err
	}

	if category == nil {
		err = s.cache.RewardItems.ReplaceAll(items)
	} else {
		for _, it := range items {
			if err = s.cache.RewardItems.Put(it); err != nil {
				break
			}
		}
	}
	if err != nil {
		s.logger.Printf("WARNING: Failed to cache reward items: %v", err)
	}
	return items, nil
}

// Redeem exchanges points for a reward and records the redemption locally.
func (s *Service) Redeem(ctx context.Context, userID, rewardID string) (*model.RewardRedemption, error) {
	redemption, err := s.ledger.RedeemReward(ctx, userID, rewardID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Redemptions.Put(*redemption); err != nil {
		s.logger.Printf("WARNING: Failed to cache redemption %s: %v", redemption.ID, err)
	}
	s.refreshUser(ctx, userID)
	return redemption, nil
}

// Redemptions returns the user's redemptions, newest first.
func (s *Service) Redemptions(ctx context.Context, userID string) ([]model.RewardRedemption, error) {
	docs, err := s.remote.Query(ctx, model.CollectionRedemptions, remote.Query{
		Filters: []remote.Filter{remote.Where("userId", remote.OpEq, userID)},
		OrderBy: "createdAt",
		Desc:    true,
	})
	if remote.IsRetryable(err) {
		cached, cerr := s.cache.Redemptions.List()
		if cerr != nil {
			return nil, cerr
		}
		cached = slices.DeleteFunc(cached, func(r model.RewardRedemption) bool { return r.UserID != userID })
		slices.SortStableFunc(cached, func(a, b model.RewardRedemption) int { return b.CreatedAt.Compare(a.CreatedAt) })
		return cached, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch redemptions: %w", err)
	}

	redemptions, err := remote.DecodeAll[model.RewardRedemption](docs)
	if err != nil {
		return nil, err
	}
	for _, r := range redemptions {
		if err := s.cache.Redemptions.Put(r); err != nil {
			s.logger.Printf("WARNING: Failed to cache redemption %s: %v", r.ID, err)
		}
	}
	return redemptions, nil
}

func (s *Service) cachedCatalog(category *model.RewardCategory) ([]model.RewardItem, error) {
	items, err := s.cache.RewardItems.List()
	if err != nil {
		return nil, fmt.Errorf("failed to read cached reward items: %w", err)
	}
	items = slices.DeleteFunc(items, func(it model.RewardItem) bool {
		return !it.IsAvailable || (category != nil && it.Category != *category)
	})
	slices.SortStableFunc(items, func(a, b model.RewardItem) int { return a.PointCost - b.PointCost })
	return items, nil
}

// refreshUser copies the new balance into the cached user, if cached.
func (s *Service) refreshUser(ctx context.Context, userID string) {
	u, ok, err := s.cache.Users.Get(userID)
	if err != nil || !ok {
		return
	}
	balance, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		s.logger.Printf("WARNING: Failed to refresh balance for %s: %v", userID, err)
		return
	}
	u.Points = balance
	if err := s.cache.Users.Put(u); err != nil {
		s.logger.Printf("WARNING: Failed to cache user %s: %v", userID, err)
	}
}
