// Package analytics computes per-user statistics from the local cache, so
// it works offline and never touches the remote store.
package analytics

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/fanscout/scout/internal/cache"
	"github.com/fanscout/scout/internal/model"
)

// ErrNoUser is returned when the user is not in the cache.
var ErrNoUser = errors.New("user not cached")

// Summary describes a user's scouting activity and point flow.
type Summary struct {
	UserID          string                     `json:"userId"`
	ReportsByStatus map[model.ReportStatus]int `json:"reportsByStatus"`
	TotalReports    int                        `json:"totalReports"`
	TotalLikes      int                        `json:"totalLikes"`
	PointsAwarded   int                        `json:"pointsAwarded"`
	Unsynced        int                        `json:"unsynced"`
	LastReportAt    *time.Time                 `json:"lastReportAt,omitempty"`

	Earned   int `json:"earned"`
	Redeemed int `json:"redeemed"`
	Expired  int `json:"expired"`

	// Balance is the cached user's point balance; Replayed is the balance
	// obtained by applying the cached history in order, flooring at zero.
	Balance  int  `json:"balance"`
	Replayed int  `json:"replayed"`
	Balanced bool `json:"balanced"`
}

// Summarize builds the Summary for userID.
func Summarize(local *cache.Store, userID string) (Summary, error) {
	user, ok, err := local.Users.Get(userID)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to read user: %w", err)
	}
	if !ok {
		return Summary{}, fmt.Errorf("%w: %s", ErrNoUser, userID)
	}

	s := Summary{
		UserID:          userID,
		ReportsByStatus: make(map[model.ReportStatus]int),
		Balance:         user.Points,
	}

	reports, err := local.Reports.List()
	if err != nil {
		return Summary{}, fmt.Errorf("failed to read reports: %w", err)
	}
	unsynced := local.UnsyncedIDs()
	for _, r := range reports {
		if r.UserID != userID {
			continue
		}
		s.TotalReports++
		s.ReportsByStatus[r.Status]++
		s.TotalLikes += r.Likes
		s.PointsAwarded += r.PointsAwarded
		if slices.Contains(unsynced, r.ID) {
			s.Unsynced++
		}
		if s.LastReportAt == nil || r.CreatedAt.After(*s.LastReportAt) {
			at := r.CreatedAt
			s.LastReportAt = &at
		}
	}

	history, err := local.PointHistory.List()
	if err != nil {
		return Summary{}, fmt.Errorf("failed to read point history: %w", err)
	}
	history = slices.DeleteFunc(history, func(h model.PointHistory) bool { return h.UserID != userID })
	slices.SortStableFunc(history, func(a, b model.PointHistory) int { return a.CreatedAt.Compare(b.CreatedAt) })

	for _, h := range history {
		switch h.Type {
		case model.PointsEarned:
			s.Earned += h.Amount
		case model.PointsRedeemed:
			s.Redeemed -= h.Amount
		case model.PointsExpired:
			s.Expired -= h.Amount
		}
		s.Replayed = max(0, s.Replayed+h.Amount)
	}
	s.Balanced = s.Replayed == s.Balance
	return s, nil
}
