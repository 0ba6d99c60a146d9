// Package loadtest drives concurrent awards and redemptions through the
// points ledger and checks that every balance still matches its history.
package loadtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/fanscout/scout/internal/ledger"
	"github.com/fanscout/scout/internal/model"
	"github.com/fanscout/scout/internal/remote"
)

// Options configures a load run.
type Options struct {
	Users        int   // Number of users to spread operations over
	Workers      int   // Concurrent workers
	OpsPerWorker int   // Operations each worker issues
	Seed         int64 // Random seed for the operation mix
}

// DefaultOptions returns a moderate load.
func DefaultOptions() Options {
	return Options{Users: 4, Workers: 16, OpsPerWorker: 25, Seed: 42}
}

// LatencyStats captures performance metrics from a run.
type LatencyStats struct {
	Min        time.Duration
	Max        time.Duration
	Mean       time.Duration
	P50        time.Duration // Median
	P95        time.Duration
	P99        time.Duration
	TotalOps   int
	Awards     int
	Redeems    int
	Rejected   int // Redemptions refused for insufficient balance
	Errors     int
	Mismatches []string // Users whose balance disagrees with their history
}

// UserIDs returns the ids Run creates for n users.
func UserIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("load-%03d", i)
	}
	return ids
}

// Run creates opts.Users users with a zero balance, then lets
// opts.Workers goroutines each issue opts.OpsPerWorker random awards and
// redemptions. Afterwards every user's balance is compared with the
// floored replay of their history.
func Run(ctx context.Context, store remote.Store, l *ledger.Ledger, opts Options) (*LatencyStats, error) {
	if opts.Users <= 0 || opts.Workers <= 0 || opts.OpsPerWorker <= 0 {
		return nil, fmt.Errorf("users, workers and ops per worker must be positive")
	}

	users := UserIDs(opts.Users)
	now := time.Now().UTC()
	for _, id := range users {
		doc, err := remote.Encode(model.User{ID: id, Email: id + "@load.test", CreatedAt: now, UpdatedAt: now})
		if err != nil {
			return nil, err
		}
		if err := store.Set(ctx, model.CollectionUsers, id, doc); err != nil {
			return nil, fmt.Errorf("failed to create user %s: %w", id, err)
		}
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		durations []time.Duration
		stats     LatencyStats
	)

	for w := 0; w < opts.Workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			rng := rand.New(rand.NewSource(opts.Seed + int64(worker)))
			local := make([]time.Duration, 0, opts.OpsPerWorker)
			var awards, redeems, rejected, failed int

			for j := 0; j < opts.OpsPerWorker; j++ {
				if ctx.Err() != nil {
					break
				}
				user := users[rng.Intn(len(users))]
				amount := 10 + rng.Intn(91)

				start := time.Now()
				var err error
				if rng.Intn(3) == 0 {
					_, err = l.Redeem(ctx, user, amount, "Load redemption")
					redeems++
				} else {
					_, err = l.Award(ctx, user, amount, model.PointsEarned, "Load award", nil)
					awards++
				}
				local = append(local, time.Since(start))

				switch {
				case errors.Is(err, ledger.ErrInsufficientBalance):
					rejected++
				case err != nil:
					failed++
				}
			}

			mu.Lock()
			durations = append(durations, local...)
			stats.Awards += awards
			stats.Redeems += redeems
			stats.Rejected += rejected
			stats.Errors += failed
			mu.Unlock()
		}(w)
	}
	wg.Wait()

	if len(durations) == 0 {
		return nil, fmt.Errorf("no operations completed: %w", ctx.Err())
	}

	computed := computeLatencyStats(durations)
	computed.Awards, computed.Redeems = stats.Awards, stats.Redeems
	computed.Rejected, computed.Errors = stats.Rejected, stats.Errors

	for _, id := range users {
		ok, err := Verify(ctx, l, id)
		if err != nil {
			return computed, err
		}
		if !ok {
			computed.Mismatches = append(computed.Mismatches, id)
		}
	}
	return computed, nil
}

// Verify reports whether the user's balance equals the floored replay of
// their point history.
func Verify(ctx context.Context, l *ledger.Ledger, userID string) (bool, error) {
	balance, err := l.Balance(ctx, userID)
	if err != nil {
		return false, err
	}
	history, err := l.History(ctx, userID)
	if err != nil {
		return false, err
	}
	replayed := 0
	for _, h := range slices.Backward(history) {
		replayed = max(0, replayed+h.Amount)
	}
	return replayed == balance, nil
}

func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := slices.Clone(durations)
	slices.Sort(sorted)

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return &LatencyStats{
		Min:      sorted[0],
		Max:      sorted[len(sorted)-1],
		Mean:     sum / time.Duration(len(sorted)),
		P50:      sorted[len(sorted)*50/100],
		P95:      sorted[len(sorted)*95/100],
		P99:      sorted[len(sorted)*99/100],
		TotalOps: len(sorted),
	}
}

// Print writes the statistics in a human-readable form.
func (s *LatencyStats) Print(w io.Writer) {
	fmt.Fprintf(w, "Latency Statistics:\n")
	fmt.Fprintf(w, "  Total Ops:     %d (awards %d, redeems %d)\n", s.TotalOps, s.Awards, s.Redeems)
	fmt.Fprintf(w, "  Rejected:      %d\n", s.Rejected)
	fmt.Fprintf(w, "  Errors:        %d\n", s.Errors)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
	if len(s.Mismatches) > 0 {
		fmt.Fprintf(w, "  Mismatched balances: %v\n", s.Mismatches)
	}
}
